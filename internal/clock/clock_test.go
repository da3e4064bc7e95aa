package clock

import (
	"testing"
	"time"

	"github.com/heatonjb/BinReminderApp/internal/model"
)

func TestTargetDate(t *testing.T) {
	now := time.Date(2025, time.March, 10, 18, 30, 0, 0, GMT)

	tests := []struct {
		name string
		kind model.WindowKind
		want time.Time
	}{
		{
			name: "morning reminds about today",
			kind: model.WindowMorning,
			want: time.Date(2025, time.March, 10, 0, 0, 0, 0, GMT),
		},
		{
			name: "evening reminds about tomorrow",
			kind: model.WindowEvening,
			want: time.Date(2025, time.March, 11, 0, 0, 0, 0, GMT),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TargetDate(now, tt.kind)
			if !got.Equal(tt.want) {
				t.Fatalf("TargetDate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDayWindow_HalfOpen(t *testing.T) {
	date := time.Date(2025, time.March, 11, 9, 15, 0, 0, GMT)

	from, to := DayWindow(date)

	if !from.Equal(time.Date(2025, time.March, 11, 0, 0, 0, 0, GMT)) {
		t.Fatalf("from = %v", from)
	}
	if !to.Equal(time.Date(2025, time.March, 12, 0, 0, 0, 0, GMT)) {
		t.Fatalf("to = %v", to)
	}

	// Дата вывоза с ненулевым временем суток попадает в интервал.
	stored := time.Date(2025, time.March, 11, 23, 59, 0, 0, GMT)
	if stored.Before(from) || !stored.Before(to) {
		t.Fatalf("stored timestamp %v must fall within [%v, %v)", stored, from, to)
	}
}

func TestDateOf_NormalizesZone(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	local := time.Date(2025, time.March, 11, 0, 30, 0, 0, loc)

	// 00:30 CET — это ещё 10 марта в GMT.
	got := DateOf(local)
	want := time.Date(2025, time.March, 10, 0, 0, 0, 0, GMT)
	if !got.Equal(want) {
		t.Fatalf("DateOf = %v, want %v", got, want)
	}
}

func TestTodayAtHour(t *testing.T) {
	now := time.Date(2025, time.March, 10, 19, 45, 0, 0, GMT)

	got := TodayAtHour(now, 18)
	want := time.Date(2025, time.March, 10, 18, 0, 0, 0, GMT)
	if !got.Equal(want) {
		t.Fatalf("TodayAtHour = %v, want %v", got, want)
	}
	if !now.After(got) {
		t.Fatalf("expected now %v to be past %v", now, got)
	}
}
