package sweep

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/heatonjb/BinReminderApp/internal/clock"
	"github.com/heatonjb/BinReminderApp/internal/model"
	"github.com/heatonjb/BinReminderApp/internal/repository"
)

type stubStore struct {
	schedules []model.BinSchedule
	loadErr   error
	users     map[int64]*model.User
	userErr   map[int64]error

	dueFrom, dueTo time.Time
	advanced       map[int64]time.Time
	advanceErr     map[int64]error
}

func (s *stubStore) GetSchedulesDueBetween(_ context.Context, from, to time.Time) ([]model.BinSchedule, error) {
	s.dueFrom, s.dueTo = from, to
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.schedules, nil
}

func (s *stubStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	if err, ok := s.userErr[id]; ok {
		return nil, err
	}
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (s *stubStore) AdvanceSchedule(_ context.Context, scheduleID int64, next time.Time) error {
	if err, ok := s.advanceErr[scheduleID]; ok {
		return err
	}
	if s.advanced == nil {
		s.advanced = make(map[int64]time.Time)
	}
	s.advanced[scheduleID] = next
	return nil
}

type stubDispatcher struct {
	calls  []model.Channel
	result map[int64]bool
}

func (d *stubDispatcher) Dispatch(_ context.Context, _ *model.User, schedule model.BinSchedule, channel model.Channel) bool {
	d.calls = append(d.calls, channel)
	ok, found := d.result[schedule.ID]
	if !found {
		return true
	}
	return ok
}

func fixedNow() time.Time {
	return time.Date(2025, time.March, 10, 18, 0, 0, 0, clock.GMT)
}

func testUser(id int64, prefs model.NotificationPrefs) *model.User {
	return &model.User{
		ID:    id,
		Email: "user@example.com",
		Phone: "+447700900123",
		Prefs: prefs,
	}
}

func enabledPrefs(channel model.Channel) model.NotificationPrefs {
	return model.NotificationPrefs{
		Morning: model.WindowConfig{Enabled: true, Hour: model.MorningHourDefault, Channel: channel},
		Evening: model.WindowConfig{Enabled: true, Hour: model.EveningHourDefault, Channel: channel},
	}
}

func newTestSweeper(store *stubStore, dispatcher *stubDispatcher) *Sweeper {
	s := NewSweeper(store, dispatcher, zap.NewNop())
	s.now = fixedNow
	return s
}

func TestRun_EveningAdvancesSchedule(t *testing.T) {
	tests := []struct {
		name      string
		frequency model.Frequency
		wantNext  time.Time
	}{
		{
			name:      "weekly plus seven days",
			frequency: model.FrequencyWeekly,
			wantNext:  time.Date(2025, time.March, 18, 0, 0, 0, 0, clock.GMT),
		},
		{
			name:      "biweekly plus fourteen days",
			frequency: model.FrequencyBiweekly,
			wantNext:  time.Date(2025, time.March, 25, 0, 0, 0, 0, clock.GMT),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{
				schedules: []model.BinSchedule{{
					ID:             1,
					UserID:         10,
					BinType:        model.BinTypeRefuse,
					Frequency:      tt.frequency,
					NextCollection: time.Date(2025, time.March, 11, 0, 0, 0, 0, clock.GMT),
				}},
				users: map[int64]*model.User{10: testUser(10, enabledPrefs(model.ChannelEmail))},
			}
			dispatcher := &stubDispatcher{}

			report, err := newTestSweeper(store, dispatcher).Run(context.Background(), model.WindowEvening)
			if err != nil {
				t.Fatalf("Run error: %v", err)
			}
			if report.Sent != 1 || report.Errors != 0 {
				t.Fatalf("report = %+v", report)
			}

			next, ok := store.advanced[1]
			if !ok {
				t.Fatalf("schedule was not advanced")
			}
			if !next.Equal(tt.wantNext) {
				t.Fatalf("next = %v, want %v", next, tt.wantNext)
			}
		})
	}
}

func TestRun_EveningTargetsTomorrow(t *testing.T) {
	store := &stubStore{}
	_, err := newTestSweeper(store, &stubDispatcher{}).Run(context.Background(), model.WindowEvening)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	wantFrom := time.Date(2025, time.March, 11, 0, 0, 0, 0, clock.GMT)
	wantTo := time.Date(2025, time.March, 12, 0, 0, 0, 0, clock.GMT)
	if !store.dueFrom.Equal(wantFrom) || !store.dueTo.Equal(wantTo) {
		t.Fatalf("window = [%v, %v), want [%v, %v)", store.dueFrom, store.dueTo, wantFrom, wantTo)
	}
}

func TestRun_MorningTargetsTodayAndNeverAdvances(t *testing.T) {
	store := &stubStore{
		schedules: []model.BinSchedule{{
			ID:             1,
			UserID:         10,
			BinType:        model.BinTypeRecycling,
			Frequency:      model.FrequencyWeekly,
			NextCollection: time.Date(2025, time.March, 10, 0, 0, 0, 0, clock.GMT),
		}},
		users: map[int64]*model.User{10: testUser(10, enabledPrefs(model.ChannelEmail))},
	}
	dispatcher := &stubDispatcher{}

	report, err := newTestSweeper(store, dispatcher).Run(context.Background(), model.WindowMorning)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Sent != 1 {
		t.Fatalf("report = %+v", report)
	}

	wantFrom := time.Date(2025, time.March, 10, 0, 0, 0, 0, clock.GMT)
	if !store.dueFrom.Equal(wantFrom) {
		t.Fatalf("dueFrom = %v, want %v", store.dueFrom, wantFrom)
	}
	if len(store.advanced) != 0 {
		t.Fatalf("morning sweep must not advance schedules: %v", store.advanced)
	}
}

func TestRun_DisabledWindowSkipped(t *testing.T) {
	prefs := enabledPrefs(model.ChannelEmail)
	prefs.Evening.Enabled = false

	store := &stubStore{
		schedules: []model.BinSchedule{{
			ID:             1,
			UserID:         10,
			Frequency:      model.FrequencyWeekly,
			NextCollection: time.Date(2025, time.March, 11, 0, 0, 0, 0, clock.GMT),
		}},
		users: map[int64]*model.User{10: testUser(10, prefs)},
	}
	dispatcher := &stubDispatcher{}

	report, err := newTestSweeper(store, dispatcher).Run(context.Background(), model.WindowEvening)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Considered != 1 || report.Sent != 0 || report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(dispatcher.calls) != 0 {
		t.Fatalf("dispatcher must not be called for disabled window")
	}
	if len(store.advanced) != 0 {
		t.Fatalf("disabled window must not advance schedules")
	}
}

func TestRun_OrphanScheduleSkippedWithoutError(t *testing.T) {
	store := &stubStore{
		schedules: []model.BinSchedule{{ID: 1, UserID: 99, Frequency: model.FrequencyWeekly}},
	}
	dispatcher := &stubDispatcher{}

	report, err := newTestSweeper(store, dispatcher).Run(context.Background(), model.WindowEvening)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Considered != 1 || report.Sent != 0 || report.Errors != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(dispatcher.calls) != 0 {
		t.Fatalf("dispatcher must not be called for orphan schedule")
	}
}

func TestRun_OwnerLoadErrorCounted(t *testing.T) {
	store := &stubStore{
		schedules: []model.BinSchedule{{ID: 1, UserID: 10, Frequency: model.FrequencyWeekly}},
		userErr:   map[int64]error{10: errors.New("connection reset")},
	}

	report, err := newTestSweeper(store, &stubDispatcher{}).Run(context.Background(), model.WindowEvening)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Errors != 1 || report.Sent != 0 {
		t.Fatalf("report = %+v", report)
	}
}

func TestRun_DispatchFailureIsolated(t *testing.T) {
	next := time.Date(2025, time.March, 11, 0, 0, 0, 0, clock.GMT)
	store := &stubStore{
		schedules: []model.BinSchedule{
			{ID: 1, UserID: 10, Frequency: model.FrequencyWeekly, NextCollection: next},
			{ID: 2, UserID: 10, Frequency: model.FrequencyWeekly, NextCollection: next},
		},
		users: map[int64]*model.User{10: testUser(10, enabledPrefs(model.ChannelEmail))},
	}
	dispatcher := &stubDispatcher{result: map[int64]bool{1: false}}

	report, err := newTestSweeper(store, dispatcher).Run(context.Background(), model.WindowEvening)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Considered != 2 || report.Sent != 1 || report.Errors != 1 {
		t.Fatalf("report = %+v", report)
	}

	if _, ok := store.advanced[1]; ok {
		t.Fatalf("failed dispatch must not advance schedule")
	}
	if _, ok := store.advanced[2]; !ok {
		t.Fatalf("successful dispatch must advance schedule")
	}
}

func TestRun_AdvanceFailureIsolated(t *testing.T) {
	next := time.Date(2025, time.March, 11, 0, 0, 0, 0, clock.GMT)
	store := &stubStore{
		schedules: []model.BinSchedule{
			{ID: 1, UserID: 10, Frequency: model.FrequencyWeekly, NextCollection: next},
			{ID: 2, UserID: 10, Frequency: model.FrequencyWeekly, NextCollection: next},
		},
		users:      map[int64]*model.User{10: testUser(10, enabledPrefs(model.ChannelEmail))},
		advanceErr: map[int64]error{1: errors.New("serialization failure")},
	}
	dispatcher := &stubDispatcher{}

	report, err := newTestSweeper(store, dispatcher).Run(context.Background(), model.WindowEvening)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if report.Sent != 2 || report.Errors != 1 {
		t.Fatalf("report = %+v", report)
	}
	if _, ok := store.advanced[2]; !ok {
		t.Fatalf("second schedule must still be advanced")
	}
}

// replayStore отражает перенос даты в последующих выборках, как настоящая БД.
type replayStore struct {
	schedules []model.BinSchedule
	users     map[int64]*model.User
	advances  int
}

func (s *replayStore) GetSchedulesDueBetween(_ context.Context, from, to time.Time) ([]model.BinSchedule, error) {
	var due []model.BinSchedule
	for _, schedule := range s.schedules {
		if !schedule.NextCollection.Before(from) && schedule.NextCollection.Before(to) {
			due = append(due, schedule)
		}
	}
	return due, nil
}

func (s *replayStore) GetUserByID(_ context.Context, id int64) (*model.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (s *replayStore) AdvanceSchedule(_ context.Context, scheduleID int64, next time.Time) error {
	for i := range s.schedules {
		if s.schedules[i].ID == scheduleID {
			s.schedules[i].NextCollection = next
			s.advances++
			return nil
		}
	}
	return repository.ErrScheduleNotFound
}

func TestRun_RepeatedEveningSweepDoesNotDoubleAdvance(t *testing.T) {
	store := &replayStore{
		schedules: []model.BinSchedule{{
			ID:             1,
			UserID:         10,
			BinType:        model.BinTypeRefuse,
			Frequency:      model.FrequencyWeekly,
			NextCollection: time.Date(2025, time.March, 11, 0, 0, 0, 0, clock.GMT),
		}},
		users: map[int64]*model.User{10: testUser(10, enabledPrefs(model.ChannelEmail))},
	}
	dispatcher := &stubDispatcher{}
	sweeper := NewSweeper(store, dispatcher, zap.NewNop())
	sweeper.now = fixedNow

	first, err := sweeper.Run(context.Background(), model.WindowEvening)
	if err != nil {
		t.Fatalf("first Run error: %v", err)
	}
	if first.Sent != 1 || store.advances != 1 {
		t.Fatalf("first pass: report = %+v, advances = %d", first, store.advances)
	}

	// Перенесённый график выпадает из суточного интервала: повторный обход
	// того же окна в тот же день ничего не находит и ничего не переносит.
	second, err := sweeper.Run(context.Background(), model.WindowEvening)
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if second.Considered != 0 || second.Sent != 0 {
		t.Fatalf("second pass: report = %+v", second)
	}
	if store.advances != 1 {
		t.Fatalf("advances = %d, want exactly 1", store.advances)
	}

	want := time.Date(2025, time.March, 18, 0, 0, 0, 0, clock.GMT)
	if !store.schedules[0].NextCollection.Equal(want) {
		t.Fatalf("next collection = %v, want %v", store.schedules[0].NextCollection, want)
	}
	if len(dispatcher.calls) != 1 {
		t.Fatalf("dispatch calls = %d, want 1", len(dispatcher.calls))
	}
}

func TestRun_LoadErrorReturned(t *testing.T) {
	store := &stubStore{loadErr: errors.New("database down")}

	_, err := newTestSweeper(store, &stubDispatcher{}).Run(context.Background(), model.WindowEvening)
	if err == nil {
		t.Fatalf("expected error when schedule selection fails")
	}
}

func TestRun_DispatchUsesWindowChannel(t *testing.T) {
	store := &stubStore{
		schedules: []model.BinSchedule{{
			ID:             1,
			UserID:         10,
			Frequency:      model.FrequencyWeekly,
			NextCollection: time.Date(2025, time.March, 11, 0, 0, 0, 0, clock.GMT),
		}},
		users: map[int64]*model.User{10: testUser(10, enabledPrefs(model.ChannelBoth))},
	}
	dispatcher := &stubDispatcher{}

	if _, err := newTestSweeper(store, dispatcher).Run(context.Background(), model.WindowEvening); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(dispatcher.calls) != 1 || dispatcher.calls[0] != model.ChannelBoth {
		t.Fatalf("dispatcher calls = %v, want [both]", dispatcher.calls)
	}
}
