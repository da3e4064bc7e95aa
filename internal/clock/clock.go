// Package clock отвечает за единую временную зону сервиса и датную арифметику.
//
// Все сравнения дат выполняются в фиксированной зоне GMT: локальные зоны
// пользователей сервисом не поддерживаются, поэтому переходы на летнее время
// не влияют на выбор графиков.
package clock

import (
	"time"

	"github.com/heatonjb/BinReminderApp/internal/model"
)

// GMT — каноническая временная зона сервиса.
var GMT = time.FixedZone("GMT", 0)

// Now возвращает текущее время в канонической зоне.
func Now() time.Time {
	return time.Now().In(GMT)
}

// DateOf усекает момент времени до полуночи соответствующего дня в GMT.
func DateOf(t time.Time) time.Time {
	t = t.In(GMT)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, GMT)
}

// TargetDate возвращает дату вывоза, о которой напоминает окно указанного вида.
// Вечернее окно предупреждает о завтрашнем вывозе, утреннее — о сегодняшнем.
func TargetDate(now time.Time, kind model.WindowKind) time.Time {
	d := DateOf(now)
	if kind == model.WindowEvening {
		return d.AddDate(0, 0, 1)
	}
	return d
}

// DayWindow возвращает полуоткрытый суточный интервал [date, date+1d).
// Интервал терпим к сохранённым датам вывоза с ненулевым временем суток.
func DayWindow(date time.Time) (from, to time.Time) {
	from = DateOf(date)
	return from, from.AddDate(0, 0, 1)
}

// TodayAtHour возвращает сегодняшний момент с указанным часом в GMT.
func TodayAtHour(now time.Time, hour int) time.Time {
	d := DateOf(now)
	return time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, GMT)
}
