// Package validation содержит функции валидации входных данных.
package validation

import (
	"unicode"

	"github.com/heatonjb/BinReminderApp/internal/model"
)

// IsValidPhone проверяет номер телефона в международном формате:
// необязательный ведущий «+» и от 7 до 15 цифр.
func IsValidPhone(phone string) bool {
	if phone == "" {
		return false
	}

	digits := 0
	for i, ch := range phone {
		if ch == '+' {
			if i != 0 {
				return false
			}
			continue
		}
		if !unicode.IsDigit(ch) {
			return false
		}
		digits++
	}

	return digits >= 7 && digits <= 15
}

// IsValidWindowHour проверяет целевой час для окна указанного вида.
// Утреннее окно допускает часы [5, 11], вечернее — [12, 22].
func IsValidWindowHour(kind model.WindowKind, hour int) bool {
	if kind == model.WindowEvening {
		return hour >= model.EveningHourMin && hour <= model.EveningHourMax
	}
	return hour >= model.MorningHourMin && hour <= model.MorningHourMax
}
