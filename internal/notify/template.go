package notify

import (
	"fmt"
	"regexp"
	"time"
)

// Логические имена шаблонов, известные сервису.
const (
	TemplateCollectionReminder = "collection_reminder"
	TemplateTestMessage        = "test_message"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// RenderTemplate подставляет значения в плейсхолдеры вида {name}.
// Подстановка чувствительна к регистру и не поддерживает условий.
// Плейсхолдер, отсутствующий в data, приводит к ошибке: вызывающая сторона
// в этом случае использует встроенный текст по умолчанию, а не шлёт
// недособранное сообщение.
func RenderTemplate(body string, data map[string]string) (string, error) {
	var missing string
	rendered := placeholderRe.ReplaceAllStringFunc(body, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := data[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return match
		}
		return value
	})

	if missing != "" {
		return "", fmt.Errorf("template references unknown placeholder %q", missing)
	}

	return rendered, nil
}

// DefaultReminderMessage возвращает встроенный текст напоминания о вывозе.
func DefaultReminderMessage(binType string, collectionDate time.Time) string {
	return fmt.Sprintf(
		"Reminder: Your %s bin collection is scheduled for %s. Please ensure your bin is placed outside before collection time.",
		binType, collectionDate.Format("Monday, January 2, 2006"),
	)
}

// DefaultTestMessage возвращает встроенный текст проверочного сообщения.
func DefaultTestMessage() string {
	return "Test message from your Bin Collection Reminder Service. If you received this message, notifications are working correctly."
}
