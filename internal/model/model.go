// Package model содержит доменные сущности сервиса напоминаний о вывозе мусора.
package model

import "time"

// BinType описывает категорию контейнера.
type BinType string

const (
	BinTypeRefuse      BinType = "refuse"
	BinTypeRecycling   BinType = "recycling"
	BinTypeGardenWaste BinType = "garden_waste"
)

// IsValid проверяет, что категория контейнера известна сервису.
func (b BinType) IsValid() bool {
	switch b {
	case BinTypeRefuse, BinTypeRecycling, BinTypeGardenWaste:
		return true
	}
	return false
}

// Frequency описывает периодичность вывоза контейнера.
type Frequency string

const (
	FrequencyWeekly   Frequency = "weekly"
	FrequencyBiweekly Frequency = "biweekly"
)

// IsValid проверяет, что периодичность известна сервису.
func (f Frequency) IsValid() bool {
	return f == FrequencyWeekly || f == FrequencyBiweekly
}

// Days возвращает длину периода в днях.
func (f Frequency) Days() int {
	if f == FrequencyBiweekly {
		return 14
	}
	return 7
}

// WindowKind различает утреннее и вечернее окно уведомлений.
type WindowKind string

const (
	WindowMorning WindowKind = "morning"
	WindowEvening WindowKind = "evening"
)

// Channel описывает выбор канала доставки напоминания.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelBoth  Channel = "both"
)

// IsValid проверяет, что канал доставки известен сервису.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelBoth:
		return true
	}
	return false
}

// IncludesEmail сообщает, требуется ли доставка по email.
func (c Channel) IncludesEmail() bool {
	return c == ChannelEmail || c == ChannelBoth
}

// IncludesSMS сообщает, требуется ли доставка по SMS.
func (c Channel) IncludesSMS() bool {
	return c == ChannelSMS || c == ChannelBoth
}

// Границы и значения по умолчанию для целевого часа окон уведомлений.
const (
	MorningHourMin     = 5
	MorningHourMax     = 11
	MorningHourDefault = 8

	EveningHourMin     = 12
	EveningHourMax     = 22
	EveningHourDefault = 18
)

// WindowConfig описывает настройку одного окна уведомлений пользователя.
type WindowConfig struct {
	Enabled bool
	Hour    int
	Channel Channel
}

// NotificationPrefs содержит настройки обоих окон уведомлений пользователя.
type NotificationPrefs struct {
	Morning WindowConfig
	Evening WindowConfig
}

// Window возвращает настройку окна указанного вида.
func (p NotificationPrefs) Window(kind WindowKind) WindowConfig {
	if kind == WindowEvening {
		return p.Evening
	}
	return p.Morning
}

// DefaultWindow возвращает документированную настройку выключенного окна.
// Выключенное окно хранится именно с этими значениями, а не с устаревшими.
func DefaultWindow(kind WindowKind) WindowConfig {
	if kind == WindowEvening {
		return WindowConfig{Enabled: false, Hour: EveningHourDefault, Channel: ChannelEmail}
	}
	return WindowConfig{Enabled: false, Hour: MorningHourDefault, Channel: ChannelEmail}
}

// User представляет зарегистрированного пользователя сервиса.
type User struct {
	ID           int64
	Email        string
	Phone        string
	PasswordHash []byte
	IsAdmin      bool
	SMSCredits   int
	ReferralCode string
	ReferredByID *int64
	Prefs        NotificationPrefs
	CreatedAt    time.Time
}

// BinSchedule описывает один график вывоза: пару (пользователь, категория контейнера).
type BinSchedule struct {
	ID             int64
	UserID         int64
	BinType        BinType
	Frequency      Frequency
	NextCollection time.Time
}

// DeliveryStatus описывает исход попытки доставки.
type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailure DeliveryStatus = "failure"
)

// EmailLog описывает одну запись журнала доставки. Записи только добавляются.
type EmailLog struct {
	ID           int64
	SentAt       time.Time
	Recipient    string
	BinType      BinType
	Status       DeliveryStatus
	ErrorMessage string
}

// MessageTemplate описывает шаблон текста уведомления, выбираемый по логическому имени.
type MessageTemplate struct {
	ID     int64
	Name   string
	Body   string
	Active bool
}

// AdminStats содержит сводную статистику для админского отчёта.
type AdminStats struct {
	TotalUsers          int64 `json:"total_users"`
	TotalSchedules      int64 `json:"total_schedules"`
	TotalEmails         int64 `json:"total_emails"`
	FailedEmails        int64 `json:"failed_emails"`
	CollectionsThisWeek int64 `json:"collections_this_week"`
}
