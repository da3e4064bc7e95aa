// Package service реализует бизнес-логику сервиса напоминаний.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heatonjb/BinReminderApp/internal/clock"
	"github.com/heatonjb/BinReminderApp/internal/model"
	"github.com/heatonjb/BinReminderApp/internal/notify"
	"github.com/heatonjb/BinReminderApp/internal/repository"
	"github.com/heatonjb/BinReminderApp/internal/validation"
)

// ErrInvalidCredentials возвращается при неверной паре email/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput возвращается при некорректных входных данных.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	// referralBonusCredits — бонус SMS-кредитов пригласившему за одну регистрацию.
	referralBonusCredits = 3
	// referralCodeAttempts ограничивает перегенерацию кода при коллизиях.
	referralCodeAttempts = 3
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateUser(ctx context.Context, email, phone string, passwordHash []byte, referralCode string, referredByID *int64) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*model.User, error)
	AddSMSCredits(ctx context.Context, userID int64, n int) error
	DebitSMSCredit(ctx context.Context, userID int64) error
	UpdatePrefs(ctx context.Context, userID int64, prefs model.NotificationPrefs) error
	UpsertSchedule(ctx context.Context, userID int64, binType model.BinType, frequency model.Frequency, nextCollection time.Time) error
	GetSchedulesByUser(ctx context.Context, userID int64) ([]model.BinSchedule, error)
	GetActiveTemplate(ctx context.Context, name string) (*model.MessageTemplate, error)
	UpsertTemplate(ctx context.Context, name, body string, active bool) error
	GetEmailLogs(ctx context.Context, limit int) ([]model.EmailLog, error)
	GetAdminStats(ctx context.Context, weekAgo time.Time) (*model.AdminStats, error)
}

// TriggerControl описывает синхронную перенастройку планировщика обходов.
type TriggerControl interface {
	Reconfigure(prefs model.NotificationPrefs) error
}

// Service содержит бизнес-логику сервиса напоминаний.
type Service struct {
	repo    Repository
	trigger TriggerControl
	email   notify.EmailSender
	sms     notify.SMSSender
}

// NewService создаёт новый сервис с указанным репозиторием, планировщиком и каналами доставки.
func NewService(repo Repository, trigger TriggerControl, email notify.EmailSender, sms notify.SMSSender) *Service {
	return &Service{
		repo:    repo,
		trigger: trigger,
		email:   email,
		sms:     sms,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя. Корректный реферальный код
// начисляет бонусные SMS-кредиты пригласившему; неизвестный код игнорируется.
func (s *Service) RegisterUser(ctx context.Context, email, phone, password, referralCode string) (int64, error) {
	if email == "" || password == "" {
		return 0, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	if !validation.IsValidPhone(phone) {
		return 0, fmt.Errorf("%w: malformed phone number", ErrInvalidInput)
	}

	var referredBy *int64
	if referralCode != "" {
		referrer, err := s.repo.GetUserByReferralCode(ctx, referralCode)
		if err == nil {
			referredBy = &referrer.ID
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return 0, err
		}
	}

	hashed := hashPassword(email, password)

	// Коллизия восьмисимвольного кода маловероятна, но не исключена:
	// в этом случае код генерируется заново.
	var id int64
	var err error
	for attempt := 0; attempt < referralCodeAttempts; attempt++ {
		id, err = s.repo.CreateUser(ctx, email, phone, hashed, newReferralCode(), referredBy)
		if !errors.Is(err, repository.ErrReferralCodeTaken) {
			break
		}
	}
	if err != nil {
		return 0, err
	}

	if referredBy != nil {
		if err := s.repo.AddSMSCredits(ctx, *referredBy, referralBonusCredits); err != nil {
			return 0, fmt.Errorf("grant referral bonus: %w", err)
		}
	}

	return id, nil
}

// AuthenticateUser проверяет email и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (int64, error) {
	u, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(email, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

func newReferralCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// GetUserByID возвращает пользователя по идентификатору.
func (s *Service) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// UpdateSchedule создаёт или заменяет график вывоза для категории контейнера.
func (s *Service) UpdateSchedule(ctx context.Context, userID int64, binType model.BinType, frequency model.Frequency, nextCollection time.Time) error {
	if !binType.IsValid() {
		return fmt.Errorf("%w: unknown bin type %q", ErrInvalidInput, binType)
	}
	if !frequency.IsValid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidInput, frequency)
	}
	if nextCollection.IsZero() {
		return fmt.Errorf("%w: next collection date is required", ErrInvalidInput)
	}

	return s.repo.UpsertSchedule(ctx, userID, binType, frequency, clock.DateOf(nextCollection))
}

// GetSchedulesByUser возвращает графики вывоза пользователя.
func (s *Service) GetSchedulesByUser(ctx context.Context, userID int64) ([]model.BinSchedule, error) {
	return s.repo.GetSchedulesByUser(ctx, userID)
}

// UpdatePreferences проверяет и сохраняет настройки окон уведомлений, после
// чего синхронно перенастраивает планировщик — до возврата управления.
func (s *Service) UpdatePreferences(ctx context.Context, userID int64, prefs model.NotificationPrefs) error {
	normalized, err := normalizePrefs(prefs)
	if err != nil {
		return err
	}

	if err := s.repo.UpdatePrefs(ctx, userID, normalized); err != nil {
		return err
	}

	return s.trigger.Reconfigure(normalized)
}

// normalizePrefs валидирует включённые окна и принудительно возвращает
// выключенные окна к значениям по умолчанию, чтобы в хранилище не оставались
// устаревшие час и канал.
func normalizePrefs(prefs model.NotificationPrefs) (model.NotificationPrefs, error) {
	windows := []struct {
		kind model.WindowKind
		cfg  *model.WindowConfig
	}{
		{model.WindowMorning, &prefs.Morning},
		{model.WindowEvening, &prefs.Evening},
	}

	for _, w := range windows {
		if !w.cfg.Enabled {
			*w.cfg = model.DefaultWindow(w.kind)
			continue
		}
		if !validation.IsValidWindowHour(w.kind, w.cfg.Hour) {
			return prefs, fmt.Errorf("%w: hour %d is out of range for %s window", ErrInvalidInput, w.cfg.Hour, w.kind)
		}
		if !w.cfg.Channel.IsValid() {
			return prefs, fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, w.cfg.Channel)
		}
	}

	return prefs, nil
}

// TestSend отправляет проверочное сообщение по указанному каналу.
// Успешная проверочная SMS списывает кредит так же, как боевое напоминание.
func (s *Service) TestSend(ctx context.Context, userID int64, channel model.Channel) error {
	if !channel.IsValid() {
		return fmt.Errorf("%w: unknown channel %q", ErrInvalidInput, channel)
	}

	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	body := notify.DefaultTestMessage()
	if tmpl, err := s.repo.GetActiveTemplate(ctx, notify.TemplateTestMessage); err == nil {
		if rendered, err := notify.RenderTemplate(tmpl.Body, map[string]string{"email": user.Email}); err == nil {
			body = rendered
		}
	}

	if channel.IncludesEmail() {
		if _, err := s.email.Send(ctx, user.Email, "Bin reminder test message", body); err != nil {
			return err
		}
	}

	if channel.IncludesSMS() {
		if user.SMSCredits <= 0 {
			return repository.ErrNoCredits
		}
		if _, err := s.sms.Send(ctx, user.Phone, body); err != nil {
			return err
		}
		if err := s.repo.DebitSMSCredit(ctx, user.ID); err != nil {
			return err
		}
	}

	return nil
}

// GetAdminStats возвращает сводную статистику сервиса за последнюю неделю.
func (s *Service) GetAdminStats(ctx context.Context) (*model.AdminStats, error) {
	weekAgo := clock.Now().AddDate(0, 0, -7)
	return s.repo.GetAdminStats(ctx, weekAgo)
}

// GetEmailLogs возвращает последние записи журнала доставки.
func (s *Service) GetEmailLogs(ctx context.Context, limit int) ([]model.EmailLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.GetEmailLogs(ctx, limit)
}

// UpsertTemplate создаёт или заменяет шаблон сообщения.
func (s *Service) UpsertTemplate(ctx context.Context, name, body string, active bool) error {
	if name == "" || body == "" {
		return fmt.Errorf("%w: template name and body are required", ErrInvalidInput)
	}
	return s.repo.UpsertTemplate(ctx, name, body, active)
}
