package notify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/heatonjb/BinReminderApp/internal/clock"
	"github.com/heatonjb/BinReminderApp/internal/model"
	"github.com/heatonjb/BinReminderApp/internal/repository"
)

// EmailSender описывает контракт канала доставки по email.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) (string, error)
}

// SMSSender описывает контракт канала доставки по SMS.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (string, error)
}

// CreditStore описывает списание SMS-кредитов.
type CreditStore interface {
	DebitSMSCredit(ctx context.Context, userID int64) error
}

// DeliveryLog описывает журнал попыток доставки.
type DeliveryLog interface {
	AppendEmailLog(ctx context.Context, entry model.EmailLog) error
}

// TemplateStore описывает хранилище шаблонов сообщений.
type TemplateStore interface {
	GetActiveTemplate(ctx context.Context, name string) (*model.MessageTemplate, error)
}

const reminderSubject = "Bin collection reminder"

// Dispatcher решает, какими каналами доставить напоминание одному пользователю,
// и фиксирует исход каждой попытки.
type Dispatcher struct {
	email       EmailSender
	sms         SMSSender
	credits     CreditStore
	deliveryLog DeliveryLog
	templates   TemplateStore
	logger      *zap.Logger
	now         func() time.Time
}

// NewDispatcher создаёт диспетчер напоминаний.
func NewDispatcher(email EmailSender, sms SMSSender, credits CreditStore, deliveryLog DeliveryLog, templates TemplateStore, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		email:       email,
		sms:         sms,
		credits:     credits,
		deliveryLog: deliveryLog,
		templates:   templates,
		logger:      logger,
		now:         clock.Now,
	}
}

// Dispatch доставляет напоминание о графике вывоза по выбранным каналам.
// Каналы обрабатываются независимо, без короткого замыкания: пользователь
// с каналом both получит письмо даже при исчерпанных SMS-кредитах.
// Возвращает true, если хотя бы один канал подтвердил доставку.
func (d *Dispatcher) Dispatch(ctx context.Context, user *model.User, schedule model.BinSchedule, channel model.Channel) bool {
	body := d.reminderBody(ctx, schedule)

	emailSent := false
	smsSent := false

	if channel.IncludesEmail() {
		emailSent = d.sendEmail(ctx, user, schedule, body)
	}

	if channel.IncludesSMS() {
		smsSent = d.sendSMS(ctx, user, body)
	}

	return emailSent || smsSent
}

// reminderBody собирает текст напоминания из активного шаблона либо, если
// шаблон отсутствует или ссылается на неизвестный плейсхолдер, из
// встроенного текста по умолчанию.
func (d *Dispatcher) reminderBody(ctx context.Context, schedule model.BinSchedule) string {
	fallback := DefaultReminderMessage(string(schedule.BinType), schedule.NextCollection)

	tmpl, err := d.templates.GetActiveTemplate(ctx, TemplateCollectionReminder)
	if err != nil {
		// Отсутствие активного шаблона — штатная ситуация.
		if !errors.Is(err, repository.ErrTemplateNotFound) {
			d.logger.Warn("template lookup failed, using default message", zap.Error(err))
		}
		return fallback
	}

	rendered, err := RenderTemplate(tmpl.Body, map[string]string{
		"bin_type": string(schedule.BinType),
		"date":     schedule.NextCollection.Format("Monday, January 2, 2006"),
	})
	if err != nil {
		d.logger.Warn("template rendering failed, using default message",
			zap.String("template", TemplateCollectionReminder), zap.Error(err))
		return fallback
	}

	return rendered
}

func (d *Dispatcher) sendEmail(ctx context.Context, user *model.User, schedule model.BinSchedule, body string) bool {
	_, err := d.email.Send(ctx, user.Email, reminderSubject, body)

	entry := model.EmailLog{
		SentAt:    d.now(),
		Recipient: user.Email,
		BinType:   schedule.BinType,
		Status:    model.DeliverySuccess,
	}
	if err != nil {
		entry.Status = model.DeliveryFailure
		entry.ErrorMessage = err.Error()
		d.logger.Error("email delivery failed",
			zap.String("recipient", user.Email), zap.Error(err))
	}

	// Запись в журнал выполняется при любом исходе попытки.
	if logErr := d.deliveryLog.AppendEmailLog(ctx, entry); logErr != nil {
		d.logger.Error("append email log failed",
			zap.String("recipient", user.Email), zap.Error(logErr))
	}

	return err == nil
}

func (d *Dispatcher) sendSMS(ctx context.Context, user *model.User, body string) bool {
	if user.SMSCredits <= 0 {
		d.logger.Warn("sms skipped: no credits left",
			zap.Int64("userID", user.ID), zap.String("phone", user.Phone))
		return false
	}

	sid, err := d.sms.Send(ctx, user.Phone, body)
	if err != nil {
		d.logger.Error("sms delivery failed",
			zap.Int64("userID", user.ID), zap.Error(err))
		return false
	}

	// Кредит списывается ровно один раз и только после подтверждения провайдера.
	// Неудачное списание повторяется один раз; если и оно не прошло, отправка
	// всё равно считается успешной — сообщение уже ушло, а баланс в минус не
	// уходит, так что допускается редкая отправка без списания.
	if err := d.credits.DebitSMSCredit(ctx, user.ID); err != nil {
		d.logger.Warn("sms credit debit failed, retrying once",
			zap.Int64("userID", user.ID), zap.String("sid", sid), zap.Error(err))
		if err := d.credits.DebitSMSCredit(ctx, user.ID); err != nil {
			d.logger.Error("sms credit debit failed after confirmed send",
				zap.Int64("userID", user.ID), zap.String("sid", sid), zap.Error(err))
		}
	}

	return true
}
