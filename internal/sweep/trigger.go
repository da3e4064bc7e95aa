package sweep

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/heatonjb/BinReminderApp/internal/clock"
	"github.com/heatonjb/BinReminderApp/internal/model"
)

// Runner описывает запуск одного обхода графиков.
type Runner interface {
	Run(ctx context.Context, kind model.WindowKind) (Report, error)
}

// UserSource описывает выборку пользователей с включённым окном уведомлений.
type UserSource interface {
	GetUsersWithWindowEnabled(ctx context.Context, kind model.WindowKind) ([]model.User, error)
}

// CheckReport содержит итоги внешнего запуска проверки уведомлений.
type CheckReport struct {
	Morning int `json:"morning"`
	Evening int `json:"evening"`
	Errors  int `json:"errors"`
}

type cronEntry struct {
	id   cron.EntryID
	hour int
}

// Trigger управляет запуском обходов: внутренними cron-задачами по одной на
// включённое окно и внешней идемпотентной проверкой «не пора ли уже».
type Trigger struct {
	cron    *cron.Cron
	sweeper Runner
	users   UserSource
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[model.WindowKind]cronEntry
}

// NewTrigger создаёт управляющий объект планировщика. Cron работает в той же
// фиксированной зоне, что и вся датная арифметика сервиса.
func NewTrigger(sweeper Runner, users UserSource, logger *zap.Logger) *Trigger {
	return &Trigger{
		cron:    cron.New(cron.WithLocation(clock.GMT)),
		sweeper: sweeper,
		users:   users,
		logger:  logger,
		now:     clock.Now,
		entries: make(map[model.WindowKind]cronEntry),
	}
}

// Start запускает cron-планировщик.
func (t *Trigger) Start() {
	t.cron.Start()
	t.logger.Info("sweep trigger started")
}

// Stop останавливает планировщик и дожидается завершения запущенных задач.
func (t *Trigger) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	t.logger.Info("sweep trigger stopped")
}

// Reconfigure приводит набор cron-задач к желаемому состоянию: по одной задаче
// на включённое окно с его целевым часом. Вместо слепого «снять всё и
// зарегистрировать заново» выполняется сверка: совпадающие задачи остаются,
// лишние снимаются, недостающие добавляются. Повторных срабатываний на старом
// часе после возврата из Reconfigure не происходит.
func (t *Trigger) Reconfigure(prefs model.NotificationPrefs) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	desired := make(map[model.WindowKind]int)
	if prefs.Morning.Enabled {
		desired[model.WindowMorning] = prefs.Morning.Hour
	}
	if prefs.Evening.Enabled {
		desired[model.WindowEvening] = prefs.Evening.Hour
	}

	for kind, entry := range t.entries {
		hour, keep := desired[kind]
		if keep && hour == entry.hour {
			delete(desired, kind)
			continue
		}
		t.cron.Remove(entry.id)
		delete(t.entries, kind)
		t.logger.Info("sweep job removed",
			zap.String("window", string(kind)), zap.Int("hour", entry.hour))
	}

	for kind, hour := range desired {
		kind := kind
		spec := fmt.Sprintf("0 %d * * *", hour)
		id, err := t.cron.AddFunc(spec, func() {
			t.runWindow(context.Background(), kind)
		})
		if err != nil {
			return fmt.Errorf("add sweep job for %s window: %w", kind, err)
		}
		t.entries[kind] = cronEntry{id: id, hour: hour}
		t.logger.Info("sweep job added",
			zap.String("window", string(kind)), zap.Int("hour", hour))
	}

	return nil
}

func (t *Trigger) runWindow(ctx context.Context, kind model.WindowKind) {
	// Ошибки внутреннего запуска только логируются: следующий запуск по
	// расписанию выполнит недоставленные напоминания заново.
	if _, err := t.sweeper.Run(ctx, kind); err != nil {
		t.logger.Error("scheduled sweep failed",
			zap.String("window", string(kind)), zap.Error(err))
	}
}

// CheckNow — внешняя идемпотентная проверка. Для каждого окна она заново
// вычисляет, прошёл ли сегодня целевой час хотя бы у одного пользователя с
// включённым окном, и в этом случае запускает полный обход окна по всем
// пользователям. Повторный вызов безопасен: график, уже перенесённый за
// целевую дату, в выборку обхода не попадает.
func (t *Trigger) CheckNow(ctx context.Context) (CheckReport, error) {
	var report CheckReport
	now := t.now()

	for _, kind := range []model.WindowKind{model.WindowEvening, model.WindowMorning} {
		users, err := t.users.GetUsersWithWindowEnabled(ctx, kind)
		if err != nil {
			return report, fmt.Errorf("select users for %s window: %w", kind, err)
		}

		due := false
		for _, u := range users {
			window := u.Prefs.Window(kind)
			if !window.Enabled {
				continue
			}
			if now.After(clock.TodayAtHour(now, window.Hour)) {
				due = true
				break
			}
		}

		if !due {
			continue
		}

		sweepReport, err := t.sweeper.Run(ctx, kind)
		if err != nil {
			t.logger.Error("triggered sweep failed",
				zap.String("window", string(kind)), zap.Error(err))
			report.Errors++
			continue
		}

		switch kind {
		case model.WindowMorning:
			report.Morning = sweepReport.Sent
		case model.WindowEvening:
			report.Evening = sweepReport.Sent
		}
		report.Errors += sweepReport.Errors
	}

	return report, nil
}
