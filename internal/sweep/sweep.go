// Package sweep реализует обход графиков вывоза: выбор подходящих графиков,
// отправку напоминаний и перенос дат после успешной вечерней доставки.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/heatonjb/BinReminderApp/internal/clock"
	"github.com/heatonjb/BinReminderApp/internal/model"
	"github.com/heatonjb/BinReminderApp/internal/repository"
)

// Store описывает контракт доступа к данным, используемый обходом.
type Store interface {
	GetSchedulesDueBetween(ctx context.Context, from, to time.Time) ([]model.BinSchedule, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	AdvanceSchedule(ctx context.Context, scheduleID int64, next time.Time) error
}

// Dispatcher описывает доставку одного напоминания.
type Dispatcher interface {
	Dispatch(ctx context.Context, user *model.User, schedule model.BinSchedule, channel model.Channel) bool
}

// Report содержит итоги одного обхода.
type Report struct {
	Considered int
	Sent       int
	Errors     int
}

// Sweeper выполняет обход графиков для одного окна уведомлений.
type Sweeper struct {
	store      Store
	dispatcher Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewSweeper создаёт обходчик графиков.
func NewSweeper(store Store, dispatcher Dispatcher, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		now:        clock.Now,
	}
}

// Run выполняет один обход для окна указанного вида.
//
// Утреннее окно напоминает о сегодняшнем вывозе, вечернее — о завтрашнем.
// Дата следующего вывоза переносится только после успешной вечерней доставки:
// вечерняя отправка — единственный сигнал «вывоз учтён». Ошибка по одному
// графику не прерывает обработку остальных.
func (s *Sweeper) Run(ctx context.Context, kind model.WindowKind) (Report, error) {
	var report Report

	now := s.now()
	target := clock.TargetDate(now, kind)
	from, to := clock.DayWindow(target)

	schedules, err := s.store.GetSchedulesDueBetween(ctx, from, to)
	if err != nil {
		return report, fmt.Errorf("select due schedules: %w", err)
	}

	s.logger.Info("sweep started",
		zap.String("window", string(kind)),
		zap.Time("target_date", target),
		zap.Int("schedules", len(schedules)))

	for _, schedule := range schedules {
		report.Considered++

		user, err := s.store.GetUserByID(ctx, schedule.UserID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				// Осиротевший график: владелец отсутствует, пропускаем без ошибки.
				s.logger.Warn("schedule without owner skipped",
					zap.Int64("scheduleID", schedule.ID),
					zap.Int64("userID", schedule.UserID))
				continue
			}
			s.logger.Error("load schedule owner failed",
				zap.Int64("scheduleID", schedule.ID), zap.Error(err))
			report.Errors++
			continue
		}

		window := user.Prefs.Window(kind)
		if !window.Enabled {
			// Выключенное окно: ни отправки, ни записи в журнал.
			continue
		}

		sent := s.dispatcher.Dispatch(ctx, user, schedule, window.Channel)
		if !sent {
			report.Errors++
			continue
		}
		report.Sent++

		if kind != model.WindowEvening {
			continue
		}

		next := schedule.NextCollection.AddDate(0, 0, schedule.Frequency.Days())
		if err := s.store.AdvanceSchedule(ctx, schedule.ID, next); err != nil {
			// Перенос даты изолирован по графику: остальные обрабатываются дальше.
			s.logger.Error("advance schedule failed",
				zap.Int64("scheduleID", schedule.ID),
				zap.Time("next", next), zap.Error(err))
			report.Errors++
		}
	}

	s.logger.Info("sweep finished",
		zap.String("window", string(kind)),
		zap.Int("considered", report.Considered),
		zap.Int("sent", report.Sent),
		zap.Int("errors", report.Errors))

	return report, nil
}
