// Package main запускает HTTP-сервер сервиса напоминаний о вывозе мусора.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/heatonjb/BinReminderApp/internal/config"
	"github.com/heatonjb/BinReminderApp/internal/handler"
	"github.com/heatonjb/BinReminderApp/internal/middleware"
	"github.com/heatonjb/BinReminderApp/internal/model"
	"github.com/heatonjb/BinReminderApp/internal/notify"
	"github.com/heatonjb/BinReminderApp/internal/repository"
	"github.com/heatonjb/BinReminderApp/internal/service"
	"github.com/heatonjb/BinReminderApp/internal/sweep"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}
	defer repo.Close()

	emailSender := notify.NewSendGridClient(cfg.SendGridAPIKey, cfg.EmailFrom, "")
	smsSender := notify.NewTwilioClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioPhoneNumber, "")

	dispatcher := notify.NewDispatcher(emailSender, smsSender, repo, repo, repo, logger)
	sweeper := sweep.NewSweeper(repo, dispatcher, logger)

	trigger := sweep.NewTrigger(sweeper, repo, logger)

	if cfg.EnableCron {
		// Базовое расписание: ежедневные обходы в часы по умолчанию. Окна каждого
		// пользователя проверяются внутри обхода, так что выключенные окна
		// напоминаний не получают.
		err = trigger.Reconfigure(model.NotificationPrefs{
			Morning: model.WindowConfig{Enabled: true, Hour: model.MorningHourDefault, Channel: model.ChannelEmail},
			Evening: model.WindowConfig{Enabled: true, Hour: model.EveningHourDefault, Channel: model.ChannelEmail},
		})
		if err != nil {
			sugar.Fatalw("scheduler initialization error", "error", err.Error())
		}

		trigger.Start()
		defer trigger.Stop()
	} else {
		sugar.Info("internal cron disabled, relying on external notification checks")
	}

	svc := service.NewService(repo, trigger, emailSender, smsSender)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, trigger, logger, authMiddleware)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting bin reminder server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
