// Package handler содержит HTTP-обработчики API сервиса напоминаний.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/heatonjb/BinReminderApp/internal/clock"
	"github.com/heatonjb/BinReminderApp/internal/middleware"
	"github.com/heatonjb/BinReminderApp/internal/model"
	"github.com/heatonjb/BinReminderApp/internal/repository"
	"github.com/heatonjb/BinReminderApp/internal/service"
	"github.com/heatonjb/BinReminderApp/internal/sweep"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, email, phone, password, referralCode string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	UpdateSchedule(ctx context.Context, userID int64, binType model.BinType, frequency model.Frequency, nextCollection time.Time) error
	GetSchedulesByUser(ctx context.Context, userID int64) ([]model.BinSchedule, error)
	UpdatePreferences(ctx context.Context, userID int64, prefs model.NotificationPrefs) error
	TestSend(ctx context.Context, userID int64, channel model.Channel) error
	GetAdminStats(ctx context.Context) (*model.AdminStats, error)
	GetEmailLogs(ctx context.Context, limit int) ([]model.EmailLog, error)
	UpsertTemplate(ctx context.Context, name, body string, active bool) error
}

// Checker определяет внешний идемпотентный запуск проверки уведомлений.
type Checker interface {
	CheckNow(ctx context.Context) (sweep.CheckReport, error)
}

// Handler реализует HTTP-обработчики API сервиса напоминаний.
type Handler struct {
	service        Service
	checker        Checker
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, checker Checker, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		checker:        checker,
		logger:         logger,
		authMiddleware: auth,
	}
}

type registerRequest struct {
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	ReferralCode string `json:"referral_code,omitempty"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Email, req.Phone, req.Password, req.ReferralCode)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type scheduleRequest struct {
	BinType        string `json:"bin_type"`
	Frequency      string `json:"frequency"`
	NextCollection string `json:"next_collection"`
}

// UpdateSchedule создаёт или заменяет график вывоза текущего пользователя.
func (h *Handler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	nextCollection, err := time.ParseInLocation("2006-01-02", req.NextCollection, clock.GMT)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	err = h.service.UpdateSchedule(r.Context(), userID, model.BinType(req.BinType), model.Frequency(req.Frequency), nextCollection)
	if err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("update schedule error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type scheduleResponse struct {
	BinType        string `json:"bin_type"`
	Frequency      string `json:"frequency"`
	NextCollection string `json:"next_collection"`
}

// GetSchedules возвращает графики вывоза текущего пользователя.
func (h *Handler) GetSchedules(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	schedules, err := h.service.GetSchedulesByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get schedules error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(schedules) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]scheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		resp = append(resp, scheduleResponse{
			BinType:        string(s.BinType),
			Frequency:      string(s.Frequency),
			NextCollection: s.NextCollection.Format("2006-01-02"),
		})
	}

	writeJSON(w, h.logger, resp)
}

type windowRequest struct {
	Enabled bool   `json:"enabled"`
	Hour    int    `json:"hour"`
	Channel string `json:"channel"`
}

type preferencesRequest struct {
	Morning windowRequest `json:"morning"`
	Evening windowRequest `json:"evening"`
}

// UpdatePreferences сохраняет настройки окон уведомлений текущего пользователя.
// Планировщик перенастраивается до отправки ответа.
func (h *Handler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req preferencesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	prefs := model.NotificationPrefs{
		Morning: model.WindowConfig{Enabled: req.Morning.Enabled, Hour: req.Morning.Hour, Channel: model.Channel(req.Morning.Channel)},
		Evening: model.WindowConfig{Enabled: req.Evening.Enabled, Hour: req.Evening.Hour, Channel: model.Channel(req.Evening.Channel)},
	}

	if err := h.service.UpdatePreferences(r.Context(), userID, prefs); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("update preferences error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type creditsResponse struct {
	SMSCredits   int    `json:"sms_credits"`
	ReferralCode string `json:"referral_code"`
}

// GetCredits возвращает баланс SMS-кредитов и реферальный код текущего пользователя.
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	user, err := h.service.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.Error("get credits error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, creditsResponse{
		SMSCredits:   user.SMSCredits,
		ReferralCode: user.ReferralCode,
	})
}

type testSendRequest struct {
	Channel string `json:"channel"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// TestSend отправляет проверочное сообщение текущему пользователю.
// Наружу уходит только обобщённый статус, без деталей ошибки провайдера.
func (h *Handler) TestSend(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req testSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.TestSend(r.Context(), userID, model.Channel(req.Channel)); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		h.logger.Warn("test send failed", zap.Error(err), zap.Int64("userID", userID))
		writeJSON(w, h.logger, statusResponse{Status: "failed"})
		return
	}

	writeJSON(w, h.logger, statusResponse{Status: "sent"})
}

type checkNotificationsResponse struct {
	Status            string            `json:"status"`
	Timestamp         string            `json:"timestamp"`
	NotificationsSent sweep.CheckReport `json:"notifications_sent"`
}

type checkErrorResponse struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// CheckNotifications — неаутентифицированный резервный запуск проверки
// уведомлений для окружений без надёжного внутреннего таймера.
func (h *Handler) CheckNotifications(w http.ResponseWriter, r *http.Request) {
	report, err := h.checker.CheckNow(r.Context())
	if err != nil {
		h.logger.Error("check notifications error", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(checkErrorResponse{
			Status: "error",
			Error:  "notification check failed",
		})
		return
	}

	writeJSON(w, h.logger, checkNotificationsResponse{
		Status:            "success",
		Timestamp:         clock.Now().Format(time.RFC3339),
		NotificationsSent: report,
	})
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response error", zap.Error(err))
	}
}
