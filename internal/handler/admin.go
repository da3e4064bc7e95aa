package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/heatonjb/BinReminderApp/internal/middleware"
	"github.com/heatonjb/BinReminderApp/internal/service"
)

// adminOnly отклоняет запросы пользователей без административных прав.
func (h *Handler) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		user, err := h.service.GetUserByID(r.Context(), userID)
		if err != nil {
			h.logger.Error("load user for admin check error", zap.Error(err), zap.Int64("userID", userID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		if !user.IsAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// AdminStats возвращает сводную статистику сервиса.
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetAdminStats(r.Context())
	if err != nil {
		h.logger.Error("admin stats error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	writeJSON(w, h.logger, stats)
}

type emailLogResponse struct {
	SentAt       string `json:"sent_at"`
	Recipient    string `json:"recipient"`
	BinType      string `json:"bin_type"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// AdminEmailLogs возвращает последние записи журнала доставки.
func (h *Handler) AdminEmailLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.service.GetEmailLogs(r.Context(), 100)
	if err != nil {
		h.logger.Error("admin email logs error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := make([]emailLogResponse, 0, len(logs))
	for _, entry := range logs {
		resp = append(resp, emailLogResponse{
			SentAt:       entry.SentAt.Format(time.RFC3339),
			Recipient:    entry.Recipient,
			BinType:      string(entry.BinType),
			Status:       string(entry.Status),
			ErrorMessage: entry.ErrorMessage,
		})
	}

	writeJSON(w, h.logger, resp)
}

type templateRequest struct {
	Body   string `json:"body"`
	Active bool   `json:"active"`
}

// AdminUpsertTemplate создаёт или заменяет шаблон сообщения с указанным именем.
func (h *Handler) AdminUpsertTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req templateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpsertTemplate(r.Context(), name, req.Body, req.Active); err != nil {
		if errors.Is(err, service.ErrInvalidInput) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("upsert template error", zap.Error(err), zap.String("template", name))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
