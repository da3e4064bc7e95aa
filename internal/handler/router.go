package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/heatonjb/BinReminderApp/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса напоминаний.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	// Резервный внешний запуск проверки уведомлений, без аутентификации.
	r.Get("/api/check-notifications", h.CheckNotifications)

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Post("/schedule", h.UpdateSchedule)
			r.Get("/schedules", h.GetSchedules)

			r.Put("/preferences", h.UpdatePreferences)
			r.Get("/credits", h.GetCredits)
			r.Post("/test-send", h.TestSend)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(h.adminOnly)

		r.Get("/stats", h.AdminStats)
		r.Get("/emails", h.AdminEmailLogs)
		r.Put("/templates/{name}", h.AdminUpsertTemplate)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
