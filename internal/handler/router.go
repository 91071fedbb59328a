package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/ordersync/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware веб-интерфейса.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", h.metrics.Handler())

	r.Group(func(r chi.Router) {
		if h.authMiddleware != nil {
			r.Use(h.authMiddleware.Middleware)
		}

		r.Get("/", h.Index)
		r.Post("/upload", h.Upload)
		r.Get("/log", h.LogTail)
		r.Get("/logs", h.Logs)
		r.Get("/api/sync/orders", h.GetOrders)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
