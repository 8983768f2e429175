package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"biotune/backend/services/bridge-service/internal/http/middleware"
)

// Routes groups handlers.
type Routes struct {
	Start   http.HandlerFunc
	Stop    http.HandlerFunc
	Status  http.HandlerFunc
	Health  http.HandlerFunc
	Metrics http.Handler
	WS      http.HandlerFunc
}

// NewRouter registers endpoints.
func NewRouter(routes Routes, allowedOrigin string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(allowedOrigin))

	if routes.Start != nil {
		r.Post("/start", routes.Start)
	}
	if routes.Stop != nil {
		r.Post("/stop", routes.Stop)
	}
	if routes.Status != nil {
		r.Get("/status", routes.Status)
	}
	if routes.Health != nil {
		r.Get("/health", routes.Health)
	}
	if routes.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", routes.Metrics)
	}
	if routes.WS != nil {
		r.Get("/ws", routes.WS)
	}
	return r
}
