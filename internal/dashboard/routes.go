package dashboard

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/EmpoweredVote/crime-analytics/internal/config"
	"github.com/EmpoweredVote/crime-analytics/internal/metrics"
	"github.com/EmpoweredVote/crime-analytics/internal/middleware"
)

// SetupRoutes mounts the API under /api next to /healthz and /metrics.
func SetupRoutes(h *Handler, cfg config.ServerConfig, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Observe(log))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimit, cfg.RateBurst))

		r.Get("/regions", h.Regions)
		r.Get("/crime-types", h.CrimeTypes)
		r.Get("/choropleth", h.Choropleth)
		r.Get("/hotspots", h.Hotspots)
		r.Get("/breakdown/types", h.TypeBreakdown)
		r.Get("/breakdown/hourly", h.HourlyBreakdown)
		r.Get("/predictions", h.Predictions)
	})

	return r
}
