// Package app assembles the HTTP surface: router, middleware stack and
// provider wiring for local and cloud modes.
package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/cv-rag/internal/adapter/httpserver"
	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/observability"
)

// ParseOrigins splits the comma-separated CORS origin list.
func ParseOrigins(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		out = []string{"*"}
	}
	return out
}

// BuildRouter wires middleware and routes. Mutating routes share one
// per-IP rate limit group; health and metrics stay outside it.
func BuildRouter(cfg config.Config, log *slog.Logger, srv *httpserver.Server) http.Handler {
	r := chi.NewRouter()

	r.Use(httpserver.RequestID(log))
	r.Use(httpserver.Recoverer)
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPWriteTimeout))
	r.Use(httpserver.AccessLog)
	r.Use(observability.HTTPMetricsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "http.server")
	})
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", httpserver.HealthzHandler())
	r.Get("/readyz", srv.ReadyzHandler())
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httprate.LimitByIP(cfg.RateLimitPerMin, time.Minute))

			r.Post("/query", srv.QueryHandler())
			r.Post("/cv", srv.UploadCVHandler())
			r.Delete("/cv/{id}", srv.DeleteCVHandler())
			r.Post("/sessions", srv.CreateSessionHandler())
			r.Delete("/sessions/{id}", srv.DeleteSessionHandler())
			r.Post("/sessions/{id}/cvs", srv.AddSessionCVsHandler())
			r.Post("/score", srv.ScoreHandler())
			r.Post("/profiles", srv.CreateProfileHandler())
		})

		r.Get("/cv/stats", srv.StatsHandler())
		r.Get("/sessions/{id}", srv.GetSessionHandler())
		r.Get("/sessions/{id}/suggestions", srv.SuggestionsHandler())
		r.Get("/profiles", srv.ListProfilesHandler())
	})

	return httpserver.SecurityHeaders(r)
}
