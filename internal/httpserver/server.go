package httpserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wisbric/wopr/internal/telemetry"
)

// NewRouter builds a chi.Mux carrying the common middleware stack every
// binary runs: request IDs, structured request logging, request-duration
// metrics, panic recovery, and CORS. It serves metricsReg at /metrics;
// /healthz, /readyz, and the domain routes are mounted by the caller.
func NewRouter(logger *slog.Logger, metricsReg *prometheus.Registry, corsAllowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Metrics(telemetry.HTTPRequestDuration))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Authentik-UID", "X-Authentik-Username", "X-Authentik-Email", "X-Authentik-Groups", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{}))

	return r
}

// HandleHealthz always reports ok: it only proves the process is alive and
// serving HTTP, not that its dependencies are reachable.
func HandleHealthz(w http.ResponseWriter, _ *http.Request) {
	Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}
