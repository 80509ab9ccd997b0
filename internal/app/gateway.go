package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/wopr/internal/audit"
	"github.com/wisbric/wopr/internal/auth"
	"github.com/wisbric/wopr/internal/config"
	"github.com/wisbric/wopr/internal/httpserver"
	"github.com/wisbric/wopr/internal/platform"
	"github.com/wisbric/wopr/internal/telemetry"
	"github.com/wisbric/wopr/pkg/breakglass"
	"github.com/wisbric/wopr/pkg/gateway"
	"github.com/wisbric/wopr/pkg/registry"
	"github.com/wisbric/wopr/pkg/sshca"
	"github.com/wisbric/wopr/pkg/types"
)

// RunGateway starts the central support gateway: beacon registry,
// breakglass sessions, tier-gated diagnostics/remediation, and escalation
// aggregation.
func RunGateway(ctx context.Context, cfg *config.GatewayConfig) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting gateway", "listen", cfg.ListenAddr())

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	reg := registry.New(pool, rdb)
	bgStore := breakglass.New(pool)
	caClient := sshca.NewClient(cfg.SSHCAURL)
	runner := gateway.NewRemoteRunner()
	aggregator := gateway.NewAggregator()

	sweeper := breakglass.NewSweeper(bgStore, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	auditWriter := audit.NewWriter(pool, logger)

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(telemetry.Gateway()...)

	router := httpserver.NewRouter(logger, metricsReg, cfg.CORSAllowedOrigins)
	router.Get("/healthz", httpserver.HandleHealthz)
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			httpserver.RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
			return
		}
		if err := rdb.Ping(r.Context()).Err(); err != nil {
			httpserver.RespondError(w, http.StatusServiceUnavailable, "unavailable", "redis not ready")
			return
		}
		httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	registryHandler := registry.NewHandler(reg, logger)
	router.Mount("/api/v1/beacons", registryHandler.Routes(auth.Middleware(logger), auth.RequireTier(types.TierDiag), audit.Middleware(auditWriter)))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Middleware(logger))
		r.Use(audit.Middleware(auditWriter))

		diagHandler := gateway.NewHandler(reg, caClient, runner, aggregator, logger)
		bgHandler := breakglass.NewHandler(bgStore, caClient, cfg.BreakglassDefaultDuration(), cfg.BreakglassMaxDuration(), logger)
		auditHandler := audit.NewHandler(pool, logger)

		r.Route("/diagnostics", func(r chi.Router) {
			r.Use(auth.RequireTier(types.TierDiag))
			r.Mount("/", diagHandler.DiagnosticsRoutes())
		})
		r.Route("/remediation", func(r chi.Router) {
			r.Use(auth.RequireTier(types.TierRemediate))
			r.Mount("/", diagHandler.RemediationRoutes())
		})
		r.Route("/escalations", func(r chi.Router) {
			r.Use(auth.RequireTier(types.TierDiag))
			r.Mount("/", diagHandler.AggregationRoutes())
		})
		r.Route("/breakglass", func(r chi.Router) {
			r.Use(auth.RequireTier(types.TierBreakglass))
			r.Mount("/", bgHandler.Routes())
		})
		r.Route("/audit", func(r chi.Router) {
			r.Use(auth.RequireTier(types.TierBreakglass))
			r.Mount("/", auditHandler.Routes())
		})
	})

	return serve(ctx, logger, cfg.ListenAddr(), router)
}
