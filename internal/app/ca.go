package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/wopr/internal/auth"
	"github.com/wisbric/wopr/internal/config"
	"github.com/wisbric/wopr/internal/httpserver"
	"github.com/wisbric/wopr/internal/platform"
	"github.com/wisbric/wopr/internal/telemetry"
	"github.com/wisbric/wopr/pkg/sshca"
)

// RunCA starts the short-lived SSH certificate authority: it signs
// tier-scoped certificates for the gateway to present to beacons over SSH.
func RunCA(ctx context.Context, cfg *config.CAConfig) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting sshca", "listen", cfg.ListenAddr())

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	signer, err := sshca.LoadSigner(cfg.CAKeyPath)
	if err != nil {
		return fmt.Errorf("loading CA signing key: %w", err)
	}

	sessions := sshca.NewSessionReader(pool)
	validity := sshca.ValidityConfig{
		Diag:       cfg.ValidityDiag(),
		Remediate:  cfg.ValidityRemediate(),
		Breakglass: cfg.ValidityBreakglass(),
	}
	caHandler := sshca.NewHandler(signer, sessions, validity, logger)

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(telemetry.CA()...)

	router := httpserver.NewRouter(logger, metricsReg, []string{"*"})
	router.Get("/healthz", httpserver.HandleHealthz)
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			httpserver.RespondError(w, http.StatusServiceUnavailable, "unavailable", "database not ready")
			return
		}
		httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	// /sign requires a forwarded operator identity so handleSign can check
	// the requested tier against it; ca-public-key and health are open
	// (a beacon fetches the CA public key before it has any identity).
	router.Mount("/api/v1", caHandler.Routes(auth.Middleware(logger)))

	return serve(ctx, logger, cfg.ListenAddr(), router)
}
