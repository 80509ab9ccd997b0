// Package app wires each binary's dependencies together: configuration,
// logging, storage, domain handlers, and the HTTP server. One file per
// binary (beacon, gateway, sshca), mirroring the teacher's single Run
// entrypoint generalized into three.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wisbric/wopr/internal/config"
	"github.com/wisbric/wopr/internal/httpserver"
	"github.com/wisbric/wopr/internal/telemetry"
	"github.com/wisbric/wopr/pkg/analysisapi"
	"github.com/wisbric/wopr/pkg/analysisengine"
	"github.com/wisbric/wopr/pkg/analysisstore"
	"github.com/wisbric/wopr/pkg/collector"
	"github.com/wisbric/wopr/pkg/executor"
	"github.com/wisbric/wopr/pkg/llm"
	"github.com/wisbric/wopr/pkg/notifier"
	"github.com/wisbric/wopr/pkg/safety"
)

// RunBeacon starts one beacon's analysis engine and HTTP API.
func RunBeacon(ctx context.Context, cfg *config.BeaconConfig) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting beacon", "listen", cfg.ListenAddr())

	store, err := analysisstore.Open(cfg.AIEngineDB)
	if err != nil {
		return fmt.Errorf("opening analysis store: %w", err)
	}
	defer store.Close()

	auditDBs, err := cfg.AuditDBs()
	if err != nil {
		return fmt.Errorf("parsing audit DB config: %w", err)
	}

	var notify notifier.Notifier = notifier.NewNoop(logger)
	if cfg.SlackBotToken != "" {
		notify = notifier.NewSlack(cfg.SlackBotToken, cfg.SlackAlertChannel, logger)
		logger.Info("slack escalation notifications enabled", "channel", cfg.SlackAlertChannel)
	}

	llmClient := llm.New(cfg.OllamaURL, cfg.OllamaModel)
	exec := executor.New()

	engine := analysisengine.New(
		store,
		collector.New(auditDBs, logger),
		llmClient,
		safety.New(cfg.MinConfidence),
		exec,
		notify,
		logger,
		analysisengine.Config{
			MaxAutoActionsPerHour: cfg.MaxAutoActionsPerHour,
			ScanInterval:          cfg.ScanInterval(),
		},
	)
	engine.Start(ctx)
	defer engine.Stop()

	metricsReg := prometheus.NewRegistry()
	metricsReg.MustRegister(telemetry.Beacon()...)

	router := httpserver.NewRouter(logger, metricsReg, []string{"*"})
	router.Get("/healthz", httpserver.HandleHealthz)
	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := store.ListRuns(1); err != nil {
			httpserver.RespondError(w, http.StatusServiceUnavailable, "unavailable", "analysis store not ready")
			return
		}
		httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	apiHandler := analysisapi.NewHandler(engine, store, llmClient, exec, cfg.MaxAutoActionsPerHour, logger)
	router.Mount("/api/v1/ai", apiHandler.Routes())

	return serve(ctx, logger, cfg.ListenAddr(), router)
}

func serve(ctx context.Context, logger *slog.Logger, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down http server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
