// Intentions Adapter - HTTP front for the R intentions model
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/intentions-server/internal/api"
	"github.com/ashureev/intentions-server/internal/config"
	"github.com/ashureev/intentions-server/internal/intentions"
	"github.com/ashureev/intentions-server/internal/metrics"
	"github.com/ashureev/intentions-server/internal/model"
	"github.com/joho/godotenv"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.LogLevel)

	slog.Info("Starting server", "port", cfg.Port, "backend", cfg.Model.Backend)

	// Initialize the model backend.
	backend, closer, err := newBackend(cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize model backend", "backend", cfg.Model.Backend, "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer func() {
			if closeErr := closer.Close(); closeErr != nil {
				slog.Error("Failed to close model backend", "error", closeErr)
			}
		}()
	}

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := backend.Ping(pingCtx); err != nil {
		// The backend may come up later; /health reports it until then.
		slog.Warn("Model backend health check failed", "backend", cfg.Model.Backend, "error", err)
	} else {
		slog.Info("Model backend ready", "backend", cfg.Model.Backend)
	}
	pingCancel()

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	var runner intentions.Model = backend
	if cfg.Model.Serialize {
		runner = model.Serialized(runner)
	}
	runner = model.WithTimeout(runner, cfg.Model.Timeout)
	runner = model.Instrumented(runner, m, logger)

	// Initialize handlers.
	svc := intentions.NewService(runner, logger)
	intentionsHandler := api.NewIntentionsHandler(svc, cfg, m)
	healthHandler := api.NewHealthHandler(backend, cfg.Model.Backend)

	r := api.NewRouter(cfg.AllowedOrigins, intentionsHandler, healthHandler, m)

	// Model calls can run for a long time, so only reads are bounded.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

// newBackend builds the configured model backend. The returned closer is nil
// for backends that hold no resources.
func newBackend(cfg *config.Config, logger *slog.Logger) (model.Backend, io.Closer, error) {
	mc := cfg.Model
	switch mc.Backend {
	case config.BackendRscript:
		r, err := model.NewRscriptRunner(model.RscriptConfig{
			Path:    mc.RscriptPath,
			Source:  mc.Source,
			WorkDir: mc.WorkDir,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return r, nil, nil
	case config.BackendDocker:
		d, err := model.NewDockerRunner(model.DockerConfig{
			Container: mc.Container,
			Rscript:   mc.RscriptPath,
			Source:    mc.ContainerSource,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return d, d, nil
	case config.BackendGRPC:
		gcfg := model.DefaultGrpcConfig()
		gcfg.Address = mc.GRPCAddr
		g, err := model.NewGrpcRunner(gcfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return g, g, nil
	default:
		return nil, nil, fmt.Errorf("unknown model backend %q", mc.Backend)
	}
}
