package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"calsync/internal/api"
	"calsync/internal/app"
	"calsync/internal/config"
	"calsync/internal/database"
	"calsync/internal/logging"
	"calsync/internal/metrics"
	"calsync/internal/models"
	"calsync/internal/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, app.Options{}, &logger)
	if err != nil {
		logger.Error().Err(err).Msg("init application")
		return err
	}
	defer application.Close()

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
	}

	httpServer := api.NewHTTPServer(cfg.API, application.Service, &logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if cfg.Monitoring.PrometheusEnabled {
		g.Go(func() error {
			return startMetricsServer(gctx, cfg.Monitoring.PrometheusPort, &logger)
		})
	}

	if cfg.Scheduler.Enabled {
		scheduler, err := newScheduler(cfg, application, &logger)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return scheduler.Start(gctx)
		})
	}

	if cfg.Backup.Enabled && application.DB != nil {
		backups := database.NewBackupService(application.DB, cfg.Backup, &logger)
		g.Go(func() error {
			backups.Start(gctx)
			return nil
		})
	}

	logger.Info().Str("http_addr", httpServer.Addr()).Msg("API server started")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("API server stopped with error")
		return err
	}
	logger.Info().Msg("API server stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func newScheduler(cfg *config.Config, application *app.App, logger *zerolog.Logger) (*worker.Scheduler, error) {
	loc, err := cfg.Calendar.Location()
	if err != nil {
		return nil, err
	}
	return worker.NewScheduler(application.Service, worker.Config{
		Spec:         cfg.Scheduler.Spec,
		Flow:         models.Flow(cfg.Scheduler.Flow),
		LookbackDays: cfg.Scheduler.LookbackDays,
		Location:     loc,
	}, logger)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	logger.Info().Int("port", port).Msg("metrics server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
