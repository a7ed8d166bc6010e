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

	"offlinesync/internal/api"
	"offlinesync/internal/config"
	"offlinesync/internal/connectivity"
	"offlinesync/internal/database"
	"offlinesync/internal/events"
	"offlinesync/internal/logging"
	"offlinesync/internal/metrics"
	"offlinesync/internal/models"
	"offlinesync/internal/repository"
	"offlinesync/internal/service"
	"offlinesync/internal/transport"
	"offlinesync/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

const shutdownTimeout = 10 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, storeCloser, err := repository.OpenStore(ctx, cfg, logging.Component(logger, "store"))
	if err != nil {
		logger.Error().Err(err).Str("backend", cfg.Storage.Backend).Msg("open store")
		return err
	}
	defer (func() { _ = storeCloser.Close() })()

	bus := events.NewBus(logging.Component(logger, "events"))
	sender := transport.NewClient(cfg.Remote, nil)
	replayer := worker.NewReplayWorker(store, sender, bus, worker.RetryPolicy{MaxRetries: cfg.Queue.MaxRetries}, logging.Component(logger, "replay"))
	replayer.OnSummary(func(s models.PassSummary) { reportSummary(logger, s) })
	queue := service.NewQueueService(store, replayer, bus, logging.Component(logger, "queue"))

	if cfg.Queue.RecoverStuckOnStart() {
		if _, err := replayer.RecoverStuck(ctx); err != nil {
			logger.Error().Err(err).Msg("recover stuck operations")
			return err
		}
	}

	var lifecycle conc.WaitGroup

	if db, ok := store.(*database.DB); ok && cfg.Storage.Backup.Enabled {
		backups := database.NewBackupService(db, cfg.Storage.Backup, logging.Component(logger, "backup"))
		lifecycle.Go(func() { backups.Start(ctx) })
	}

	monitor := connectivity.NewMonitor(
		connectivity.NewHTTPProber(cfg.Queue.HealthURL, cfg.Remote.Timeout),
		connectivity.Options{ProbeInterval: cfg.Queue.ProbeInterval, RefreshInterval: cfg.Queue.RefreshInterval},
		logging.Component(logger, "connectivity"),
	)
	triggerPass := func(reason string) {
		lifecycle.Go(func() {
			if _, err := queue.ProcessPendingOperations(ctx); err != nil {
				logger.Error().Err(err).Str("trigger", reason).Msg("replay pass failed")
			}
		})
	}
	monitor.OnOnline(func() { triggerPass("online") })
	monitor.OnTick(func() {
		bus.Notify()
		if monitor.Online() {
			triggerPass("refresh")
		}
	})
	monitor.Start(ctx)

	startMetrics(ctx, &lifecycle, cfg, logger)

	var httpServer *api.HTTPServer
	if cfg.API.Enabled {
		httpServer = api.NewHTTPServer(cfg.API, queue, logging.Component(logger, "http"))
		lifecycle.Go(func() {
			if err := httpServer.Start(); err != nil {
				logger.Error().Err(err).Msg("http server stopped")
			}
		})
	}

	logger.Info().
		Str("backend", cfg.Storage.Backend).
		Str("remote", cfg.Remote.BaseURL).
		Bool("api", cfg.API.Enabled).
		Msg("offline queue started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if httpServer != nil {
		_ = httpServer.Shutdown(shutdownCtx)
	}
	monitor.Stop()
	waitLifecycle(shutdownCtx, &lifecycle, logger)

	logger.Info().Msg("offline queue stopped")
	return nil
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "main"), closer, nil
}

// reportSummary is the user-facing notice for a finished pass. Transient
// retries stay silent.
func reportSummary(logger *zerolog.Logger, s models.PassSummary) {
	if s.Succeeded > 0 {
		logger.Info().Int("count", s.Succeeded).Msg("queued changes synced")
	}
	if s.Terminal > 0 {
		logger.Error().Int("count", s.Terminal).Msg("some queued changes could not be synced and need attention")
	}
}

func startMetrics(ctx context.Context, lifecycle *conc.WaitGroup, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lifecycle.Go(func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	})
	lifecycle.Go(func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	})
}

func waitLifecycle(ctx context.Context, lifecycle *conc.WaitGroup, logger *zerolog.Logger) {
	done := make(chan struct{})
	go func() {
		lifecycle.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn().Err(ctx.Err()).Msg("timeout waiting for background goroutines")
	}
}
