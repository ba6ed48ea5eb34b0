// Command tracker launches the live-match tracker for the configured summoners.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/ShaiBY10/lolDataAnalysis/internal/app/tracker"
	"github.com/ShaiBY10/lolDataAnalysis/internal/domain/matchstore"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/config"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/logging"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/persistence"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/persistence/memory"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/persistence/migrations"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/persistence/postgres"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/riot"
	httpserver "github.com/ShaiBY10/lolDataAnalysis/internal/infra/server/http"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/telemetry"
)

const (
	defaultConfigPath            = "config/app.yaml"
	primaryPoolName              = "primary"
	shutdownTimeout              = 30 * time.Second
	controlServerShutdownTimeout = 5 * time.Second
	supervisorShutdownTimeout    = 10 * time.Second
	lifecycleShutdownTimeout     = 5 * time.Second
	databaseShutdownTimeout      = 5 * time.Second
	telemetryShutdownTimeout     = 5 * time.Second
	migrationTimeout             = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfgPathFlag := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	configPath := resolveConfigPath(cfgPathFlag)
	appCfg, loadedFromFile, err := config.LoadOrDefault(ctx, configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(appCfg.Logging)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if !loadedFromFile {
		logger.Warn("configuration file not found, using defaults", zap.String("path", configPath))
	}
	logger.Info("configuration initialised",
		zap.String("env", string(appCfg.Environment)),
		zap.String("platform", appCfg.Riot.Platform),
		zap.Int("summoners", len(appCfg.Summoners)))
	if len(appCfg.Summoners) == 0 {
		return errors.New("no summoners configured")
	}

	telemetryProvider, err := initTelemetry(ctx, logger, appCfg)
	if err != nil {
		return err
	}

	pool, store, err := buildStore(ctx, logger, appCfg.Database)
	if err != nil {
		return err
	}

	client := riot.NewClient(riot.OptionsFromConfig(appCfg.Riot, logger))
	api := riot.NewAPI(client, appCfg.Riot)

	trackers, err := buildTrackers(appCfg, api, store, logger)
	if err != nil {
		return err
	}
	supervisor := tracker.NewSupervisor(trackers, logger, tracker.WithConnectionCloser(client.CloseIdleConnections))
	if err := supervisor.Start(ctx); err != nil {
		return fmt.Errorf("start trackers: %w", err)
	}

	var lifecycle conc.WaitGroup
	var apiServer *http.Server
	if appCfg.APIServer.Addr != "" {
		apiServer = httpserver.NewServer(appCfg.APIServer, httpserver.NewHandler(appCfg.Environment, supervisor, store))
		startAPIServer(&lifecycle, logger, apiServer)
		logger.Info("control API listening", zap.String("addr", apiServer.Addr))
	}

	logger.Info("tracker started; awaiting shutdown signal")
	exitErr := awaitShutdown(ctx, logger, supervisor)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownStart := time.Now()
	performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:     apiServer,
		mainCancel: cancel,
		supervisor: supervisor,
		lifecycle:  &lifecycle,
		pool:       pool,
		telemetry:  telemetryProvider,
	})
	logger.Info("shutdown completed", zap.Duration("elapsed", time.Since(shutdownStart)))
	return exitErr
}

var errTrackersStopped = errors.New("every tracker has stopped")

// awaitShutdown blocks until a signal arrives or every tracker has returned on its own.
// The latter means each summoner halted and is reported as an error.
func awaitShutdown(ctx context.Context, logger *zap.Logger, supervisor *tracker.Supervisor) error {
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, initiating graceful shutdown")
		return nil
	case <-supervisor.Done():
		if ctx.Err() != nil {
			logger.Info("shutdown signal received, initiating graceful shutdown")
			return nil
		}
		halted := 0
		for _, st := range supervisor.Statuses() {
			if st.Phase == tracker.PhaseHalted {
				halted++
			}
		}
		logger.Error("every tracker has stopped, initiating shutdown", zap.Int("halted", halted))
		return fmt.Errorf("%w: %d halted", errTrackersStopped, halted)
	}
}

func parseFlags() string {
	cfgPath := flag.String("config", "", fmt.Sprintf("Path to application configuration file (default: %s)", defaultConfigPath))
	flag.Parse()
	return *cfgPath
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func initTelemetry(ctx context.Context, logger *zap.Logger, appCfg config.AppConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.FromAppConfig(appCfg)
	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if telemetryCfg.Enabled {
		logger.Info("telemetry initialized",
			zap.String("endpoint", telemetryCfg.OTLPEndpoint),
			zap.String("service", telemetryCfg.ServiceName))
	} else {
		logger.Info("telemetry disabled")
	}
	return provider, nil
}

// buildStore opens PostgreSQL when a DSN is configured and falls back to the in-memory store otherwise.
func buildStore(ctx context.Context, logger *zap.Logger, cfg config.DatabaseConfig) (*pgxpool.Pool, matchstore.Store, error) {
	if cfg.InMemory() {
		logger.Warn("database dsn not configured; match rows are kept in memory only")
		return nil, memory.NewMatchStore(), nil
	}

	if cfg.RunMigrations {
		migrateCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
		err := migrations.ApplyEmbedded(migrateCtx, cfg.DSN, logger)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("apply migrations: %w", err)
		}
	}

	pool, err := persistence.OpenPool(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	postgres.ObservePoolMetrics(pool, primaryPoolName)
	logger.Info("database connected", zap.Int32("max_conns", pool.Config().MaxConns))
	return pool, postgres.New(pool).Matches(), nil
}

func buildTrackers(appCfg config.AppConfig, upstream tracker.Upstream, store matchstore.Store, logger *zap.Logger) ([]*tracker.Tracker, error) {
	settings := tracker.SettingsFromConfig(appCfg.Tracking)
	known := appCfg.KnownIdentities()
	trackers := make([]*tracker.Tracker, 0, len(appCfg.Summoners))
	for _, summoner := range appCfg.Identities() {
		tr, err := tracker.New(summoner, upstream, store, known, settings, tracker.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("tracker %q: %w", summoner.Name, err)
		}
		trackers = append(trackers, tr)
	}
	return trackers, nil
}

func startAPIServer(lifecycle *conc.WaitGroup, logger *zap.Logger, server *http.Server) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("control server", zap.Error(err))
		}
	})
}

type gracefulShutdownConfig struct {
	server     *http.Server
	mainCancel context.CancelFunc
	supervisor *tracker.Supervisor
	lifecycle  *conc.WaitGroup
	pool       *pgxpool.Pool
	telemetry  *telemetry.Provider
}

func performGracefulShutdown(ctx context.Context, logger *zap.Logger, cfg gracefulShutdownConfig) {
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Info("shutdown step started", zap.String("step", name))
		if err := fn(stepCtx); err != nil {
			logger.Warn("shutdown step failed", zap.String("step", name), zap.Error(err))
		} else {
			logger.Info("shutdown step completed", zap.String("step", name))
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping control server", controlServerShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.Shutdown(stepCtx)
		})
	}

	if cfg.supervisor != nil {
		shutdownStep("stopping trackers", supervisorShutdownTimeout, func(stepCtx context.Context) error {
			err := cfg.supervisor.Stop(stepCtx)
			if errors.Is(err, tracker.ErrNotStarted) {
				return nil
			}
			return err
		})
	}

	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.pool != nil {
		shutdownStep("closing database pool", databaseShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.pool.Close()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return stepCtx.Err()
			}
		})
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.telemetry.Shutdown(stepCtx)
		})
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Clean(defaultConfigPath)
}
