// Package migrations wires golang-migrate execution for the match store schema.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file:// migrations loader
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	dbmigrations "github.com/ShaiBY10/lolDataAnalysis/db/migrations"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/telemetry"
)

var (
	errNotDirectory = errors.New("migrations path must be a directory")
	errInvalidSteps = errors.New("rollback steps must be >0")

	migrationsCounter   metric.Int64Counter
	migrationsCounterMu sync.Once
)

// source names a migration source: either a file:// URL or an embedded filesystem.
type source struct {
	label string
	url   string
	fsys  fs.FS
}

// Apply runs every pending up migration found in migrationsDir.
func Apply(ctx context.Context, dsn, migrationsDir string, logger *zap.Logger) error {
	src, err := dirSource(migrationsDir)
	if err != nil {
		return err
	}
	return run(ctx, dsn, src, "up", logger, func(m *migrate.Migrate) error { return m.Up() })
}

// ApplyEmbedded runs every pending up migration compiled into the binary.
func ApplyEmbedded(ctx context.Context, dsn string, logger *zap.Logger) error {
	src := source{label: "embedded", url: "", fsys: dbmigrations.Files}
	return run(ctx, dsn, src, "up", logger, func(m *migrate.Migrate) error { return m.Up() })
}

// Rollback reverts the latest steps migrations found in migrationsDir.
func Rollback(ctx context.Context, dsn, migrationsDir string, steps int, logger *zap.Logger) error {
	if steps <= 0 {
		return errInvalidSteps
	}
	src, err := dirSource(migrationsDir)
	if err != nil {
		return err
	}
	return run(ctx, dsn, src, "down", logger, func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

func run(ctx context.Context, dsn string, src source, direction string, logger *zap.Logger, step func(*migrate.Migrate) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(dsn) == "" {
		return fmt.Errorf("migrations dsn required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open migrations connection: %w", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			logger.Warn("database migrations close", zap.Error(cerr))
		}
	}()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping migrations database: %w", err)
	}

	var driverConfig pgxv5.Config
	driver, err := pgxv5.WithInstance(db, &driverConfig)
	if err != nil {
		return fmt.Errorf("initialise pgx v5 driver: %w", err)
	}

	m, err := newMigrate(src, driver)
	if err != nil {
		return fmt.Errorf("initialise migrate instance: %w", err)
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			logger.Warn("database migrations source close", zap.Error(sourceErr))
		}
		if dbErr != nil {
			logger.Warn("database migrations db close", zap.Error(dbErr))
		}
	}()

	logger.Info("running database migrations", zap.String("source", src.label), zap.String("direction", direction))

	if err := step(m); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			recordMigrationMetric(ctx, direction, "noop")
			logger.Info("database migrations up-to-date")
			return nil
		}
		recordMigrationMetric(ctx, direction, "failed")
		return fmt.Errorf("apply migrations %s: %w", direction, err)
	}

	logger.Info("database migrations applied", zap.String("direction", direction))
	recordMigrationMetric(ctx, direction, "applied")
	return nil
}

func newMigrate(src source, driver database.Driver) (*migrate.Migrate, error) {
	if src.fsys != nil {
		sourceDriver, err := iofs.New(src.fsys, ".")
		if err != nil {
			return nil, fmt.Errorf("embedded source: %w", err)
		}
		return migrate.NewWithInstance("iofs", sourceDriver, "pgx5", driver)
	}
	return migrate.NewWithDatabaseInstance(src.url, "pgx5", driver)
}

func dirSource(dir string) (source, error) {
	resolved, err := resolveDir(dir)
	if err != nil {
		return source{}, err
	}
	return source{label: resolved, url: fileURL(resolved), fsys: nil}, nil
}

func resolveDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", fmt.Errorf("migrations path required")
	}

	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("resolve migrations path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("migrations directory: %w", err)
		}
		return "", fmt.Errorf("stat migrations directory: %w", err)
	}

	if !info.IsDir() {
		return "", fmt.Errorf("migrations directory: %w", errNotDirectory)
	}

	return abs, nil
}

func fileURL(path string) string {
	slashed := filepath.ToSlash(path)
	if !strings.HasPrefix(slashed, "/") {
		slashed = "/" + slashed
	}
	u := new(url.URL)
	u.Scheme = "file"
	u.Path = slashed
	return u.String()
}

func recordMigrationMetric(ctx context.Context, direction, result string) {
	migrationsCounterMu.Do(func() {
		meter := otel.Meter("persistence.migrations")
		counter, err := meter.Int64Counter("lol_db_migrations_total",
			metric.WithDescription("Migration runs executed via golang-migrate"),
			metric.WithUnit("{run}"))
		if err == nil {
			migrationsCounter = counter
		}
	})
	if migrationsCounter == nil {
		return
	}
	migrationsCounter.Add(ctx, 1, metric.WithAttributes(
		telemetry.AttrEnvironment.String(telemetry.Environment()),
		telemetry.AttrDirection.String(direction),
		telemetry.AttrResult.String(result),
	))
}
