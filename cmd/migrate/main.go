package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/config"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/logging"
	"github.com/ShaiBY10/lolDataAnalysis/internal/infra/persistence/migrations"
)

const (
	defaultMigrationsPath = "db/migrations"
	defaultTimeout        = 30 * time.Second
	dsnEnv                = "DATABASE_URL"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type command struct {
	name  string
	steps int
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errors.New("command required (up|down)")
	}
	switch args[0] {
	case "up":
		if len(args) > 1 {
			return command{}, fmt.Errorf("up takes no arguments, got %q", strings.Join(args[1:], " "))
		}
		return command{name: "up"}, nil
	case "down":
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil {
				return command{}, fmt.Errorf("invalid down steps %q: %w", args[1], err)
			}
			steps = n
		}
		return command{name: "down", steps: steps}, nil
	default:
		return command{}, fmt.Errorf("unknown command %q (expected up or down)", args[0])
	}
}

func run(argv []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	var (
		dsn     = fs.String("database", os.Getenv(dsnEnv), "PostgreSQL DSN (defaults to $"+dsnEnv+")")
		dir     = fs.String("path", defaultMigrationsPath, "Directory containing SQL migrations")
		timeout = fs.Duration("timeout", defaultTimeout, "Maximum time to wait for database connectivity")
		quiet   = fs.Bool("quiet", false, "Suppress informational logs")
	)
	if err := fs.Parse(argv); err != nil {
		return err
	}

	if strings.TrimSpace(*dsn) == "" {
		return errors.New("-database flag or " + dsnEnv + " is required")
	}
	if strings.TrimSpace(*dir) == "" {
		return errors.New("-path flag is required")
	}
	cmd, err := parseCommand(fs.Args())
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if !*quiet {
		logger, err = logging.New(config.LoggingConfig{Level: "info", Format: "console"})
		if err != nil {
			return fmt.Errorf("build logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
	}
	logger = logger.Named("migrate")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cmd.name {
	case "up":
		return migrations.Apply(ctx, *dsn, *dir, logger)
	default:
		return migrations.Rollback(ctx, *dsn, *dir, cmd.steps, logger)
	}
}
