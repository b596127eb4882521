package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/barflow/internal/storage/postgres"
)

const (
	defaultTimeout = 30 * time.Second
	envPostgresDSN = "BAR_POSTGRES_DSN"
)

var errUsage = errors.New("usage error")

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	_ = godotenv.Load()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.LookupEnv, os.Stdout); err != nil {
		log.WithError(err).Error("migrate failed")
		os.Exit(1)
	}
}

// run разбирает аргументы и выполняет up|down|status. DSN берётся из -dsn или BAR_POSTGRES_DSN.
func run(ctx context.Context, args []string, lookup func(string) (string, bool), out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	direction := fs.String("direction", "up", "migration direction: up|down|status")
	steps := fs.Int("steps", 0, "number of migrations to apply/rollback (0=all for up, 1 for down)")
	dsn := fs.String("dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	mode := strings.ToLower(strings.TrimSpace(*direction))
	switch mode {
	case "up", "down", "status":
	default:
		return fmt.Errorf("%w: unsupported direction %q (use up|down|status)", errUsage, *direction)
	}

	target := strings.TrimSpace(*dsn)
	if target == "" {
		if v, ok := lookup(envPostgresDSN); ok {
			target = strings.TrimSpace(v)
		}
	}
	if target == "" {
		return fmt.Errorf("%w: %s (or -dsn) is required", errUsage, envPostgresDSN)
	}

	store, err := postgres.Open(ctx, target)
	if err != nil {
		return fmt.Errorf("open postgres store: %w", err)
	}
	defer store.Close()

	switch mode {
	case "up":
		if err := store.MigrateUp(ctx, *steps); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := store.MigrateDown(ctx, *steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	}

	migrations, err := store.Migrations(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}
	version, count, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status: %w", err)
	}

	_, _ = fmt.Fprintf(out, "migrate %s ok: version=%d applied=%d\n", mode, version, count)
	for _, m := range migrations {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		_, _ = fmt.Fprintf(out, "  %04d %-32s %s\n", m.Version, m.Name, state)
	}
	return nil
}
