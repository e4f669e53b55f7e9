// Команда migrate управляет схемой PostgreSQL витрины и заливает демо-каталог.
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

	"github.com/vladislavdragonenkov/stayawake/internal/domain"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/postgres"
	"github.com/vladislavdragonenkov/stayawake/internal/storage/seed"
)

const envPostgresDSN = "STOREFRONT_POSTGRES_DSN"

// migrationStore — то, что нужно командам migrate от хранилища.
type migrationStore interface {
	domain.UnitOfWork
	MigrateUp(ctx context.Context, steps int) error
	MigrateDown(ctx context.Context, steps int) error
	MigrationStatus(ctx context.Context) (postgres.MigrationState, error)
}

type options struct {
	direction string
	steps     int
	dsn       string
	timeout   time.Duration
}

type command func(ctx context.Context, store migrationStore, steps int, out io.Writer) error

var commands = map[string]command{
	"up":     migrateUp,
	"down":   migrateDown,
	"status": func(ctx context.Context, s migrationStore, _ int, out io.Writer) error { return report(ctx, s, out, "migration status") },
	"seed":   seedDemo,
}

func parseOptions(args []string, getenv func(string) string) (options, error) {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var opts options
	fs.StringVar(&opts.direction, "direction", "up", "command: up|down|status|seed")
	fs.IntVar(&opts.steps, "steps", 0, "migrations to apply or roll back (0 = all for up, 1 for down)")
	fs.StringVar(&opts.dsn, "dsn", "", "PostgreSQL DSN (fallback: "+envPostgresDSN+")")
	fs.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	opts.direction = strings.ToLower(strings.TrimSpace(opts.direction))
	if _, ok := commands[opts.direction]; !ok {
		return options{}, fmt.Errorf("unsupported direction: %s (use up|down|status|seed)", opts.direction)
	}
	if opts.steps < 0 {
		return options{}, errors.New("steps must be >= 0")
	}
	if opts.dsn = strings.TrimSpace(opts.dsn); opts.dsn == "" {
		opts.dsn = strings.TrimSpace(getenv(envPostgresDSN))
	}
	if opts.dsn == "" {
		return options{}, fmt.Errorf("%s (or -dsn) is required", envPostgresDSN)
	}
	if opts.timeout <= 0 {
		return options{}, errors.New("timeout must be > 0")
	}
	return opts, nil
}

func main() {
	opts, err := parseOptions(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		fail("open postgres store: %v", err)
	}
	defer store.Close()

	if err := run(ctx, store, opts.direction, opts.steps, os.Stdout); err != nil {
		fail("%v", err)
	}
}

func run(ctx context.Context, store migrationStore, direction string, steps int, out io.Writer) error {
	cmd, ok := commands[strings.ToLower(strings.TrimSpace(direction))]
	if !ok {
		return fmt.Errorf("unsupported direction: %s (use up|down|status|seed)", direction)
	}
	return cmd(ctx, store, steps, out)
}

func migrateUp(ctx context.Context, store migrationStore, steps int, out io.Writer) error {
	if err := store.MigrateUp(ctx, steps); err != nil {
		return fmt.Errorf("migrate up failed: %w", err)
	}
	return report(ctx, store, out, "migrate up ok")
}

// migrateDown по умолчанию откатывает одну миграцию.
func migrateDown(ctx context.Context, store migrationStore, steps int, out io.Writer) error {
	if steps <= 0 {
		steps = 1
	}
	if err := store.MigrateDown(ctx, steps); err != nil {
		return fmt.Errorf("migrate down failed: %w", err)
	}
	return report(ctx, store, out, "migrate down ok")
}

func seedDemo(ctx context.Context, store migrationStore, _ int, out io.Writer) error {
	demo, err := seed.Run(ctx, store)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	_, err = fmt.Fprintf(out, "seed ok: products=%d addresses=%d customer_id=%d\n",
		len(demo.Products), len(demo.Addresses), seed.DemoCustomerID)
	return err
}

func report(ctx context.Context, store migrationStore, out io.Writer, prefix string) error {
	state, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("migration status failed: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: version=%d applied=%d pending=%d\n", prefix, state.Version, state.Applied, len(state.Pending))
	for _, name := range state.Pending {
		fmt.Fprintf(&b, "  pending %s\n", name)
	}
	_, err = io.WriteString(out, b.String())
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, "migrate: "+format+"\n", args...)
	os.Exit(1)
}
