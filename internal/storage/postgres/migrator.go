package postgres

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// Миграции лежат парами NNNN_name.up.sql / NNNN_name.down.sql и встраиваются в бинарь.
//
//go:embed sql/migrations/*.sql
var migrationsFS embed.FS

const (
	migrationsGlob = "sql/migrations/*.sql"
	// migrationLockKey — ключ pg_advisory_lock; один мигратор на базу.
	migrationLockKey = int64(0x5741_4b45)
	migrationTimeout = 5 * time.Second
)

const createSchemaMigrations = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version    BIGINT PRIMARY KEY,
		name       TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

var (
	migrationFileName = regexp.MustCompile(`^(\d+)_(\w+)\.(up|down)\.sql$`)

	errStoreNotInitialized = errors.New("postgres store is not initialized")
)

type migrationDirection string

const (
	migrationUp   migrationDirection = "up"
	migrationDown migrationDirection = "down"
)

type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m migration) String() string { return fmt.Sprintf("%04d_%s", m.Version, m.Name) }

func (m migration) script(dir migrationDirection) string {
	if dir == migrationDown {
		return m.Down
	}
	return m.Up
}

// migrationSet упорядочен по версии.
type migrationSet []migration

// plan: для up — неприменённые по возрастанию, для down — применённые по убыванию.
// steps > 0 обрезает план.
func (set migrationSet) plan(applied map[int64]bool, dir migrationDirection, steps int) []migration {
	var out []migration
	for i := range set {
		m := set[i]
		if dir == migrationDown {
			m = set[len(set)-1-i]
		}
		if applied[m.Version] == (dir == migrationDown) {
			out = append(out, m)
		}
	}
	if steps > 0 && len(out) > steps {
		out = out[:steps]
	}
	return out
}

// MigrationState — текущая версия схемы и ещё не применённые миграции.
type MigrationState struct {
	Version int64
	Applied int
	Pending []string
}

// MigrateUp применяет up-миграции; steps=0 — все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationUp, steps)
}

// MigrateDown откатывает миграции; steps<=0 — одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	return s.migrate(ctx, migrationDown, max(steps, 1))
}

func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errStoreNotInitialized
	}
	set, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return MigrationState{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	applied, err := appliedVersions(ctx, s.db)
	if err != nil {
		return MigrationState{}, err
	}

	state := MigrationState{Applied: len(applied), Pending: []string{}}
	for v := range applied {
		state.Version = max(state.Version, v)
	}
	for _, m := range set.plan(applied, migrationUp, 0) {
		state.Pending = append(state.Pending, m.String())
	}
	return state, nil
}

func (s *Store) migrate(ctx context.Context, dir migrationDirection, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if dir != migrationUp && dir != migrationDown {
		return fmt.Errorf("unsupported migration direction: %s", dir)
	}
	set, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		return err
	}

	return s.withMigrationLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		for _, m := range set.plan(applied, dir, steps) {
			started := time.Now()
			if err := applyMigration(ctx, conn, m, dir); err != nil {
				return err
			}
			s.migrationLogger().WithFields(log.Fields{
				"migration": m.String(),
				"direction": dir,
				"took":      time.Since(started).Round(time.Millisecond),
			}).Info("migration applied")
		}
		return nil
	})
}

func (s *Store) migrationLogger() *log.Entry {
	if s.logger == nil {
		return log.WithField("component", "migrator")
	}
	return s.logger.WithField("component", "migrator")
}

// withMigrationLock держит advisory lock на выделенном соединении, пока работает fn.
func (s *Store) withMigrationLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	_, err = conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey)
	cancel()
	if err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		// ctx мог быть отменён, снимаем блокировку в любом случае.
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	return fn(conn)
}

func applyMigration(ctx context.Context, conn *sql.Conn, m migration, dir migrationDirection) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s %s: %w", dir, m, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.script(dir)); err != nil {
		return fmt.Errorf("run %s %s: %w", dir, m, err)
	}
	if dir == migrationUp {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s %s: %w", dir, m, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s %s: %w", dir, m, err)
	}
	return nil
}

// appliedVersions создаёт schema_migrations при первом обращении.
func appliedVersions(ctx context.Context, q querier) (map[int64]bool, error) {
	if _, err := q.ExecContext(ctx, createSchemaMigrations); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read applied migrations: %w", err)
	}
	return applied, nil
}

func parseMigrationFile(base string) (int64, string, migrationDirection, error) {
	parts := migrationFileName.FindStringSubmatch(base)
	if parts == nil {
		return 0, "", "", fmt.Errorf("invalid migration file name: %s", base)
	}
	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("migration version in %s: %w", base, err)
	}
	return version, parts[2], migrationDirection(parts[3]), nil
}

func loadMigrationsFromFS(fsys fs.FS) (migrationSet, error) {
	files, err := fs.Glob(fsys, migrationsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	index := make(map[int64]int)
	var set migrationSet
	for _, file := range files {
		base := path.Base(file)
		version, name, dir, err := parseMigrationFile(base)
		if err != nil {
			return nil, err
		}
		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		script := strings.TrimSpace(string(raw))
		if script == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		i, seen := index[version]
		if !seen {
			i = len(set)
			index[version] = i
			set = append(set, migration{Version: version, Name: name})
		}
		m := &set[i]
		if m.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, name)
		}
		slot := &m.Up
		if dir == migrationDown {
			slot = &m.Down
		}
		if *slot != "" {
			return nil, fmt.Errorf("duplicate %s script for %s", dir, m)
		}
		*slot = script
	}

	for _, m := range set {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s must have both up and down files", m)
		}
	}
	slices.SortFunc(set, func(a, b migration) int { return cmp.Compare(a.Version, b.Version) })
	return set, nil
}
