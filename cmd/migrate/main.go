// Command migrate applies the SQL files in MIGRATIONS_DIR to DATABASE_URL.
//
// Usage:
//
//	migrate [up]        apply every pending up migration
//	migrate down [N]    roll back the last N applied migrations (default 1)
//	migrate status      list applied and pending versions
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const createVersionsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version    BIGINT PRIMARY KEY,
    name       TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// migration is one numbered pair of up/down files.
type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = "migrations"
	}

	cmd := "up"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := run(ctx, logger, dsn, dir, cmd, args); err != nil {
		logger.Error("migrate failed", "command", cmd, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, dsn, dir, cmd string, args []string) error {
	migrations, err := loadMigrations(dir)
	if err != nil {
		return err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, createVersionsTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	switch cmd {
	case "up":
		for _, m := range pending(migrations, applied) {
			if err := apply(ctx, db, m, true); err != nil {
				return err
			}
			logger.Info("migration applied", "version", m.Version, "name", m.Name)
		}
	case "down":
		steps := 1
		if len(args) > 0 {
			steps, err = strconv.Atoi(args[0])
			if err != nil || steps < 1 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
		}
		for _, m := range rollbacks(migrations, applied, steps) {
			if err := apply(ctx, db, m, false); err != nil {
				return err
			}
			logger.Info("migration rolled back", "version", m.Version, "name", m.Name)
		}
	case "status":
		for _, m := range migrations {
			state := "pending"
			if applied[m.Version] {
				state = "applied"
			}
			fmt.Printf("%06d %-30s %s\n", m.Version, m.Name, state)
		}
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// loadMigrations reads NNNNNN_name.{up,down}.sql pairs sorted by version.
func loadMigrations(dir string) ([]migration, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("glob migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, path := range files {
		version, name, direction, err := parseFilename(filepath.Base(path))
		if err != nil {
			return nil, err
		}
		m, ok := byVersion[version]
		if !ok {
			m = &migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if direction == "up" {
			m.Up = path
		} else {
			m.Down = path
		}
	}

	result := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %06d has no up file", m.Version)
		}
		result = append(result, *m)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })

	if len(result) == 0 {
		return nil, fmt.Errorf("no migrations found in %s", dir)
	}
	return result, nil
}

var errBadFilename = errors.New("migration filename must look like 000001_name.up.sql")

func parseFilename(base string) (version int64, name, direction string, err error) {
	trimmed := strings.TrimSuffix(base, ".sql")
	dot := strings.LastIndexByte(trimmed, '.')
	if dot < 0 {
		return 0, "", "", fmt.Errorf("%s: %w", base, errBadFilename)
	}
	direction = trimmed[dot+1:]
	if direction != "up" && direction != "down" {
		return 0, "", "", fmt.Errorf("%s: %w", base, errBadFilename)
	}

	numPart, name, ok := strings.Cut(trimmed[:dot], "_")
	if !ok || name == "" {
		return 0, "", "", fmt.Errorf("%s: %w", base, errBadFilename)
	}
	version, err = strconv.ParseInt(numPart, 10, 64)
	if err != nil || version <= 0 {
		return 0, "", "", fmt.Errorf("%s: %w", base, errBadFilename)
	}
	return version, name, direction, nil
}

func pending(all []migration, applied map[int64]bool) []migration {
	var out []migration
	for _, m := range all {
		if !applied[m.Version] {
			out = append(out, m)
		}
	}
	return out
}

// rollbacks returns up to steps applied migrations, newest first.
func rollbacks(all []migration, applied map[int64]bool, steps int) []migration {
	var out []migration
	for i := len(all) - 1; i >= 0 && len(out) < steps; i-- {
		if applied[all[i].Version] {
			out = append(out, all[i])
		}
	}
	return out
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int64]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]bool)
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// apply runs one migration file and records the version change in the
// same transaction.
func apply(ctx context.Context, db *sql.DB, m migration, up bool) error {
	path := m.Up
	if !up {
		if m.Down == "" {
			return fmt.Errorf("migration %06d has no down file", m.Version)
		}
		path = m.Down
	}

	body, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec %s: %w", filepath.Base(path), err)
	}

	if up {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return fmt.Errorf("record version %06d: %w", m.Version, err)
	}

	return tx.Commit()
}
