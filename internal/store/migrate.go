package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// goose keeps its dialect and filesystem in package globals.
var gooseMu sync.Mutex

// migrate creates the static tables: the systems entity table and the
// ingest run log.
func (s *Store) migrate(ctx context.Context) error {
	if s.dialect.Goose == "" {
		return s.applyMigrations(ctx)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(s.dialect.Goose); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, migrationsDir); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// applyMigrations runs the Up section of every migration file in order,
// for targets goose has no dialect for.
func (s *Store) applyMigrations(ctx context.Context) error {
	files, err := fs.Glob(migrations, migrationsDir+"/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, name := range files {
		data, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		for _, stmt := range upStatements(string(data)) {
			if _, err := s.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to run migration %s: %w", name, err)
			}
		}
	}
	return nil
}

// upStatements returns the statements between "-- +goose Up" and
// "-- +goose Down".
func upStatements(src string) []string {
	var (
		stmts []string
		cur   strings.Builder
		up    bool
	)
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "-- +goose Up"):
			up = true
			continue
		case strings.HasPrefix(trimmed, "-- +goose Down"):
			up = false
			continue
		case !up || trimmed == "" || strings.HasPrefix(trimmed, "--"):
			continue
		}
		cur.WriteString(line)
		cur.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			stmts = append(stmts, strings.TrimSpace(cur.String()))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		stmts = append(stmts, rest)
	}
	return stmts
}
