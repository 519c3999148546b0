// Package store projects phase records into a relational database: one
// shared systems table and one fact table per phase, foreign-keyed to it.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// Static table names.
const (
	SystemsTable    = "systems"
	IngestRunsTable = "ingest_runs"
	gooseTable      = "goose_db_version"
)

// Config selects and locates the target database.
type Config struct {
	// Type is a registered dialect name; empty means SQLite.
	Type string
	// DSN is a file path for the single-file targets (":memory:" for a
	// private in-memory database) or a connection string for Postgres.
	DSN    string
	Logger *slog.Logger
}

// Store is an open relational store.
type Store struct {
	db      *sql.DB
	dialect *Dialect
	dsn     string
	logger  *slog.Logger

	mu     sync.RWMutex
	tables map[core.Phase]*core.Schema
}

// Open connects to the target and creates the static tables if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Type == "" {
		cfg.Type = SQLite
	}
	d, err := Lookup(cfg.Type)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(d.Driver, d.DSN(cfg.DSN))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", d.Name, err)
	}
	if d.Memory(cfg.DSN) {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", d.Name, err)
	}

	s := newStore(db, d, cfg.Logger)
	s.dsn = cfg.DSN
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Debug("store opened", slog.String("type", d.Name))
	return s, nil
}

func newStore(db *sql.DB, d *Dialect, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		db:      db,
		dialect: d,
		logger:  logger,
		tables:  make(map[core.Phase]*core.Schema),
	}
}

// Rebuild recreates the store from scratch. A single-file database is
// deleted; a server database has every devbench table dropped.
func Rebuild(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Type == "" {
		cfg.Type = SQLite
	}
	d, err := Lookup(cfg.Type)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if d.Name != Postgres && !d.Memory(cfg.DSN) {
		for _, path := range []string{cfg.DSN, cfg.DSN + ".wal", cfg.DSN + "-wal", cfg.DSN + "-shm"} {
			err := os.Remove(path)
			if err == nil {
				logger.Info("deleted", slog.String("path", path))
				continue
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to remove %s: %w", path, err)
			}
		}
		return Open(ctx, cfg)
	}

	s, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := s.Reset(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Reset drops every fact table and the static tables, then recreates the
// static tables.
func (s *Store) Reset(ctx context.Context) error {
	names := make([]string, 0, len(core.Phases())+3)
	for _, p := range core.Phases() {
		names = append(names, p.Code())
	}
	names = append(names, IngestRunsTable, SystemsTable, gooseTable)
	for _, name := range names {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+s.dialect.QuoteIdent(name)); err != nil {
			return fmt.Errorf("failed to drop %s: %w", name, err)
		}
	}
	s.mu.Lock()
	s.tables = make(map[core.Phase]*core.Schema)
	s.mu.Unlock()
	s.logger.Info("store reset", slog.String("type", s.dialect.Name))
	return s.migrate(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	s.logger.Debug("closing database connection")
	return s.db.Close()
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() *Dialect {
	return s.dialect
}

// TableName returns the fact table of a phase.
func TableName(p core.Phase) string {
	return p.Code()
}

func (s *Store) table(p core.Phase) (*core.Schema, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[p]
	return t, ok
}
