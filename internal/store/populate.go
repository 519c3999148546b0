package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// IngestRun is one Populate pass as logged in the ingest_runs table.
type IngestRun struct {
	ID        string
	Phase     core.Phase
	StartedAt time.Time
	Records   int
}

// Populate inserts the records of one phase. For every record the phase tag
// is stripped, the system is upserted (existing systems are left alone) and
// the fact row is inserted. The pass is one transaction: any constraint
// violation rolls back the whole phase.
func (s *Store) Populate(ctx context.Context, p core.Phase, records []*core.Record) (*IngestRun, error) {
	sc, ok := s.table(p)
	if !ok {
		return nil, fmt.Errorf("phase %s has no table; call Define first", p.Short())
	}

	run := &IngestRun{
		ID:        uuid.New().String(),
		Phase:     p,
		StartedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	upsert := s.upsertSystemSQL()
	for i, rec := range records {
		fact := rec.Without(core.FieldPhase)
		if err := checkFact(sc, fact); err != nil {
			err.Key = keyValues(sc, fact)
			err.Reason = fmt.Sprintf("record %d: %s", i, err.Reason)
			return nil, err
		}
		system, _ := fact.String(core.FieldSystem)

		if _, err := tx.ExecContext(ctx, upsert, system); err != nil {
			return nil, &core.ConstraintError{
				Table: SystemsTable, Key: []string{system}, Reason: "failed to upsert system", Err: err,
			}
		}

		exists, err := s.factExists(ctx, tx, sc, fact)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, &core.ConstraintError{
				Table:  TableName(p),
				Key:    keyValues(sc, fact),
				Reason: fmt.Sprintf("record %d: duplicate primary key", i),
			}
		}

		stmt, args := s.insertFactSQL(p, fact)
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return nil, &core.ConstraintError{
				Table:  TableName(p),
				Key:    keyValues(sc, fact),
				Reason: fmt.Sprintf("record %d: insert failed", i),
				Err:    err,
			}
		}
		run.Records++
	}

	if err := s.logRun(ctx, tx, run); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit phase %s: %w", p.Short(), err)
	}

	s.logger.Info("populated",
		slog.String("table", TableName(p)),
		slog.Int("records", run.Records),
		slog.String("run", run.ID))
	return run, nil
}

// checkFact enforces what the table would: required fields present and
// non-null, no column outside the table.
func checkFact(sc *core.Schema, fact *core.Record) *core.ConstraintError {
	table := TableName(sc.Phase)
	for _, name := range sc.Required {
		if name == core.FieldPhase {
			continue
		}
		if !fact.Has(name) {
			return &core.ConstraintError{Table: table, Reason: fmt.Sprintf("missing required field %q", name)}
		}
	}
	for _, name := range fact.Keys() {
		if _, ok := sc.Property(name); !ok {
			return &core.ConstraintError{Table: table, Reason: fmt.Sprintf("field %q has no column", name)}
		}
	}
	if _, ok := fact.String(core.FieldSystem); !ok {
		return &core.ConstraintError{Table: table, Reason: fmt.Sprintf("field %q must be text", core.FieldSystem)}
	}
	return nil
}

func keyValues(sc *core.Schema, fact *core.Record) []string {
	keys := sc.KeyColumns()
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		v, _ := fact.Get(k)
		out = append(out, fmt.Sprint(v))
	}
	return out
}

func (s *Store) upsertSystemSQL() string {
	q := s.dialect.QuoteIdent
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		q(SystemsTable), q(core.FieldSystem), s.dialect.Placeholder(1))
}

func (s *Store) factExists(ctx context.Context, tx *sql.Tx, sc *core.Schema, fact *core.Record) (bool, error) {
	q := s.dialect.QuoteIdent
	keys := sc.KeyColumns()
	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = fmt.Sprintf("%s = %s", q(k), s.dialect.Placeholder(i+1))
		args[i], _ = fact.Get(k)
	}
	//nolint:gosec // identifiers are quoted, values are bound
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", q(TableName(sc.Phase)), strings.Join(conds, " AND "))
	var n int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check key in %s: %w", TableName(sc.Phase), err)
	}
	return n > 0, nil
}

func (s *Store) insertFactSQL(p core.Phase, fact *core.Record) (string, []any) {
	q := s.dialect.QuoteIdent
	keys := fact.Keys()
	cols := make([]string, len(keys))
	marks := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = q(k)
		marks[i] = s.dialect.Placeholder(i + 1)
		args[i], _ = fact.Get(k)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		q(TableName(p)), strings.Join(cols, ", "), strings.Join(marks, ", ")), args
}

func (s *Store) logRun(ctx context.Context, tx *sql.Tx, run *IngestRun) error {
	d := s.dialect
	query := fmt.Sprintf("INSERT INTO %s (id, phase, started_at, records) VALUES (%s, %s, %s, %s)",
		d.QuoteIdent(IngestRunsTable), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4))
	_, err := tx.ExecContext(ctx, query, run.ID, run.Phase.Code(), run.StartedAt.Format(time.RFC3339Nano), run.Records)
	if err != nil {
		return fmt.Errorf("failed to record ingest run: %w", err)
	}
	return nil
}

// Runs lists the logged ingest runs, oldest first.
func (s *Store) Runs(ctx context.Context) ([]IngestRun, error) {
	//nolint:gosec // constant identifiers
	query := fmt.Sprintf("SELECT id, phase, started_at, records FROM %s ORDER BY started_at, id",
		s.dialect.QuoteIdent(IngestRunsTable))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ingest runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []IngestRun
	for rows.Next() {
		var (
			run     IngestRun
			code    string
			started string
		)
		if err := rows.Scan(&run.ID, &code, &started, &run.Records); err != nil {
			return nil, fmt.Errorf("failed to scan ingest run: %w", err)
		}
		run.Phase, _ = core.ParsePhase(code)
		if t, err := time.Parse(time.RFC3339Nano, started); err == nil {
			run.StartedAt = t
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
