package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// Filter restricts a selection to one calculation method and one
// classification. An empty field leaves that column unrestricted, for phase
// tables that do not carry it.
type Filter struct {
	CalcMethod     string
	Classification string
}

// Select returns the named columns of every fact row of a phase matching
// the filter. Rows come back in no particular order. The read runs in its
// own short transaction.
func (s *Store) Select(ctx context.Context, p core.Phase, columns []string, f Filter) ([]*core.Record, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("select from %s: no columns", TableName(p))
	}
	query, args := s.selectSQL(p, columns, f)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", TableName(p), err)
	}
	defer func() { _ = rows.Close() }()

	var out []*core.Record
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", TableName(p), err)
		}
		rec := core.NewRecord()
		for i, name := range columns {
			rec.Set(name, values[i])
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", TableName(p), err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to finish read of %s: %w", TableName(p), err)
	}
	return out, nil
}

func (s *Store) selectSQL(p core.Phase, columns []string, f Filter) (string, []any) {
	q := s.dialect.QuoteIdent
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = q(c)
	}
	var conds []string
	var args []any
	for _, c := range []struct{ column, value string }{
		{core.FieldCalcMethod, f.CalcMethod},
		{core.FieldClassification, f.Classification},
	} {
		if c.value == "" {
			continue
		}
		args = append(args, c.value)
		conds = append(conds, fmt.Sprintf("%s = %s", q(c.column), s.dialect.Placeholder(len(args))))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), q(TableName(p)))
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	return query, args
}

// Count returns the number of fact rows of a phase.
func (s *Store) Count(ctx context.Context, p core.Phase) (int, error) {
	var n int
	//nolint:gosec // quoted identifier
	query := "SELECT COUNT(*) FROM " + s.dialect.QuoteIdent(TableName(p))
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", TableName(p), err)
	}
	return n, nil
}

// Systems lists every system in the entity table, sorted.
func (s *Store) Systems(ctx context.Context) ([]string, error) {
	q := s.dialect.QuoteIdent
	//nolint:gosec // quoted identifiers
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", q(core.FieldSystem), q(SystemsTable), q(core.FieldSystem))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list systems: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan system: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}
