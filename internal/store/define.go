package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// Define creates the fact table of every schema. Each table mirrors its
// schema: the identifier references the systems table, the identifier and
// categorical columns form the primary key, metrics are nullable floats.
func (s *Store) Define(ctx context.Context, schemas ...*core.Schema) error {
	for _, sc := range schemas {
		ddl := s.createTableSQL(sc)
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s: %w", TableName(sc.Phase), err)
		}
		s.mu.Lock()
		s.tables[sc.Phase] = sc
		s.mu.Unlock()
		s.logger.Info("created", slog.String("table", TableName(sc.Phase)), slog.Int("columns", len(sc.Columns())))
	}
	return nil
}

func (s *Store) createTableSQL(sc *core.Schema) string {
	q := s.dialect.QuoteIdent
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", q(TableName(sc.Phase)))
	for _, col := range sc.Columns() {
		switch col.Kind() {
		case core.KindIdentifier:
			fmt.Fprintf(&b, "    %s %s NOT NULL REFERENCES %s(%s),\n",
				q(col.Name), s.dialect.TextType, q(SystemsTable), q(core.FieldSystem))
		case core.KindCategorical:
			fmt.Fprintf(&b, "    %s %s NOT NULL,\n", q(col.Name), s.dialect.TextType)
		default:
			fmt.Fprintf(&b, "    %s %s,\n", q(col.Name), s.dialect.FloatType)
		}
	}
	keys := sc.KeyColumns()
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = q(k)
	}
	fmt.Fprintf(&b, "    PRIMARY KEY (%s)\n)", strings.Join(quoted, ", "))
	return b.String()
}
