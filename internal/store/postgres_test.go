package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/devbench/pkg/core"
)

func mockStore(t *testing.T, dialect string) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	d, err := Lookup(dialect)
	require.NoError(t, err)
	s := newStore(db, d, nil)
	t.Cleanup(func() { _ = db.Close() })
	return s, mock
}

func TestDialect_Placeholders(t *testing.T) {
	pg, err := Lookup(Postgres)
	require.NoError(t, err)
	assert.Equal(t, "$3", pg.Placeholder(3))

	lite, err := Lookup(SQLite)
	require.NoError(t, err)
	assert.Equal(t, "?", lite.Placeholder(3))
	assert.Equal(t, `"a""b"`, lite.QuoteIdent(`a"b`))
}

func TestDialect_DSN(t *testing.T) {
	lite, err := Lookup(SQLite)
	require.NoError(t, err)
	assert.Equal(t, "file:data/m.sqlite3?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", lite.DSN("data/m.sqlite3"))
	assert.Equal(t, "file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", lite.DSN(":memory:"))
	assert.True(t, lite.Memory(""))

	duck, err := Lookup(DuckDB)
	require.NoError(t, err)
	assert.Equal(t, "", duck.DSN(":memory:"))
	assert.Empty(t, duck.Goose)

	assert.Equal(t, []string{"duckdb", "postgres", "sqlite"}, Dialects())
}

func TestCreateTableSQL_Postgres(t *testing.T) {
	s, _ := mockStore(t, Postgres)
	want := `CREATE TABLE "RD" (
    "システム" TEXT NOT NULL REFERENCES "systems"("システム"),
    "算出方法" TEXT NOT NULL,
    "分類" TEXT NOT NULL,
    "ページ数" DOUBLE PRECISION,
    "工数" DOUBLE PRECISION,
    PRIMARY KEY ("システム", "算出方法", "分類")
)`
	assert.Equal(t, want, s.createTableSQL(rdSchema()))
}

func TestSelect_PostgresSQL(t *testing.T) {
	s, mock := mockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "システム", "ページ数" FROM "RD" WHERE "算出方法" = $1 AND "分類" = $2`).
		WithArgs("合計値", "全体").
		WillReturnRows(sqlmock.NewRows([]string{"システム", "ページ数"}).
			AddRow("System-1", 3355.0).
			AddRow([]byte("System-2"), nil))
	mock.ExpectCommit()

	got, err := s.Select(context.Background(), core.PhaseRequirements,
		[]string{core.FieldSystem, "ページ数"}, Filter{CalcMethod: "合計値", Classification: "全体"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	name, ok := got[1].String(core.FieldSystem)
	require.True(t, ok, "driver bytes become text")
	assert.Equal(t, "System-2", name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelectSQL_Filters(t *testing.T) {
	s, _ := mockStore(t, Postgres)

	tests := []struct {
		name     string
		filter   Filter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "both",
			filter:   Filter{CalcMethod: "合計値", Classification: "全体"},
			wantSQL:  `SELECT "システム" FROM "ST" WHERE "算出方法" = $1 AND "分類" = $2`,
			wantArgs: []any{"合計値", "全体"},
		},
		{
			name:     "calc only",
			filter:   Filter{CalcMethod: "平均値"},
			wantSQL:  `SELECT "システム" FROM "ST" WHERE "算出方法" = $1`,
			wantArgs: []any{"平均値"},
		},
		{
			name:     "classification only",
			filter:   Filter{Classification: "新規"},
			wantSQL:  `SELECT "システム" FROM "ST" WHERE "分類" = $1`,
			wantArgs: []any{"新規"},
		},
		{
			name:    "none",
			wantSQL: `SELECT "システム" FROM "ST"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := s.selectSQL(core.PhaseSystemTest, []string{core.FieldSystem}, tt.filter)
			assert.Equal(t, tt.wantSQL, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSelect_QueryError(t *testing.T) {
	s, mock := mockStore(t, Postgres)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT "システム" FROM "ST" WHERE "算出方法" = $1`).
		WithArgs("中央値").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := s.Select(context.Background(), core.PhaseSystemTest, []string{core.FieldSystem}, Filter{CalcMethod: "中央値"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, assert.AnError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPopulate_PostgresInsertFailure(t *testing.T) {
	s, mock := mockStore(t, Postgres)
	s.tables[core.PhaseRequirements] = rdSchema()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "systems" ("システム") VALUES ($1) ON CONFLICT DO NOTHING`).
		WithArgs("A").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT(*) FROM "RD" WHERE "システム" = $1 AND "算出方法" = $2 AND "分類" = $3`).
		WithArgs("A", "合計値", "全体").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO "RD" ("システム", "算出方法", "分類", "ページ数") VALUES ($1, $2, $3, $4)`).
		WithArgs("A", "合計値", "全体", 1.0).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := s.Populate(context.Background(), core.PhaseRequirements, []*core.Record{
		rec(t, `{"フェーズ":"要件定義","システム":"A","算出方法":"合計値","分類":"全体","ページ数":1}`),
	})

	var ce *core.ConstraintError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, []string{"A", "合計値", "全体"}, ce.Key)
	assert.True(t, errors.Is(err, assert.AnError))
	assert.NoError(t, mock.ExpectationsWereMet())
}
