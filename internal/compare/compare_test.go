package compare

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/devbench/internal/query"
	"github.com/leapstack-labs/devbench/internal/reference"
	"github.com/leapstack-labs/devbench/pkg/core"
)

func rec(t *testing.T, js string) *core.Record {
	t.Helper()
	var r core.Record
	require.NoError(t, json.Unmarshal([]byte(js), &r))
	return &r
}

// fakeQuerier returns a fixed match set and normalizes the candidate the
// way the engine does.
type fakeQuerier struct {
	matches []*core.Record
	err     error
	last    query.Options
}

func (f *fakeQuerier) Query(_ context.Context, candidate *core.Record, opts query.Options) (*query.Result, error) {
	f.last = opts
	if f.err != nil {
		return nil, f.err
	}
	p, err := candidate.Phase()
	if err != nil {
		return nil, err
	}
	q := candidate.DropNulls()
	if !opts.KeepPhase {
		q = q.Without(core.FieldPhase)
	}
	return &query.Result{Phase: p, Query: q, Matches: f.matches}, nil
}

func matches(t *testing.T) []*core.Record {
	return []*core.Record{
		rec(t, `{"システム":"System-2","算出方法":"合計値","分類":"全体","ページ数":1200,"工数":80}`),
		rec(t, `{"システム":"System-1","算出方法":"合計値","分類":"全体","ページ数":3355,"工数":null}`),
		rec(t, `{"システム":"System-3","算出方法":"合計値","分類":"全体","ページ数":900,"工数":40}`),
	}
}

const candidateJSON = `{"フェーズ":"要件定義","システム":"System-1","算出方法":"合計値","分類":"全体","ページ数":3355,"工数":null}`

func TestCompare_Pivot(t *testing.T) {
	q := &fakeQuerier{matches: matches(t)}

	c, err := Compare(context.Background(), q, nil, rec(t, candidateJSON), Options{})
	require.NoError(t, err)

	assert.Equal(t, core.PhaseRequirements, c.Phase)
	assert.Equal(t, []string{"System-2", "System-1", "System-3"}, c.Pivot.Systems)
	// 工数 is null in the candidate, so it is not a row.
	require.Len(t, c.Pivot.Rows, 1)
	assert.Equal(t, "ページ数", c.Pivot.Rows[0].Metric)
	assert.Equal(t, []any{1200.0, 3355.0, 900.0}, c.Pivot.Rows[0].Values)
	assert.Nil(t, c.Reference)
}

func TestCompare_Chart(t *testing.T) {
	c, err := Compare(context.Background(), &fakeQuerier{matches: matches(t)}, nil, rec(t, candidateJSON), Options{})
	require.NoError(t, err)

	s, err := c.Chart("ページ数")
	require.NoError(t, err)
	require.Len(t, s.Points, 3)
	assert.Equal(t, "System-1", s.Points[0].System)
	assert.True(t, s.Points[0].Current)
	assert.Equal(t, 3355.0, *s.Points[0].Value)
	assert.Equal(t, "System-2", s.Points[1].System)
	assert.Equal(t, "System-3", s.Points[2].System)
	assert.False(t, s.Points[2].Current)

	_, err = c.Chart("工数")
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestCompare_ExcludeSelf(t *testing.T) {
	c, err := Compare(context.Background(), &fakeQuerier{matches: matches(t)}, nil, rec(t, candidateJSON),
		Options{ExcludeSelf: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"System-2", "System-3"}, c.Pivot.Systems)

	// The current system is gone, so there is nothing to chart it against.
	_, err = c.Chart("ページ数")
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestCompare_NoData(t *testing.T) {
	only := matches(t)[1:2]
	_, err := Compare(context.Background(), &fakeQuerier{matches: only}, nil, rec(t, candidateJSON),
		Options{ExcludeSelf: true})
	assert.True(t, errors.Is(err, ErrNoData))

	_, err = Compare(context.Background(), &fakeQuerier{}, nil, rec(t, candidateJSON), Options{})
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestCompare_PropagatesValidation(t *testing.T) {
	verr := &core.ValidationError{Phase: "要件定義", Reason: "bad"}
	_, err := Compare(context.Background(), &fakeQuerier{err: verr}, nil, rec(t, candidateJSON), Options{})

	var ve *core.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestCompare_Reference(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "要件定義_参照項目.json"), []byte(`{"ページ数":{"中央値":1000}}`), 0o644))

	c, err := Compare(context.Background(), &fakeQuerier{matches: matches(t)}, reference.NewLibrary(dir), rec(t, candidateJSON), Options{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"ページ数":{"中央値":1000}}`, string(c.Reference))

	// A library without the phase's document just leaves it out.
	c, err = Compare(context.Background(), &fakeQuerier{matches: matches(t)}, reference.NewLibrary(t.TempDir()), rec(t, candidateJSON), Options{})
	require.NoError(t, err)
	assert.Nil(t, c.Reference)

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"phase":"要件定義"`)
	assert.NotContains(t, string(out), `"reference"`)
}

func TestPivot_DuplicateSystems(t *testing.T) {
	q := rec(t, `{"システム":"A","算出方法":"合計値","工数":1}`)
	p := NewPivot(q, []*core.Record{
		rec(t, `{"システム":"A","算出方法":"合計値","分類":"新規","工数":1}`),
		rec(t, `{"システム":"A","算出方法":"合計値","分類":"修正","工数":2}`),
		rec(t, `{"システム":"B","算出方法":"合計値","分類":"全体","工数":3}`),
	})
	assert.Equal(t, []string{"A (新規)", "A (修正)", "B"}, p.Systems)
}

func TestReview(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "要件定義_参照項目.json"), []byte(`{"x":1}`), 0o644))
	q := &fakeQuerier{matches: matches(t)}

	rc, err := Review(context.Background(), q, reference.NewLibrary(dir), rec(t, candidateJSON))
	require.NoError(t, err)
	assert.True(t, q.last.KeepPhase)
	assert.True(t, rc.Current.Has(core.FieldPhase))
	require.Len(t, rc.Past, 2)
	for _, r := range rc.Past {
		assert.NotEqual(t, "System-1", systemOf(r))
	}

	_, err = Review(context.Background(), q, reference.NewLibrary(t.TempDir()), rec(t, candidateJSON))
	var ce *core.ConfigError
	assert.True(t, errors.As(err, &ce))

	_, err = Review(context.Background(), q, nil, rec(t, candidateJSON))
	assert.True(t, errors.As(err, &ce))
}

func TestSession(t *testing.T) {
	s := NewSession(&fakeQuerier{matches: matches(t)}, nil)

	_, err := s.Compare(context.Background(), Options{})
	assert.True(t, errors.Is(err, ErrNoCandidate))

	c, err := s.Load("system1.json", strings.NewReader(candidateJSON))
	require.NoError(t, err)
	assert.Equal(t, "system1.json", c.Name)
	assert.Equal(t, int64(len(candidateJSON)), c.Size)

	cur, ok := s.Current()
	require.True(t, ok)
	assert.Same(t, c, cur)

	cmp, err := s.Compare(context.Background(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "System-1", cmp.System())

	s.Reset()
	_, ok = s.Current()
	assert.False(t, ok)
	_, err = s.Review(context.Background())
	assert.True(t, errors.Is(err, ErrNoCandidate))
}

func TestSession_LoadRejects(t *testing.T) {
	s := NewSession(&fakeQuerier{}, nil)

	_, err := s.Load("bad.json", strings.NewReader(`{"システム":`))
	var ve *core.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "bad.json", ve.Source)

	_, err = s.Load("nophase.json", strings.NewReader(`{"システム":"A"}`))
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Reason, core.FieldPhase)

	_, ok := s.Current()
	assert.False(t, ok)
}
