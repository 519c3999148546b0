package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/devbench/internal/compare"
	"github.com/leapstack-labs/devbench/internal/pipeline"
	"github.com/leapstack-labs/devbench/internal/query"
	"github.com/leapstack-labs/devbench/internal/reference"
	"github.com/leapstack-labs/devbench/internal/schema"
	"github.com/leapstack-labs/devbench/internal/testutil"
	"github.com/leapstack-labs/devbench/pkg/core"
)

const candidate = `{"フェーズ":"要件定義","システム":"System-1","算出方法":"合計値","分類":"全体",` +
	`"規模_ページ数":3355,"規模_機能数":12,"工数_作成工数":100.5,"工数_レビュー工数":null}`

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	ctx := context.Background()
	logger := testutil.NewTestLogger(t)

	dir := t.TempDir()
	wb := testutil.WriteWorkbook(t, dir, testutil.SampleSheet(core.PhaseRequirements))
	p, err := pipeline.New(pipeline.Config{Workbook: wb, Logger: logger})
	require.NoError(t, err)
	_, err = p.Run(ctx)
	require.NoError(t, err)

	refDir := filepath.Join(dir, "reference")
	require.NoError(t, os.Mkdir(refDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(refDir, "要件定義_参照項目.json"),
		[]byte(`{"規模_ページ数":{"中央値":1000}}`), 0o644))

	srv, err := NewServer(Config{
		Open:       StoreOpener(p.Layout(), p.Target(), logger),
		References: reference.NewLibrary(refDir),
		Logger:     logger,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Reload(ctx))
	t.Cleanup(func() { _ = srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(data) > 0 && data[0] == '{' {
		require.NoError(t, json.Unmarshal(data, &out), string(data))
	}
	return resp.StatusCode, out
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)
	status, body := do(t, ts, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, []any{"要件定義"}, body["phases"])
}

func TestPhases(t *testing.T) {
	_, ts := newTestServer(t)
	resp, err := ts.Client().Get(ts.URL + "/api/phases")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var phases []phaseInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&phases))
	require.Len(t, phases, len(core.Phases()))
	assert.Equal(t, phaseInfo{Code: "RD", Name: "requirements definition", Short: "要件定義", Long: "要件定義", Schema: true, Reference: true}, phases[0])
	assert.False(t, phases[1].Schema)
	assert.False(t, phases[1].Reference)
}

func TestSchemaAndReference(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		path   string
		status int
		kind   string
	}{
		{path: "/api/schemas/RD", status: http.StatusOK},
		{path: "/api/schemas/DES1", status: http.StatusNotFound, kind: "config"},
		{path: "/api/schemas/nope", status: http.StatusBadRequest, kind: "unknown_phase"},
		{path: "/api/reference/rd", status: http.StatusOK},
		{path: "/api/reference/ST", status: http.StatusNotFound, kind: "config"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := do(t, ts, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, status)
			if tt.kind != "" {
				assert.Equal(t, tt.kind, body["kind"])
			}
		})
	}

	_, body := do(t, ts, http.MethodGet, "/api/schemas/RD", "")
	assert.Equal(t, "object", body["type"])
	assert.Contains(t, body["required"], core.FieldSystem)
}

func TestQuery(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := do(t, ts, http.MethodPost, "/api/query", candidate)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "要件定義", body["phase"])

	q := body["query"].(map[string]any)
	assert.NotContains(t, q, core.FieldPhase)
	assert.NotContains(t, q, "工数_レビュー工数")

	matches := body["matches"].([]any)
	require.Len(t, matches, 2)
	self := 0
	for _, m := range matches {
		row := m.(map[string]any)
		if row[core.FieldSystem] == "System-1" {
			self++
			assert.Equal(t, 3355.0, row["規模_ページ数"])
		}
		assert.NotContains(t, row, "工数_レビュー工数")
	}
	assert.Equal(t, 1, self)

	_, body = do(t, ts, http.MethodPost, "/api/query?keep_phase=true", candidate)
	assert.Equal(t, "要件定義", body["query"].(map[string]any)[core.FieldPhase])
}

func TestQuery_Errors(t *testing.T) {
	_, ts := newTestServer(t)

	tests := []struct {
		name   string
		body   string
		status int
		kind   string
	}{
		{
			name:   "invalid calculation method",
			body:   `{"フェーズ":"要件定義","システム":"System-1","算出方法":"最大値","分類":"全体"}`,
			status: http.StatusUnprocessableEntity,
			kind:   "validation",
		},
		{
			name:   "unknown field",
			body:   `{"フェーズ":"要件定義","システム":"System-1","算出方法":"合計値","分類":"全体","色":1}`,
			status: http.StatusUnprocessableEntity,
			kind:   "validation",
		},
		{
			name:   "no phase tag",
			body:   `{"システム":"System-1","算出方法":"合計値","分類":"全体"}`,
			status: http.StatusUnprocessableEntity,
			kind:   "validation",
		},
		{
			name:   "not JSON",
			body:   `{"システム":`,
			status: http.StatusUnprocessableEntity,
			kind:   "validation",
		},
		{
			name:   "unknown phase",
			body:   `{"フェーズ":"設計","システム":"System-1","算出方法":"合計値","分類":"全体"}`,
			status: http.StatusBadRequest,
			kind:   "unknown_phase",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, ts, http.MethodPost, "/api/query", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.kind, body["kind"])
		})
	}
}

func TestCompare(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := do(t, ts, http.MethodPost, "/api/compare", candidate)
	require.Equal(t, http.StatusOK, status, body)
	pivot := body["pivot"].(map[string]any)
	assert.ElementsMatch(t, []any{"System-1", "System-2"}, pivot["systems"])
	assert.Equal(t, map[string]any{"規模_ページ数": map[string]any{"中央値": 1000.0}}, body["reference"])

	status, body = do(t, ts, http.MethodPost, "/api/compare?exclude_self=true", candidate)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"System-2"}, body["pivot"].(map[string]any)["systems"])

	status, body = do(t, ts, http.MethodPost, "/api/compare?metric="+url.QueryEscape("規模_ページ数"), candidate)
	require.Equal(t, http.StatusOK, status)
	points := body["chart"].(map[string]any)["points"].([]any)
	require.Len(t, points, 2)
	first := points[0].(map[string]any)
	assert.Equal(t, "System-1", first["system"])
	assert.Equal(t, true, first["current"])
	assert.Equal(t, 3355.0, first["value"])

	lonely := `{"フェーズ":"要件定義","システム":"System-9","算出方法":"中央値","分類":"全体"}`
	status, body = do(t, ts, http.MethodPost, "/api/compare", lonely)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "no_data", body["kind"])
}

func TestReview(t *testing.T) {
	_, ts := newTestServer(t)

	status, body := do(t, ts, http.MethodPost, "/api/review", candidate)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "要件定義", body["phase"])
	assert.Equal(t, "要件定義", body["current"].(map[string]any)[core.FieldPhase])
	past := body["past"].([]any)
	require.Len(t, past, 1)
	assert.Equal(t, "System-2", past[0].(map[string]any)[core.FieldSystem])
}

func TestNoBackend(t *testing.T) {
	srv, err := NewServer(Config{Open: func(context.Context) (*Backend, error) {
		return nil, errors.New("unreachable")
	}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	assert.Error(t, srv.Reload(context.Background()))

	status, body := do(t, ts, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "no_data", body["status"])

	status, _ = do(t, ts, http.MethodPost, "/api/query", candidate)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

type nopQuerier struct{}

func (nopQuerier) Query(context.Context, *core.Record, query.Options) (*query.Result, error) {
	return &query.Result{}, nil
}

func TestReload_AfterClose(t *testing.T) {
	v, err := schema.NewValidator()
	require.NoError(t, err)

	var opened, closed int
	srv, err := NewServer(Config{Open: func(context.Context) (*Backend, error) {
		opened++
		return &Backend{Validator: v, Querier: nopQuerier{}, Close: func() error {
			closed++
			return nil
		}}, nil
	}})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, srv.Reload(ctx))
	require.NoError(t, srv.Reload(ctx))
	assert.Equal(t, 1, closed, "the replaced backend is closed")

	require.NoError(t, srv.Close())
	assert.Equal(t, 2, closed)

	err = srv.Reload(ctx)
	assert.ErrorIs(t, err, ErrServerClosed)
	assert.Equal(t, 3, opened)
	assert.Equal(t, 3, closed, "a backend opened after Close is released")
	_, ok := srv.current()
	assert.False(t, ok)
}

func TestNewServer_Config(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)

	open := func(context.Context) (*Backend, error) { return nil, nil }
	_, err = NewServer(Config{Open: open, Watch: true})
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{err: &core.ValidationError{Reason: "x"}, status: http.StatusUnprocessableEntity},
		{err: &core.UnknownPhaseError{Label: "x"}, status: http.StatusBadRequest},
		{err: compare.ErrNoData, status: http.StatusNotFound},
		{err: &core.ConfigError{Reason: "x"}, status: http.StatusNotFound},
		{err: &core.ConstraintError{Table: "RD", Reason: "x"}, status: http.StatusConflict},
		{err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
	}
}
