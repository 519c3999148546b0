package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/leapstack-labs/devbench/internal/compare"
	"github.com/leapstack-labs/devbench/internal/query"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// maxRecordBytes bounds a posted candidate record.
const maxRecordBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type phaseInfo struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	Short     string `json:"short"`
	Long      string `json:"long"`
	Schema    bool   `json:"schema"`
	Reference bool   `json:"reference"`
}

type queryResponse struct {
	Phase   string         `json:"phase"`
	Query   *core.Record   `json:"query"`
	Matches []*core.Record `json:"matches"`
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encoding JSON response", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("writing JSON response", "path", r.URL.Path, "error", err)
	}
}

// writeError maps the error taxonomy onto status codes. Validation
// failures and empty comparisons are expected outcomes and are not logged
// as errors.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
	}
	s.writeJSON(w, r, status, errorResponse{Error: err.Error(), Kind: kind})
}

func classify(err error) (int, string) {
	var (
		validation *core.ValidationError
		unknown    *core.UnknownPhaseError
		config     *core.ConfigError
		constraint *core.ConstraintError
	)
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.As(err, &unknown):
		return http.StatusBadRequest, "unknown_phase"
	case errors.Is(err, compare.ErrNoData):
		return http.StatusNotFound, "no_data"
	case errors.As(err, &config):
		return http.StatusNotFound, "config"
	case errors.As(err, &constraint):
		return http.StatusConflict, "constraint"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) backendOr503(w http.ResponseWriter, r *http.Request) (*Backend, bool) {
	b, ok := s.current()
	if !ok {
		s.writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "backend not loaded", Kind: "unavailable"})
	}
	return b, ok
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	b, ok := s.current()
	status := "ok"
	phases := []string{}
	if !ok {
		status = "no_data"
	} else {
		for _, p := range b.Validator.Phases() {
			phases = append(phases, p.Short())
		}
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"status": status,
		"phases": phases,
	})
}

func (s *Server) handlePhases(w http.ResponseWriter, r *http.Request) {
	b, _ := s.current()
	out := make([]phaseInfo, 0, len(core.Phases()))
	for _, p := range core.Phases() {
		info := phaseInfo{Code: p.Code(), Name: p.Name(), Short: p.Short(), Long: p.Long()}
		if b != nil {
			_, info.Schema = b.Validator.Schema(p)
		}
		if s.refs != nil {
			_, err := s.refs.Lookup(p)
			info.Reference = err == nil
		}
		out = append(out, info)
	}
	s.writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	p, err := core.ParsePhase(chi.URLParam(r, "phase"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	b, ok := s.backendOr503(w, r)
	if !ok {
		return
	}
	sc, ok := b.Validator.Schema(p)
	if !ok {
		s.writeError(w, r, &core.ConfigError{Reason: "no schema for phase " + p.Short()})
		return
	}
	s.writeJSON(w, r, http.StatusOK, sc)
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	p, err := core.ParsePhase(chi.URLParam(r, "phase"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.refs == nil {
		s.writeError(w, r, &core.ConfigError{Key: "reference_dir", Reason: "no reference library configured"})
		return
	}
	doc, err := s.refs.Lookup(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, doc)
}

// session loads the posted record into a fresh session.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Backend, *compare.Session, bool) {
	b, ok := s.backendOr503(w, r)
	if !ok {
		return nil, nil, false
	}
	sess := compare.NewSession(b.Querier, s.refs)
	body := http.MaxBytesReader(w, r.Body, maxRecordBytes)
	if _, err := sess.Load("request body", body); err != nil {
		s.writeError(w, r, err)
		return nil, nil, false
	}
	return b, sess, true
}

func boolParam(r *http.Request, name string) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && v
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	b, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	c, _ := sess.Current()

	res, err := b.Querier.Query(r.Context(), c.Record, query.Options{KeepPhase: boolParam(r, "keep_phase")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	matches := res.Matches
	if matches == nil {
		matches = []*core.Record{}
	}
	s.writeJSON(w, r, http.StatusOK, queryResponse{Phase: res.Phase.Short(), Query: res.Query, Matches: matches})
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	cmp, err := sess.Compare(r.Context(), compare.Options{ExcludeSelf: boolParam(r, "exclude_self")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	metric := r.URL.Query().Get("metric")
	if metric == "" {
		s.writeJSON(w, r, http.StatusOK, cmp)
		return
	}
	series, err := cmp.Chart(metric)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, map[string]any{
		"comparison": cmp,
		"chart":      series,
	})
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	_, sess, ok := s.session(w, r)
	if !ok {
		return
	}
	rc, err := sess.Review(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, rc)
}
