package compare

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/leapstack-labs/devbench/internal/instance"
	"github.com/leapstack-labs/devbench/internal/reference"
	"github.com/leapstack-labs/devbench/pkg/core"
)

// Candidate is an uploaded record with where it came from.
type Candidate struct {
	Name   string
	Size   int64
	Record *core.Record
}

// Session holds the candidate one user is working with. Sessions are
// created per CLI invocation or API request and are safe for concurrent
// use.
type Session struct {
	querier Querier
	refs    *reference.Library

	mu      sync.RWMutex
	current *Candidate
}

// NewSession returns an empty session. refs may be nil.
func NewSession(q Querier, refs *reference.Library) *Session {
	return &Session{querier: q, refs: refs}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Load reads a candidate record and makes it current. The record must be
// JSON and carry a phase tag; full schema validation happens on Compare.
func (s *Session) Load(name string, r io.Reader) (*Candidate, error) {
	cr := &countingReader{r: r}
	rec, err := instance.Decode(cr)
	if err != nil {
		return nil, &core.ValidationError{Source: name, Reason: "record is not a JSON object", Err: err}
	}
	if _, ok := rec.Get(core.FieldPhase); !ok {
		return nil, &core.ValidationError{
			Source: name,
			Reason: fmt.Sprintf("record must contain the phase tag %q", core.FieldPhase),
		}
	}

	c := &Candidate{Name: name, Size: cr.n, Record: rec}
	s.mu.Lock()
	s.current = c
	s.mu.Unlock()
	return c, nil
}

// Current returns the loaded candidate.
func (s *Session) Current() (*Candidate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current != nil
}

// Reset forgets the loaded candidate.
func (s *Session) Reset() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// Compare compares the loaded candidate.
func (s *Session) Compare(ctx context.Context, opts Options) (*Comparison, error) {
	c, ok := s.Current()
	if !ok {
		return nil, ErrNoCandidate
	}
	return Compare(ctx, s.querier, s.refs, c.Record, opts)
}

// Review assembles the review context of the loaded candidate.
func (s *Session) Review(ctx context.Context) (*ReviewContext, error) {
	c, ok := s.Current()
	if !ok {
		return nil, ErrNoCandidate
	}
	return Review(ctx, s.querier, s.refs, c.Record)
}
