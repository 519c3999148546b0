package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/leapstack-labs/devbench/pkg/core"
)

// Validator checks records against the schema named by their phase tag.
// Schemas are compiled once; a Validator is safe for concurrent use.
type Validator struct {
	schemas  map[core.Phase]*core.Schema
	compiled map[core.Phase]*jsonschema.Schema
}

// NewValidator compiles the given schemas.
func NewValidator(schemas ...*core.Schema) (*Validator, error) {
	v := &Validator{
		schemas:  make(map[core.Phase]*core.Schema, len(schemas)),
		compiled: make(map[core.Phase]*jsonschema.Schema, len(schemas)),
	}
	for _, s := range schemas {
		c, err := compile(s)
		if err != nil {
			return nil, err
		}
		v.schemas[s.Phase] = s
		v.compiled[s.Phase] = c
	}
	return v, nil
}

func compile(s *core.Schema) (*jsonschema.Schema, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema for phase %s: %w", s.Phase.Short(), err)
	}
	url := "mem://devbench/" + s.Phase.Code() + ".schema.json"

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	if err := c.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add schema for phase %s: %w", s.Phase.Short(), err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for phase %s: %w", s.Phase.Short(), err)
	}
	return compiled, nil
}

// Schema returns the schema of a phase.
func (v *Validator) Schema(p core.Phase) (*core.Schema, bool) {
	s, ok := v.schemas[p]
	return s, ok
}

// Phases returns the phases with a schema, in lifecycle order.
func (v *Validator) Phases() []core.Phase {
	out := make([]core.Phase, 0, len(v.schemas))
	for p := range v.schemas {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate resolves the record's phase and checks the record against that
// phase's schema. It never synthesizes a schema.
func (v *Validator) Validate(r *core.Record) (core.Phase, error) {
	p, err := r.Phase()
	if err != nil {
		return 0, err
	}
	return p, v.ValidateAs(p, r)
}

// ValidateAs checks the record against the schema of phase p.
func (v *Validator) ValidateAs(p core.Phase, r *core.Record) error {
	compiled, ok := v.compiled[p]
	if !ok {
		return &core.ValidationError{Phase: p.Short(), Reason: "no schema loaded for this phase"}
	}

	// Decode through JSON so the validator sees the same value shapes as a
	// file on disk.
	data, err := json.Marshal(r)
	if err != nil {
		return &core.ValidationError{Phase: p.Short(), Reason: "record is not encodable", Err: err}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return &core.ValidationError{Phase: p.Short(), Reason: "record is not decodable", Err: err}
	}

	if err := compiled.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			return &core.ValidationError{Phase: p.Short(), Reason: describe(ve), Err: err}
		}
		return &core.ValidationError{Phase: p.Short(), Reason: err.Error(), Err: err}
	}
	return nil
}

// describe flattens a validation error tree into its leaf messages.
func describe(ve *jsonschema.ValidationError) string {
	var msgs []string
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			msgs = append(msgs, fmt.Sprintf("%s: %s", location(e.InstanceLocation), e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}

// location turns a percent-encoded instance pointer back into field names.
func location(ptr string) string {
	if ptr == "" {
		return "/"
	}
	segs := strings.Split(ptr, "/")
	for i, seg := range segs {
		if dec, err := url.PathUnescape(seg); err == nil {
			segs[i] = dec
		}
	}
	return strings.Join(segs, "/")
}
