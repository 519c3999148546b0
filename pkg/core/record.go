package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
)

// Record is one system's measurements for one phase: an ordered mapping from
// field name to a scalar. Values are string, float64 or nil (not reported).
// Key order is preserved through JSON so files keep their column order.
//
// The zero value is an empty record ready to use.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// Set assigns a value, appending the key if it is new. Integer and float32
// values are widened to float64.
func (r *Record) Set(key string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = normalizeValue(v)
}

// Get returns the value for key. A present key with a nil value returns
// (nil, true).
func (r *Record) Get(key string) (any, bool) {
	if r == nil || r.values == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// String returns the value for key if it is a string.
func (r *Record) String(key string) (string, bool) {
	v, ok := r.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Number returns the value for key if it is a number.
func (r *Record) Number(key string) (float64, bool) {
	v, ok := r.Get(key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// Has reports whether key is present with a non-nil value.
func (r *Record) Has(key string) bool {
	v, ok := r.Get(key)
	return ok && v != nil
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Delete removes key if present.
func (r *Record) Delete(key string) {
	if r.values == nil {
		return
	}
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Clone returns a copy of the record.
func (r *Record) Clone() *Record {
	out := &Record{
		keys:   make([]string, len(r.keys)),
		values: make(map[string]any, len(r.values)),
	}
	copy(out.keys, r.keys)
	for k, v := range r.values {
		out.values[k] = v
	}
	return out
}

// DropNulls returns a copy without nil-valued fields.
func (r *Record) DropNulls() *Record {
	out := NewRecord()
	for _, k := range r.keys {
		if v := r.values[k]; v != nil {
			out.Set(k, v)
		}
	}
	return out
}

// Without returns a copy without the named fields.
func (r *Record) Without(keys ...string) *Record {
	out := r.Clone()
	for _, k := range keys {
		out.Delete(k)
	}
	return out
}

// Phase resolves the record's phase tag.
func (r *Record) Phase() (Phase, error) {
	v, ok := r.Get(FieldPhase)
	if !ok || v == nil {
		return 0, &ValidationError{Reason: fmt.Sprintf("missing phase tag %q", FieldPhase)}
	}
	label, ok := v.(string)
	if !ok {
		return 0, &ValidationError{Reason: fmt.Sprintf("phase tag %q must be a string, got %T", FieldPhase, v)}
	}
	return PhaseFromLabel(label)
}

// Equal reports whether both records hold the same fields and values,
// regardless of key order.
func (r *Record) Equal(o *Record) bool {
	if r.Len() != o.Len() {
		return false
	}
	for _, k := range r.keys {
		ov, ok := o.Get(k)
		if !ok || !reflect.DeepEqual(ov, r.values[k]) {
			return false
		}
	}
	return true
}

// Map returns the fields as a plain map.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, r.Len())
	for _, k := range r.Keys() {
		out[k] = r.values[k]
	}
	return out
}

// MarshalJSON writes the fields as a JSON object in key order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONValue(&buf, k); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONValue(&buf, r.values[k]); err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, keeping key order. Numbers become
// float64; nested values are kept as decoded so schema validation can
// reject them.
func (r *Record) UnmarshalJSON(data []byte) error {
	*r = Record{values: make(map[string]any)}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err := decodeObject(dec, func(key string, dec *json.Decoder) error {
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		r.Set(key, v)
		return nil
	})
	if err != nil {
		return err
	}
	return expectEnd(dec)
}

func normalizeValue(v any) any {
	switch n := v.(type) {
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case []byte:
		return string(n)
	default:
		return v
	}
}

// writeJSONValue encodes v without HTML escaping so Japanese text and
// symbols stay readable in the files.
func writeJSONValue(buf *bytes.Buffer, v any) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// expectEnd fails if anything but whitespace follows the decoded value.
func expectEnd(dec *json.Decoder) error {
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON object")
	}
	return nil
}

// decodeObject walks one JSON object, calling fn for every key with the
// decoder positioned at the value.
func decodeObject(dec *json.Decoder, fn func(key string, dec *json.Decoder) error) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		if err := fn(key, dec); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
