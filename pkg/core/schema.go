package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSON type names used by phase schemas.
const (
	TypeString = "string"
	TypeNumber = "number"
	TypeNull   = "null"
	TypeObject = "object"
)

// Property is one field of a phase schema.
type Property struct {
	Name  string
	Types []string // one entry serializes as a string, more as an array
	Enum  []string
}

// Kind returns the field kind of the property.
func (p Property) Kind() FieldKind {
	return KindOf(p.Name)
}

// Nullable reports whether the property accepts null.
func (p Property) Nullable() bool {
	for _, t := range p.Types {
		if t == TypeNull {
			return true
		}
	}
	return false
}

// Schema is the structural schema of one phase. It serializes as a JSON
// Schema document (type/properties/required) with properties in source
// column order.
type Schema struct {
	Phase      Phase
	Properties []Property
	Required   []string
	// Closed rejects fields that are not listed in Properties.
	Closed bool
}

// Property looks up a property by name.
func (s *Schema) Property(name string) (Property, bool) {
	for _, p := range s.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return Property{}, false
}

// Columns returns the properties that become table columns, i.e. all but
// the phase tag.
func (s *Schema) Columns() []Property {
	out := make([]Property, 0, len(s.Properties))
	for _, p := range s.Properties {
		if p.Kind() == KindPhase {
			continue
		}
		out = append(out, p)
	}
	return out
}

// KeyColumns returns the columns that form the fact table's primary key:
// the identifier followed by the categorical fields, in schema order.
func (s *Schema) KeyColumns() []string {
	var out []string
	for _, p := range s.Columns() {
		if k := p.Kind(); k == KindIdentifier || k == KindCategorical {
			out = append(out, p.Name)
		}
	}
	return out
}

// IsRequired reports whether name is listed as required.
func (s *Schema) IsRequired(name string) bool {
	for _, r := range s.Required {
		if r == name {
			return true
		}
	}
	return false
}

type propertyDoc struct {
	Type json.RawMessage `json:"type"`
	Enum []string        `json:"enum,omitempty"`
}

// MarshalJSON writes the schema as a JSON Schema object.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)
	for i, p := range s.Properties {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONValue(&buf, p.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		var typ any = p.Types
		if len(p.Types) == 1 {
			typ = p.Types[0]
		}
		rawType, err := json.Marshal(typ)
		if err != nil {
			return nil, err
		}
		if err := writeJSONValue(&buf, propertyDoc{Type: rawType, Enum: p.Enum}); err != nil {
			return nil, fmt.Errorf("property %q: %w", p.Name, err)
		}
	}
	buf.WriteString(`},"required":`)
	required := s.Required
	if required == nil {
		required = []string{}
	}
	if err := writeJSONValue(&buf, required); err != nil {
		return nil, err
	}
	if s.Closed {
		buf.WriteString(`,"additionalProperties":false`)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a schema document, keeping property order. The phase
// is recovered from the enum of the phase tag property.
func (s *Schema) UnmarshalJSON(data []byte) error {
	*s = Schema{}
	dec := json.NewDecoder(bytes.NewReader(data))
	err := decodeObject(dec, func(key string, dec *json.Decoder) error {
		switch key {
		case "properties":
			return decodeObject(dec, func(name string, dec *json.Decoder) error {
				var doc propertyDoc
				if err := dec.Decode(&doc); err != nil {
					return fmt.Errorf("property %q: %w", name, err)
				}
				types, err := decodeTypes(doc.Type)
				if err != nil {
					return fmt.Errorf("property %q: %w", name, err)
				}
				s.Properties = append(s.Properties, Property{Name: name, Types: types, Enum: doc.Enum})
				return nil
			})
		case "required":
			return dec.Decode(&s.Required)
		case "additionalProperties":
			var open bool
			if err := dec.Decode(&open); err != nil {
				return err
			}
			s.Closed = !open
			return nil
		default:
			var skip json.RawMessage
			return dec.Decode(&skip)
		}
	})
	if err != nil {
		return err
	}
	if err := expectEnd(dec); err != nil {
		return err
	}
	phaseProp, ok := s.Property(FieldPhase)
	if !ok || len(phaseProp.Enum) != 1 {
		return fmt.Errorf("schema has no fixed %q property", FieldPhase)
	}
	p, err := PhaseFromLabel(phaseProp.Enum[0])
	if err != nil {
		return err
	}
	s.Phase = p
	return nil
}

func decodeTypes(raw json.RawMessage) ([]string, error) {
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}, nil
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err != nil {
		return nil, fmt.Errorf("invalid type %s", raw)
	}
	return many, nil
}
