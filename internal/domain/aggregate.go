package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Aggregate is the folded current state of one entity. It is also the
// projection document.
type Aggregate struct {
	ID          string
	EntityType  string
	Identifiers []Identifier
	Fields      map[string]json.RawMessage
}

// NewAggregate returns the empty aggregate folds start from.
func NewAggregate(entityType string) Aggregate {
	return Aggregate{
		EntityType: entityType,
		Fields:     map[string]json.RawMessage{},
	}
}

// Value returns the canonical JSON of a field.
func (a Aggregate) Value(name string) (json.RawMessage, bool) {
	value, ok := a.Fields[name]
	return value, ok
}

// Decode unmarshals a field into dst and reports whether it was present.
func (a Aggregate) Decode(name string, dst any) (bool, error) {
	value, ok := a.Fields[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(value, dst); err != nil {
		return true, fmt.Errorf("failed to decode field %s: %w", name, err)
	}
	return true, nil
}

// Token is the precondition token a writer should send to change name.
func (a Aggregate) Token(name string) (string, bool) {
	value, ok := a.Fields[name]
	if !ok {
		return "", false
	}
	return Hash(value), true
}

// Tokens returns the precondition token of every present field.
func (a Aggregate) Tokens() map[string]string {
	tokens := make(map[string]string, len(a.Fields))
	for name, value := range a.Fields {
		tokens[name] = Hash(value)
	}
	return tokens
}

// Clone copies the aggregate; field values are immutable so they are shared.
func (a Aggregate) Clone() Aggregate {
	out := Aggregate{
		ID:         a.ID,
		EntityType: a.EntityType,
		Fields:     make(map[string]json.RawMessage, len(a.Fields)),
	}
	if a.Identifiers != nil {
		out.Identifiers = append([]Identifier(nil), a.Identifiers...)
	}
	for key, value := range a.Fields {
		out.Fields[key] = value
	}
	return out
}

// setIdentifiers adopts ids and derives the entity id from the primary one.
func (a *Aggregate) setIdentifiers(ids []Identifier) {
	a.Identifiers = append([]Identifier(nil), ids...)
	if primary, ok := PrimaryIdentifier(ids); ok {
		a.ID = primary.Value
	}
}

// MarshalJSON renders the flat projection document: one key per field plus
// the identifier list. Keys are sorted so output is deterministic.
func (a Aggregate) MarshalJSON() ([]byte, error) {
	doc := make(map[string]json.RawMessage, len(a.Fields)+1)
	for key, value := range a.Fields {
		doc[key] = value
	}
	if len(a.Identifiers) > 0 {
		ids, err := json.Marshal(a.Identifiers)
		if err != nil {
			return nil, err
		}
		doc[IdentifierField] = ids
	}
	return json.Marshal(doc)
}

// UnmarshalJSON reads a projection document. EntityType is not part of the
// document and is left untouched.
func (a *Aggregate) UnmarshalJSON(data []byte) error {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	a.Fields = make(map[string]json.RawMessage, len(doc))
	a.Identifiers = nil
	a.ID = ""
	for key, value := range doc {
		if key == IdentifierField {
			var ids []Identifier
			if err := json.Unmarshal(value, &ids); err != nil {
				return fmt.Errorf("failed to decode identifiers: %w", err)
			}
			a.setIdentifiers(ids)
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			continue
		}
		a.Fields[key] = value
	}
	return nil
}

// ToStore converts the aggregate into unconditional envelopes, one per
// present field. It is the body of a creation log row.
func (a Aggregate) ToStore() (StoreBody, error) {
	body := make(StoreBody, len(a.Fields)+1)
	for key, value := range a.Fields {
		body[key] = Delta{End: value}
	}
	if len(a.Identifiers) > 0 {
		delta, err := Set(a.Identifiers)
		if err != nil {
			return nil, err
		}
		body[IdentifierField] = delta
	}
	return body, nil
}

// FromStore takes the End of every envelope without precondition checks.
func FromStore(entityType string, body StoreBody) (Aggregate, error) {
	agg := NewAggregate(entityType)
	for key, delta := range body {
		if !delta.HasEnd() {
			continue
		}
		if key == IdentifierField {
			var ids []Identifier
			if err := json.Unmarshal(delta.End, &ids); err != nil {
				return Aggregate{}, fmt.Errorf("%w: failed to decode identifiers: %v", ErrValidation, err)
			}
			agg.setIdentifiers(ids)
			continue
		}
		agg.Fields[key] = delta.End
	}
	return agg, nil
}
