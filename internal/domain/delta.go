package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Delta proposes a new value for one field. End is adopted only when the
// content hash of the field's current value equals Start; a nil Start applies
// unconditionally. An absent End proposes nothing.
type Delta struct {
	Start *string         `json:"start,omitempty"`
	End   json.RawMessage `json:"end,omitempty"`
}

// StoreBody is the store representation of an entity: every field is an
// optional Delta. It is what the log persists.
type StoreBody map[string]Delta

// NewDelta builds an envelope whose End is the canonical JSON form of end.
func NewDelta(start *string, end any) (Delta, error) {
	canonical, err := Canonicalize(end)
	if err != nil {
		return Delta{}, err
	}
	return Delta{Start: start, End: canonical}, nil
}

// Set builds an unconditional envelope.
func Set(end any) (Delta, error) {
	return NewDelta(nil, end)
}

// SetIf builds an envelope guarded by a precondition token.
func SetIf(token string, end any) (Delta, error) {
	return NewDelta(&token, end)
}

// HasEnd reports whether the envelope proposes a value.
func (d Delta) HasEnd() bool {
	trimmed := bytes.TrimSpace(d.End)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// Canonicalize renders value as RFC 8785 canonical JSON. Raw JSON input is
// transformed as is.
func Canonicalize(value any) (json.RawMessage, error) {
	var raw []byte
	switch typed := value.(type) {
	case json.RawMessage:
		raw = typed
	case []byte:
		raw = typed
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to encode value: %v", ErrValidation, err)
		}
		raw = encoded
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to canonicalize value: %v", ErrValidation, err)
	}
	return canonical, nil
}

// Hash is the precondition token of a value: hex sha256 over its canonical
// JSON. It is stable across processes and Go representations.
func Hash(value json.RawMessage) string {
	canonical, err := jcs.Transform(value)
	if err != nil {
		canonical = value
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// HashValue hashes an arbitrary Go value the way Hash hashes its JSON.
func HashValue(value any) (string, error) {
	canonical, err := Canonicalize(value)
	if err != nil {
		return "", err
	}
	return Hash(canonical), nil
}

// CheckDelta decides whether d is honored against the current value of a
// field. present is false when the field has no value; in that case a guarded
// envelope is dropped because there is nothing to hash.
func CheckDelta(current json.RawMessage, present bool, d Delta) (json.RawMessage, bool) {
	if !d.HasEnd() {
		return nil, false
	}
	if d.Start == nil {
		return d.End, true
	}
	if !present {
		return nil, false
	}
	if Hash(current) != *d.Start {
		return nil, false
	}
	return d.End, true
}
