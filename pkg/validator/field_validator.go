package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/yoda/internal/domain"
)

// FieldValidator checks field values against an entity definition and
// produces their canonical JSON form.
type FieldValidator struct{}

// NewFieldValidator creates a new field validator
func NewFieldValidator() *FieldValidator {
	return &FieldValidator{}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// ValidationResult represents the result of validation
type ValidationResult struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors"`
}

// Err folds the result into a single domain validation error.
func (r ValidationResult) Err() error {
	if r.IsValid {
		return nil
	}
	messages := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		messages[i] = e.Message
	}
	return domain.Validationf("%s", strings.Join(messages, "; "))
}

// ValidateFields validates creation input. Every supplied field must be
// declared and constructible; required fields must be present. The returned
// map holds canonical JSON for every accepted field.
func (fv *FieldValidator) ValidateFields(def domain.EntityDefinition, fields map[string]any) (map[string]json.RawMessage, ValidationResult) {
	result := ValidationResult{IsValid: true, Errors: []ValidationError{}}
	normalized := make(map[string]json.RawMessage, len(fields))

	for _, spec := range def.Fields {
		value, exists := fields[spec.Name]
		if spec.Required && (!exists || value == nil) {
			result.add(spec.Name, fmt.Sprintf("required field '%s' is missing", spec.Name), nil)
		}
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := fields[name]
		spec, ok := def.Field(name)
		if !ok {
			result.add(name, fmt.Sprintf("field '%s' is not defined on %s", name, def.Name), value)
			continue
		}
		if !spec.Constructible {
			result.add(name, fmt.Sprintf("field '%s' cannot be set at creation", name), value)
			continue
		}
		if value == nil {
			continue
		}
		raw, err := fv.NormalizeValue(spec, value)
		if err != nil {
			result.add(name, err.Error(), value)
			continue
		}
		normalized[name] = raw
	}

	return normalized, result
}

// ValidateBody checks the End of every envelope of an update bundle. Envelopes
// without an End are left alone. Ends are rewritten to their normalized form.
func (fv *FieldValidator) ValidateBody(def domain.EntityDefinition, body domain.StoreBody) (domain.StoreBody, error) {
	out := make(domain.StoreBody, len(body))
	for name, delta := range body {
		if name == domain.IdentifierField {
			return nil, domain.Validationf("identifiers cannot be changed after creation")
		}
		spec, ok := def.Field(name)
		if !ok {
			return nil, domain.Validationf("field '%s' is not defined on %s", name, def.Name)
		}
		if !delta.HasEnd() {
			out[name] = domain.Delta{Start: delta.Start}
			continue
		}
		raw, err := fv.NormalizeRaw(spec, delta.End)
		if err != nil {
			return nil, err
		}
		out[name] = domain.Delta{Start: delta.Start, End: raw}
	}
	return out, nil
}

// NormalizeRaw decodes raw JSON and normalizes it like NormalizeValue.
func (fv *FieldValidator) NormalizeRaw(spec domain.FieldSpec, raw json.RawMessage) (json.RawMessage, error) {
	value, err := decodeNumber(raw)
	if err != nil {
		return nil, domain.Validationf("field '%s' contains invalid JSON: %v", spec.Name, err)
	}
	return fv.NormalizeValue(spec, value)
}

// NormalizeValue type checks value against spec and returns its canonical
// JSON. Numeric and boolean strings are coerced, timestamps are rewritten in
// UTC.
func (fv *FieldValidator) NormalizeValue(spec domain.FieldSpec, value any) (json.RawMessage, error) {
	generic, err := toGeneric(value)
	if err != nil {
		return nil, domain.Validationf("field '%s' contains invalid JSON: %v", spec.Name, err)
	}

	var normalized any
	if spec.Array {
		items, ok := generic.([]any)
		if !ok {
			return nil, domain.Validationf("field '%s' must be an array, got %s", spec.Name, describe(generic))
		}
		out := make([]any, len(items))
		for i, item := range items {
			v, err := fv.normalizeScalar(spec, item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		normalized = out
	} else {
		normalized, err = fv.normalizeScalar(spec, generic)
		if err != nil {
			return nil, err
		}
	}

	return domain.Canonicalize(normalized)
}

func (fv *FieldValidator) normalizeScalar(spec domain.FieldSpec, value any) (any, error) {
	name := spec.Name
	switch spec.Type {
	case domain.FieldTypeString:
		if _, ok := value.(string); !ok {
			return nil, domain.Validationf("field '%s' must be a string, got %s", name, describe(value))
		}
		return value, nil
	case domain.FieldTypeInteger:
		n, ok := asInteger(value)
		if !ok {
			return nil, domain.Validationf("field '%s' must be an integer, got %s", name, describe(value))
		}
		return n, nil
	case domain.FieldTypeFloat:
		f, ok := asFloat(value)
		if !ok {
			return nil, domain.Validationf("field '%s' must be a float, got %s", name, describe(value))
		}
		return f, nil
	case domain.FieldTypeBoolean:
		switch v := value.(type) {
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err == nil {
				return b, nil
			}
		}
		return nil, domain.Validationf("field '%s' must be a boolean, got %s", name, describe(value))
	case domain.FieldTypeTimestamp:
		str, ok := value.(string)
		if !ok {
			return nil, domain.Validationf("field '%s' must be a timestamp string, got %s", name, describe(value))
		}
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(str))
		if err != nil {
			return nil, domain.Validationf("field '%s' must be a valid timestamp (RFC3339): %v", name, err)
		}
		return ts.UTC().Format(time.RFC3339Nano), nil
	case domain.FieldTypeTag:
		str, ok := value.(string)
		if !ok {
			return nil, domain.Validationf("field '%s' must be a tag string, got %s", name, describe(value))
		}
		if len(spec.Enum) > 0 && !contains(spec.Enum, str) {
			return nil, domain.Validationf("field '%s' value '%s' is not one of %s", name, str, strings.Join(spec.Enum, ", "))
		}
		return str, nil
	case domain.FieldTypeReference:
		var ref domain.Reference
		if err := remarshal(value, &ref); err != nil {
			return nil, domain.Validationf("field '%s' must be a reference: %v", name, err)
		}
		if err := ref.Validate(); err != nil {
			return nil, fmt.Errorf("field '%s': %w", name, err)
		}
		return ref, nil
	case domain.FieldTypeIdentifier:
		var id domain.Identifier
		if err := remarshal(value, &id); err != nil {
			return nil, domain.Validationf("field '%s' must be an identifier: %v", name, err)
		}
		if err := id.Validate(); err != nil {
			return nil, fmt.Errorf("field '%s': %w", name, err)
		}
		return id, nil
	case domain.FieldTypeObject:
		if _, ok := value.(map[string]any); !ok {
			return nil, domain.Validationf("field '%s' must be an object, got %s", name, describe(value))
		}
		return value, nil
	default:
		return nil, domain.Validationf("unknown field type: %s", spec.Type)
	}
}

func (r *ValidationResult) add(field, message string, value any) {
	r.IsValid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Value: value})
}

// toGeneric converts any Go value into the shapes encoding/json produces,
// keeping numbers as json.Number.
func toGeneric(value any) (any, error) {
	switch v := value.(type) {
	case json.RawMessage:
		return decodeNumber(v)
	case nil, string, bool, json.Number, map[string]any, []any:
		return v, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return decodeNumber(data)
}

func decodeNumber(data []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func remarshal(value any, dst any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func asInteger(value any) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err == nil {
			return n, true
		}
		f, err := v.Float64()
		if err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func describe(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", value)
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
