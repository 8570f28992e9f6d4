package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// ConflictPolicy decides what a mutation does when a precondition fails.
type ConflictPolicy string

const (
	// ConflictPolicyDrop keeps the previous value and reports success.
	ConflictPolicyDrop ConflictPolicy = "drop"
	// ConflictPolicyReject fails the whole mutation with a ConflictError.
	ConflictPolicyReject ConflictPolicy = "reject"
)

// ParseConflictPolicy accepts "drop" and "reject"; empty means drop.
func ParseConflictPolicy(value string) (ConflictPolicy, error) {
	switch ConflictPolicy(value) {
	case "", ConflictPolicyDrop:
		return ConflictPolicyDrop, nil
	case ConflictPolicyReject:
		return ConflictPolicyReject, nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", value)
	}
}

// Conflict records a dropped envelope.
type Conflict struct {
	Field string `json:"field"`
	Start string `json:"start"`
}

// emptyArray is the value of an array field that was never set.
var emptyArray = json.RawMessage(`[]`)

// Apply folds one bundle of envelopes over agg. Envelopes for fields the
// definition does not declare are ignored. Identifiers are adopted only while
// the aggregate has none. Array fields are always present and start as [],
// so a writer guards their first change with the token of []. The returned
// conflicts list every envelope that proposed a value but failed its
// precondition, in field name order.
func Apply(def EntityDefinition, agg Aggregate, body StoreBody) (Aggregate, []Conflict) {
	next := agg.Clone()
	if next.Fields == nil {
		next.Fields = map[string]json.RawMessage{}
	}
	for _, spec := range def.Fields {
		if _, ok := next.Fields[spec.Name]; spec.Array && !ok {
			next.Fields[spec.Name] = emptyArray
		}
	}

	names := make([]string, 0, len(body))
	for name := range body {
		names = append(names, name)
	}
	sort.Strings(names)

	var conflicts []Conflict
	for _, name := range names {
		delta := body[name]

		if name == IdentifierField {
			if len(next.Identifiers) > 0 {
				continue
			}
			value, adopted := CheckDelta(nil, false, delta)
			if !adopted {
				if delta.HasEnd() {
					conflicts = append(conflicts, conflictFor(name, delta))
				}
				continue
			}
			var ids []Identifier
			if err := json.Unmarshal(value, &ids); err != nil {
				continue
			}
			next.setIdentifiers(ids)
			continue
		}

		if _, ok := def.Field(name); !ok {
			continue
		}

		current, present := next.Fields[name]
		value, adopted := CheckDelta(current, present, delta)
		if adopted {
			next.Fields[name] = value
			continue
		}
		if delta.HasEnd() {
			conflicts = append(conflicts, conflictFor(name, delta))
		}
	}

	return next, conflicts
}

// Fold replays bundles oldest first over the empty aggregate. Conflicts are
// always dropped silently during replay.
func Fold(def EntityDefinition, bodies []StoreBody) Aggregate {
	result := NewAggregate(def.Name)
	for _, body := range bodies {
		result, _ = Apply(def, result, body)
	}
	return result
}

func conflictFor(name string, delta Delta) Conflict {
	conflict := Conflict{Field: name}
	if delta.Start != nil {
		conflict.Start = *delta.Start
	}
	return conflict
}
