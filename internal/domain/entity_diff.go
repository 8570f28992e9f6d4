package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// EntitySnapshot is one folded version of an entity, the unit Diff compares.
type EntitySnapshot struct {
	ID          string
	EntityType  string
	Version     int
	Identifiers []Identifier
	Fields      map[string]json.RawMessage
}

// NewEntitySnapshot creates a snapshot of a folded aggregate at version.
func NewEntitySnapshot(agg Aggregate, version int) EntitySnapshot {
	clone := agg.Clone()
	return EntitySnapshot{
		ID:          clone.ID,
		EntityType:  clone.EntityType,
		Version:     version,
		Identifiers: clone.Identifiers,
		Fields:      clone.Fields,
	}
}

// CanonicalText renders the snapshot as sorted lines. Nested objects and
// arrays are flattened to dotted and indexed paths.
func (s EntitySnapshot) CanonicalText() ([]string, error) {
	lines := []string{
		"ID: " + s.ID,
		"EntityType: " + s.EntityType,
		"Version: " + strconv.Itoa(s.Version),
		"Identifiers:",
	}
	for _, id := range s.Identifiers {
		lines = append(lines, fmt.Sprintf("  %s (%s)", id, id.Tier))
	}
	lines = append(lines, "Fields:")

	var entries []string
	for name, raw := range s.Fields {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("failed to decode field %s: %w", name, err)
		}
		flattenValue(name, value, func(path, text string) {
			entries = append(entries, "  "+path+": "+text)
		})
	}
	if len(entries) == 0 {
		return append(lines, "  (empty)"), nil
	}
	sort.Strings(entries)
	return append(lines, entries...), nil
}

// flattenValue calls emit once per leaf below path. Empty containers are
// leaves.
func flattenValue(path string, value any, emit func(path, text string)) {
	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			emit(path, "{}")
			return
		}
		for key, child := range typed {
			flattenValue(path+"."+key, child, emit)
		}
	case []any:
		if len(typed) == 0 {
			emit(path, "[]")
			return
		}
		for idx, child := range typed {
			flattenValue(path+"["+strconv.Itoa(idx)+"]", child, emit)
		}
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			emit(path, fmt.Sprint(typed))
			return
		}
		emit(path, string(encoded))
	}
}

// DiffEntitySnapshots renders a single-hunk unified diff of the canonical
// text of two snapshots. A nil snapshot diffs as empty.
func DiffEntitySnapshots(baseLabel string, base *EntitySnapshot, targetLabel string, target *EntitySnapshot) (string, error) {
	from, err := snapshotLines(base)
	if err != nil {
		return "", err
	}
	to, err := snapshotLines(target)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n+++ %s\n", baseLabel, targetLabel)
	fmt.Fprintf(&out, "@@ -%s +%s @@\n", hunkRange(len(from)), hunkRange(len(to)))
	for _, e := range editScript(from, to) {
		out.WriteByte(e.op)
		out.WriteString(e.text)
		out.WriteByte('\n')
	}
	return out.String(), nil
}

func snapshotLines(snapshot *EntitySnapshot) ([]string, error) {
	if snapshot == nil {
		return nil, nil
	}
	return snapshot.CanonicalText()
}

func hunkRange(n int) string {
	if n == 0 {
		return "0,0"
	}
	return "1," + strconv.Itoa(n)
}

type edit struct {
	op   byte
	text string
}

// editScript walks a longest-common-subsequence table. Deletions are emitted
// before insertions at each divergence.
func editScript(from, to []string) []edit {
	// lcs[i][j] is the LCS length of from[i:] and to[j:].
	lcs := make([][]int, len(from)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(to)+1)
	}
	for i := len(from) - 1; i >= 0; i-- {
		for j := len(to) - 1; j >= 0; j-- {
			switch {
			case from[i] == to[j]:
				lcs[i][j] = lcs[i+1][j+1] + 1
			case lcs[i+1][j] >= lcs[i][j+1]:
				lcs[i][j] = lcs[i+1][j]
			default:
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	script := make([]edit, 0, len(from)+len(to))
	i, j := 0, 0
	for i < len(from) || j < len(to) {
		switch {
		case i < len(from) && j < len(to) && from[i] == to[j]:
			script = append(script, edit{' ', from[i]})
			i++
			j++
		case j == len(to) || (i < len(from) && lcs[i+1][j] >= lcs[i][j+1]):
			script = append(script, edit{'-', from[i]})
			i++
		default:
			script = append(script, edit{'+', to[j]})
			j++
		}
	}
	return script
}
