package domain

import "time"

// LogEntry is one immutable row of the delta log.
type LogEntry struct {
	ID         string
	EntityType string
	Body       StoreBody
	Author     string
	CreatedAt  time.Time
}

// EntityHistory captures the folded state after one log row.
type EntityHistory struct {
	ID         string     `json:"id"`
	EntityType string     `json:"entity_type"`
	Version    int        `json:"version"`
	Author     string     `json:"author"`
	CreatedAt  time.Time  `json:"created_at"`
	Delta      StoreBody  `json:"delta"`
	Conflicts  []Conflict `json:"conflicts,omitempty"`
	State      Aggregate  `json:"state"`
}

// BuildHistory replays entries and records the state after each one.
// Versions start at 1.
func BuildHistory(def EntityDefinition, entries []LogEntry) []EntityHistory {
	history := make([]EntityHistory, 0, len(entries))
	state := NewAggregate(def.Name)
	for i, entry := range entries {
		var conflicts []Conflict
		state, conflicts = Apply(def, state, entry.Body)
		history = append(history, EntityHistory{
			ID:         entry.ID,
			EntityType: def.Name,
			Version:    i + 1,
			Author:     entry.Author,
			CreatedAt:  entry.CreatedAt,
			Delta:      entry.Body,
			Conflicts:  conflicts,
			State:      state,
		})
	}
	return history
}
