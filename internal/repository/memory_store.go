package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/yoda/internal/domain"
)

// memoryStore is an EntityStore kept in process memory. Transactions are
// serialized and staged; nothing is visible until fn returns nil.
type memoryStore struct {
	mu          sync.RWMutex
	log         map[string][]domain.LogEntry
	projections map[string]ProjectionRow
	now         func() time.Time
	lastTick    time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() EntityStore {
	return newMemoryStore(time.Now)
}

func newMemoryStore(now func() time.Time) *memoryStore {
	return &memoryStore{
		log:         map[string][]domain.LogEntry{},
		projections: map[string]ProjectionRow{},
		now:         now,
	}
}

// tick returns a strictly increasing timestamp. Callers hold mu.
func (s *memoryStore) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastTick) {
		t = s.lastTick.Add(time.Microsecond)
	}
	s.lastTick = t
	return t
}

func (s *memoryStore) AppendDelta(ctx context.Context, id, entityType string, body domain.StoreBody, author string) error {
	return s.WithTx(ctx, func(tx EntityStoreTx) error {
		return tx.AppendDelta(ctx, id, entityType, body, author)
	})
}

func (s *memoryStore) UpsertProjection(ctx context.Context, id, entityType string, agg domain.Aggregate) error {
	return s.WithTx(ctx, func(tx EntityStoreTx) error {
		return tx.UpsertProjection(ctx, id, entityType, agg)
	})
}

func (s *memoryStore) LoadProjection(ctx context.Context, id, entityType string) (domain.Aggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memoryTx{store: s}).LoadProjection(ctx, id, entityType)
}

func (s *memoryStore) LoadLog(ctx context.Context, id, entityType string) ([]domain.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memoryTx{store: s}).LoadLog(ctx, id, entityType)
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(tx EntityStoreTx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDatabase, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, projections: map[string]ProjectionRow{}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrDatabase, err)
	}

	for _, entry := range tx.appended {
		key := logKey(entry.ID, entry.EntityType)
		s.log[key] = append(s.log[key], entry)
	}
	for id, row := range tx.projections {
		s.projections[id] = row
	}
	return nil
}

func (s *memoryStore) LoadProjections(ctx context.Context, ids []string) ([]ProjectionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memoryTx{store: s}).LoadProjections(ctx, ids)
}

func (s *memoryStore) SearchProjections(ctx context.Context, query SearchQuery) ([]ProjectionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []ProjectionRow
	for _, row := range s.projections {
		if row.EntityType != query.Definition.Name {
			continue
		}
		if matchesAll(row.Body, query.Predicates) {
			matches = append(matches, row)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].LastUpdated.Equal(matches[j].LastUpdated) {
			return matches[i].LastUpdated.Before(matches[j].LastUpdated)
		}
		return matches[i].ID < matches[j].ID
	})

	skip := query.Pagination.Skip
	if skip >= len(matches) {
		return []ProjectionRow{}, nil
	}
	end := skip + query.Pagination.Limit + 1
	if end > len(matches) {
		end = len(matches)
	}
	out := make([]ProjectionRow, 0, end-skip)
	for _, row := range matches[skip:end] {
		row.Body = row.Body.Clone()
		out = append(out, row)
	}
	return out, nil
}

// memoryTx reads through staged writes to the committed state. The store lock
// is held by whoever created it.
type memoryTx struct {
	store       *memoryStore
	appended    []domain.LogEntry
	projections map[string]ProjectionRow
}

func (t *memoryTx) AppendDelta(ctx context.Context, id, entityType string, body domain.StoreBody, author string) error {
	key, err := normalizeID(id)
	if err != nil {
		return err
	}
	// round trip so the stored row is independent of the caller's maps
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: failed to encode delta: %v", domain.ErrValidation, err)
	}
	var stored domain.StoreBody
	if err := json.Unmarshal(payload, &stored); err != nil {
		return fmt.Errorf("%w: failed to encode delta: %v", domain.ErrValidation, err)
	}
	t.appended = append(t.appended, domain.LogEntry{
		ID:         key,
		EntityType: entityType,
		Body:       stored,
		Author:     author,
		CreatedAt:  t.store.tick(),
	})
	return nil
}

func (t *memoryTx) UpsertProjection(ctx context.Context, id, entityType string, agg domain.Aggregate) error {
	key, err := normalizeID(id)
	if err != nil {
		return err
	}
	if existing, ok := t.lookup(key); ok && existing.EntityType != entityType {
		return domain.Validationf("id %s already belongs to a %s, not a %s", key, existing.EntityType, entityType)
	}
	body := agg.Clone()
	body.EntityType = entityType
	t.projections[key] = ProjectionRow{
		ID:          key,
		EntityType:  entityType,
		Body:        body,
		LastUpdated: t.store.tick(),
	}
	return nil
}

func (t *memoryTx) LoadProjection(ctx context.Context, id, entityType string) (domain.Aggregate, error) {
	key, err := normalizeID(id)
	if err != nil {
		return domain.Aggregate{}, err
	}
	row, ok := t.lookup(key)
	if !ok || row.EntityType != entityType {
		return domain.Aggregate{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, entityType, id)
	}
	return row.Body.Clone(), nil
}

func (t *memoryTx) LoadLog(ctx context.Context, id, entityType string) ([]domain.LogEntry, error) {
	key, err := normalizeID(id)
	if err != nil {
		return nil, err
	}
	committed := t.store.log[logKey(key, entityType)]
	entries := make([]domain.LogEntry, 0, len(committed))
	entries = append(entries, committed...)
	for _, entry := range t.appended {
		if entry.ID == key && entry.EntityType == entityType {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (t *memoryTx) LoadProjections(ctx context.Context, ids []string) ([]ProjectionRow, error) {
	result := make([]ProjectionRow, 0, len(ids))
	for _, id := range ids {
		key, err := normalizeID(id)
		if err != nil {
			return nil, err
		}
		if row, ok := t.lookup(key); ok {
			row.Body = row.Body.Clone()
			result = append(result, row)
		}
	}
	return result, nil
}

func (t *memoryTx) lookup(key string) (ProjectionRow, bool) {
	if t.projections != nil {
		if row, ok := t.projections[key]; ok {
			return row, true
		}
	}
	row, ok := t.store.projections[key]
	return row, ok
}

func matchesAll(agg domain.Aggregate, predicates []Predicate) bool {
	for _, predicate := range predicates {
		raw, ok := agg.Fields[predicate.Field]
		if !ok {
			return false
		}
		needle := unescapeLike(predicate.Pattern)
		if predicate.Array {
			var items []json.RawMessage
			if err := json.Unmarshal(raw, &items); err != nil {
				return false
			}
			found := false
			for _, item := range items {
				if strings.Contains(textValue(item), needle) {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !strings.Contains(textValue(raw), needle) {
			return false
		}
	}
	return true
}

// textValue mirrors the ->> operator: strings lose their quotes, everything
// else keeps its JSON text.
func textValue(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// unescapeLike recovers the substring from a LikePattern result.
func unescapeLike(pattern string) string {
	pattern = strings.TrimPrefix(pattern, "%")
	pattern = strings.TrimSuffix(pattern, "%")
	var sb strings.Builder
	escaped := false
	for _, r := range pattern {
		if r == '\\' && !escaped {
			escaped = true
			continue
		}
		escaped = false
		sb.WriteRune(r)
	}
	return sb.String()
}

func normalizeID(id string) (string, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", domain.Validationf("malformed id %q", id)
	}
	return parsed.String(), nil
}

func logKey(id, entityType string) string {
	return entityType + "/" + id
}
