package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/yoda/internal/db"
	"github.com/rpattn/yoda/internal/domain"
)

// postgresStore implements EntityStore on a pgx pool.
type postgresStore struct {
	conn *db.Connection
}

// postgresTx runs the transactional operations against any DBTX.
type postgresTx struct {
	q db.DBTX
}

// NewPostgresStore creates a store over an explicitly passed connection.
func NewPostgresStore(conn *db.Connection) EntityStore {
	return &postgresStore{conn: conn}
}

func (s *postgresStore) direct() *postgresTx {
	return &postgresTx{q: s.conn.Pool}
}

func (s *postgresStore) AppendDelta(ctx context.Context, id, entityType string, body domain.StoreBody, author string) error {
	return s.direct().AppendDelta(ctx, id, entityType, body, author)
}

func (s *postgresStore) UpsertProjection(ctx context.Context, id, entityType string, agg domain.Aggregate) error {
	return s.direct().UpsertProjection(ctx, id, entityType, agg)
}

func (s *postgresStore) LoadProjection(ctx context.Context, id, entityType string) (domain.Aggregate, error) {
	return s.direct().LoadProjection(ctx, id, entityType)
}

func (s *postgresStore) LoadLog(ctx context.Context, id, entityType string) ([]domain.LogEntry, error) {
	return s.direct().LoadLog(ctx, id, entityType)
}

// WithTx begins a transaction, hands fn a view bound to it and commits when fn
// succeeds. Any error rolls every write back.
func (s *postgresStore) WithTx(ctx context.Context, fn func(tx EntityStoreTx) error) error {
	var fnErr error
	err := s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		fnErr = fn(&postgresTx{q: tx})
		return fnErr
	})
	if err == nil || errors.Is(err, fnErr) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrDatabase, err)
}

func (s *postgresStore) LoadProjections(ctx context.Context, ids []string) ([]ProjectionRow, error) {
	return s.direct().LoadProjections(ctx, ids)
}

// LoadProjections fetches projections by id across entity types.
func (t *postgresTx) LoadProjections(ctx context.Context, ids []string) ([]ProjectionRow, error) {
	if len(ids) == 0 {
		return []ProjectionRow{}, nil
	}
	parsed := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		u, err := parseID(id)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, u)
	}

	rows, err := t.q.Query(ctx, `
		SELECT id, entity_type, body, last_updated
		FROM projection
		WHERE id = ANY($1::uuid[])`, parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load projections: %v", domain.ErrDatabase, err)
	}
	return collectProjectionRows(rows)
}

// SearchProjections runs a built search query.
func (s *postgresStore) SearchProjections(ctx context.Context, query SearchQuery) ([]ProjectionRow, error) {
	rows, err := s.conn.Pool.Query(ctx, query.SQL, query.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search %s: %v", domain.ErrDatabase, query.Definition.Name, err)
	}
	return collectProjectionRows(rows)
}

func (t *postgresTx) AppendDelta(ctx context.Context, id, entityType string, body domain.StoreBody, author string) error {
	parsed, err := parseID(id)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%w: failed to encode delta: %v", domain.ErrValidation, err)
	}
	_, err = t.q.Exec(ctx, `
		INSERT INTO delta_log (id, entity_type, body, author)
		VALUES ($1, $2, $3, $4)`, parsed, entityType, payload, author)
	if err != nil {
		return fmt.Errorf("%w: failed to append delta: %v", domain.ErrDatabase, err)
	}
	return nil
}

func (t *postgresTx) UpsertProjection(ctx context.Context, id, entityType string, agg domain.Aggregate) error {
	parsed, err := parseID(id)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("%w: failed to encode projection: %v", domain.ErrValidation, err)
	}
	tag, err := t.q.Exec(ctx, `
		INSERT INTO projection (id, entity_type, body, last_updated)
		VALUES ($1, $2, $3, clock_timestamp())
		ON CONFLICT (id) DO UPDATE
		SET body = EXCLUDED.body, last_updated = EXCLUDED.last_updated
		WHERE projection.entity_type = EXCLUDED.entity_type`, parsed, entityType, payload)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert projection: %v", domain.ErrDatabase, err)
	}
	// the conflict guard skips the row when id is held by another type
	if tag.RowsAffected() == 0 {
		return domain.Validationf("id %s already belongs to another entity type, not %s", id, entityType)
	}
	return nil
}

func (t *postgresTx) LoadProjection(ctx context.Context, id, entityType string) (domain.Aggregate, error) {
	parsed, err := parseID(id)
	if err != nil {
		return domain.Aggregate{}, err
	}
	var body []byte
	err = t.q.QueryRow(ctx, `
		SELECT body FROM projection
		WHERE id = $1 AND entity_type = $2`, parsed, entityType).Scan(&body)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Aggregate{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, entityType, id)
		}
		return domain.Aggregate{}, fmt.Errorf("%w: failed to load projection: %v", domain.ErrDatabase, err)
	}
	return decodeProjection(entityType, body)
}

func (t *postgresTx) LoadLog(ctx context.Context, id, entityType string) ([]domain.LogEntry, error) {
	parsed, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rows, err := t.q.Query(ctx, `
		SELECT body, author, created_at FROM delta_log
		WHERE id = $1 AND entity_type = $2
		ORDER BY created_at ASC, seq ASC`, parsed, entityType)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load log: %v", domain.ErrDatabase, err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var (
			payload   []byte
			author    string
			createdAt time.Time
		)
		if err := rows.Scan(&payload, &author, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: failed to scan log row: %v", domain.ErrDatabase, err)
		}
		var body domain.StoreBody
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("%w: corrupt log row for %s: %v", domain.ErrDatabase, id, err)
		}
		entries = append(entries, domain.LogEntry{
			ID:         id,
			EntityType: entityType,
			Body:       body,
			Author:     author,
			CreatedAt:  createdAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read log: %v", domain.ErrDatabase, err)
	}
	return entries, nil
}

func collectProjectionRows(rows pgx.Rows) ([]ProjectionRow, error) {
	defer rows.Close()

	result := make([]ProjectionRow, 0)
	for rows.Next() {
		var (
			id          uuid.UUID
			entityType  string
			payload     []byte
			lastUpdated time.Time
		)
		if err := rows.Scan(&id, &entityType, &payload, &lastUpdated); err != nil {
			return nil, fmt.Errorf("%w: failed to scan projection: %v", domain.ErrDatabase, err)
		}
		agg, err := decodeProjection(entityType, payload)
		if err != nil {
			return nil, err
		}
		result = append(result, ProjectionRow{
			ID:          id.String(),
			EntityType:  entityType,
			Body:        agg,
			LastUpdated: lastUpdated,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read projections: %v", domain.ErrDatabase, err)
	}
	return result, nil
}

func decodeProjection(entityType string, payload []byte) (domain.Aggregate, error) {
	var agg domain.Aggregate
	if err := json.Unmarshal(payload, &agg); err != nil {
		return domain.Aggregate{}, fmt.Errorf("%w: corrupt projection: %v", domain.ErrDatabase, err)
	}
	agg.EntityType = entityType
	return agg, nil
}

func parseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.UUID{}, domain.Validationf("malformed id %q", id)
	}
	return parsed, nil
}
