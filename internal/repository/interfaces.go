package repository

import (
	"context"
	"time"

	"github.com/rpattn/yoda/internal/domain"
)

// ProjectionRow is one materialized entity as stored.
type ProjectionRow struct {
	ID          string
	EntityType  string
	Body        domain.Aggregate
	LastUpdated time.Time
}

// EntityStoreTx is the part of the store usable inside a transaction.
type EntityStoreTx interface {
	// AppendDelta adds one immutable row to the delta log.
	AppendDelta(ctx context.Context, id, entityType string, body domain.StoreBody, author string) error
	// UpsertProjection replaces the projection row of id and bumps last_updated.
	// It fails with domain.ErrValidation when id belongs to another entity type.
	UpsertProjection(ctx context.Context, id, entityType string, agg domain.Aggregate) error
	// LoadProjection returns domain.ErrNotFound when id has no projection.
	LoadProjection(ctx context.Context, id, entityType string) (domain.Aggregate, error)
	// LoadLog returns the log rows of id oldest first.
	LoadLog(ctx context.Context, id, entityType string) ([]domain.LogEntry, error)
	// LoadProjections fetches many projections of any type; missing ids are
	// omitted from the result.
	LoadProjections(ctx context.Context, ids []string) ([]ProjectionRow, error)
}

// EntityStore persists the delta log and the projection.
type EntityStore interface {
	EntityStoreTx
	// SearchProjections runs a query produced by BuildSearchQuery. It returns
	// at most query.Pagination.Limit+1 rows.
	SearchProjections(ctx context.Context, query SearchQuery) ([]ProjectionRow, error)
	// WithTx commits every write made through tx, or none of them.
	WithTx(ctx context.Context, fn func(tx EntityStoreTx) error) error
}
