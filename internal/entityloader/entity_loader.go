package entityloader

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/graph-gophers/dataloader"

	"github.com/rpattn/yoda/internal/domain"
	"github.com/rpattn/yoda/internal/repository"
)

type ctxKey string

const loaderKey ctxKey = "projectionLoader"

// EntityLoader batches projection lookups issued during one request.
type EntityLoader struct {
	Loader *dataloader.Loader
}

// NewEntityLoader creates a loader whose batches go to store.LoadProjections.
func NewEntityLoader(store repository.EntityStore) *EntityLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		results := make([]*dataloader.Result, len(keys))

		ids := make([]string, 0, len(keys))
		for i, k := range keys {
			id, err := uuid.Parse(k.String())
			if err != nil {
				results[i] = &dataloader.Result{Error: domain.Validationf("malformed id %q", k.String())}
				continue
			}
			ids = append(ids, id.String())
		}

		rows, err := store.LoadProjections(ctx, ids)
		if err != nil {
			for i := range results {
				if results[i] == nil {
					results[i] = &dataloader.Result{Error: err}
				}
			}
			return results
		}

		byID := make(map[string]repository.ProjectionRow, len(rows))
		for _, row := range rows {
			byID[row.ID] = row
		}

		for i, k := range keys {
			if results[i] != nil {
				continue
			}
			id, _ := uuid.Parse(k.String())
			if row, ok := byID[id.String()]; ok {
				results[i] = &dataloader.Result{Data: row}
			} else {
				results[i] = &dataloader.Result{Error: fmt.Errorf("%w: %s", domain.ErrNotFound, k.String())}
			}
		}

		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &EntityLoader{Loader: loader}
}

// Load resolves one projection, batching with concurrent calls.
func (l *EntityLoader) Load(ctx context.Context, id string) (repository.ProjectionRow, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(id))()
	if err != nil {
		return repository.ProjectionRow{}, err
	}
	row, ok := data.(repository.ProjectionRow)
	if !ok {
		return repository.ProjectionRow{}, fmt.Errorf("unexpected loader result %T", data)
	}
	return row, nil
}

// LoadMany resolves projections in key order. The error slice is nil when
// every key resolved.
func (l *EntityLoader) LoadMany(ctx context.Context, ids []string) ([]repository.ProjectionRow, []error) {
	data, errs := l.Loader.LoadMany(ctx, dataloader.NewKeysFromStrings(ids))()
	rows := make([]repository.ProjectionRow, len(ids))
	for i := range ids {
		if i < len(data) {
			if row, ok := data[i].(repository.ProjectionRow); ok {
				rows[i] = row
			}
		}
	}
	return rows, errs
}

// WithLoader stores loader in ctx.
func WithLoader(ctx context.Context, loader *EntityLoader) context.Context {
	return context.WithValue(ctx, loaderKey, loader)
}

// FromContext returns the request's loader, or nil.
func FromContext(ctx context.Context) *EntityLoader {
	if l, ok := ctx.Value(loaderKey).(*EntityLoader); ok {
		return l
	}
	return nil
}
