package service

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/rpattn/yoda/internal/auth"
	"github.com/rpattn/yoda/internal/domain"
	"github.com/rpattn/yoda/internal/entityloader"
	"github.com/rpattn/yoda/internal/registry"
	"github.com/rpattn/yoda/internal/repository"
	"github.com/rpattn/yoda/pkg/validator"
)

// Service is the outward interface of the entity store. Every operation
// authorizes the caller before touching the store.
type Service struct {
	registry     *registry.Registry
	store        repository.EntityStore
	validator    *validator.FieldValidator
	policy       domain.ConflictPolicy
	defaultLimit int
	maxLimit     int
}

// Option configures a Service.
type Option func(*Service)

// WithConflictPolicy selects what Update does with stale preconditions.
func WithConflictPolicy(policy domain.ConflictPolicy) Option {
	return func(s *Service) {
		s.policy = policy
	}
}

// WithSearchLimits sets the default and maximum page size.
func WithSearchLimits(defaultLimit, maxLimit int) Option {
	return func(s *Service) {
		s.defaultLimit = defaultLimit
		s.maxLimit = maxLimit
	}
}

// NewService creates a new entity service.
func NewService(reg *registry.Registry, store repository.EntityStore, opts ...Option) *Service {
	s := &Service{
		registry:     reg,
		store:        store,
		validator:    validator.NewFieldValidator(),
		policy:       domain.ConflictPolicyDrop,
		defaultLimit: repository.DefaultSearchLimit,
		maxLimit:     repository.MaxSearchLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the definitions the service serves.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// CreateInput carries the initial state of a new entity. Identifiers may be
// empty; a Primary identifier is minted when none is supplied.
type CreateInput struct {
	Identifiers []domain.Identifier `json:"identifier,omitempty"`
	Fields      map[string]any      `json:"fields"`
}

// Create validates input, appends the creation row and materializes the
// projection. It returns the entity's Primary identifier.
func (s *Service) Create(ctx context.Context, entityType string, input CreateInput, identity auth.Identity) (domain.Identifier, error) {
	def, err := s.registry.Lookup(entityType)
	if err != nil {
		return domain.Identifier{}, err
	}
	if err := auth.Authorize(identity, auth.Create(), def.Access.MutateRoles); err != nil {
		return domain.Identifier{}, err
	}

	ids, err := withPrimary(input.Identifiers)
	if err != nil {
		return domain.Identifier{}, err
	}
	primary, _ := domain.PrimaryIdentifier(ids)

	fields, result := s.validator.ValidateFields(def, input.Fields)
	if err := result.Err(); err != nil {
		return domain.Identifier{}, err
	}

	agg := domain.NewAggregate(def.Name)
	agg.ID = primary.Value
	agg.Identifiers = ids
	agg.Fields = fields

	body, err := agg.ToStore()
	if err != nil {
		return domain.Identifier{}, err
	}
	// the stored projection is the fold of the creation row
	agg = domain.Fold(def, []domain.StoreBody{body})

	err = s.store.WithTx(ctx, func(tx repository.EntityStoreTx) error {
		// ids are unique across entity types
		existing, err := tx.LoadProjections(ctx, []string{primary.Value})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.Validationf("%s already exists as a %s", primary.Value, existing[0].EntityType)
		}
		if err := tx.AppendDelta(ctx, primary.Value, def.Name, body, identity.UserID); err != nil {
			return err
		}
		return tx.UpsertProjection(ctx, primary.Value, def.Name, agg)
	})
	if err != nil {
		return domain.Identifier{}, fmt.Errorf("failed to create %s: %w", def.Name, err)
	}

	return primary, nil
}

// Update applies a bundle of envelopes to an existing entity and returns the
// new state. Under the drop policy stale envelopes are skipped silently;
// under the reject policy they fail the call with a *domain.ConflictError and
// nothing is written.
func (s *Service) Update(ctx context.Context, entityType, id string, body domain.StoreBody, identity auth.Identity) (domain.Aggregate, error) {
	def, err := s.registry.Lookup(entityType)
	if err != nil {
		return domain.Aggregate{}, err
	}
	caller := identity
	caller.UserID = canonicalID(identity.UserID)
	if err := auth.Authorize(caller, auth.Mutate(canonicalID(id)), def.Access.MutateRoles); err != nil {
		return domain.Aggregate{}, err
	}

	body, err = s.validator.ValidateBody(def, body)
	if err != nil {
		return domain.Aggregate{}, err
	}

	var next domain.Aggregate
	err = s.store.WithTx(ctx, func(tx repository.EntityStoreTx) error {
		current, err := tx.LoadProjection(ctx, id, def.Name)
		if err != nil {
			return err
		}

		var conflicts []domain.Conflict
		next, conflicts = domain.Apply(def, current, body)
		if len(conflicts) > 0 {
			if s.policy == domain.ConflictPolicyReject {
				return &domain.ConflictError{EntityType: def.Name, ID: id, Conflicts: conflicts}
			}
			log.Printf("[STORE] dropped %d stale envelope(s) on %s %s", len(conflicts), def.Name, id)
		}

		if err := tx.AppendDelta(ctx, id, def.Name, body, identity.UserID); err != nil {
			return err
		}
		return tx.UpsertProjection(ctx, id, def.Name, next)
	})
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("failed to update %s %s: %w", def.Name, id, err)
	}

	return next, nil
}

// Find folds the entity's log into its current state.
func (s *Service) Find(ctx context.Context, entityType, id string, identity auth.Identity) (domain.Aggregate, error) {
	def, err := s.registry.Lookup(entityType)
	if err != nil {
		return domain.Aggregate{}, err
	}
	if err := auth.Authorize(identity, auth.Query(), def.Access.QueryRoles); err != nil {
		return domain.Aggregate{}, err
	}

	entries, err := s.store.LoadLog(ctx, id, def.Name)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("failed to find %s %s: %w", def.Name, id, err)
	}
	if len(entries) == 0 {
		return domain.Aggregate{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, def.Name, id)
	}

	bodies := make([]domain.StoreBody, len(entries))
	for i, entry := range entries {
		bodies[i] = entry.Body
	}
	return domain.Fold(def, bodies), nil
}

// Search pages through projections matching filter.
func (s *Service) Search(ctx context.Context, entityType string, filter domain.SearchFilter, pagination domain.Pagination, identity auth.Identity) (domain.Page, error) {
	def, err := s.registry.Lookup(entityType)
	if err != nil {
		return domain.Page{}, err
	}
	if err := auth.Authorize(identity, auth.All(), def.Access.QueryRoles); err != nil {
		return domain.Page{}, err
	}

	pagination = repository.NormalizePagination(pagination, s.defaultLimit, s.maxLimit)
	query, err := repository.BuildSearchQuery(def, filter, pagination)
	if err != nil {
		return domain.Page{}, err
	}

	rows, err := s.store.SearchProjections(ctx, query)
	if err != nil {
		return domain.Page{}, fmt.Errorf("failed to search %s: %w", def.Name, err)
	}

	hasNext := len(rows) > pagination.Limit
	if hasNext {
		rows = rows[:pagination.Limit]
	}
	nodes := make([]domain.Aggregate, len(rows))
	for i, row := range rows {
		nodes[i] = row.Body
	}
	return domain.NewPage(nodes, pagination, hasNext), nil
}

// History returns the state of the entity after every log row.
func (s *Service) History(ctx context.Context, entityType, id string, identity auth.Identity) ([]domain.EntityHistory, error) {
	def, err := s.registry.Lookup(entityType)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(identity, auth.Query(), def.Access.QueryRoles); err != nil {
		return nil, err
	}

	entries, err := s.store.LoadLog(ctx, id, def.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s %s: %w", def.Name, id, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s %s", domain.ErrNotFound, def.Name, id)
	}
	return domain.BuildHistory(def, entries), nil
}

// Diff renders a unified diff between two versions of an entity. Versions
// start at 1.
func (s *Service) Diff(ctx context.Context, entityType, id string, baseVersion, targetVersion int, identity auth.Identity) (string, error) {
	history, err := s.History(ctx, entityType, id, identity)
	if err != nil {
		return "", err
	}

	snapshot := func(version int) (*domain.EntitySnapshot, error) {
		if version < 1 || version > len(history) {
			return nil, domain.Validationf("version %d out of range 1..%d", version, len(history))
		}
		snap := domain.NewEntitySnapshot(history[version-1].State, version)
		return &snap, nil
	}

	base, err := snapshot(baseVersion)
	if err != nil {
		return "", err
	}
	target, err := snapshot(targetVersion)
	if err != nil {
		return "", err
	}

	return domain.DiffEntitySnapshots(
		fmt.Sprintf("%s@v%d", id, baseVersion), base,
		fmt.Sprintf("%s@v%d", id, targetVersion), target,
	)
}

// FindMany loads projections in id order through the request's loader.
func (s *Service) FindMany(ctx context.Context, entityType string, ids []string, identity auth.Identity) ([]domain.Aggregate, error) {
	def, err := s.registry.Lookup(entityType)
	if err != nil {
		return nil, err
	}
	if err := auth.Authorize(identity, auth.Query(), def.Access.QueryRoles); err != nil {
		return nil, err
	}

	rows, errs := s.loader(ctx).LoadMany(ctx, ids)
	out := make([]domain.Aggregate, len(ids))
	for i, row := range rows {
		if i < len(errs) && errs[i] != nil {
			return nil, fmt.Errorf("failed to load %s %s: %w", def.Name, ids[i], errs[i])
		}
		if row.EntityType != def.Name {
			return nil, fmt.Errorf("%w: %s %s", domain.ErrNotFound, def.Name, ids[i])
		}
		out[i] = row.Body
	}
	return out, nil
}

// ResolveReference loads the entity a Reference points to, authorized
// against the target type's query roles.
func (s *Service) ResolveReference(ctx context.Context, ref domain.Reference, identity auth.Identity) (domain.Aggregate, error) {
	if err := ref.Validate(); err != nil {
		return domain.Aggregate{}, err
	}
	def, err := s.registry.Lookup(ref.EntityType())
	if err != nil {
		return domain.Aggregate{}, err
	}
	if err := auth.Authorize(identity, auth.Query(), def.Access.QueryRoles); err != nil {
		return domain.Aggregate{}, err
	}

	row, err := s.loader(ctx).Load(ctx, ref.Value.Value)
	if err != nil {
		return domain.Aggregate{}, fmt.Errorf("failed to resolve %s: %w", ref.Value, err)
	}
	if row.EntityType != def.Name {
		return domain.Aggregate{}, fmt.Errorf("%w: %s %s", domain.ErrNotFound, def.Name, ref.Value.Value)
	}
	return row.Body, nil
}

func (s *Service) loader(ctx context.Context) *entityloader.EntityLoader {
	if l := entityloader.FromContext(ctx); l != nil {
		return l
	}
	return entityloader.NewEntityLoader(s.store)
}

// withPrimary validates caller identifiers and mints a Yoda Primary when none
// is present.
func withPrimary(ids []domain.Identifier) ([]domain.Identifier, error) {
	out := append([]domain.Identifier(nil), ids...)
	primaries := 0
	for i, id := range out {
		if !id.IsPrimary() {
			continue
		}
		primaries++
		if parsed, err := uuid.Parse(id.Value); err == nil {
			out[i].Value = parsed.String()
		}
	}
	switch {
	case primaries == 0:
		out = append([]domain.Identifier{domain.NewIdentifier(domain.IdentifierSystemYoda, domain.IdentifierTierPrimary)}, out...)
	case primaries > 1:
		return nil, domain.Validationf("at most one primary identifier may be supplied")
	}
	if err := domain.ValidateIdentifiers(out); err != nil {
		return nil, err
	}
	return out, nil
}

// canonicalID lowercases a UUID so both sides of the ownership check use the
// form ids are stored in. Anything else is returned unchanged and fails later lookups.
func canonicalID(id string) string {
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()
	}
	return id
}
