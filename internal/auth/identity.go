package auth

import "context"

// Identity is an already validated caller. Token decoding happens upstream.
type Identity struct {
	UserID string `json:"user_id"`
	Roles  []Role `json:"roles"`
}

// HasRole reports whether the identity holds role.
func (i Identity) HasRole(role Role) bool {
	return containsRole(i.Roles, role)
}

type contextKey string

const identityKey contextKey = "identity"

// ContextWithIdentity returns a new context that carries the acting identity.
func ContextWithIdentity(ctx context.Context, identity Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext retrieves the acting identity from the context, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	identity, ok := ctx.Value(identityKey).(Identity)
	if !ok || identity.UserID == "" {
		return Identity{}, false
	}
	return identity, true
}
