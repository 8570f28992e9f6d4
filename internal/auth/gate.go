package auth

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnauthorized is wrapped by every AuthorizationError.
var ErrUnauthorized = errors.New("not authorized")

// AuthorizationError is an explicit, user facing denial.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	return e.Reason
}

func (e *AuthorizationError) Unwrap() error {
	return ErrUnauthorized
}

// ActionKind enumerates what an operation does with an entity.
type ActionKind string

const (
	ActionQuery  ActionKind = "query"
	ActionMutate ActionKind = "mutate"
	ActionCreate ActionKind = "create"
	ActionAll    ActionKind = "all"
)

// Action is the operation being authorized. TargetOwnerID is only consulted
// for mutations.
type Action struct {
	Kind          ActionKind
	TargetOwnerID string
}

func Query() Action  { return Action{Kind: ActionQuery} }
func Create() Action { return Action{Kind: ActionCreate} }
func All() Action    { return Action{Kind: ActionAll} }

// Mutate targets an entity owned by ownerID.
func Mutate(ownerID string) Action {
	return Action{Kind: ActionMutate, TargetOwnerID: ownerID}
}

// Authorize decides whether identity may perform action on an operation that
// declares permissiveRoles. Access is granted when any held role grants it.
func Authorize(identity Identity, action Action, permissiveRoles []Role) error {
	if len(identity.Roles) == 0 {
		return &AuthorizationError{Reason: "Your identity must carry at least one role"}
	}

	for _, role := range identity.Roles {
		if roleGrants(role, identity, action, permissiveRoles) {
			return nil
		}
	}

	return &AuthorizationError{
		Reason: fmt.Sprintf("Your identity is not authorized to %s (requires one of: %s)", action.Kind, joinRoles(permissiveRoles)),
	}
}

func roleGrants(role Role, identity Identity, action Action, permissiveRoles []Role) bool {
	switch role {
	case RoleAdmin, RoleService, RoleOrganization:
		return containsRole(permissiveRoles, role)
	case RoleUser:
		if action.Kind != ActionMutate {
			return true
		}
		if !containsRole(permissiveRoles, RoleOwn) {
			return true
		}
		return action.TargetOwnerID != "" && action.TargetOwnerID == identity.UserID
	default:
		return false
	}
}

func joinRoles(roles []Role) string {
	if len(roles) == 0 {
		return "none"
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = string(role)
	}
	return strings.Join(names, ", ")
}
