package auth

import (
	"fmt"
	"strings"
)

// Role is a capability carried by an Identity or granted by an operation.
type Role string

const (
	RoleUser         Role = "user"
	RoleOrganization Role = "organization"
	RoleAdmin        Role = "admin"
	RoleService      Role = "service"
	// RoleOwn is inward facing: it never grants access by itself and only
	// restricts what a User may mutate.
	RoleOwn Role = "self"
)

// ParseRole converts a role name into a Role.
func ParseRole(input string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "user":
		return RoleUser, nil
	case "organization":
		return RoleOrganization, nil
	case "admin":
		return RoleAdmin, nil
	case "service":
		return RoleService, nil
	case "self", "own":
		return RoleOwn, nil
	default:
		return "", fmt.Errorf("no role specified for that string: %s", input)
	}
}

// ParseRoles parses every entry, failing on the first unknown role.
func ParseRoles(inputs []string) ([]Role, error) {
	roles := make([]Role, 0, len(inputs))
	for _, input := range inputs {
		if strings.TrimSpace(input) == "" {
			continue
		}
		role, err := ParseRole(input)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, nil
}

func containsRole(roles []Role, target Role) bool {
	for _, role := range roles {
		if role == target {
			return true
		}
	}
	return false
}
