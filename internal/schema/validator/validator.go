package validator

import (
	"fmt"
	"strings"

	"github.com/rpattn/yoda/internal/domain"
)

var knownFieldTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeString:     {},
	domain.FieldTypeInteger:    {},
	domain.FieldTypeFloat:      {},
	domain.FieldTypeBoolean:    {},
	domain.FieldTypeTimestamp:  {},
	domain.FieldTypeTag:        {},
	domain.FieldTypeReference:  {},
	domain.FieldTypeIdentifier: {},
	domain.FieldTypeObject:     {},
}

// searchableFieldTypes are the types whose text form is meaningful to a
// substring match.
var searchableFieldTypes = map[domain.FieldType]struct{}{
	domain.FieldTypeString:    {},
	domain.FieldTypeInteger:   {},
	domain.FieldTypeFloat:     {},
	domain.FieldTypeTimestamp: {},
	domain.FieldTypeTag:       {},
}

// ValidateDefinition ensures an entity definition can be served by the store.
func ValidateDefinition(def domain.EntityDefinition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("%w: entity definition requires a name", domain.ErrValidation)
	}
	if len(def.Fields) == 0 {
		return fmt.Errorf("%w: entity %s declares no fields", domain.ErrValidation, def.Name)
	}

	seen := make(map[string]struct{}, len(def.Fields))
	for _, field := range def.Fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("%w: entity %s has a field without a name", domain.ErrValidation, def.Name)
		}
		if name == domain.IdentifierField {
			return fmt.Errorf("%w: field name %s is reserved", domain.ErrValidation, name)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: entity %s declares field %s twice", domain.ErrValidation, def.Name, name)
		}
		seen[name] = struct{}{}

		if _, ok := knownFieldTypes[field.Type]; !ok {
			return fmt.Errorf("%w: field %s has unknown type %s", domain.ErrValidation, name, field.Type)
		}
		if field.Type == domain.FieldTypeTag && len(field.Enum) == 0 {
			return fmt.Errorf("%w: tag field %s must list its values", domain.ErrValidation, name)
		}
		if field.Type != domain.FieldTypeTag && len(field.Enum) > 0 {
			return fmt.Errorf("%w: field %s cannot declare values because type %s is not a tag", domain.ErrValidation, name, field.Type)
		}
		if _, ok := searchableFieldTypes[field.Type]; field.Searchable && !ok {
			return fmt.Errorf("%w: field %s of type %s cannot be searchable", domain.ErrValidation, name, field.Type)
		}
		if field.Required && !field.Constructible {
			return fmt.Errorf("%w: required field %s must be constructible", domain.ErrValidation, name)
		}
	}

	if len(def.Access.MutateRoles) == 0 && len(def.Access.QueryRoles) == 0 {
		return fmt.Errorf("%w: entity %s grants no roles", domain.ErrValidation, def.Name)
	}

	return nil
}
