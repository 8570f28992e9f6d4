package domain

import "github.com/rpattn/yoda/internal/auth"

// IdentifierField is the reserved field holding an entity's identifiers.
const IdentifierField = "identifier"

// FieldType represents the type of a field in an entity definition
type FieldType string

const (
	FieldTypeString     FieldType = "string"
	FieldTypeInteger    FieldType = "integer"
	FieldTypeFloat      FieldType = "float"
	FieldTypeBoolean    FieldType = "boolean"
	FieldTypeTimestamp  FieldType = "timestamp"
	FieldTypeTag        FieldType = "tag"
	FieldTypeReference  FieldType = "reference"
	FieldTypeIdentifier FieldType = "identifier"
	FieldTypeObject     FieldType = "object"
)

// FieldSpec describes one delta-tracked field of an entity.
type FieldSpec struct {
	Name string    `json:"name"`
	Type FieldType `json:"type"`
	// Array fields hold a sequence; their envelopes carry the whole sequence.
	Array bool `json:"array,omitempty"`
	// Searchable fields accept a substring filter in Search.
	Searchable bool `json:"searchable,omitempty"`
	// Constructible fields may be supplied when the entity is created.
	Constructible bool `json:"constructible,omitempty"`
	Required      bool `json:"required,omitempty"`
	// Enum lists allowed values for tag fields.
	Enum        []string `json:"enum,omitempty"`
	Description string   `json:"description,omitempty"`
}

// AccessPolicy carries the permissive roles of an entity's operations.
type AccessPolicy struct {
	MutateRoles []auth.Role `json:"mutate"`
	QueryRoles  []auth.Role `json:"query"`
}

// EntityDefinition is the runtime shape of one entity type.
type EntityDefinition struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Fields      []FieldSpec  `json:"fields"`
	Access      AccessPolicy `json:"access"`
}

// Field looks up a field by name.
func (d EntityDefinition) Field(name string) (FieldSpec, bool) {
	for _, field := range d.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldSpec{}, false
}

// SearchableFields returns the searchable fields in declaration order.
func (d EntityDefinition) SearchableFields() []FieldSpec {
	var fields []FieldSpec
	for _, field := range d.Fields {
		if field.Searchable {
			fields = append(fields, field)
		}
	}
	return fields
}

// ConstructibleFields returns the fields accepted on creation.
func (d EntityDefinition) ConstructibleFields() []FieldSpec {
	var fields []FieldSpec
	for _, field := range d.Fields {
		if field.Constructible {
			fields = append(fields, field)
		}
	}
	return fields
}
