package domain

import "github.com/rpattn/yoda/internal/auth"

// Tags shared by accounts and organizations.
var tagValues = []string{"Religious", "Education", "Politics"}

// AccountDefinition describes user accounts.
func AccountDefinition() EntityDefinition {
	return EntityDefinition{
		Name: "Account",
		Fields: []FieldSpec{
			{Name: "email", Type: FieldTypeString, Searchable: true, Constructible: true},
			{Name: "password", Type: FieldTypeString, Constructible: true},
			{Name: "first_name", Type: FieldTypeString, Constructible: true},
			{Name: "last_name", Type: FieldTypeString, Constructible: true},
			{Name: "interests", Type: FieldTypeTag, Array: true, Enum: tagValues, Constructible: true},
			{Name: "transactions", Type: FieldTypeReference, Array: true, Constructible: true},
			{Name: "payment_method", Type: FieldTypeReference, Array: true, Constructible: true},
			{Name: "address", Type: FieldTypeObject, Array: true, Constructible: true},
		},
		Access: AccessPolicy{
			MutateRoles: []auth.Role{auth.RoleAdmin, auth.RoleService, auth.RoleOwn},
			QueryRoles:  []auth.Role{auth.RoleAdmin, auth.RoleService, auth.RoleUser},
		},
	}
}

// OrganizationDefinition describes organizations.
func OrganizationDefinition() EntityDefinition {
	return EntityDefinition{
		Name: "Organization",
		Fields: []FieldSpec{
			{Name: "name", Type: FieldTypeString, Searchable: true, Constructible: true},
			{Name: "mission", Type: FieldTypeString, Constructible: true},
			{Name: "description", Type: FieldTypeString, Constructible: true},
			{Name: "established", Type: FieldTypeTimestamp, Constructible: true},
			{Name: "tag", Type: FieldTypeTag, Array: true, Enum: tagValues, Searchable: true, Constructible: true},
			{Name: "ceo", Type: FieldTypeString, Constructible: true},
			{Name: "managing_entity", Type: FieldTypeReference, Array: true, Constructible: true},
		},
		Access: AccessPolicy{
			MutateRoles: []auth.Role{auth.RoleAdmin, auth.RoleOwn},
			QueryRoles:  []auth.Role{auth.RoleAdmin, auth.RoleOrganization, auth.RoleUser, auth.RoleService},
		},
	}
}

// TransactionDefinition describes payments between accounts.
func TransactionDefinition() EntityDefinition {
	return EntityDefinition{
		Name: "Transaction",
		Fields: []FieldSpec{
			{Name: "amount", Type: FieldTypeInteger, Searchable: true, Constructible: true},
			{Name: "payment_method", Type: FieldTypeReference, Array: true, Constructible: true},
			{Name: "completed", Type: FieldTypeBoolean, Constructible: true},
		},
		Access: AccessPolicy{
			MutateRoles: []auth.Role{auth.RoleAdmin, auth.RoleService},
			QueryRoles:  []auth.Role{auth.RoleAdmin, auth.RoleService, auth.RoleUser},
		},
	}
}

// BuiltinDefinitions lists the entity types every deployment serves.
func BuiltinDefinitions() []EntityDefinition {
	return []EntityDefinition{
		AccountDefinition(),
		OrganizationDefinition(),
		TransactionDefinition(),
	}
}
