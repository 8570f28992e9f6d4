package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/rpattn/yoda/internal/auth"
	"github.com/rpattn/yoda/internal/domain"
)

func TestValidateDefinition_BuiltinsPass(t *testing.T) {
	for _, def := range domain.BuiltinDefinitions() {
		if err := ValidateDefinition(def); err != nil {
			t.Fatalf("expected %s to validate, got %v", def.Name, err)
		}
	}
}

func TestValidateDefinition_Rejects(t *testing.T) {
	access := domain.AccessPolicy{QueryRoles: []auth.Role{auth.RoleUser}}

	cases := []struct {
		name    string
		def     domain.EntityDefinition
		message string
	}{
		{
			name:    "missing name",
			def:     domain.EntityDefinition{Fields: []domain.FieldSpec{{Name: "a", Type: domain.FieldTypeString}}, Access: access},
			message: "requires a name",
		},
		{
			name:    "no fields",
			def:     domain.EntityDefinition{Name: "Thing", Access: access},
			message: "declares no fields",
		},
		{
			name: "reserved identifier",
			def: domain.EntityDefinition{Name: "Thing", Access: access, Fields: []domain.FieldSpec{
				{Name: "identifier", Type: domain.FieldTypeString},
			}},
			message: "reserved",
		},
		{
			name: "duplicate",
			def: domain.EntityDefinition{Name: "Thing", Access: access, Fields: []domain.FieldSpec{
				{Name: "a", Type: domain.FieldTypeString},
				{Name: "a", Type: domain.FieldTypeInteger},
			}},
			message: "twice",
		},
		{
			name: "unknown type",
			def: domain.EntityDefinition{Name: "Thing", Access: access, Fields: []domain.FieldSpec{
				{Name: "a", Type: "geometry"},
			}},
			message: "unknown type",
		},
		{
			name: "tag without values",
			def: domain.EntityDefinition{Name: "Thing", Access: access, Fields: []domain.FieldSpec{
				{Name: "a", Type: domain.FieldTypeTag},
			}},
			message: "must list its values",
		},
		{
			name: "searchable reference",
			def: domain.EntityDefinition{Name: "Thing", Access: access, Fields: []domain.FieldSpec{
				{Name: "a", Type: domain.FieldTypeReference, Searchable: true},
			}},
			message: "cannot be searchable",
		},
		{
			name: "required but not constructible",
			def: domain.EntityDefinition{Name: "Thing", Access: access, Fields: []domain.FieldSpec{
				{Name: "a", Type: domain.FieldTypeString, Required: true},
			}},
			message: "must be constructible",
		},
		{
			name: "no roles",
			def: domain.EntityDefinition{Name: "Thing", Fields: []domain.FieldSpec{
				{Name: "a", Type: domain.FieldTypeString},
			}},
			message: "grants no roles",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateDefinition(tc.def)
			if err == nil {
				t.Fatalf("expected validation to fail")
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Fatalf("expected error to mention %q, got %v", tc.message, err)
			}
		})
	}
}
