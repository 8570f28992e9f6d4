package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// IdentifierTier ranks identifiers of one entity. Exactly one is Primary.
type IdentifierTier string

const (
	IdentifierTierPrimary   IdentifierTier = "Primary"
	IdentifierTierSecondary IdentifierTier = "Secondary"
	IdentifierTierOther     IdentifierTier = "Other"
)

// IdentifierSystem names the system that issued an identifier.
type IdentifierSystem string

const (
	IdentifierSystemYoda  IdentifierSystem = "Yoda"
	IdentifierSystemOther IdentifierSystem = "Other"
)

// Identifier is one external id of an entity.
type Identifier struct {
	Value  string           `json:"value"`
	System IdentifierSystem `json:"system"`
	Tier   IdentifierTier   `json:"tier"`
}

// NewIdentifier mints an identifier with a random UUID value.
func NewIdentifier(system IdentifierSystem, tier IdentifierTier) Identifier {
	return Identifier{
		Value:  uuid.NewString(),
		System: system,
		Tier:   tier,
	}
}

// IsPrimary reports whether this is the entity's external id.
func (i Identifier) IsPrimary() bool {
	return i.Tier == IdentifierTierPrimary
}

func (i Identifier) String() string {
	return fmt.Sprintf("%s/%s", i.System, i.Value)
}

// Validate checks the enums and the value.
func (i Identifier) Validate() error {
	if i.Value == "" {
		return Validationf("identifier value is required")
	}
	switch i.System {
	case IdentifierSystemYoda, IdentifierSystemOther:
	default:
		return Validationf("unknown identifier system %q", i.System)
	}
	switch i.Tier {
	case IdentifierTierPrimary, IdentifierTierSecondary, IdentifierTierOther:
	default:
		return Validationf("unknown identifier tier %q", i.Tier)
	}
	if i.IsPrimary() {
		if _, err := uuid.Parse(i.Value); err != nil {
			return Validationf("primary identifier must be a UUID: %v", err)
		}
	}
	return nil
}

// PrimaryIdentifier selects the single Primary identifier. It fails when there
// is none or more than one.
func PrimaryIdentifier(ids []Identifier) (Identifier, bool) {
	var (
		primary Identifier
		found   bool
	)
	for _, id := range ids {
		if !id.IsPrimary() {
			continue
		}
		if found {
			return Identifier{}, false
		}
		primary, found = id, true
	}
	return primary, found
}

// ValidateIdentifiers enforces the exactly-one-Primary invariant.
func ValidateIdentifiers(ids []Identifier) error {
	if len(ids) == 0 {
		return Validationf("at least one identifier is required")
	}
	for _, id := range ids {
		if err := id.Validate(); err != nil {
			return err
		}
	}
	if _, ok := PrimaryIdentifier(ids); !ok {
		return Validationf("exactly one primary identifier is required")
	}
	return nil
}

// ReferenceType names the entity a Reference points to.
type ReferenceType string

const (
	ReferenceTypeAccount      ReferenceType = "Account"
	ReferenceTypeOrganization ReferenceType = "Organization"
	ReferenceTypeTransaction  ReferenceType = "Transaction"
)

// Reference is a typed pointer to another entity.
type Reference struct {
	Type  ReferenceType `json:"type"`
	Value Identifier    `json:"value"`
}

// EntityType is the registry name of the referenced entity.
func (r Reference) EntityType() string {
	return string(r.Type)
}

func (r Reference) Validate() error {
	switch r.Type {
	case ReferenceTypeAccount, ReferenceTypeOrganization, ReferenceTypeTransaction:
	default:
		return Validationf("unknown reference type %q", r.Type)
	}
	return r.Value.Validate()
}
