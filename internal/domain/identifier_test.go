package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrimaryIdentifierSelection(t *testing.T) {
	primary := NewIdentifier(IdentifierSystemYoda, IdentifierTierPrimary)
	secondary := Identifier{Value: "legacy-42", System: IdentifierSystemOther, Tier: IdentifierTierSecondary}
	other := Identifier{Value: "x", System: IdentifierSystemOther, Tier: IdentifierTierOther}

	got, ok := PrimaryIdentifier([]Identifier{secondary, primary, other})
	assert.True(t, ok)
	assert.Equal(t, primary, got)

	_, ok = PrimaryIdentifier([]Identifier{secondary})
	assert.False(t, ok)

	_, ok = PrimaryIdentifier([]Identifier{primary, NewIdentifier(IdentifierSystemYoda, IdentifierTierPrimary)})
	assert.False(t, ok)
}

func TestValidateIdentifiers(t *testing.T) {
	primary := NewIdentifier(IdentifierSystemYoda, IdentifierTierPrimary)

	assert.NoError(t, ValidateIdentifiers([]Identifier{primary}))
	assert.ErrorIs(t, ValidateIdentifiers(nil), ErrValidation)
	assert.ErrorIs(t, ValidateIdentifiers([]Identifier{{Value: "not-a-uuid", System: IdentifierSystemYoda, Tier: IdentifierTierPrimary}}), ErrValidation)
	assert.ErrorIs(t, ValidateIdentifiers([]Identifier{{Value: "x", System: "Mars", Tier: IdentifierTierOther}, primary}), ErrValidation)
	assert.ErrorIs(t, ValidateIdentifiers([]Identifier{primary, primary}), ErrValidation)
}

func TestReferenceValidate(t *testing.T) {
	ref := Reference{Type: ReferenceTypeAccount, Value: NewIdentifier(IdentifierSystemYoda, IdentifierTierPrimary)}
	assert.NoError(t, ref.Validate())
	assert.Equal(t, "Account", ref.EntityType())

	ref.Type = "Planet"
	assert.ErrorIs(t, ref.Validate(), ErrValidation)
}
