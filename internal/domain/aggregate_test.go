package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleAccount(t *testing.T) Aggregate {
	t.Helper()
	primary := NewIdentifier(IdentifierSystemYoda, IdentifierTierPrimary)
	agg := NewAggregate("Account")
	agg.setIdentifiers([]Identifier{
		{Value: "legacy-7", System: IdentifierSystemOther, Tier: IdentifierTierSecondary},
		primary,
		{Value: "crm-1", System: IdentifierSystemOther, Tier: IdentifierTierOther},
	})
	agg.Fields["email"] = json.RawMessage(`"ada@example.com"`)
	agg.Fields["interests"] = json.RawMessage(`["Education","Politics"]`)
	agg.Fields["address"] = json.RawMessage(`[{"city":"London","number":12}]`)
	return agg
}

func TestAggregateStoreRoundTrip(t *testing.T) {
	agg := sampleAccount(t)

	body, err := agg.ToStore()
	require.NoError(t, err)
	for name, delta := range body {
		assert.Nil(t, delta.Start, "field %s should be unconditional", name)
	}

	back, err := FromStore("Account", body)
	require.NoError(t, err)
	assert.Equal(t, agg.Fields, back.Fields)
	assert.Equal(t, agg.Identifiers, back.Identifiers)
	assert.Equal(t, agg.ID, back.ID)

	primary, ok := PrimaryIdentifier(back.Identifiers)
	require.True(t, ok)
	assert.Equal(t, agg.ID, primary.Value)
}

func TestAggregateStoreRoundTripThroughFold(t *testing.T) {
	agg := sampleAccount(t)
	body, err := agg.ToStore()
	require.NoError(t, err)

	folded := Fold(AccountDefinition(), []StoreBody{body})
	want := agg.Clone().Fields
	want["transactions"] = json.RawMessage(`[]`)
	want["payment_method"] = json.RawMessage(`[]`)
	assert.Equal(t, want, folded.Fields)
	assert.Equal(t, agg.ID, folded.ID)
}

func TestAggregateJSONDocument(t *testing.T) {
	agg := sampleAccount(t)

	encoded, err := json.Marshal(agg)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(encoded, &doc))
	assert.Contains(t, doc, IdentifierField)
	assert.JSONEq(t, `"ada@example.com"`, string(doc["email"]))

	var decoded Aggregate
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, agg.ID, decoded.ID)
	assert.Equal(t, agg.Identifiers, decoded.Identifiers)
	assert.Equal(t, agg.Fields, decoded.Fields)
}

func TestAggregateTokenAndDecode(t *testing.T) {
	agg := sampleAccount(t)

	token, ok := agg.Token("email")
	require.True(t, ok)
	assert.Equal(t, Hash(json.RawMessage(`"ada@example.com"`)), token)

	_, ok = agg.Token("last_name")
	assert.False(t, ok)

	var interests []string
	present, err := agg.Decode("interests", &interests)
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, []string{"Education", "Politics"}, interests)
}

func TestAggregateTokens(t *testing.T) {
	agg := sampleAccount(t)

	tokens := agg.Tokens()
	assert.Len(t, tokens, len(agg.Fields))
	assert.Equal(t, Hash(json.RawMessage(`["Education","Politics"]`)), tokens["interests"])
}
