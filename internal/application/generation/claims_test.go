package generation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/workflow/node"
)

func TestExtractClaims_KnownFields(t *testing.T) {
	text := "Here is your NPC:\n```json\n" + `{
  "name": "Dorran",
  "role": "blacksmith",
  "background": "Apprenticed at the forge (see Ironhold blacksmith).",
  "stats": {"str": 16, "ac": 12},
  "traits": ["gruff", "loyal"],
  "secrets": ""
}` + "\n```"

	claims, data, err := ExtractClaims(TypeNPC, text)
	require.NoError(t, err)
	assert.Equal(t, "Dorran", EntityName(data))

	byField := make(map[string]Claim, len(claims))
	for _, c := range claims {
		byField[c.Field] = c
	}
	assert.Len(t, claims, 4)
	assert.Equal(t, "stats: ac: 12, str: 16", byField["stats"].Text)
	assert.Equal(t, ClaimMechanic, byField["stats"].Type)
	assert.Equal(t, "traits: gruff; loyal", byField["traits"].Text)
	assert.Equal(t, ClaimNarrative, byField["background"].Type)
	assert.Equal(t, "role: blacksmith", byField["role"].Text)
	_, hasSecrets := byField["secrets"]
	assert.False(t, hasSecrets)
}

func TestExtractClaims_FallsBackToTopLevelKeys(t *testing.T) {
	claims, _, err := ExtractClaims(TypeParty, `{"zeta": 3.5, "alpha": true, "empty": null}`)
	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, "alpha: true", claims[0].Text)
	assert.Equal(t, "zeta: 3.5", claims[1].Text)
	assert.Equal(t, ClaimGeneral, claims[0].Type)
}

func TestExtractClaims_Prose(t *testing.T) {
	claims, data, err := ExtractClaims(TypeNPC, "Dorran is a smith in Ironhold (see PHB p. 20). He distrusts elves!\n- Owes the guild 40 gp")
	require.NoError(t, err)
	assert.Nil(t, data)
	require.Len(t, claims, 3)
	assert.Equal(t, "Dorran is a smith in Ironhold (see PHB p. 20).", claims[0].Text)
	assert.Equal(t, "He distrusts elves!", claims[1].Text)
	assert.Equal(t, "Owes the guild 40 gp", claims[2].Text)
	for _, c := range claims {
		assert.Equal(t, ProseField, c.Field)
		assert.Equal(t, ClaimGeneral, c.Type)
	}
}

func TestExtractClaims_UnterminatedJSON(t *testing.T) {
	_, _, err := ExtractClaims(TypeNPC, `Here you go: {"name": "Dorran", "role": `)
	assert.True(t, errors.Is(err, node.ErrNoJSONObject))
}

func TestEntityName(t *testing.T) {
	assert.Equal(t, "The Sundering", EntityName([]byte(`{"title":" The Sundering "}`)))
	assert.Equal(t, "", EntityName([]byte(`{"level": 3}`)))
	assert.Equal(t, "", EntityName([]byte(`not json`)))
}

func TestClaimFields(t *testing.T) {
	fields := ClaimFields(TypeSession)
	assert.Equal(t, "stat_block", fields[0])
	assert.Contains(t, fields, "encounters")
	assert.NotContains(t, ClaimFields(TypeCharacter), "encounters")
}
