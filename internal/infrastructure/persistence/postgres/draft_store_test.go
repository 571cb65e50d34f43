package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/application/generation"
	"campaign-forge-api/internal/application/grounding"
	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/domain/repository"
)

func TestDraftStore_SaveUpserts(t *testing.T) {
	c := newTestClient(t)
	repo := NewGenerationDraftRepository(c)
	store := NewDraftStore(repo)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	d := &generation.Draft{
		ID:         "d-1",
		CampaignID: "c1",
		Type:       generation.TypeNPC,
		TemplateID: "npc-default",
		State:      generation.DraftProposed,
		Content:    `{"name":"Dorran"}`,
		Data:       json.RawMessage(`{"name":"Dorran"}`),
		Citations:  []grounding.Citation{{ID: "cit-1", Marker: 1, Confidence: 0.72}},
		Confidence: 0.72,
		Revision:   1,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	require.NoError(t, store.SaveDraft(ctx, d))

	d.State = generation.DraftAccepted
	d.UpdatedAt = created.Add(time.Minute)
	require.NoError(t, store.SaveDraft(ctx, d))

	got, err := repo.GetByID(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "accepted", got.State)
	assert.Equal(t, "npc", got.GenerationType)
	assert.InDelta(t, 0.72, got.Confidence, 1e-9)

	var citations []grounding.Citation
	require.NoError(t, json.Unmarshal(got.Citations, &citations))
	require.Len(t, citations, 1)
	assert.Equal(t, "cit-1", citations[0].ID)

	accepted, err := repo.ListByCampaign(ctx, "c1", "accepted", repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 1, accepted.Total)
	proposed, err := repo.ListByCampaign(ctx, "c1", "proposed", repository.NewPagination(1, 10))
	require.NoError(t, err)
	assert.EqualValues(t, 0, proposed.Total)
}

func TestDraftStore_LoadAndList(t *testing.T) {
	c := newTestClient(t)
	store := NewDraftStore(NewGenerationDraftRepository(c))
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	page := 12
	first := &generation.Draft{
		ID:         "d-1",
		CampaignID: "c1",
		Type:       generation.TypeNPC,
		State:      generation.DraftProposed,
		Content:    `{"background":"Learned the trade (see Ironhold blacksmith)."}`,
		Data:       json.RawMessage(`{"background":"Learned the trade (see Ironhold blacksmith)."}`),
		Citations: []grounding.Citation{{
			ID: "cit-1", Marker: 1, Confidence: 0.72,
			Reference: "(see Ironhold blacksmith)",
			Location:  &grounding.SourceLocation{Page: &page},
		}},
		TrustAssignments: []generation.TrustAssignment{{
			Claim: generation.Claim{Field: "background", Text: "background: Learned the trade (see Ironhold blacksmith)."},
			Level: generation.TrustPlausible, Confidence: 0.72, SupportingCitations: []string{"cit-1"},
		}},
		Confidence: 0.72,
		Revision:   1,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	second := &generation.Draft{
		ID:         "d-2",
		CampaignID: "c1",
		Type:       generation.TypeArc,
		State:      generation.DraftRejected,
		Content:    "A war brews in the north.",
		Revision:   2,
		CreatedAt:  created.Add(time.Hour),
		UpdatedAt:  created.Add(time.Hour),
	}
	other := &generation.Draft{ID: "d-3", CampaignID: "c2", Type: generation.TypeNPC, State: generation.DraftProposed, Revision: 1, CreatedAt: created}
	for _, d := range []*generation.Draft{second, first, other} {
		require.NoError(t, store.SaveDraft(ctx, d))
	}

	got, err := store.LoadDraft(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, generation.DraftProposed, got.State)
	assert.Equal(t, generation.TypeNPC, got.Type)
	assert.JSONEq(t, string(first.Data), string(got.Data))
	require.Len(t, got.Citations, 1)
	assert.Equal(t, "(see Ironhold blacksmith)", got.Citations[0].Reference)
	require.NotNil(t, got.Citations[0].Location)
	assert.Equal(t, 12, *got.Citations[0].Location.Page)
	require.Len(t, got.TrustAssignments, 1)
	assert.Equal(t, generation.TrustPlausible, got.TrustAssignments[0].Level)
	assert.NotNil(t, got.UngroundedReferences)

	_, err = store.LoadDraft(ctx, "missing")
	assert.ErrorIs(t, err, generation.ErrDraftNotFound)

	listed, err := store.ListDrafts(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "d-1", listed[0].ID)
	assert.Equal(t, "d-2", listed[1].ID)
	assert.Equal(t, generation.DraftRejected, listed[1].State)
	assert.Nil(t, listed[1].Data)
}

func TestLLMUsageEventRepository_GetTokenUsage(t *testing.T) {
	c := newTestClient(t)
	repo := NewLLMUsageEventRepository(c)
	ctx := context.Background()

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []*entity.LLMUsageEvent{
		{CampaignID: "c1", Provider: "openai", Model: "m", TokensPrompt: 100, TokensCompletion: 50, CreatedAt: day.Add(time.Hour)},
		{CampaignID: "c1", Provider: "openai", Model: "m", TokensPrompt: 10, TokensCompletion: 5, CreatedAt: day.Add(2 * time.Hour)},
		{CampaignID: "c1", Provider: "openai", Model: "m", TokensPrompt: 999, CreatedAt: day.Add(-time.Hour)},
		{CampaignID: "c2", Provider: "openai", Model: "m", TokensPrompt: 777, CreatedAt: day.Add(time.Hour)},
	}
	for _, e := range events {
		require.NoError(t, repo.Create(ctx, e))
	}

	total, err := repo.GetTokenUsage(ctx, "c1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 165, total)
}
