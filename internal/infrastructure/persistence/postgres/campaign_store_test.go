package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/domain/repository"
	"campaign-forge-api/internal/workflow/port"
)

func newTestStore(c *Client) *CampaignStore {
	return NewCampaignStore(
		NewTxManager(c),
		NewCampaignRepository(c),
		NewCampaignEntityRepository(c),
		NewSourceUsageRepository(c),
	)
}

func TestCampaignStore_ApplyEntityOncePerDraft(t *testing.T) {
	c := newTestClient(t)
	camp := seedCampaign(t, c, "Shadows over Ironhold")
	store := newTestStore(c)
	ctx := context.Background()

	content := port.EntityContent{
		DraftID:    "d-1",
		EntityType: "npc",
		Name:       "Dorran",
		Data:       json.RawMessage(`{"name":"Dorran"}`),
	}
	id1, err := store.ApplyEntity(ctx, camp.ID, content)
	require.NoError(t, err)
	id2, err := store.ApplyEntity(ctx, camp.ID, content)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	page, err := NewCampaignEntityRepository(c).ListByCampaign(ctx, camp.ID, "npc", repository.NewPagination(1, 20))
	require.NoError(t, err)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, "Dorran", page.Items[0].Name)
	assert.JSONEq(t, `{"name":"Dorran"}`, string(page.Items[0].Data))
}

func TestCampaignStore_ApplyEntityUnknownCampaign(t *testing.T) {
	c := newTestClient(t)
	store := newTestStore(c)

	_, err := store.ApplyEntity(context.Background(), "missing", port.EntityContent{DraftID: "d-1", EntityType: "npc", Name: "X"})
	assert.True(t, errors.Is(err, port.ErrCampaignNotFound))

	_, err = NewCampaignEntityRepository(c).GetByDraftID(context.Background(), "d-1")
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}

func TestCampaignStore_RecordUsageIsIdempotent(t *testing.T) {
	c := newTestClient(t)
	store := newTestStore(c)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Hour)
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordUsage(ctx, "c1", "phb", "p-ironhold"))
	}
	require.NoError(t, store.RecordUsage(ctx, "c1", "phb", "p-other"))
	require.NoError(t, store.RecordUsage(ctx, "c2", "phb", "p-ironhold"))

	usages, err := NewSourceUsageRepository(c).ListByCampaign(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, usages, 2)
	assert.Equal(t, "p-ironhold", usages[0].PassageID)
	assert.True(t, usages[0].FirstUsedAt.Equal(base.Add(time.Hour)))
	assert.True(t, usages[0].LastUsedAt.Equal(base.Add(3*time.Hour)))
}

func TestTxManager_RollbackOnError(t *testing.T) {
	c := newTestClient(t)
	tx := NewTxManager(c)
	repo := NewCampaignRepository(c)
	boom := errors.New("boom")

	var createdID string
	err := tx.WithTransaction(context.Background(), func(ctx context.Context) error {
		camp := &entity.Campaign{Name: "Doomed"}
		if err := repo.Create(ctx, camp); err != nil {
			return err
		}
		createdID = camp.ID
		return boom
	})
	assert.True(t, errors.Is(err, boom))

	_, err = repo.GetByID(context.Background(), createdID)
	assert.True(t, errors.Is(err, repository.ErrNotFound))
}
