package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campaign-forge-api/internal/domain/entity"
	"campaign-forge-api/internal/workflow/port"
)

func TestSnapshotLoader_PrefersActiveSession(t *testing.T) {
	c := newTestClient(t)
	camp := seedCampaign(t, c, "Shadows over Ironhold")
	sessions := NewCampaignSessionRepository(c)
	ctx := context.Background()

	require.NoError(t, sessions.Create(ctx, &entity.CampaignSession{CampaignID: camp.ID, Number: 2, Title: "The Forge Falls", Status: entity.SessionActive, Summary: "The party reached the hold."}))
	require.NoError(t, sessions.Create(ctx, &entity.CampaignSession{CampaignID: camp.ID, Number: 3, Title: "Aftermath"}))

	loader := NewSnapshotLoader(NewCampaignRepository(c), sessions)
	snap, err := loader.LoadSnapshot(ctx, camp.ID)
	require.NoError(t, err)
	assert.Equal(t, "Shadows over Ironhold", snap.Name)
	assert.Equal(t, "D&D 5e", snap.GameSystem)
	assert.Equal(t, 2, snap.SessionNumber)
	assert.Equal(t, "The Forge Falls", snap.SessionTitle)
}

func TestSnapshotLoader_NoSessions(t *testing.T) {
	c := newTestClient(t)
	camp := seedCampaign(t, c, "Fresh")

	snap, err := NewSnapshotLoader(NewCampaignRepository(c), NewCampaignSessionRepository(c)).LoadSnapshot(context.Background(), camp.ID)
	require.NoError(t, err)
	assert.Zero(t, snap.SessionNumber)
	assert.Empty(t, snap.SessionTitle)
}

func TestSnapshotLoader_MissingCampaign(t *testing.T) {
	c := newTestClient(t)
	_, err := NewSnapshotLoader(NewCampaignRepository(c), NewCampaignSessionRepository(c)).LoadSnapshot(context.Background(), "nope")
	assert.True(t, errors.Is(err, port.ErrCampaignNotFound))
}
