package postgres

import (
	"context"
	"errors"
	"fmt"

	"campaign-forge-api/internal/domain/repository"
	"campaign-forge-api/internal/workflow/port"
)

// SnapshotLoader 从战役与当前场次组装上下文快照
type SnapshotLoader struct {
	campaigns repository.CampaignRepository
	sessions  repository.CampaignSessionRepository
}

var _ port.SnapshotLoader = (*SnapshotLoader)(nil)

func NewSnapshotLoader(campaigns repository.CampaignRepository, sessions repository.CampaignSessionRepository) *SnapshotLoader {
	return &SnapshotLoader{campaigns: campaigns, sessions: sessions}
}

func (l *SnapshotLoader) LoadSnapshot(ctx context.Context, campaignID string) (*port.CampaignSnapshot, error) {
	ctx, span := tracer.Start(ctx, "postgres.SnapshotLoader.LoadSnapshot")
	defer span.End()

	c, err := l.campaigns.GetByID(ctx, campaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, port.ErrCampaignNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load campaign: %w", err)
	}

	snap := &port.CampaignSnapshot{
		CampaignID:  c.ID,
		Name:        c.Name,
		GameSystem:  c.GameSystem,
		Setting:     c.Setting,
		Tone:        c.Tone,
		Description: c.Description,
	}

	session, err := l.sessions.GetCurrent(ctx, campaignID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load current session: %w", err)
	}
	if session != nil {
		snap.SessionTitle = session.Title
		snap.SessionNumber = session.Number
		snap.SessionSummary = session.Summary
		snap.ActiveScene = session.ActiveScene
	}
	return snap, nil
}
