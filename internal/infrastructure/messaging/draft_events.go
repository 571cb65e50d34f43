package messaging

import (
	"context"
	"fmt"

	"campaign-forge-api/internal/application/generation"
)

// DraftEventTypes 草稿事件流中的全部消息类型
var DraftEventTypes = []generation.DraftEventType{
	generation.EventDraftProposed,
	generation.EventDraftAccepted,
	generation.EventDraftRejected,
	generation.EventDraftModified,
}

// DraftEventHandler 把流消息解码为 generation.DraftEvent 后交给 fn
func DraftEventHandler(fn func(ctx context.Context, ev generation.DraftEvent) error) MessageHandler {
	return func(ctx context.Context, msg *Message) error {
		var ev generation.DraftEvent
		if err := msg.UnmarshalPayload(&ev); err != nil {
			return fmt.Errorf("failed to decode draft event %s: %w", msg.ID, err)
		}
		if ev.CampaignID == "" {
			ev.CampaignID = msg.CampaignID
		}
		return fn(ctx, ev)
	}
}
