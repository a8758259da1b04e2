package services

import (
	"context"
	"log/slog"

	"risparmi/internal/amqp"
)

// EventPublisher receives ledger events after an operation commits.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, event amqp.LedgerEvent) error
}

// publishEvent never fails the caller; the ledger change is already stored.
func publishEvent(ctx context.Context, p EventPublisher, event amqp.LedgerEvent) {
	if p == nil {
		slog.DebugContext(ctx, "No event publisher, skipping ledger event", "type", event.Type)
		return
	}
	if err := p.PublishLedgerEvent(ctx, event); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", event.Type,
			"goal_id", event.GoalID,
			"error", err)
	}
}
