package services

import (
	"context"
	"log/slog"

	"encargos/internal/amqp"
	"encargos/internal/core"
)

// EventPublisher announces ledger changes to background consumers.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, evt *amqp.LedgerEvent) error
}

// StatsInvalidator drops cached statistics after an owner's data changed.
type StatsInvalidator interface {
	Invalidate(owner core.UserID)
}

// notifier fans a committed change out to the cache and the event bus.
// Both collaborators are optional and failures never reach the caller.
type notifier struct {
	publisher EventPublisher
	stats     StatsInvalidator
}

func (n notifier) changed(ctx context.Context, t amqp.EventType, owner core.UserID, orderID string) {
	if n.stats != nil {
		n.stats.Invalidate(owner)
	}
	if n.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping ledger event", "type", t)
		return
	}
	if err := n.publisher.PublishLedgerEvent(ctx, amqp.NewLedgerEvent(t, string(owner), orderID)); err != nil {
		// the write is committed; the reconcile pass repairs what the event would have triggered
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", t,
			"order_id", orderID,
			"error", err)
	}
}
