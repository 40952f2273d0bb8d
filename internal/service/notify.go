package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flicky/agrichain-api/internal/events"
	"github.com/flicky/agrichain-api/internal/metrics"
	"github.com/flicky/agrichain-api/internal/model"
)

// notifier fans a committed change out to the broker and metrics. Publishing is
// best effort: the store write has already committed. at is the commit time
// recorded by the store.
type notifier struct {
	publisher events.Publisher
	metrics   *metrics.Metrics
	log       *slog.Logger
}

func (n notifier) emit(ctx context.Context, eventType string, p *model.Product, actor *model.User, requestID *uuid.UUID, at time.Time) {
	n.metrics.Transition(eventType)
	if n.publisher == nil {
		return
	}
	ev := model.CustodyEvent{
		ID:          uuid.New(),
		Type:        eventType,
		ProductID:   p.ID,
		ProductName: p.Name,
		QRCode:      p.QRCode,
		ActorID:     actor.ID,
		ActorName:   actor.Name,
		RequestID:   requestID,
		Quantity:    p.Quantity.String(),
		OccurredAt:  at.UTC(),
	}
	if err := n.publisher.Publish(ctx, ev); err != nil && n.log != nil {
		n.log.Error("publish custody event", "error", err, "type", eventType, "product_id", p.ID)
	}
}
