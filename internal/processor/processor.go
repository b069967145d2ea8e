// Package processor handles transport deliveries of published messages:
// it suspends for a fixed delay so the asynchronous hop is observable, then
// flips the stored record to processed.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/d-savelev/tasklane/internal/domain"
	"github.com/d-savelev/tasklane/internal/infra/pubsub"
)

type MessageStore interface {
	MarkProcessed(ctx context.Context, id string, details domain.ProcessingDetails) error
}

type Processor struct {
	store MessageStore
	delay time.Duration
}

func New(store MessageStore, delay time.Duration) *Processor {
	return &Processor{store: store, delay: delay}
}

// Handle processes one delivery. Payloads without a messageId are skipped
// with a warning and acknowledged: a retry would redeliver the same payload,
// so raising an error could only poison the consumer. Store write failures
// propagate so the transport redelivers; re-marking rewrites the same shape.
func (p *Processor) Handle(ctx context.Context, d pubsub.Delivery) error {
	var body struct {
		Message   string `json:"message"`
		MessageID string `json:"messageId"`
	}
	if err := json.Unmarshal(d.Data, &body); err != nil {
		slog.Warn("malformed delivery payload skipped",
			slog.String("delivery_id", d.DeliveryID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if body.MessageID == "" {
		slog.Warn("delivery without messageId skipped",
			slog.String("delivery_id", d.DeliveryID),
		)
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.delay):
	}

	err := p.store.MarkProcessed(ctx, body.MessageID, domain.ProcessingDetails{
		DeliveryID:  d.DeliveryID,
		PublishTime: d.PublishTime,
		Attributes:  d.Attributes,
	})
	if err != nil {
		if errors.Is(err, domain.ErrMessageNotFound) {
			slog.Warn("delivery for unknown message skipped",
				slog.String("message_id", body.MessageID),
				slog.String("delivery_id", d.DeliveryID),
			)
			return nil
		}
		return fmt.Errorf("mark processed: %w", err)
	}

	slog.Info("message processed",
		slog.String("message_id", body.MessageID),
		slog.String("delivery_id", d.DeliveryID),
	)

	return nil
}
