// Package publisher accepts publish requests, persists the initial record
// and hands the payload to the async transport.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/d-savelev/tasklane/internal/domain"
)

type MessageStore interface {
	Create(ctx context.Context, p domain.PublishParams) (string, error)
	List(ctx context.Context, limit int) ([]domain.Message, error)
}

type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte, attributes map[string]string) (string, error)
}

type Publisher struct {
	store     MessageStore
	transport Transport
}

func New(store MessageStore, transport Transport) *Publisher {
	return &Publisher{store: store, transport: transport}
}

// payload is the wire shape subscribers receive; the embedded message id
// links the delivery back to the stored record.
type payload struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

// Publish returns once the transport accepts the payload. If the transport
// rejects it, the already-written record stays at published — the message
// status set has no failed member.
func (p *Publisher) Publish(ctx context.Context, params domain.PublishParams) (string, error) {
	if params.Topic == "" {
		return "", domain.ErrEmptyTopic
	}
	if params.Message == "" {
		return "", domain.ErrEmptyMessage
	}

	messageID, err := p.store.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}

	body, err := json.Marshal(payload{
		Message:   params.Message,
		MessageID: messageID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	if _, err := p.transport.Publish(ctx, params.Topic, body, params.Attributes); err != nil {
		slog.Error("publish failed",
			slog.String("message_id", messageID),
			slog.String("topic", params.Topic),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("publish: %w", err)
	}

	slog.Info("message published",
		slog.String("message_id", messageID),
		slog.String("topic", params.Topic),
	)

	return messageID, nil
}

func (p *Publisher) ListMessages(ctx context.Context, limit int) ([]domain.Message, error) {
	return p.store.List(ctx, limit)
}
