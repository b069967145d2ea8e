// Package pubsub is the asynchronous publish/process transport, built on
// NATS JetStream. Topics map to subjects under a common prefix and message
// attributes travel as headers.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

type Publisher struct {
	js     nats.JetStreamContext
	prefix string
}

func NewPublisher(js nats.JetStreamContext, prefix string) *Publisher {
	return &Publisher{js: js, prefix: prefix}
}

// Publish hands payload to the transport under topic and returns the
// transport-assigned delivery id. It returns once the stream accepts the
// message, not once a subscriber processes it.
func (p *Publisher) Publish(ctx context.Context, topic string, payload []byte, attributes map[string]string) (string, error) {
	if topic == "" {
		return "", fmt.Errorf("empty topic")
	}

	msg := &nats.Msg{
		Subject: p.prefix + "." + sanitizeToken(topic),
		Data:    payload,
		Header:  nats.Header{},
	}
	for k, v := range attributes {
		msg.Header.Set(k, v)
	}

	ack, err := p.js.PublishMsg(msg)
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", topic, err)
	}

	slog.Debug("message published",
		slog.String("topic", topic),
		slog.String("subject", msg.Subject),
		slog.String("stream", ack.Stream),
		slog.Uint64("seq", ack.Sequence),
	)

	return fmt.Sprintf("%s/%d", ack.Stream, ack.Sequence), nil
}

// Delivery is what the transport hands to the registered handler.
type Delivery struct {
	Data        []byte
	Attributes  map[string]string
	DeliveryID  string
	PublishTime time.Time
}

// Handler processes one delivery. A non-nil error triggers redelivery per
// the consumer's retry policy.
type Handler func(ctx context.Context, d Delivery) error

type Consumer struct {
	js      nats.JetStreamContext
	stream  string
	subject string
	durable string
	size    int
	handler Handler

	started int
	done    chan struct{}
	sub     *nats.Subscription
}

func NewConsumer(js nats.JetStreamContext, stream, prefix, durable string, size int, handler Handler) *Consumer {
	return &Consumer{
		js:      js,
		stream:  stream,
		subject: prefix + ".>",
		durable: durable,
		size:    size,
		handler: handler,
		done:    make(chan struct{}, size),
	}
}

// Run sets up the durable consumer and starts the worker pool. Workers stop
// when ctx is cancelled; a setup failure starts nothing and is returned to
// the caller.
func (c *Consumer) Run(ctx context.Context) error {
	_, err := c.js.AddConsumer(c.stream, &nats.ConsumerConfig{
		Durable:       c.durable,
		AckPolicy:     nats.AckExplicitPolicy,
		FilterSubject: c.subject,
		MaxAckPending: c.size * 2,
	})
	if err != nil && !errors.Is(err, nats.ErrConsumerNameAlreadyInUse) {
		return fmt.Errorf("JetStream AddConsumer %s: %w", c.durable, err)
	}

	sub, err := c.js.PullSubscribe(c.subject, c.durable)
	if err != nil {
		return fmt.Errorf("JetStream PullSubscribe %s: %w", c.subject, err)
	}
	c.sub = sub

	c.started = c.size
	for i := 0; i < c.size; i++ {
		go func() {
			defer func() { c.done <- struct{}{} }()
			c.runWorker(ctx)
		}()
	}

	slog.Info("pubsub consumer running",
		slog.Int("workers", c.size),
		slog.String("subject", c.subject),
	)
	return nil
}

// Stop waits for the workers Run actually started to wind down, then drains
// the subscription. Returns immediately when Run failed before the pool came
// up.
func (c *Consumer) Stop() {
	for i := 0; i < c.started; i++ {
		<-c.done
	}

	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			slog.Warn("pubsub subscription drain", slog.String("error", err.Error()))
		}
	}

	slog.Info("pubsub consumer stopped")
}

func (c *Consumer) runWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := c.sub.Fetch(1, nats.Context(ctx))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			slog.Warn("pubsub fetch", slog.String("error", err.Error()))
			time.Sleep(100 * time.Millisecond)
			continue
		}

		for _, msg := range msgs {
			if err := c.handler(ctx, toDelivery(msg)); err != nil {
				slog.Error("pubsub handler",
					slog.String("subject", msg.Subject),
					slog.String("error", err.Error()),
				)
				if err := msg.Nak(); err != nil {
					slog.Warn("pubsub nak", slog.String("error", err.Error()))
				}
				continue
			}

			if err := msg.Ack(); err != nil {
				slog.Warn("pubsub ack", slog.String("error", err.Error()))
			}
		}
	}
}

func toDelivery(msg *nats.Msg) Delivery {
	d := Delivery{
		Data:       msg.Data,
		Attributes: map[string]string{},
	}

	for k := range msg.Header {
		d.Attributes[k] = msg.Header.Get(k)
	}

	if meta, err := msg.Metadata(); err == nil {
		d.DeliveryID = fmt.Sprintf("%s/%d", meta.Stream, meta.Sequence.Stream)
		d.PublishTime = meta.Timestamp.UTC()
	}

	return d
}

// sanitizeToken keeps free-form topic names valid as a single subject token.
func sanitizeToken(topic string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '-'
		default:
			return r
		}
	}, topic)
}
