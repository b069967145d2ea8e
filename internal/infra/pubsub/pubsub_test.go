package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unavailableJS fails consumer setup the way a JetStream outage at startup
// does.
type unavailableJS struct {
	nats.JetStreamContext
}

func (unavailableJS) AddConsumer(string, *nats.ConsumerConfig, ...nats.JSOpt) (*nats.ConsumerInfo, error) {
	return nil, errors.New("jetstream unavailable")
}

func newFailingConsumer() *Consumer {
	return NewConsumer(unavailableJS{}, "STREAM", "pubsub", "durable", 4,
		func(context.Context, Delivery) error { return nil })
}

func TestRunSetupFailureReturnsError(t *testing.T) {
	c := newFailingConsumer()

	err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AddConsumer")
}

func TestStopReturnsAfterFailedRun(t *testing.T) {
	c := newFailingConsumer()
	require.Error(t, c.Run(context.Background()))

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after a failed Run")
	}
}

func TestSanitizeTopicToSubjectToken(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"orders", "orders"},
		{"orders.created", "orders-created"},
		{"a b\tc", "a-b-c"},
		{"fan.*.out>", "fan---out-"},
	}
	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeToken(tt.topic))
		})
	}
}
