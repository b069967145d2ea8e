// Package notify fans every store mutation out over core NATS so read-side
// subscribers can recompute their snapshots without polling.
package notify

import (
	"log/slog"

	"github.com/nats-io/nats.go"
)

const subjectPrefix = "store."

// Notifier is the write side: stores call Notify after each mutation.
type Notifier struct {
	nc *nats.Conn
}

func NewNotifier(nc *nats.Conn) *Notifier {
	return &Notifier{nc: nc}
}

// Notify is best-effort. A dropped notification only delays the next
// snapshot until the following mutation.
func (n *Notifier) Notify(collection string) {
	if err := n.nc.Publish(subjectPrefix+collection, nil); err != nil {
		slog.Warn("mutation notify",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
	}
}

// Events is the read side: one signal per observed mutation, coalesced
// when the subscriber lags behind.
type Events struct {
	nc *nats.Conn
}

func NewEvents(nc *nats.Conn) *Events {
	return &Events{nc: nc}
}

func (e *Events) Subscribe(collection string) (<-chan struct{}, func(), error) {
	msgCh := make(chan *nats.Msg, 64)

	sub, err := e.nc.ChanSubscribe(subjectPrefix+collection, msgCh)
	if err != nil {
		return nil, nil, err
	}

	events := make(chan struct{}, 1)
	done := make(chan struct{})

	go func() {
		defer close(events)
		for {
			select {
			case <-done:
				return
			case <-msgCh:
				select {
				case events <- struct{}{}:
				default:
				}
			}
		}
	}()

	cancel := func() {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("mutation unsubscribe",
				slog.String("collection", collection),
				slog.String("error", err.Error()),
			)
		}
		close(done)
	}

	return events, cancel, nil
}
