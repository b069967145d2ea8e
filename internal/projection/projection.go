// Package projection streams ordered top-N snapshots of a store to an
// observer: one full batch immediately on subscribe, then a recomputed full
// batch after every mutation of the underlying collection. Observers never
// receive diffs.
package projection

import (
	"context"
	"log/slog"
)

// EventSource signals mutations of a named collection.
type EventSource interface {
	Subscribe(collection string) (<-chan struct{}, func(), error)
}

// Lister reads the current top-limit records in descending order.
type Lister[T any] func(ctx context.Context, limit int) ([]T, error)

// Subscribe starts streaming snapshots of collection. The returned cancel
// stops delivery and closes the stream; one in-flight batch may still
// arrive after cancel returns. If the subscription cannot be established or
// a read fails, the stream delivers a single empty batch and ends instead
// of surfacing an error.
func Subscribe[T any](ctx context.Context, src EventSource, collection string, limit int, list Lister[T]) (<-chan []T, func()) {
	out := make(chan []T, 1)

	events, unsubscribe, err := src.Subscribe(collection)
	if err != nil {
		slog.Warn("projection subscribe",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		out <- []T{}
		close(out)
		return out, func() {}
	}

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer unsubscribe()

		if !deliver(ctx, out, collection, limit, list) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					return
				}
				if !deliver(ctx, out, collection, limit, list) {
					return
				}
			}
		}
	}()

	return out, cancel
}

func deliver[T any](ctx context.Context, out chan<- []T, collection string, limit int, list Lister[T]) bool {
	batch, err := list(ctx, limit)
	if err != nil {
		slog.Warn("projection snapshot",
			slog.String("collection", collection),
			slog.String("error", err.Error()),
		)
		select {
		case out <- []T{}:
		case <-ctx.Done():
		}
		return false
	}
	if batch == nil {
		batch = []T{}
	}

	select {
	case out <- batch:
		return true
	case <-ctx.Done():
		return false
	}
}
