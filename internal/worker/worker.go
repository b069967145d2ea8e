// Package worker executes a delivered task: marks it processing, holds the
// invocation open for the action's simulated latency and records the
// terminal result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/d-savelev/tasklane/internal/domain"
)

type TaskStore interface {
	Task(ctx context.Context, id string) (domain.Task, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkCompleted(ctx context.Context, id string, result domain.TaskResult) error
	MarkFailed(ctx context.Context, id, reason string) error
}

type Executor struct {
	store   TaskStore
	specFor func(domain.TaskAction) domain.ActionSpec
}

type Option func(*Executor)

// WithActionSpecs overrides the action dispatch table, used by tests to
// shrink the simulated latencies.
func WithActionSpecs(specFor func(domain.TaskAction) domain.ActionSpec) Option {
	return func(e *Executor) { e.specFor = specFor }
}

func New(store TaskStore, opts ...Option) *Executor {
	e := &Executor{
		store:   store,
		specFor: domain.SpecFor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process runs one delivered task to a terminal state. Re-delivery of a task
// that already reached a terminal state is a no-op success: the transport
// offers at-least-once delivery, so the current status decides whether the
// side effect runs at all.
func (e *Executor) Process(ctx context.Context, taskID string, action domain.TaskAction, data map[string]string) (domain.TaskResult, error) {
	task, err := e.store.Task(ctx, taskID)
	if err != nil {
		return domain.TaskResult{}, err
	}

	if task.Status.IsTerminal() {
		slog.Info("duplicate delivery ignored",
			slog.String("task_id", taskID),
			slog.String("status", string(task.Status)),
		)
		if task.Result != nil {
			return *task.Result, nil
		}
		return domain.TaskResult{Success: true, Message: "duplicate delivery ignored"}, nil
	}

	if err := e.store.MarkProcessing(ctx, taskID); err != nil {
		return domain.TaskResult{}, fmt.Errorf("mark processing: %w", err)
	}

	result, err := e.execute(ctx, action, data)
	if err != nil {
		// Cancellation is the transport giving up on this invocation, not a
		// task failure: the record stays at processing and a retried
		// delivery reattempts it.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.TaskResult{}, err
		}

		if markErr := e.store.MarkFailed(ctx, taskID, err.Error()); markErr != nil {
			slog.Error("mark failed",
				slog.String("task_id", taskID),
				slog.String("error", markErr.Error()),
			)
		}
		return domain.TaskResult{}, err
	}

	if err := e.store.MarkCompleted(ctx, taskID, result); err != nil {
		return domain.TaskResult{}, fmt.Errorf("mark completed: %w", err)
	}

	slog.Info("task processed",
		slog.String("task_id", taskID),
		slog.String("action", string(action)),
		slog.String("result", result.Message),
	)

	return result, nil
}

// execute models the slow external effect: it suspends for the action's
// fixed latency, then produces the templated result.
func (e *Executor) execute(ctx context.Context, action domain.TaskAction, data map[string]string) (domain.TaskResult, error) {
	spec := e.specFor(action)

	select {
	case <-ctx.Done():
		return domain.TaskResult{}, ctx.Err()
	case <-time.After(spec.Latency):
	}

	return domain.TaskResult{
		Success: true,
		Message: spec.Describe(data),
	}, nil
}
