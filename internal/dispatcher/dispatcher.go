// Package dispatcher accepts task creation requests, persists the initial
// record and hands delivery to the delayed HTTP transport.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/d-savelev/tasklane/internal/domain"
)

type TaskStore interface {
	Create(ctx context.Context, p domain.CreateTaskParams) (string, error)
	MarkScheduled(ctx context.Context, id, dispatchHandle string) error
	MarkFailed(ctx context.Context, id, reason string) error
	List(ctx context.Context, limit int) ([]domain.Task, error)
}

type Delivery interface {
	Enqueue(ctx context.Context, url string, body []byte, delay time.Duration) (string, error)
}

type Dispatcher struct {
	store     TaskStore
	delivery  Delivery
	workerURL string
	maxDelay  time.Duration
}

func New(store TaskStore, delivery Delivery, workerURL string, maxDelay time.Duration) *Dispatcher {
	return &Dispatcher{
		store:     store,
		delivery:  delivery,
		workerURL: workerURL,
		maxDelay:  maxDelay,
	}
}

type CreateResult struct {
	TaskID         string
	DispatchHandle string
	Action         domain.TaskAction
	Message        string
}

// deliveryBody is the opaque body the transport POSTs to the worker.
type deliveryBody struct {
	TaskID string            `json:"taskId"`
	Action domain.TaskAction `json:"action"`
	Data   map[string]string `json:"data"`
}

// CreateTask validates the request, persists a queued record and submits
// delivery. The record is observable at status=queued before submission;
// a submission failure transitions it to failed.
func (d *Dispatcher) CreateTask(ctx context.Context, p domain.CreateTaskParams) (CreateResult, error) {
	if !domain.ValidAction(p.Action) {
		return CreateResult{}, fmt.Errorf("%w: %q", domain.ErrInvalidAction, p.Action)
	}

	if p.ScheduleDelaySeconds < 0 {
		p.ScheduleDelaySeconds = 0
	}
	delay := time.Duration(p.ScheduleDelaySeconds) * time.Second
	if delay > d.maxDelay {
		return CreateResult{}, fmt.Errorf("%w: %ds exceeds maximum %s",
			domain.ErrInvalidDelay, p.ScheduleDelaySeconds, d.maxDelay)
	}

	if p.Data == nil {
		p.Data = map[string]string{}
	}

	taskID, err := d.store.Create(ctx, p)
	if err != nil {
		return CreateResult{}, fmt.Errorf("create task: %w", err)
	}

	body, err := json.Marshal(deliveryBody{
		TaskID: taskID,
		Action: p.Action,
		Data:   p.Data,
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("marshal delivery body: %w", err)
	}

	handle, err := d.delivery.Enqueue(ctx, d.workerURL, body, delay)
	if err != nil {
		slog.Error("enqueue failed",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
		if markErr := d.store.MarkFailed(ctx, taskID, "enqueue: "+err.Error()); markErr != nil {
			slog.Warn("mark enqueue failure",
				slog.String("task_id", taskID),
				slog.String("error", markErr.Error()),
			)
		}
		return CreateResult{}, fmt.Errorf("enqueue: %w", err)
	}

	// Delivery is already accepted at this point, so a failed status write
	// only loses the diagnostic handle.
	if err := d.store.MarkScheduled(ctx, taskID, handle); err != nil {
		slog.Warn("mark scheduled",
			slog.String("task_id", taskID),
			slog.String("error", err.Error()),
		)
	}

	msg := "Task queued for immediate execution"
	if p.ScheduleDelaySeconds > 0 {
		msg = fmt.Sprintf("Task scheduled to run in %d seconds", p.ScheduleDelaySeconds)
	}

	slog.Info("task created",
		slog.String("task_id", taskID),
		slog.String("action", string(p.Action)),
		slog.Int("delay_seconds", p.ScheduleDelaySeconds),
	)

	return CreateResult{
		TaskID:         taskID,
		DispatchHandle: handle,
		Action:         p.Action,
		Message:        msg,
	}, nil
}

func (d *Dispatcher) ListTasks(ctx context.Context, limit int) ([]domain.Task, error) {
	return d.store.List(ctx, limit)
}
