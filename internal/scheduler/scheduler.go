// Package scheduler runs the cron heartbeat and logs each execution to the
// schedule store.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/d-savelev/tasklane/internal/domain"

	"github.com/robfig/cron/v3"
)

type ExecutionStore interface {
	Create(ctx context.Context, e domain.ScheduledExecution) (string, error)
}

type Heartbeat struct {
	store ExecutionStore
	spec  string
	cron  *cron.Cron
}

func New(store ExecutionStore, spec string) *Heartbeat {
	return &Heartbeat{
		store: store,
		spec:  spec,
		cron:  cron.New(),
	}
}

func (h *Heartbeat) Start() error {
	if _, err := h.cron.AddFunc(h.spec, h.run); err != nil {
		return err
	}
	h.cron.Start()

	slog.Info("scheduler running", slog.String("spec", h.spec))
	return nil
}

// Stop halts scheduling and waits for a running execution to finish.
func (h *Heartbeat) Stop() {
	<-h.cron.Stop().Done()
	slog.Info("scheduler stopped")
}

func (h *Heartbeat) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := h.store.Create(ctx, domain.ScheduledExecution{
		Message:       "Scheduled task executed successfully",
		Status:        "success",
		ExecutionTime: time.Now().UTC(),
		Schedule:      h.spec,
	})
	if err != nil {
		slog.Error("record scheduled execution", slog.String("error", err.Error()))
		return
	}

	slog.Info("scheduled execution recorded", slog.String("execution_id", id))
}
