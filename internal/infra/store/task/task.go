package taskstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/d-savelev/tasklane/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Collection is the name mutation notifications are published under.
const Collection = "tasks"

type Notifier interface {
	Notify(collection string)
}

type redisTaskStore struct {
	rdb      redis.Cmdable
	notifier Notifier
}

func NewRedisTaskStore(rdb redis.Cmdable, notifier Notifier) *redisTaskStore {
	return &redisTaskStore{rdb: rdb, notifier: notifier}
}

// Create persists a new record at status=queued and returns its id.
func (s *redisTaskStore) Create(ctx context.Context, p domain.CreateTaskParams) (string, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	data, err := json.Marshal(p.Data)
	if err != nil {
		return "", fmt.Errorf("marshal task data: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(id),
		"action", string(p.Action),
		"data", data,
		"status", string(domain.StatusQueued),
		"schedule_delay_seconds", p.ScheduleDelaySeconds,
		"created_at", now.UnixNano(),
	)
	pipe.ZAdd(ctx, tasksByCreatedKey(), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: id,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	s.notify()
	return id, nil
}

// MarkScheduled records the transport handle once delivery is accepted.
func (s *redisTaskStore) MarkScheduled(ctx context.Context, id, dispatchHandle string) error {
	return s.update(ctx, id, map[string]any{
		"status":          string(domain.StatusScheduled),
		"dispatch_handle": dispatchHandle,
	})
}

func (s *redisTaskStore) MarkProcessing(ctx context.Context, id string) error {
	return s.update(ctx, id, map[string]any{
		"status":                string(domain.StatusProcessing),
		"processing_started_at": time.Now().UTC().UnixNano(),
	})
}

func (s *redisTaskStore) MarkCompleted(ctx context.Context, id string, result domain.TaskResult) error {
	res, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal task result: %w", err)
	}

	return s.update(ctx, id, map[string]any{
		"status":       string(domain.StatusCompleted),
		"completed_at": time.Now().UTC().UnixNano(),
		"result":       res,
	})
}

func (s *redisTaskStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.update(ctx, id, map[string]any{
		"status":    string(domain.StatusFailed),
		"failed_at": time.Now().UTC().UnixNano(),
		"error":     reason,
	})
}

func (s *redisTaskStore) Task(ctx context.Context, id string) (domain.Task, error) {
	res, err := s.rdb.HGetAll(ctx, taskKey(id)).Result()
	if err != nil {
		return domain.Task{}, fmt.Errorf("read task %s: %w", id, err)
	}
	if len(res) == 0 {
		return domain.Task{}, domain.ErrTaskNotFound
	}

	return parseTask(id, res), nil
}

// List returns the top-limit records ordered by created_at descending.
// Equal timestamps fall back to descending id order.
func (s *redisTaskStore) List(ctx context.Context, limit int) ([]domain.Task, error) {
	if limit <= 0 {
		return []domain.Task{}, nil
	}

	ids, err := s.rdb.ZRevRange(ctx, tasksByCreatedKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}

	tasks := make([]domain.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.Task(ctx, id)
		if err != nil {
			// Index entry without a hash, skip.
			continue
		}
		tasks = append(tasks, t)
	}

	return tasks, nil
}

func (s *redisTaskStore) update(ctx context.Context, id string, fields map[string]any) error {
	hk := taskKey(id)

	n, err := s.rdb.Exists(ctx, hk).Result()
	if err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrTaskNotFound
	}

	if err := s.rdb.HSet(ctx, hk, fields).Err(); err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}

	s.notify()
	return nil
}

func (s *redisTaskStore) notify() {
	if s.notifier != nil {
		s.notifier.Notify(Collection)
	}
}

func parseTask(id string, res map[string]string) domain.Task {
	t := domain.Task{
		ID:             id,
		Action:         domain.TaskAction(res["action"]),
		Status:         domain.TaskStatus(res["status"]),
		DispatchHandle: res["dispatch_handle"],
		Error:          res["error"],
		Data:           map[string]string{},
	}

	if v := res["data"]; v != "" {
		_ = json.Unmarshal([]byte(v), &t.Data)
	}
	if v := res["result"]; v != "" {
		var r domain.TaskResult
		if err := json.Unmarshal([]byte(v), &r); err == nil {
			t.Result = &r
		}
	}
	if v := res["schedule_delay_seconds"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			t.ScheduleDelaySeconds = n
		}
	}
	if v := res["created_at"]; v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			t.CreatedAt = time.Unix(0, n).UTC()
		}
	}
	t.ProcessingStartedAt = parseOptTime(res["processing_started_at"])
	t.CompletedAt = parseOptTime(res["completed_at"])
	t.FailedAt = parseOptTime(res["failed_at"])

	return t
}

func parseOptTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	ts := time.Unix(0, n).UTC()
	return &ts
}

func taskKey(id string) string {
	return "task:" + id
}

func tasksByCreatedKey() string {
	return "tasks:by_created_at"
}
