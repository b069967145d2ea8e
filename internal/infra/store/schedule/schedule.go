// Package schedulestore keeps an append-only log of cron heartbeat runs.
package schedulestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/d-savelev/tasklane/internal/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const Collection = "scheduled_executions"

type Notifier interface {
	Notify(collection string)
}

type redisScheduleStore struct {
	rdb      redis.Cmdable
	notifier Notifier
}

func NewRedisScheduleStore(rdb redis.Cmdable, notifier Notifier) *redisScheduleStore {
	return &redisScheduleStore{rdb: rdb, notifier: notifier}
}

func (s *redisScheduleStore) Create(ctx context.Context, e domain.ScheduledExecution) (string, error) {
	id := uuid.NewString()
	if e.ExecutionTime.IsZero() {
		e.ExecutionTime = time.Now().UTC()
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, executionKey(id),
		"message", e.Message,
		"status", e.Status,
		"schedule", e.Schedule,
		"execution_time", e.ExecutionTime.UnixNano(),
	)
	pipe.ZAdd(ctx, executionsByTimeKey(), redis.Z{
		Score:  float64(e.ExecutionTime.UnixNano()),
		Member: id,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("create execution: %w", err)
	}

	if s.notifier != nil {
		s.notifier.Notify(Collection)
	}
	return id, nil
}

func (s *redisScheduleStore) List(ctx context.Context, limit int) ([]domain.ScheduledExecution, error) {
	if limit <= 0 {
		return []domain.ScheduledExecution{}, nil
	}

	ids, err := s.rdb.ZRevRange(ctx, executionsByTimeKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}

	out := make([]domain.ScheduledExecution, 0, len(ids))
	for _, id := range ids {
		res, err := s.rdb.HGetAll(ctx, executionKey(id)).Result()
		if err != nil || len(res) == 0 {
			continue
		}

		e := domain.ScheduledExecution{
			ID:       id,
			Message:  res["message"],
			Status:   res["status"],
			Schedule: res["schedule"],
		}
		if n, err := strconv.ParseInt(res["execution_time"], 10, 64); err == nil {
			e.ExecutionTime = time.Unix(0, n).UTC()
		}
		out = append(out, e)
	}

	return out, nil
}

func executionKey(id string) string {
	return "execution:" + id
}

func executionsByTimeKey() string {
	return "executions:by_time"
}
