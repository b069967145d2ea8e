// Package queue is a delayed HTTP delivery transport: jobs wait in a Redis
// due-time set, a pump claims them when due and POSTs them to their target,
// retrying failed deliveries with backoff. Delivery is at-least-once from
// the target's point of view. A job that exhausts its attempts, or whose
// delivery request can never be built, is dropped and logged; the record
// that triggered the enqueue keeps whatever status it last reached.
package queue

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	jobsDueKey   = "queue:jobs:due"
	claimBatch   = 16
	maxBackoff   = 60 * time.Second
	deliveryWait = 30 * time.Second
)

type Queue struct {
	rdb          redis.Cmdable
	name         string
	client       *http.Client
	pollInterval time.Duration
	maxAttempts  int
	backoffBase  time.Duration
}

func New(rdb redis.Cmdable, name string, pollInterval time.Duration, maxAttempts int) *Queue {
	return &Queue{
		rdb:          rdb,
		name:         name,
		client:       &http.Client{Timeout: deliveryWait},
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		backoffBase:  time.Second,
	}
}

// Enqueue schedules a delivery of body to url after delay and returns an
// opaque handle for diagnostics. A non-positive delay means immediate.
func (q *Queue) Enqueue(ctx context.Context, url string, body []byte, delay time.Duration) (string, error) {
	if url == "" {
		return "", fmt.Errorf("empty delivery url")
	}

	id := uuid.NewString()
	if delay < 0 {
		delay = 0
	}
	due := time.Now().UTC().Add(delay)

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(id),
		"url", url,
		"body", body,
		"attempts", 0,
	)
	pipe.ZAdd(ctx, jobsDueKey, redis.Z{
		Score:  float64(due.UnixNano()),
		Member: id,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("enqueue delivery: %w", err)
	}

	handle := q.handle(id)
	slog.Debug("delivery enqueued",
		slog.String("handle", handle),
		slog.String("url", url),
		slog.String("delay", delay.String()),
	)

	return handle, nil
}

// Run pumps due jobs until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(q.pollInterval)
	defer ticker.Stop()

	slog.Info("delivery pump running",
		slog.String("queue", q.name),
		slog.String("poll_interval", q.pollInterval.String()),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("delivery pump stopped")
			return
		case <-ticker.C:
			q.pumpDue(ctx)
		}
	}
}

func (q *Queue) pumpDue(ctx context.Context) {
	now := time.Now().UTC().UnixNano()

	ids, err := q.rdb.ZRangeByScore(ctx, jobsDueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now, 10),
		Count: claimBatch,
	}).Result()
	if err != nil {
		slog.Warn("scan due jobs", slog.String("error", err.Error()))
		return
	}

	for _, id := range ids {
		// ZRem decides the single claimant when several pumps race.
		removed, err := q.rdb.ZRem(ctx, jobsDueKey, id).Result()
		if err != nil || removed == 0 {
			continue
		}
		q.deliver(ctx, id)
	}
}

func (q *Queue) deliver(ctx context.Context, id string) {
	job, err := q.rdb.HGetAll(ctx, jobKey(id)).Result()
	if err != nil || len(job) == 0 {
		slog.Warn("claimed job without payload", slog.String("job_id", id))
		return
	}

	attempts, _ := strconv.Atoi(job["attempts"])

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, job["url"],
		bytes.NewReader([]byte(job["body"])))
	if err != nil {
		// No retry can fix an unbuildable request; terminal like attempts
		// exhaustion.
		slog.Error("delivery dropped: cannot build request",
			slog.String("job_id", id),
			slog.String("url", job["url"]),
			slog.String("error", err.Error()),
		)
		q.drop(ctx, id)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-TaskQueue-TaskName", q.handle(id))
	req.Header.Set("X-TaskQueue-QueueName", q.name)

	resp, err := q.client.Do(req)
	if err == nil {
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			q.drop(ctx, id)
			slog.Debug("delivery succeeded",
				slog.String("job_id", id),
				slog.Int("status", resp.StatusCode),
			)
			return
		}
		slog.Warn("delivery rejected",
			slog.String("job_id", id),
			slog.Int("status", resp.StatusCode),
			slog.Int("attempts", attempts),
		)
	} else {
		slog.Warn("delivery failed",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
			slog.Int("attempts", attempts),
		)
	}

	q.reschedule(ctx, id, attempts+1)
}

func (q *Queue) reschedule(ctx context.Context, id string, attempts int) {
	if attempts >= q.maxAttempts {
		slog.Error("delivery dropped after max attempts",
			slog.String("job_id", id),
			slog.Int("attempts", attempts),
		)
		q.drop(ctx, id)
		return
	}

	backoff := q.backoffBase * time.Duration(1<<attempts)
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	pipe := q.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(id), "attempts", attempts)
	pipe.ZAdd(ctx, jobsDueKey, redis.Z{
		Score:  float64(time.Now().UTC().Add(backoff).UnixNano()),
		Member: id,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("reschedule job",
			slog.String("job_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (q *Queue) drop(ctx context.Context, id string) {
	if err := q.rdb.Del(ctx, jobKey(id)).Err(); err != nil {
		slog.Warn("delete job", slog.String("job_id", id), slog.String("error", err.Error()))
	}
}

func (q *Queue) handle(id string) string {
	return fmt.Sprintf("queues/%s/tasks/%s", q.name, id)
}

func jobKey(id string) string {
	return "queue:job:" + id
}
