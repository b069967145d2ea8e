package queue

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capture struct {
	mu     sync.Mutex
	bodies []string
	task   []string
	queue  []string
	status []int
}

func (c *capture) handler(respond func(n int) int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		c.mu.Lock()
		c.bodies = append(c.bodies, string(body))
		c.task = append(c.task, r.Header.Get("X-TaskQueue-TaskName"))
		c.queue = append(c.queue, r.Header.Get("X-TaskQueue-QueueName"))
		n := len(c.bodies)
		c.mu.Unlock()

		status := respond(n)
		c.mu.Lock()
		c.status = append(c.status, status)
		c.mu.Unlock()
		w.WriteHeader(status)
	}
}

func (c *capture) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.bodies)
}

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })

	q := New(rdb, "default", 10*time.Millisecond, 3)
	q.backoffBase = 5 * time.Millisecond
	return q
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestImmediateDelivery(t *testing.T) {
	q := newTestQueue(t)

	c := &capture{}
	srv := httptest.NewServer(c.handler(func(int) int { return http.StatusOK }))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	handle, err := q.Enqueue(ctx, srv.URL, []byte(`{"taskId":"t1"}`), 0)
	require.NoError(t, err)
	assert.Contains(t, handle, "queues/default/tasks/")

	waitFor(t, 2*time.Second, func() bool { return c.count() == 1 })

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, `{"taskId":"t1"}`, c.bodies[0])
	assert.Equal(t, handle, c.task[0])
	assert.Equal(t, "default", c.queue[0])
}

func TestDelayedDeliveryHonorsDueTime(t *testing.T) {
	q := newTestQueue(t)

	c := &capture{}
	srv := httptest.NewServer(c.handler(func(int) int { return http.StatusOK }))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	start := time.Now()
	_, err := q.Enqueue(ctx, srv.URL, []byte(`{}`), 200*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, c.count(), "delivered before due time")

	waitFor(t, 2*time.Second, func() bool { return c.count() == 1 })
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}

func TestRetryOnNon2xx(t *testing.T) {
	q := newTestQueue(t)

	c := &capture{}
	srv := httptest.NewServer(c.handler(func(n int) int {
		if n < 3 {
			return http.StatusInternalServerError
		}
		return http.StatusOK
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	_, err := q.Enqueue(ctx, srv.URL, []byte(`{}`), 0)
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool { return c.count() == 3 })

	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, []int{500, 500, 200}, c.status)
}

func TestDropAfterMaxAttempts(t *testing.T) {
	q := newTestQueue(t)

	c := &capture{}
	srv := httptest.NewServer(c.handler(func(int) int { return http.StatusInternalServerError }))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	_, err := q.Enqueue(ctx, srv.URL, []byte(`{}`), 0)
	require.NoError(t, err)

	// maxAttempts=3: first try plus two retries, then the job is dropped.
	waitFor(t, 5*time.Second, func() bool { return c.count() == 3 })
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 3, c.count())
}

func TestEnqueueRejectsEmptyURL(t *testing.T) {
	q := newTestQueue(t)

	_, err := q.Enqueue(context.Background(), "", []byte(`{}`), 0)
	assert.Error(t, err)
}

func TestUnbuildableRequestDropsJob(t *testing.T) {
	q := newTestQueue(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	handle, err := q.Enqueue(ctx, "ht tp://bad host", []byte(`{}`), 0)
	require.NoError(t, err)
	id := strings.TrimPrefix(handle, "queues/default/tasks/")

	waitFor(t, 2*time.Second, func() bool {
		n, err := q.rdb.Exists(context.Background(), jobKey(id)).Result()
		return err == nil && n == 0
	})

	due, err := q.rdb.ZCard(context.Background(), jobsDueKey).Result()
	require.NoError(t, err)
	assert.Zero(t, due, "dropped job left in the due set")
}
