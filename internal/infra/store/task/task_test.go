package taskstore

import (
	"context"
	"testing"
	"time"

	"github.com/d-savelev/tasklane/internal/domain"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingNotifier struct {
	collections []string
}

func (n *countingNotifier) Notify(collection string) {
	n.collections = append(n.collections, collection)
}

func newTestStore(t *testing.T) (*redisTaskStore, *countingNotifier) {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rdb.Close() })

	n := &countingNotifier{}
	return NewRedisTaskStore(rdb, n), n
}

func TestCreateStartsQueued(t *testing.T) {
	store, notifier := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, domain.CreateTaskParams{
		Action:               domain.ActionSendEmail,
		Data:                 map[string]string{"recipient": "a@b.com"},
		ScheduleDelaySeconds: 10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task, err := store.Task(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusQueued, task.Status)
	assert.Equal(t, domain.ActionSendEmail, task.Action)
	assert.Equal(t, map[string]string{"recipient": "a@b.com"}, task.Data)
	assert.Equal(t, 10, task.ScheduleDelaySeconds)
	assert.False(t, task.CreatedAt.IsZero())
	assert.Nil(t, task.ProcessingStartedAt)
	assert.Nil(t, task.Result)
	assert.Empty(t, task.Error)

	assert.Equal(t, []string{Collection}, notifier.collections)
}

func TestLifecycleTransitions(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, domain.CreateTaskParams{Action: domain.ActionBackupData})
	require.NoError(t, err)

	require.NoError(t, store.MarkScheduled(ctx, id, "queues/default/tasks/abc"))
	task, err := store.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusScheduled, task.Status)
	assert.Equal(t, "queues/default/tasks/abc", task.DispatchHandle)

	require.NoError(t, store.MarkProcessing(ctx, id))
	task, err = store.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusProcessing, task.Status)
	require.NotNil(t, task.ProcessingStartedAt)

	result := domain.TaskResult{Success: true, Message: "Backup completed for unknown"}
	require.NoError(t, store.MarkCompleted(ctx, id, result))
	task, err = store.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, task.Status)
	require.NotNil(t, task.CompletedAt)
	require.NotNil(t, task.Result)
	assert.Equal(t, result, *task.Result)
	assert.Nil(t, task.FailedAt)

	started := *task.ProcessingStartedAt
	completed := *task.CompletedAt
	assert.False(t, completed.Before(started), "completedAt before processingStartedAt")
}

func TestMarkFailed(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	id, err := store.Create(ctx, domain.CreateTaskParams{Action: domain.ActionProcessImage})
	require.NoError(t, err)

	require.NoError(t, store.MarkFailed(ctx, id, "boom"))

	task, err := store.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, task.Status)
	assert.Equal(t, "boom", task.Error)
	require.NotNil(t, task.FailedAt)
	assert.Nil(t, task.Result)
}

func TestUpdateUnknownTask(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	err := store.MarkProcessing(ctx, "no-such-id")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	_, err = store.Task(ctx, "no-such-id")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestListOrderAndLimit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Create(ctx, domain.CreateTaskParams{Action: domain.ActionSendEmail})
		require.NoError(t, err)
		ids = append(ids, id)
		time.Sleep(2 * time.Millisecond)
	}

	tasks, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	// Newest first.
	assert.Equal(t, ids[2], tasks[0].ID)
	assert.Equal(t, ids[1], tasks[1].ID)

	all, err := store.List(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i-1].CreatedAt.Before(all[i].CreatedAt), "list not ordered descending")
	}

	none, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}
