package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d-savelev/tasklane/internal/dispatcher"
	"github.com/d-savelev/tasklane/internal/domain"
)

type fakeDispatcher struct {
	result dispatcher.CreateResult
	tasks  []domain.Task
	err    error
}

func (d *fakeDispatcher) CreateTask(_ context.Context, p domain.CreateTaskParams) (dispatcher.CreateResult, error) {
	if d.err != nil {
		return dispatcher.CreateResult{}, d.err
	}
	d.result.Action = p.Action
	return d.result, nil
}

func (d *fakeDispatcher) ListTasks(_ context.Context, _ int) ([]domain.Task, error) {
	return d.tasks, d.err
}

type fakePublisher struct {
	messageID string
	messages  []domain.Message
	err       error
}

func (p *fakePublisher) Publish(_ context.Context, _ domain.PublishParams) (string, error) {
	return p.messageID, p.err
}

func (p *fakePublisher) ListMessages(_ context.Context, _ int) ([]domain.Message, error) {
	return p.messages, p.err
}

type fakeExecutions struct {
	execs []domain.ScheduledExecution
	err   error
}

func (e *fakeExecutions) List(_ context.Context, _ int) ([]domain.ScheduledExecution, error) {
	return e.execs, e.err
}

func emptyStream[T any]() Stream[T] {
	return func() (<-chan []T, func()) {
		out := make(chan []T, 1)
		out <- []T{}
		close(out)
		return out, func() {}
	}
}

func newTestServer(d *fakeDispatcher, p *fakePublisher, e *fakeExecutions) *httptest.Server {
	h := NewHandler(d, p, e, emptyStream[domain.Task](), emptyStream[domain.Message](),
		Limits{Tasks: 50, Messages: 10, Executions: 20})
	return httptest.NewServer(NewAPIRouter(h).MountRoutes(http.NewServeMux()))
}

func TestCreateTaskEndpoint(t *testing.T) {
	d := &fakeDispatcher{result: dispatcher.CreateResult{
		TaskID:         "task-1",
		DispatchHandle: "queues/default/tasks/job-1",
		Message:        "Task queued for immediate execution",
	}}
	srv := newTestServer(d, &fakePublisher{}, &fakeExecutions{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/tasks", "application/json",
		strings.NewReader(`{"action":"send_email","data":{"recipient":"a@b.com"}}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.CreateTaskResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "task-1", body.TaskID)
	assert.Equal(t, "queues/default/tasks/job-1", body.DispatchHandle)
	assert.Equal(t, domain.ActionSendEmail, body.Action)
}

func TestCreateTaskValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{name: "invalid json", body: "{"},
		{name: "missing action", body: `{}`},
		{name: "unknown action", body: `{"action":"mine_bitcoin"}`, err: domain.ErrInvalidAction},
		{name: "delay too large", body: `{"action":"send_email","scheduleDelaySeconds":4000}`, err: domain.ErrInvalidDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&fakeDispatcher{err: tt.err}, &fakePublisher{}, &fakeExecutions{})
			defer srv.Close()

			resp, err := http.Post(srv.URL+"/api/tasks", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCreateTaskStoreFailure(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{err: errors.New("redis down")}, &fakePublisher{}, &fakeExecutions{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/tasks", "application/json",
		strings.NewReader(`{"action":"send_email"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestListTasksEndpoint(t *testing.T) {
	d := &fakeDispatcher{tasks: []domain.Task{
		{ID: "task-2", Action: domain.ActionSendEmail, Status: domain.StatusCompleted, CreatedAt: time.Now()},
		{ID: "task-1", Action: domain.ActionBackupData, Status: domain.StatusQueued, CreatedAt: time.Now()},
	}}
	srv := newTestServer(d, &fakePublisher{}, &fakeExecutions{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.ListTasksResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Tasks, 2)
	assert.Equal(t, "task-2", body.Tasks[0].ID)
}

func TestPublishMessageEndpoint(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{}, &fakePublisher{messageID: "msg-1"}, &fakeExecutions{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/messages", "application/json",
		strings.NewReader(`{"topic":"orders","message":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.PublishMessageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Success)
	assert.Equal(t, "msg-1", body.MessageID)
	assert.Equal(t, "Message published successfully", body.Message)
}

func TestPublishMessageValidation(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{}, &fakePublisher{err: domain.ErrEmptyTopic}, &fakeExecutions{})
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/messages", "application/json",
		strings.NewReader(`{"message":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body domain.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "topic and message are required", body.Message)
}

func TestListExecutionsEndpoint(t *testing.T) {
	e := &fakeExecutions{execs: []domain.ScheduledExecution{
		{ID: "exec-1", Message: "Scheduled task executed successfully", Status: "success"},
	}}
	srv := newTestServer(&fakeDispatcher{}, &fakePublisher{}, e)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/executions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body domain.ListExecutionsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Executions, 1)
	assert.Equal(t, "exec-1", body.Executions[0].ID)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakeDispatcher{}, &fakePublisher{}, &fakeExecutions{})
	defer srv.Close()

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/tasks", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestStreamTasksDeliversSnapshotFrames(t *testing.T) {
	tasks := []domain.Task{{ID: "task-1", Action: domain.ActionSendEmail, Status: domain.StatusQueued}}
	stream := func() (<-chan []domain.Task, func()) {
		out := make(chan []domain.Task, 1)
		out <- tasks
		close(out)
		return out, func() {}
	}

	h := NewHandler(&fakeDispatcher{}, &fakePublisher{}, &fakeExecutions{},
		stream, emptyStream[domain.Message](), Limits{})
	srv := httptest.NewServer(NewAPIRouter(h).MountRoutes(http.NewServeMux()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/tasks/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	frame := string(buf[:n])
	assert.True(t, strings.HasPrefix(frame, "data: "), "frame %q", frame)
	assert.Contains(t, frame, `"task-1"`)
	assert.True(t, strings.HasSuffix(frame, "\n\n"), "frame %q", frame)
}
