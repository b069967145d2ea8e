package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/d-savelev/tasklane/internal/dispatcher"
	"github.com/d-savelev/tasklane/internal/domain"

	"github.com/google/uuid"
)

type Dispatcher interface {
	CreateTask(ctx context.Context, p domain.CreateTaskParams) (dispatcher.CreateResult, error)
	ListTasks(ctx context.Context, limit int) ([]domain.Task, error)
}

type Publisher interface {
	Publish(ctx context.Context, p domain.PublishParams) (string, error)
	ListMessages(ctx context.Context, limit int) ([]domain.Message, error)
}

type ExecutionStore interface {
	List(ctx context.Context, limit int) ([]domain.ScheduledExecution, error)
}

// Stream opens a projection snapshot stream; cancel stops delivery.
type Stream[T any] func() (<-chan []T, func())

type Limits struct {
	Tasks      int
	Messages   int
	Executions int
}

type handler struct {
	dispatcher Dispatcher
	publisher  Publisher
	executions ExecutionStore

	taskStream    Stream[domain.Task]
	messageStream Stream[domain.Message]

	limits Limits
}

func NewHandler(
	d Dispatcher,
	p Publisher,
	ex ExecutionStore,
	taskStream Stream[domain.Task],
	messageStream Stream[domain.Message],
	limits Limits,
) *handler {
	return &handler{
		dispatcher:    d,
		publisher:     p,
		executions:    ex,
		taskStream:    taskStream,
		messageStream: messageStream,
		limits:        limits,
	}
}

func (h *handler) createTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	logger := requestLogger(r, "createTask")

	var req domain.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode request", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Action == "" {
		writeError(w, http.StatusBadRequest, "missing required field: action")
		return
	}

	res, err := h.dispatcher.CreateTask(r.Context(), domain.CreateTaskParams{
		Action:               req.Action,
		Data:                 req.Data,
		ScheduleDelaySeconds: req.ScheduleDelaySeconds,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidAction) || errors.Is(err, domain.ErrInvalidDelay) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logger.Error("create task", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	writeJSON(w, http.StatusOK, domain.CreateTaskResponse{
		Success:        true,
		TaskID:         res.TaskID,
		DispatchHandle: res.DispatchHandle,
		Action:         res.Action,
		Message:        res.Message,
	})
}

func (h *handler) listTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	logger := requestLogger(r, "listTasks")

	tasks, err := h.dispatcher.ListTasks(r.Context(), h.limits.Tasks)
	if err != nil {
		logger.Error("list tasks", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, domain.ListTasksResponse{Success: true, Tasks: tasks})
}

func (h *handler) publishMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	logger := requestLogger(r, "publishMessage")

	var req domain.PublishMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode request", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	messageID, err := h.publisher.Publish(r.Context(), domain.PublishParams{
		Topic:      req.Topic,
		Message:    req.Message,
		Attributes: req.Attributes,
	})
	if err != nil {
		if errors.Is(err, domain.ErrEmptyTopic) || errors.Is(err, domain.ErrEmptyMessage) {
			writeError(w, http.StatusBadRequest, "topic and message are required")
			return
		}
		logger.Error("publish message", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to publish message")
		return
	}

	writeJSON(w, http.StatusOK, domain.PublishMessageResponse{
		Success:   true,
		MessageID: messageID,
		Message:   "Message published successfully",
	})
}

func (h *handler) listMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	logger := requestLogger(r, "listMessages")

	msgs, err := h.publisher.ListMessages(r.Context(), h.limits.Messages)
	if err != nil {
		logger.Error("list messages", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, domain.ListMessagesResponse{Success: true, Messages: msgs})
}

func (h *handler) listExecutions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	logger := requestLogger(r, "listExecutions")

	execs, err := h.executions.List(r.Context(), h.limits.Executions)
	if err != nil {
		logger.Error("list executions", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}

	writeJSON(w, http.StatusOK, domain.ListExecutionsResponse{Success: true, Executions: execs})
}

func (h *handler) streamTasks(w http.ResponseWriter, r *http.Request) {
	serveStream(w, r, "streamTasks", h.taskStream)
}

func (h *handler) streamMessages(w http.ResponseWriter, r *http.Request) {
	serveStream(w, r, "streamMessages", h.messageStream)
}

func requestLogger(r *http.Request, name string) *slog.Logger {
	return slog.With(
		slog.String("request_id", uuid.NewString()),
		slog.String("handler", name),
		slog.String("remote_addr", r.RemoteAddr),
	)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, domain.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON", slog.String("error", err.Error()))
	}
}
