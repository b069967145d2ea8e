package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/d-savelev/tasklane/internal/domain"
)

type Executor interface {
	Process(ctx context.Context, taskID string, action domain.TaskAction, data map[string]string) (domain.TaskResult, error)
}

type workerHandler struct {
	executor Executor
}

func NewWorkerHandler(executor Executor) *workerHandler {
	return &workerHandler{executor: executor}
}

// processTask is the endpoint the delivery transport invokes. Any non-2xx
// response tells the transport to retry.
func (h *workerHandler) processTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "")
		return
	}

	logger := requestLogger(r, "processTask")

	if r.Header.Get("X-TaskQueue-TaskName") == "" || r.Header.Get("X-TaskQueue-QueueName") == "" {
		logger.Warn("request not from delivery transport")
	}

	var req domain.ProcessTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("decode request", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.TaskID == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: taskId, action")
		return
	}

	logger = logger.With(slog.String("task_id", req.TaskID), slog.String("action", string(req.Action)))

	result, err := h.executor.Process(r.Context(), req.TaskID, req.Action, req.Data)
	if err != nil {
		if errors.Is(err, domain.ErrTaskNotFound) {
			logger.Warn("delivery for unknown task")
			writeError(w, http.StatusNotFound, "task not found")
			return
		}
		logger.Error("process task", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, domain.ProcessTaskResponse{
		Success: true,
		TaskID:  req.TaskID,
		Result:  &result,
	})
}
