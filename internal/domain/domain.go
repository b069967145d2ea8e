package domain

import (
	"errors"
	"time"
)

type TaskStatus string

const (
	StatusQueued     TaskStatus = "queued"
	StatusScheduled  TaskStatus = "scheduled"
	StatusProcessing TaskStatus = "processing"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

var terminalTaskStatuses = map[TaskStatus]bool{
	StatusCompleted: true,
	StatusFailed:    true,
}

// IsTerminal reports whether no further transition is valid from s.
func (s TaskStatus) IsTerminal() bool {
	return terminalTaskStatuses[s]
}

type MessageStatus string

const (
	MessagePublished MessageStatus = "published"
	MessageProcessed MessageStatus = "processed"
)

// TaskResult is the free-form success payload recorded on a completed task.
type TaskResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type Task struct {
	ID     string     `json:"id"`
	Action TaskAction `json:"action"`

	Data   map[string]string `json:"data"`
	Status TaskStatus        `json:"status"`

	ScheduleDelaySeconds int `json:"schedule_delay_seconds"`

	// DispatchHandle is the transport-assigned delivery id, kept for
	// diagnostics only.
	DispatchHandle string `json:"dispatch_handle,omitempty"`

	CreatedAt           time.Time  `json:"created_at"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	FailedAt            *time.Time `json:"failed_at,omitempty"`

	Result *TaskResult `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

type CreateTaskParams struct {
	Action               TaskAction
	Data                 map[string]string
	ScheduleDelaySeconds int
}

// ProcessingDetails echoes what the transport attached to a delivery.
type ProcessingDetails struct {
	DeliveryID  string            `json:"delivery_id"`
	PublishTime time.Time         `json:"publish_time"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type Message struct {
	ID         string            `json:"id"`
	Topic      string            `json:"topic"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Status     MessageStatus     `json:"status"`

	PublishedAt time.Time  `json:"published_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	ProcessingDetails *ProcessingDetails `json:"processing_details,omitempty"`
}

type PublishParams struct {
	Topic      string
	Message    string
	Attributes map[string]string
}

// ScheduledExecution is one run of the cron heartbeat.
type ScheduledExecution struct {
	ID            string    `json:"id"`
	Message       string    `json:"message"`
	Status        string    `json:"status"`
	ExecutionTime time.Time `json:"execution_time"`
	Schedule      string    `json:"schedule"`
}

var (
	ErrTaskNotFound    = errors.New("task not found")
	ErrMessageNotFound = errors.New("message not found")

	ErrInvalidAction = errors.New("unknown task action")
	ErrInvalidDelay  = errors.New("schedule delay out of range")
	ErrEmptyTopic    = errors.New("topic is required")
	ErrEmptyMessage  = errors.New("message is required")
)
