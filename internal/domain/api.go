package domain

// Wire shapes of the callable surface. Field names follow the JSON contract
// the UI consumes, hence the camelCase tags.

type CreateTaskRequest struct {
	Action               TaskAction        `json:"action"`
	Data                 map[string]string `json:"data,omitempty"`
	ScheduleDelaySeconds int               `json:"scheduleDelaySeconds,omitempty"`
}

type CreateTaskResponse struct {
	Success        bool       `json:"success"`
	TaskID         string     `json:"taskId"`
	DispatchHandle string     `json:"cloudTaskName"`
	Action         TaskAction `json:"action"`
	Message        string     `json:"message"`
}

type ListTasksResponse struct {
	Success bool   `json:"success"`
	Tasks   []Task `json:"tasks"`
}

type PublishMessageRequest struct {
	Topic      string            `json:"topic"`
	Message    string            `json:"message"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

type PublishMessageResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
	Message   string `json:"message"`
}

type ListMessagesResponse struct {
	Success  bool      `json:"success"`
	Messages []Message `json:"messages"`
}

type ListExecutionsResponse struct {
	Success    bool                 `json:"success"`
	Executions []ScheduledExecution `json:"executions"`
}

// ProcessTaskRequest is the delivery body the transport POSTs to the worker.
type ProcessTaskRequest struct {
	TaskID string            `json:"taskId"`
	Action TaskAction        `json:"action"`
	Data   map[string]string `json:"data"`
}

type ProcessTaskResponse struct {
	Success bool        `json:"success"`
	TaskID  string      `json:"taskId"`
	Result  *TaskResult `json:"result,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
