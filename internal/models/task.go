package models

import "time"

// TaskType names a background job kind
type TaskType string

const (
	TaskGenerateEmbeddings TaskType = "generate_embeddings"
	TaskSummarizeEmails    TaskType = "summarize_emails"
	TaskProcessNewEmails   TaskType = "process_new_emails"
)

// Valid reports whether t is a known task type
func (t TaskType) Valid() bool {
	switch t {
	case TaskGenerateEmbeddings, TaskSummarizeEmails, TaskProcessNewEmails:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state: pending -> processing -> completed | failed
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// Terminal reports whether no further transitions can happen
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// TaskParams are the inputs of a background task
type TaskParams struct {
	Limit      int      `json:"limit,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`
}

// TaskResult counts what a task did
type TaskResult struct {
	Processed  int `json:"processed"`
	Failed     int `json:"failed"`
	Summarized int `json:"summarized"`
	Embedded   int `json:"embedded"`
}

// BackgroundTask is an in-memory job descriptor. It is never persisted.
type BackgroundTask struct {
	ID          string      `json:"id"`
	Type        TaskType    `json:"type"`
	Params      TaskParams  `json:"params"`
	Status      TaskStatus  `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	Result      *TaskResult `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
}
