package models

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// TaskStatus represents the status of an async task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// ComparisonTask represents an async cart comparison task. The struct
// itself is not synchronized; after submission the TaskManager mutates
// it only under its own lock and hands out copies to readers.
type ComparisonTask struct {
	ID          string                 `json:"id"`
	Request     ComparisonRequest      `json:"request"`
	Status      TaskStatus             `json:"status"`
	Progress    int                    `json:"progress"` // 0-100
	Message     string                 `json:"message"`
	Result      *ComparisonResponse    `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewComparisonTask creates a new comparison task for a request
func NewComparisonTask(req ComparisonRequest) *ComparisonTask {
	return &ComparisonTask{
		ID:        generateTaskID(),
		Request:   req,
		Status:    TaskStatusQueued,
		Progress:  0,
		Message:   "Task queued for processing",
		CreatedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

// UpdateProgress updates the task progress
func (t *ComparisonTask) UpdateProgress(progress int, message string) {
	t.Progress = progress
	t.Message = message
}

// Start marks the task as processing
func (t *ComparisonTask) Start() {
	t.Status = TaskStatusProcessing
	t.Progress = 0
	t.Message = "Starting comparison..."
	now := time.Now()
	t.StartedAt = &now
}

// Complete marks the task as completed with result
func (t *ComparisonTask) Complete(result *ComparisonResponse) {
	t.Status = TaskStatusCompleted
	t.Progress = 100
	t.Message = "Comparison completed successfully"
	t.Result = result
	now := time.Now()
	t.CompletedAt = &now
}

// Fail marks the task as failed with error
func (t *ComparisonTask) Fail(error string) {
	t.Status = TaskStatusFailed
	t.Progress = 0
	t.Message = "Comparison failed"
	t.Error = error
	now := time.Now()
	t.CompletedAt = &now
}

// IsCompleted returns true if the task is in a final state
func (t *ComparisonTask) IsCompleted() bool {
	return t.Status == TaskStatusCompleted || t.Status == TaskStatusFailed
}

// IsActive returns true if the task is still running
func (t *ComparisonTask) IsActive() bool {
	return t.Status == TaskStatusQueued || t.Status == TaskStatusProcessing
}

// Duration returns the duration of the task
func (t *ComparisonTask) Duration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}

	endTime := time.Now()
	if t.CompletedAt != nil {
		endTime = *t.CompletedAt
	}

	return endTime.Sub(*t.StartedAt)
}

// generateTaskID generates a unique task ID
func generateTaskID() string {
	return "task_" + time.Now().Format("20060102150405") + "_" + randomString(8)
}

// randomString generates a random hex string of specified length
func randomString(length int) string {
	b := make([]byte, (length+1)/2)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("150405.000000")
	}
	return hex.EncodeToString(b)[:length]
}
