package model

// TaskStatus tracks a task through its lifecycle inside a phase run.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// Task is one unit of work within a phase, typically one URL.
type Task struct {
	ID      string     `json:"id"`
	Phase   Phase      `json:"phase"`
	URL     string     `json:"url"`
	Attempt int        `json:"attempt"`
	Status  TaskStatus `json:"status"`
}

// TaskResult is the payload a phase executor produced for one task.
type TaskResult struct {
	TaskID string `json:"task_id"`
	URL    string `json:"url"`
	Data   any    `json:"data,omitempty"`
}

// TaskFailure records a task that failed permanently (or exhausted retries).
type TaskFailure struct {
	TaskID   string `json:"task_id"`
	URL      string `json:"url"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}
