// internal/models/task.go
package models

import "time"

// TaskStatus defines the possible statuses for a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusOverDue    TaskStatus = "over_due"
)

// Valid reports whether s is one of the enumerated statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusOverDue:
		return true
	}
	return false
}

// Open reports whether a task in this status can still become overdue.
func (s TaskStatus) Open() bool {
	return s == StatusPending || s == StatusInProgress
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task represents the structure of a task in the system.
type Task struct {
	ID               string       `json:"id"`
	UserID           string       `json:"user_id"`
	Title            string       `json:"title"`
	Description      string       `json:"description,omitempty"`
	Priority         TaskPriority `json:"priority"`
	Status           TaskStatus   `json:"status"`
	DueDate          *time.Time   `json:"due_date,omitempty"`
	DeadlineNotified bool         `json:"deadline_notified"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// IsOverdue reports whether the overdue sweep would flag the task at now.
func (t *Task) IsOverdue(now time.Time) bool {
	return t.Status.Open() && t.DueDate != nil && t.DueDate.Before(now)
}

// TaskFilter defines the available parameters for filtering tasks.
// Time ranges are half-open: [From, To).
type TaskFilter struct {
	UserID        *string
	Status        *TaskStatus
	Priority      *TaskPriority
	TitleContains *string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
	DueFrom       *time.Time
	DueTo         *time.Time
}
