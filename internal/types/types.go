// Package types defines the core data structures for PRDs, epics, tasks and
// the dependency edges between tasks.
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PRDStatus represents the lifecycle state of a product requirement document
type PRDStatus string

// PRD status constants
const (
	PRDBacklog  PRDStatus = "backlog"
	PRDActive   PRDStatus = "active"
	PRDComplete PRDStatus = "complete"
)

// IsValid checks if the PRD status value is valid
func (s PRDStatus) IsValid() bool {
	switch s {
	case PRDBacklog, PRDActive, PRDComplete:
		return true
	}
	return false
}

// EpicStatus represents the lifecycle state of an epic
type EpicStatus string

// Epic status constants
const (
	EpicBacklog EpicStatus = "backlog"
	EpicActive  EpicStatus = "active"
	EpicClosed  EpicStatus = "closed"
)

// IsValid checks if the epic status value is valid
func (s EpicStatus) IsValid() bool {
	switch s {
	case EpicBacklog, EpicActive, EpicClosed:
		return true
	}
	return false
}

// TaskStatus represents the lifecycle state of a task
type TaskStatus string

// Task status constants
const (
	StatusOpen       TaskStatus = "open"
	StatusInProgress TaskStatus = "in_progress"
	StatusClosed     TaskStatus = "closed"
)

// IsValid checks if the task status value is valid
func (s TaskStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusClosed:
		return true
	}
	return false
}

// ParseTaskStatus accepts the canonical spelling plus the common "in-progress" form.
func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !st.IsValid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("invalid task status %q", s)}
	}
	return st, nil
}

// PRD is the top-level grouping above epics.
type PRD struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      PRDStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

// Validate checks if the PRD has valid field values
func (p *PRD) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "PRD name is required"}
	}
	if !p.Status.IsValid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("invalid PRD status %q", p.Status)}
	}
	return nil
}

// Epic groups related tasks and tracks their aggregate completion.
type Epic struct {
	ID            int64      `json:"id"`
	PRDID         *int64     `json:"prd_id,omitempty"`
	Name          string     `json:"name"`
	Content       string     `json:"content,omitempty"`
	Status        EpicStatus `json:"status"`
	Progress      int        `json:"progress"`
	ExternalIssue *int64     `json:"external_issue,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	DeletedAt     *time.Time `json:"deleted_at,omitempty"`
}

// Validate checks if the epic has valid field values
func (e *Epic) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "name", Reason: "epic name is required"}
	}
	if !e.Status.IsValid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("invalid epic status %q", e.Status)}
	}
	if e.Progress < 0 || e.Progress > 100 {
		return &ValidationError{Field: "progress", Reason: fmt.Sprintf("progress must be between 0 and 100 (got %d)", e.Progress)}
	}
	return nil
}

// Task is an atomic unit of work, numbered sequentially within its epic.
type Task struct {
	ID               int64      `json:"id"`
	EpicID           int64      `json:"epic_id"`
	Number           int        `json:"task_number"`
	Name             string     `json:"name"`
	Description      string     `json:"description,omitempty"`
	Status           TaskStatus `json:"status"`
	EstimatedHours   *float64   `json:"estimated_hours,omitempty"`
	ActualHours      *float64   `json:"actual_hours,omitempty"`
	Parallel         bool       `json:"parallel"`
	ExternalIssue    *int64     `json:"external_issue,omitempty"`
	ExternalSyncedAt *time.Time `json:"external_synced_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	DeletedAt        *time.Time `json:"deleted_at,omitempty"`

	// EpicName is populated by reads that join the owning epic.
	EpicName string `json:"epic,omitempty"`
}

// Validate checks if the task has valid field values
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{Field: "name", Reason: "task name is required"}
	}
	if !t.Status.IsValid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("invalid task status %q", t.Status)}
	}
	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		return &ValidationError{Field: "estimated_hours", Reason: "cannot be negative"}
	}
	if t.ActualHours != nil && *t.ActualHours < 0 {
		return &ValidationError{Field: "actual_hours", Reason: "cannot be negative"}
	}
	return nil
}

// Ref returns the human-facing "epic#N" reference.
func (t *Task) Ref() string {
	if t.EpicName == "" {
		return fmt.Sprintf("#%d", t.Number)
	}
	return fmt.Sprintf("%s#%d", t.EpicName, t.Number)
}

// Dependency is a directed edge: TaskID depends on DependsOnID.
type Dependency struct {
	TaskID      int64     `json:"task_id"`
	DependsOnID int64     `json:"depends_on_task_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// TaskRef is the natural key of a task.
type TaskRef struct {
	Epic   string
	Number int
}

func (r TaskRef) String() string {
	return fmt.Sprintf("%s#%d", r.Epic, r.Number)
}

// ParseTaskNumber parses a positive task number.
func ParseTaskNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(s), "#"))
	if err != nil {
		return 0, &ValidationError{Field: "task_number", Reason: fmt.Sprintf("task number must be numeric (got %q)", s)}
	}
	if n <= 0 {
		return 0, &ValidationError{Field: "task_number", Reason: fmt.Sprintf("task number must be positive (got %d)", n)}
	}
	return n, nil
}

// ParseTaskRef accepts "epic#3", "epic/3" or "epic:3".
func ParseTaskRef(s string) (TaskRef, error) {
	idx := strings.LastIndexAny(s, "#/:")
	if idx <= 0 || idx == len(s)-1 {
		return TaskRef{}, &ValidationError{Field: "task", Reason: fmt.Sprintf("expected <epic>#<number>, got %q", s)}
	}
	n, err := ParseTaskNumber(s[idx+1:])
	if err != nil {
		return TaskRef{}, err
	}
	return TaskRef{Epic: s[:idx], Number: n}, nil
}

// ParseIssueNumber parses an external issue number such as "42" or "#42".
func ParseIssueNumber(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(s), "#"), 10, 64)
	if err != nil || n <= 0 {
		return 0, &ValidationError{Field: "issue", Reason: fmt.Sprintf("invalid issue number %q", s)}
	}
	return n, nil
}
