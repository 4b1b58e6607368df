package types

import "time"

// PRDUpdate lists the settable PRD fields. Nil fields are left unchanged.
type PRDUpdate struct {
	Name        *string
	Description *string
	Status      *PRDStatus
}

// IsEmpty reports whether the update changes nothing.
func (u PRDUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Status == nil
}

// Validate rejects values that can never be stored.
func (u PRDUpdate) Validate() error {
	if u.Name != nil && *u.Name == "" {
		return &ValidationError{Field: "name", Reason: "PRD name cannot be empty"}
	}
	if u.Status != nil && !u.Status.IsValid() {
		return &ValidationError{Field: "status", Reason: "invalid PRD status " + string(*u.Status)}
	}
	return nil
}

// EpicUpdate lists the settable epic fields. Nil fields are left unchanged.
type EpicUpdate struct {
	Name          *string
	Content       *string
	Status        *EpicStatus
	Progress      *int
	PRDID         *int64
	ExternalIssue *int64 // 0 clears the link
}

// IsEmpty reports whether the update changes nothing.
func (u EpicUpdate) IsEmpty() bool {
	return u.Name == nil && u.Content == nil && u.Status == nil &&
		u.Progress == nil && u.PRDID == nil && u.ExternalIssue == nil
}

// Validate rejects values that can never be stored.
func (u EpicUpdate) Validate() error {
	if u.Name != nil && *u.Name == "" {
		return &ValidationError{Field: "name", Reason: "epic name cannot be empty"}
	}
	if u.Status != nil && !u.Status.IsValid() {
		return &ValidationError{Field: "status", Reason: "invalid epic status " + string(*u.Status)}
	}
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		return &ValidationError{Field: "progress", Reason: "progress must be between 0 and 100"}
	}
	return nil
}

// TaskUpdate lists the settable task fields. Nil fields are left unchanged.
type TaskUpdate struct {
	Name             *string
	Description      *string
	Status           *TaskStatus
	EstimatedHours   *float64
	ActualHours      *float64
	Parallel         *bool
	ExternalIssue    *int64 // 0 clears the link
	ExternalSyncedAt *time.Time
}

// IsEmpty reports whether the update changes nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.Status == nil &&
		u.EstimatedHours == nil && u.ActualHours == nil && u.Parallel == nil &&
		u.ExternalIssue == nil && u.ExternalSyncedAt == nil
}

// Validate rejects values that can never be stored.
func (u TaskUpdate) Validate() error {
	if u.Name != nil && *u.Name == "" {
		return &ValidationError{Field: "name", Reason: "task name cannot be empty"}
	}
	if u.Status != nil && !u.Status.IsValid() {
		return &ValidationError{Field: "status", Reason: "invalid task status " + string(*u.Status)}
	}
	if u.EstimatedHours != nil && *u.EstimatedHours < 0 {
		return &ValidationError{Field: "estimated_hours", Reason: "cannot be negative"}
	}
	if u.ActualHours != nil && *u.ActualHours < 0 {
		return &ValidationError{Field: "actual_hours", Reason: "cannot be negative"}
	}
	return nil
}

// TaskFilter narrows ListTasks. Zero values match everything.
type TaskFilter struct {
	EpicID           *int64
	Status           *TaskStatus
	HasExternalIssue *bool
	Query            string // substring match on name or description
	Limit            int
}

// EpicFilter narrows ListEpics.
type EpicFilter struct {
	PRDID  *int64
	Status *EpicStatus
}

// StrPtr, Int64Ptr and friends help build update sets.
func StrPtr(s string) *string { return &s }

func Int64Ptr(n int64) *int64 { return &n }

func IntPtr(n int) *int { return &n }

func BoolPtr(b bool) *bool { return &b }

func Float64Ptr(f float64) *float64 { return &f }

func TaskStatusPtr(s TaskStatus) *TaskStatus { return &s }

func EpicStatusPtr(s EpicStatus) *EpicStatus { return &s }
