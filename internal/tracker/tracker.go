// Package tracker defines the capability pm needs from an external issue
// tracker, independent of any particular service.
package tracker

import (
	"context"
	"errors"
)

// State is the coarse issue state every tracker supports.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// ErrIssueNotFound is returned (possibly wrapped) when an issue does not exist.
var ErrIssueNotFound = errors.New("issue not found")

// Issue is the tracker-side view of a task or epic.
type Issue struct {
	Number    int64    `json:"number"`
	Title     string   `json:"title"`
	Body      string   `json:"body"`
	State     State    `json:"state"`
	Labels    []string `json:"labels,omitempty"`
	Assignees []string `json:"assignees,omitempty"`
	URL       string   `json:"url,omitempty"`
}

// NewIssue describes an issue to create.
type NewIssue struct {
	Title  string
	Body   string
	Labels []string
}

// Tracker is implemented by the network-backed GitHub client and by Fake.
type Tracker interface {
	GetIssue(ctx context.Context, number int64) (*Issue, error)
	CreateIssue(ctx context.Context, issue NewIssue) (*Issue, error)
	EditBody(ctx context.Context, number int64, body string) error
	Comment(ctx context.Context, number int64, body string) error
	Close(ctx context.Context, number int64) error
	Reopen(ctx context.Context, number int64) error
}
