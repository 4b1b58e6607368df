package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Fake is a deterministic in-memory Tracker. Issue numbers start at 1 and
// increase by one per CreateIssue.
type Fake struct {
	mu       sync.Mutex
	issues   map[int64]*Issue
	comments map[int64][]string
	next     int64

	// Ops records every call as "op #n" in order.
	Ops []string
	// Fail makes the named operation ("get", "create", "edit", "comment",
	// "close", "reopen") return the given error.
	Fail map[string]error
}

var _ Tracker = (*Fake)(nil)

// NewFake returns an empty fake tracker.
func NewFake() *Fake {
	return &Fake{
		issues:   make(map[int64]*Issue),
		comments: make(map[int64][]string),
		next:     1,
		Fail:     make(map[string]error),
	}
}

// Seed stores an issue as-is, advancing the number counter past it.
func (f *Fake) Seed(issue Issue) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if issue.State == "" {
		issue.State = StateOpen
	}
	cp := issue
	f.issues[issue.Number] = &cp
	if issue.Number >= f.next {
		f.next = issue.Number + 1
	}
}

// Issue returns a copy of the stored issue.
func (f *Fake) Issue(number int64) (Issue, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	is, ok := f.issues[number]
	if !ok {
		return Issue{}, false
	}
	return *is, true
}

// Comments returns the comments posted on an issue.
func (f *Fake) Comments(number int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments[number]...)
}

// Count returns how many times op was called.
func (f *Fake) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, o := range f.Ops {
		if name, _, _ := strings.Cut(o, " "); name == op {
			n++
		}
	}
	return n
}

func (f *Fake) record(op string, number int64) (*Issue, error) {
	f.Ops = append(f.Ops, fmt.Sprintf("%s #%d", op, number))
	if err := f.Fail[op]; err != nil {
		return nil, err
	}
	if op == "create" {
		return nil, nil
	}
	is, ok := f.issues[number]
	if !ok {
		return nil, fmt.Errorf("issue #%d: %w", number, ErrIssueNotFound)
	}
	return is, nil
}

func (f *Fake) GetIssue(_ context.Context, number int64) (*Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	is, err := f.record("get", number)
	if err != nil {
		return nil, err
	}
	cp := *is
	cp.Labels = append([]string(nil), is.Labels...)
	return &cp, nil
}

func (f *Fake) CreateIssue(_ context.Context, n NewIssue) (*Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	number := f.next
	if _, err := f.record("create", number); err != nil {
		return nil, err
	}
	f.next++
	is := &Issue{
		Number: number,
		Title:  n.Title,
		Body:   n.Body,
		State:  StateOpen,
		Labels: append([]string(nil), n.Labels...),
		URL:    fmt.Sprintf("https://tracker.test/issues/%d", number),
	}
	f.issues[number] = is
	cp := *is
	return &cp, nil
}

func (f *Fake) EditBody(_ context.Context, number int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	is, err := f.record("edit", number)
	if err != nil {
		return err
	}
	is.Body = body
	return nil
}

func (f *Fake) Comment(_ context.Context, number int64, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.record("comment", number); err != nil {
		return err
	}
	f.comments[number] = append(f.comments[number], body)
	return nil
}

func (f *Fake) Close(_ context.Context, number int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	is, err := f.record("close", number)
	if err != nil {
		return err
	}
	is.State = StateClosed
	return nil
}

func (f *Fake) Reopen(_ context.Context, number int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	is, err := f.record("reopen", number)
	if err != nil {
		return err
	}
	is.State = StateOpen
	return nil
}
