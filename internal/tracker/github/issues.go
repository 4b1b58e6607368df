package github

import (
	"context"

	"github.com/untoldecay/ccpm/internal/tracker"
)

type issuePayload struct {
	Number  int64  `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Assignees []struct {
		Login string `json:"login"`
	} `json:"assignees"`
}

func (p *issuePayload) toIssue() *tracker.Issue {
	is := &tracker.Issue{
		Number: p.Number,
		Title:  p.Title,
		Body:   p.Body,
		State:  tracker.StateOpen,
		URL:    p.HTMLURL,
	}
	if p.State == "closed" {
		is.State = tracker.StateClosed
	}
	for _, l := range p.Labels {
		is.Labels = append(is.Labels, l.Name)
	}
	for _, a := range p.Assignees {
		is.Assignees = append(is.Assignees, a.Login)
	}
	return is
}

// GetIssue fetches a single issue.
func (c *Client) GetIssue(ctx context.Context, number int64) (*tracker.Issue, error) {
	var p issuePayload
	if err := c.do(ctx, "GET", c.issuePath(number, ""), nil, &p); err != nil {
		return nil, err
	}
	return p.toIssue(), nil
}

// CreateIssue opens a new issue.
func (c *Client) CreateIssue(ctx context.Context, n tracker.NewIssue) (*tracker.Issue, error) {
	req := map[string]any{"title": n.Title, "body": n.Body}
	if len(n.Labels) > 0 {
		req["labels"] = n.Labels
	}
	var p issuePayload
	path := "/repos/" + c.Owner + "/" + c.Repo + "/issues"
	if err := c.do(ctx, "POST", path, req, &p); err != nil {
		return nil, err
	}
	return p.toIssue(), nil
}

// EditBody replaces an issue's body.
func (c *Client) EditBody(ctx context.Context, number int64, body string) error {
	return c.do(ctx, "PATCH", c.issuePath(number, ""), map[string]string{"body": body}, nil)
}

// Comment posts a comment on an issue.
func (c *Client) Comment(ctx context.Context, number int64, body string) error {
	return c.do(ctx, "POST", c.issuePath(number, "/comments"), map[string]string{"body": body}, nil)
}

// Close closes an issue as completed.
func (c *Client) Close(ctx context.Context, number int64) error {
	req := map[string]string{"state": "closed", "state_reason": "completed"}
	return c.do(ctx, "PATCH", c.issuePath(number, ""), req, nil)
}

// Reopen reopens a closed issue.
func (c *Client) Reopen(ctx context.Context, number int64) error {
	return c.do(ctx, "PATCH", c.issuePath(number, ""), map[string]string{"state": "open"}, nil)
}
