// Package github implements tracker.Tracker on the GitHub REST API.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/untoldecay/ccpm/internal/tracker"
)

const (
	// DefaultEndpoint is the public GitHub API.
	DefaultEndpoint = "https://api.github.com"

	// DefaultTimeout bounds a single HTTP request.
	DefaultTimeout = 30 * time.Second

	// MaxRetries is the number of retries after a rate-limited response.
	MaxRetries = 3

	// RetryDelay is the base delay for exponential backoff.
	RetryDelay = time.Second

	apiVersion = "2022-11-28"
)

// Client talks to the issues API of a single repository.
type Client struct {
	Token      string
	Owner      string
	Repo       string
	Endpoint   string
	HTTPClient *http.Client

	retryDelay time.Duration
}

var _ tracker.Tracker = (*Client)(nil)

// NewClient creates a client for repo, given as "owner/name".
func NewClient(token, repo string) (*Client, error) {
	owner, name, ok := strings.Cut(strings.TrimSuffix(repo, ".git"), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return nil, fmt.Errorf("invalid repository %q: expected owner/name", repo)
	}
	return &Client{
		Token:      token,
		Owner:      owner,
		Repo:       name,
		Endpoint:   DefaultEndpoint,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		retryDelay: RetryDelay,
	}, nil
}

// WithEndpoint returns a copy of the client that targets endpoint, such as a
// GitHub Enterprise API root or a test server.
func (c *Client) WithEndpoint(endpoint string) *Client {
	cp := *c
	cp.Endpoint = strings.TrimRight(endpoint, "/")
	return &cp
}

// WithHTTPClient returns a copy of the client that uses httpClient.
func (c *Client) WithHTTPClient(httpClient *http.Client) *Client {
	cp := *c
	cp.HTTPClient = httpClient
	return &cp
}

// WithRetryDelay returns a copy of the client with a different backoff base.
func (c *Client) WithRetryDelay(d time.Duration) *Client {
	cp := *c
	cp.retryDelay = d
	return &cp
}

// ParseRepo extracts "owner/name" from a git remote URL. Both the
// https and scp-style ssh forms are accepted.
func ParseRepo(remote string) (string, bool) {
	s := strings.TrimSpace(remote)
	s = strings.TrimSuffix(s, ".git")
	switch {
	case strings.HasPrefix(s, "git@"):
		_, s, _ = strings.Cut(s, ":")
	case strings.Contains(s, "://"):
		_, s, _ = strings.Cut(s, "://")
		_, s, _ = strings.Cut(s, "/")
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "/" + parts[1], true
}

func (c *Client) issuePath(number int64, suffix string) string {
	return fmt.Sprintf("/repos/%s/%s/issues/%d%s", c.Owner, c.Repo, number, suffix)
}

// do sends a request and decodes the JSON response into out when non-nil.
// Rate-limited responses are retried with exponential backoff.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, method, c.Endpoint+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.Token != "" {
			req.Header.Set("Authorization", "Bearer "+c.Token)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			if out == nil || len(respBody) == 0 {
				return nil
			}
			if err := json.Unmarshal(respBody, out); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			return nil
		}

		apiErr := newAPIError(resp.StatusCode, respBody)
		if !IsRateLimited(apiErr) {
			return apiErr
		}
		lastErr = apiErr

		delay := c.retryDelay * time.Duration(1<<attempt)
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && time.Duration(secs)*time.Second > delay {
				delay = time.Duration(secs) * time.Second
			}
		}
		if attempt == MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", MaxRetries+1, lastErr)
}
