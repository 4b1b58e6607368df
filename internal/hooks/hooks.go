// Package hooks runs user scripts after task transitions.
// Hooks are executable files in .pm/hooks/ named after the event.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/untoldecay/ccpm/internal/types"
)

// Event types
const (
	EventStart  = "start"
	EventClose  = "close"
	EventReopen = "reopen"
)

// Hook file names
const (
	HookOnStart  = "on_task_start"
	HookOnClose  = "on_task_close"
	HookOnReopen = "on_task_reopen"
)

// Runner handles hook execution
type Runner struct {
	hooksDir string
	timeout  time.Duration
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewRunner creates a new hook runner.
// hooksDir is typically .pm/hooks/ relative to the workspace root.
func NewRunner(hooksDir string) *Runner {
	return &Runner{
		hooksDir: hooksDir,
		timeout:  10 * time.Second,
		logger:   slog.Default(),
	}
}

// NewRunnerFromWorkspace creates a hook runner for a workspace.
func NewRunnerFromWorkspace(workspaceRoot string) *Runner {
	return NewRunner(filepath.Join(workspaceRoot, ".pm", "hooks"))
}

// WithLogger sets where hook failures are reported.
func (r *Runner) WithLogger(l *slog.Logger) *Runner {
	if l != nil {
		r.logger = l
	}
	return r
}

// Run starts the hook for event in the background if it exists. Call Wait
// before the process exits so hooks are not cut short.
func (r *Runner) Run(event string, task *types.Task) {
	hookPath, ok := r.hookPath(event)
	if !ok {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.runHook(hookPath, event, task); err != nil {
			r.logger.Warn("hook failed", "hook", filepath.Base(hookPath), "task", task.Ref(), "error", err)
		}
	}()
}

// Wait blocks until every hook started by Run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// RunSync executes a hook synchronously and returns any error.
func (r *Runner) RunSync(event string, task *types.Task) error {
	hookPath, ok := r.hookPath(event)
	if !ok {
		return nil
	}
	return r.runHook(hookPath, event, task)
}

// HookExists checks if an executable hook exists for an event
func (r *Runner) HookExists(event string) bool {
	_, ok := r.hookPath(event)
	return ok
}

func (r *Runner) hookPath(event string) (string, bool) {
	if r == nil {
		return "", false
	}
	hookName := eventToHook(event)
	if hookName == "" {
		return "", false
	}
	hookPath := filepath.Join(r.hooksDir, hookName)
	info, err := os.Stat(hookPath)
	if err != nil || info.IsDir() {
		return "", false
	}
	if info.Mode()&0111 == 0 {
		return "", false
	}
	return hookPath, true
}

func eventToHook(event string) string {
	switch event {
	case EventStart:
		return HookOnStart
	case EventClose:
		return HookOnClose
	case EventReopen:
		return HookOnReopen
	default:
		return ""
	}
}

// hookCommand builds `hook <epic#n> <event>` with the task JSON on stdin
// and PM_TASK / PM_EVENT / PM_EPIC in the environment. Stdout is dropped.
func hookCommand(ctx context.Context, hookPath, event string, task *types.Task) (*exec.Cmd, *bytes.Buffer, error) {
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return nil, nil, err
	}
	// #nosec G204 -- hookPath is from the controlled .pm/hooks directory
	cmd := exec.CommandContext(ctx, hookPath, task.Ref(), event)
	cmd.Stdin = bytes.NewReader(taskJSON)
	cmd.Env = append(os.Environ(),
		"PM_TASK="+task.Ref(),
		"PM_EVENT="+event,
		"PM_EPIC="+task.EpicName,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	return cmd, &stderr, nil
}
