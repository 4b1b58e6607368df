//go:build windows

package hooks

import (
	"bytes"
	"context"
	"fmt"

	"github.com/untoldecay/ccpm/internal/types"
)

// runHook executes the hook with a timeout. There are no process groups
// here, so CommandContext kills only the started process.
func (r *Runner) runHook(hookPath, event string, task *types.Task) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	cmd, stderr, err := hookCommand(ctx, hookPath, event, task)
	if err != nil {
		return err
	}
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
