// Package exec runs stage commands as external processes, capturing
// their output and exit status.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/slipwayci/slipway/pkg/ports"
)

// Runner implements ports.CommandRunner using os/exec.
type Runner struct{}

// NewRunner creates a new process-based command runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes command in dir with the given extra environment,
// capturing stdout and stderr. A non-zero exit status is reported in the
// result; the error return is reserved for failures to start or observe
// the process.
func (r *Runner) Run(ctx context.Context, dir string, env []string, command []string) (*ports.CommandResult, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &ports.CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("command %v failed to run: %w", command, err)
	}

	return result, nil
}
