package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// commandResult is the captured output of one external command.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := commandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
		return res, &CommandError{Command: name, Result: res, Err: err}
	}
	return res, nil
}

// CommandError keeps stderr of a failed command for the logs.
type CommandError struct {
	Command string
	Result  commandResult
	Err     error
}

func (e *CommandError) Error() string {
	tail := strings.TrimSpace(e.Result.Stderr)
	if len(tail) > 500 {
		tail = tail[len(tail)-500:]
	}
	if tail == "" {
		return fmt.Sprintf("%s exited %d: %v", e.Command, e.Result.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s exited %d: %s", e.Command, e.Result.ExitCode, tail)
}

func (e *CommandError) Unwrap() error { return e.Err }
