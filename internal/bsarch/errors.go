package bsarch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrToolNotFound = errors.New("bsarch executable not found")
	ErrToolFailed   = errors.New("bsarch reported failure")
)

type ToolNotFoundError struct {
	Path string
}

func (e *ToolNotFoundError) Error() string {
	return fmt.Sprintf("%s at expected location: %s", ErrToolNotFound, e.Path)
}

func (e *ToolNotFoundError) Unwrap() error {
	return ErrToolNotFound
}

// ExecError means the process could not be started or waited on.
type ExecError struct {
	Path string
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("failed to execute %s: %v", e.Path, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

func (e *ExecError) Transient() bool {
	return true
}

// ToolFailedError means the process ran but reported failure, either through
// its exit code or an error marker in its output.
type ToolFailedError struct {
	Archive string
	Output  Output
}

func (e *ToolFailedError) Error() string {
	return fmt.Sprintf("failed to extract %s: %s", e.Archive, e.Output.FailureReason())
}

func (e *ToolFailedError) Unwrap() error {
	return ErrToolFailed
}

func (e *ToolFailedError) Transient() bool {
	return true
}

func (o Output) FailureReason() string {
	stdout := strings.TrimSpace(o.Stdout)
	stderr := strings.TrimSpace(o.Stderr)

	if o.ExitCode != 0 {
		detail := stderr
		if detail == "" {
			detail = stdout
		}
		if detail == "" {
			return fmt.Sprintf("tool exited with code %d", o.ExitCode)
		}
		return fmt.Sprintf("tool exited with code %d: %s", o.ExitCode, detail)
	}

	parts := make([]string, 0, 2)
	if stdout != "" {
		parts = append(parts, stdout)
	}
	if stderr != "" {
		parts = append(parts, stderr)
	}
	return "tool reported error: " + strings.Join(parts, "\n")
}
