package system

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	utilexec "k8s.io/utils/exec"
)

// ToolError reports an external tool that could not be started or exited non-zero.
type ToolError struct {
	Tool       string
	ExitStatus int // -1 when the tool did not run to completion
	Stderr     string
	Err        error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if e.ExitStatus < 0 {
		if msg != "" {
			return fmt.Sprintf("%s failed: %v: %s", e.Tool, e.Err, msg)
		}
		return fmt.Sprintf("%s failed: %v", e.Tool, e.Err)
	}
	if msg == "" {
		return fmt.Sprintf("%s exited with status %d", e.Tool, e.ExitStatus)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Tool, e.ExitStatus, msg)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// ExitStatus extracts the exit code carried by err, or -1.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var exitErr utilexec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus()
	}
	return -1
}

// Run executes cmd and returns its stdout. On failure the stdout collected so
// far is still returned together with a *ToolError.
func Run(cmd utilexec.Cmd, tool string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd.SetStdout(&stdout)
	cmd.SetStderr(&stderr)

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), &ToolError{
			Tool:       tool,
			ExitStatus: ExitStatus(err),
			Stderr:     stderr.String(),
			Err:        err,
		}
	}
	return stdout.Bytes(), nil
}

// Stream executes cmd with stdout and stderr copied to w as they arrive.
// Stderr is also captured for the *ToolError returned on failure.
func Stream(cmd utilexec.Cmd, tool string, w io.Writer) error {
	var stderr bytes.Buffer
	cmd.SetStdout(w)
	cmd.SetStderr(io.MultiWriter(w, &stderr))

	if err := cmd.Run(); err != nil {
		return &ToolError{
			Tool:       tool,
			ExitStatus: ExitStatus(err),
			Stderr:     stderr.String(),
			Err:        err,
		}
	}
	return nil
}
