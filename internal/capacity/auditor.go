// Package capacity audits removable media for counterfeit capacity with f3.
//
// The audit is a linear sequence: Confirm, Fill (f3write), Verify (f3read)
// and an optional Cleanup of the files f3 leaves behind. It consumes all free
// space on the target volume while it runs.
package capacity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	utilexec "k8s.io/utils/exec"

	"diskinspector/internal/logging"
	"diskinspector/internal/security"
	"diskinspector/internal/system"
)

const confirmation = "YES"

// ErrNotMounted is returned when the target disk has no mounted partition.
var ErrNotMounted = errors.New("disk has no mounted partition")

// Prompter reads one answer from the operator.
type Prompter interface {
	Prompt(ctx context.Context, message string) (string, error)
}

// SpaceReporter reports free bytes at a mount point.
type SpaceReporter interface {
	FreeBytes(ctx context.Context, mountPoint string) (int64, error)
}

// CleanupFailure is one file that could not be removed.
type CleanupFailure struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

type CleanupReport struct {
	Removed []string         `json:"removed"`
	Failed  []CleanupFailure `json:"failed,omitempty"`
}

// Result is the outcome of one audit.
type Result struct {
	Device        string         `json:"device"`
	MountPoint    string         `json:"mount_point"`
	Verdict       Verdict        `json:"verdict"`
	IsCounterfeit bool           `json:"is_counterfeit"`
	RawOutput     string         `json:"raw_output,omitempty"`
	Stderr        string         `json:"stderr,omitempty"`
	ExitCode      int            `json:"exit_code"`
	FreeBytes     int64          `json:"free_bytes"` // -1 when unknown
	Cleanup       *CleanupReport `json:"cleanup,omitempty"`
}

// Auditor runs the f3 fill/verify cycle against a mounted disk.
type Auditor struct {
	exec     utilexec.Interface
	tools    *system.Toolchain
	guard    *security.Guard
	space    SpaceReporter
	patterns []string
	out      io.Writer
	logger   *logging.Logger
}

func NewAuditor(exec utilexec.Interface, tools *system.Toolchain, guard *security.Guard, space SpaceReporter, patterns []string, out io.Writer, logger *logging.Logger) *Auditor {
	return &Auditor{
		exec:     exec,
		tools:    tools,
		guard:    guard,
		space:    space,
		patterns: patterns,
		out:      out,
		logger:   logger,
	}
}

// Run executes the audit. A declined confirmation yields VerdictCancelled and
// a nil error. A cancelled context stops the audit at the next step boundary.
func (a *Auditor) Run(ctx context.Context, disk system.DiskEntry, prompter Prompter) (*Result, error) {
	if err := a.guard.Check(disk.DevicePath); err != nil {
		a.logger.Log("WARN", "capacity audit refused", "device", disk.DevicePath, "reason", err.Error())
		return nil, err
	}
	if !disk.Mounted() {
		return nil, fmt.Errorf("%w: %s", ErrNotMounted, disk.DevicePath)
	}
	if err := a.tools.Require(system.ToolF3Write, system.ToolF3Read); err != nil {
		return nil, err
	}

	result := &Result{Device: disk.DevicePath, MountPoint: disk.MountPoint, FreeBytes: -1}

	ok, err := a.confirm(ctx, disk, prompter, result)
	if err != nil {
		return result, err
	}
	if !ok {
		result.Verdict = VerdictCancelled
		a.logger.Log("INFO", "capacity audit cancelled", "device", disk.DevicePath)
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		result.Verdict = VerdictCancelled
		return result, err
	}
	if err := a.fill(ctx, disk.MountPoint); err != nil {
		result.Verdict = VerdictFailed
		a.logger.Log("ERROR", "f3write failed", "device", disk.DevicePath, "error", err.Error())
		var toolErr *system.ToolError
		if errors.As(err, &toolErr) {
			a.remindCleanup(disk.MountPoint)
		}
		return result, err
	}

	if err := ctx.Err(); err != nil {
		result.Verdict = VerdictCancelled
		return result, err
	}
	if err := a.verify(ctx, disk.MountPoint, result); err != nil {
		result.Verdict = VerdictFailed
		a.logger.Log("ERROR", "f3read failed", "device", disk.DevicePath, "error", err.Error())
		return result, err
	}
	a.logger.Log("INFO", "capacity audit finished", "device", disk.DevicePath, "verdict", string(result.Verdict))

	if err := ctx.Err(); err != nil {
		return result, err
	}
	answer, err := prompter.Prompt(ctx, "Delete the test files from "+disk.MountPoint+"? (y/N): ")
	if err != nil {
		return result, err
	}
	if strings.EqualFold(strings.TrimSpace(answer), "y") {
		report := Cleanup(disk.MountPoint, a.patterns)
		result.Cleanup = &report
		for _, f := range report.Failed {
			a.logger.Log("WARN", "failed to remove test file", "file", f.Path, "error", f.Error)
		}
	} else {
		a.remindCleanup(disk.MountPoint)
	}
	return result, nil
}

func (a *Auditor) remindCleanup(mountPoint string) {
	fmt.Fprintf(a.out, "Test files left in %s; remove files matching %s manually.\n",
		mountPoint, strings.Join(a.patterns, ", "))
}

func (a *Auditor) confirm(ctx context.Context, disk system.DiskEntry, prompter Prompter, result *Result) (bool, error) {
	free := "unknown"
	if bytes, err := a.space.FreeBytes(ctx, disk.MountPoint); err == nil {
		result.FreeBytes = bytes
		free = humanize.IBytes(uint64(bytes))
	} else {
		a.logger.Log("WARN", "free space unavailable", "mount", disk.MountPoint, "error", err.Error())
	}

	fmt.Fprintf(a.out, "Target:     %s (%s)\n", disk.MountPoint, disk.DevicePath)
	fmt.Fprintf(a.out, "Free space: %s\n", free)
	fmt.Fprintln(a.out, "The test fills ALL free space and may take a long time.")

	answer, err := prompter.Prompt(ctx, "Type 'YES' to start: ")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(answer) == confirmation, nil
}

func (a *Auditor) fill(ctx context.Context, mountPoint string) error {
	path, err := a.tools.Path(system.ToolF3Write)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Writing test data...")
	return system.Stream(a.exec.CommandContext(ctx, path, mountPoint), system.ToolF3Write, a.out)
}

func (a *Auditor) verify(ctx context.Context, mountPoint string, result *Result) error {
	path, err := a.tools.Path(system.ToolF3Read)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Verifying test data...")
	out, err := system.Run(a.exec.CommandContext(ctx, path, mountPoint), system.ToolF3Read)
	result.RawOutput = string(out)
	result.ExitCode = system.ExitStatus(err)

	var toolErr *system.ToolError
	if errors.As(err, &toolErr) {
		if toolErr.ExitStatus < 0 {
			return err
		}
		result.Stderr = toolErr.Stderr
	}
	fmt.Fprint(a.out, result.RawOutput)
	if result.Stderr != "" {
		fmt.Fprint(a.out, result.Stderr)
		if !strings.HasSuffix(result.Stderr, "\n") {
			fmt.Fprintln(a.out)
		}
	}

	result.Verdict = Classify(result.ExitCode, result.RawOutput)
	result.IsCounterfeit = result.Verdict == VerdictCounterfeit
	return nil
}

// Cleanup removes every file in dir matching one of patterns. Failures are
// collected and the batch continues.
func Cleanup(dir string, patterns []string) CleanupReport {
	report := CleanupReport{Removed: []string{}}
	seen := map[string]bool{}
	var matches []string
	for _, pattern := range patterns {
		found, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			report.Failed = append(report.Failed, CleanupFailure{Path: pattern, Error: err.Error()})
			continue
		}
		for _, m := range found {
			if !seen[m] {
				seen[m] = true
				matches = append(matches, m)
			}
		}
	}
	sort.Strings(matches)

	for _, m := range matches {
		if err := os.Remove(m); err != nil {
			report.Failed = append(report.Failed, CleanupFailure{Path: m, Error: err.Error()})
			continue
		}
		report.Removed = append(report.Removed, m)
	}
	return report
}
