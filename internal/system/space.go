package system

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	utilexec "k8s.io/utils/exec"

	"diskinspector/internal/logging"
)

// ErrSpaceUnavailable replaces a silent zero when free space cannot be read.
var ErrSpaceUnavailable = errors.New("free space unavailable")

// SpaceProbe reports free bytes at a mount point.
type SpaceProbe struct {
	exec   utilexec.Interface
	tools  *Toolchain
	logger *logging.Logger
	statfs func(path string) (int64, error)
}

func NewSpaceProbe(exec utilexec.Interface, tools *Toolchain, logger *logging.Logger) *SpaceProbe {
	return &SpaceProbe{
		exec:   exec,
		tools:  tools,
		logger: logger,
		statfs: statfsAvailable,
	}
}

// FreeBytes asks df for the bytes available to unprivileged users and falls
// back to statfs(2) when df is missing or its output is unusable.
func (p *SpaceProbe) FreeBytes(ctx context.Context, mountPoint string) (int64, error) {
	free, dfErr := p.dfAvailable(ctx, mountPoint)
	if dfErr == nil {
		return free, nil
	}
	p.logger.Log("WARN", "df failed, trying statfs", "mount", mountPoint, "error", dfErr.Error())

	free, err := p.statfs(mountPoint)
	if err != nil {
		return 0, fmt.Errorf("%w for %s: %v", ErrSpaceUnavailable, mountPoint, dfErr)
	}
	return free, nil
}

func (p *SpaceProbe) dfAvailable(ctx context.Context, mountPoint string) (int64, error) {
	df, err := p.tools.Path(ToolDf)
	if err != nil {
		return 0, err
	}
	out, err := Run(p.exec.CommandContext(ctx, df, "-P", "-B1", mountPoint), ToolDf)
	if err != nil {
		return 0, err
	}
	return ParseDFOutput(string(out))
}

// ParseDFOutput reads the fourth field of the second line of df output.
func ParseDFOutput(output string) (int64, error) {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("unexpected df output: %d line(s)", len(lines))
	}
	fields := strings.Fields(lines[1])
	if len(fields) < 4 {
		return 0, fmt.Errorf("unexpected df output: %q", lines[1])
	}
	available, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unexpected df available field %q: %w", fields[3], err)
	}
	return available, nil
}

func statfsAvailable(path string) (int64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0, err
	}
	return int64(st.Bavail) * int64(st.Bsize), nil
}
