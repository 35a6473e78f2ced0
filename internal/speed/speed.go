// Package speed measures sequential device throughput with dd and direct I/O,
// so the numbers reflect the device rather than the page cache.
package speed

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	utilexec "k8s.io/utils/exec"

	"diskinspector/internal/logging"
	"diskinspector/internal/security"
	"diskinspector/internal/system"
)

const DefaultSizeMB = 512

// ErrNoMountPoint is returned for write tests on a disk without a mounted partition.
var ErrNoMountPoint = errors.New("mount point does not exist")

// Result is one completed throughput measurement.
type Result struct {
	Operation string        `json:"operation"` // "write" or "read"
	Device    string        `json:"device"`
	Target    string        `json:"target"`
	SizeMB    int           `json:"size_mb"`
	Duration  time.Duration `json:"duration"`
	MBps      float64       `json:"mb_per_second"`
}

// Probe runs dd against a mount point or a raw device.
type Probe struct {
	exec      utilexec.Interface
	tools     *system.Toolchain
	guard     *security.Guard
	escalator *security.Escalator
	logger    *logging.Logger
	tempFile  string
	now       func() time.Time
}

func NewProbe(exec utilexec.Interface, tools *system.Toolchain, guard *security.Guard, escalator *security.Escalator, tempFile string, logger *logging.Logger) *Probe {
	return &Probe{
		exec:      exec,
		tools:     tools,
		guard:     guard,
		escalator: escalator,
		logger:    logger,
		tempFile:  tempFile,
		now:       time.Now,
	}
}

// WriteThroughput writes sizeMB megabytes of zeros into a temporary file on
// the disk's mount point with oflag=direct. The file is removed afterwards
// whatever the outcome.
func (p *Probe) WriteThroughput(ctx context.Context, disk system.DiskEntry, sizeMB int) (*Result, error) {
	if err := p.guard.Check(disk.DevicePath); err != nil {
		p.logger.Log("WARN", "write test refused", "device", disk.DevicePath, "reason", err.Error())
		return nil, err
	}
	if sizeMB <= 0 {
		sizeMB = DefaultSizeMB
	}
	if !disk.Mounted() {
		return nil, fmt.Errorf("%w: %s is not mounted", ErrNoMountPoint, disk.DevicePath)
	}
	if _, err := os.Stat(disk.MountPoint); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoMountPoint, disk.MountPoint)
	}
	dd, err := p.tools.Path(system.ToolDd)
	if err != nil {
		return nil, err
	}

	target := filepath.Join(disk.MountPoint, p.tempFile)
	defer func() {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
			p.logger.Log("WARN", "failed to remove speed test file", "file", target, "error", err.Error())
		}
	}()

	args := []string{"if=/dev/zero", "of=" + target, "bs=1M", "count=" + strconv.Itoa(sizeMB), "oflag=direct"}
	elapsed, err := p.timed(ctx, dd, args)
	if err != nil {
		p.logger.Log("ERROR", "write test failed", "device", disk.DevicePath, "error", err.Error())
		return nil, err
	}

	result := &Result{
		Operation: "write",
		Device:    disk.DevicePath,
		Target:    target,
		SizeMB:    sizeMB,
		Duration:  elapsed,
		MBps:      Throughput(sizeMB, elapsed),
	}
	p.logger.Log("INFO", "write test finished", "device", disk.DevicePath, "mbps", result.MBps)
	return result, nil
}

// ReadThroughput reads the first sizeMB megabytes of the raw device with
// iflag=direct, escalating through sudo when needed.
func (p *Probe) ReadThroughput(ctx context.Context, device string, sizeMB int) (*Result, error) {
	if err := p.guard.Check(device); err != nil {
		p.logger.Log("WARN", "read test refused", "device", device, "reason", err.Error())
		return nil, err
	}
	if sizeMB <= 0 {
		sizeMB = DefaultSizeMB
	}
	dd, err := p.tools.Path(system.ToolDd)
	if err != nil {
		return nil, err
	}

	name, args := p.escalator.Wrap(dd, "if="+device, "of=/dev/null", "bs=1M", "count="+strconv.Itoa(sizeMB), "iflag=direct")
	elapsed, err := p.timed(ctx, name, args)
	if err != nil {
		p.logger.Log("ERROR", "read test failed", "device", device, "error", err.Error())
		return nil, err
	}

	result := &Result{
		Operation: "read",
		Device:    device,
		Target:    device,
		SizeMB:    sizeMB,
		Duration:  elapsed,
		MBps:      Throughput(sizeMB, elapsed),
	}
	p.logger.Log("INFO", "read test finished", "device", device, "mbps", result.MBps)
	return result, nil
}

func (p *Probe) timed(ctx context.Context, name string, args []string) (time.Duration, error) {
	p.logger.Log("DEBUG", "running dd", "cmd", name, "args", args)
	start := p.now()
	_, err := system.Run(p.exec.CommandContext(ctx, name, args...), system.ToolDd)
	elapsed := p.now().Sub(start)
	return elapsed, err
}

// Throughput returns sizeMB/elapsed in MB/s rounded to two decimals, and 0
// when elapsed is not positive.
func Throughput(sizeMB int, elapsed time.Duration) float64 {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return 0
	}
	return math.Round(float64(sizeMB)/seconds*100) / 100
}
