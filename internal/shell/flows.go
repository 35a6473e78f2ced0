package shell

import (
	"context"
	"errors"
	"fmt"
	"time"

	"diskinspector/internal/capacity"
	"diskinspector/internal/reporting"
	"diskinspector/internal/security"
	"diskinspector/internal/speed"
)

func (s *Shell) smartFlow(ctx context.Context) error {
	disk, err := s.selectDisk(ctx)
	if err != nil {
		return err
	}
	started := time.Now()

	s.printf("\nReading SMART data for %s...\n", disk.DevicePath)
	record, err := s.Smart.Read(ctx, disk.DevicePath)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.println(s.styles.fail.Render("SMART read failed: " + err.Error()))
		s.record("smart", disk.DevicePath, reporting.StatusFailed, started, nil, err)
		return s.pause(ctx)
	}

	s.println()
	for _, f := range record.Fields() {
		s.println(s.styles.label.Render(f.Label+":") + " " + f.Value)
	}
	s.record("smart", disk.DevicePath, reporting.StatusCompleted, started, record, nil)
	return s.pause(ctx)
}

type speedReport struct {
	Write *speed.Result `json:"write,omitempty"`
	Read  *speed.Result `json:"read,omitempty"`
}

func (s *Shell) speedFlow(ctx context.Context) error {
	disk, err := s.selectDisk(ctx)
	if err != nil {
		return err
	}
	started := time.Now()

	if err := s.Guard.Check(disk.DevicePath); err != nil {
		s.println(s.styles.warn.Render("Speed tests skipped: " + refusal(err)))
		s.record("speed", disk.DevicePath, reporting.StatusRefused, started, nil, err)
		return s.pause(ctx)
	}

	var report speedReport
	var failures []error

	if disk.Mounted() {
		s.printf("\nWrite test: %d MB to %s (direct I/O)...\n", s.opts.SizeMB, disk.MountPoint)
		res, err := s.Speed.WriteThroughput(ctx, disk, s.opts.SizeMB)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			s.println(s.styles.fail.Render("Write test failed: " + err.Error()))
			failures = append(failures, err)
		} else {
			report.Write = res
			s.println(s.styles.ok.Render(fmt.Sprintf("Write speed: %.2f MB/s", res.MBps)))
		}
	} else {
		s.println("Write test skipped: no mounted partition")
	}

	s.printf("\nRead test: %d MB from %s (direct I/O)...\n", s.opts.SizeMB, disk.DevicePath)
	res, err := s.Speed.ReadThroughput(ctx, disk.DevicePath, s.opts.SizeMB)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.println(s.styles.fail.Render("Read test failed: " + err.Error()))
		failures = append(failures, err)
	} else {
		report.Read = res
		s.println(s.styles.ok.Render(fmt.Sprintf("Read speed: %.2f MB/s", res.MBps)))
	}

	status := reporting.StatusCompleted
	if len(failures) > 0 {
		status = reporting.StatusFailed
	}
	s.record("speed", disk.DevicePath, status, started, report, errors.Join(failures...))
	return s.pause(ctx)
}

func (s *Shell) capacityFlow(ctx context.Context) error {
	disk, err := s.selectDisk(ctx)
	if err != nil {
		return err
	}
	started := time.Now()

	if err := s.Guard.Check(disk.DevicePath); err != nil {
		s.println(s.styles.warn.Render("Capacity test refused: " + refusal(err)))
		s.record("capacity", disk.DevicePath, reporting.StatusRefused, started, nil, err)
		return s.pause(ctx)
	}

	s.printf("\nCapacity test on %s\n", disk.DevicePath)
	res, err := s.Capacity.Run(ctx, disk, s)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		s.println(s.styles.fail.Render("Capacity test failed: " + err.Error()))
		s.record("capacity", disk.DevicePath, reporting.StatusFailed, started, res, err)
		return s.pause(ctx)
	}

	status := reporting.StatusCompleted
	switch res.Verdict {
	case capacity.VerdictCancelled:
		status = reporting.StatusCancelled
		s.println("Operation cancelled.")
	case capacity.VerdictCounterfeit:
		s.println(s.styles.fail.Render("COUNTERFEIT: data was lost; the real capacity is smaller than reported."))
	case capacity.VerdictGenuine:
		s.println(s.styles.ok.Render("GENUINE: all written data was read back intact."))
	default:
		s.println(s.styles.warn.Render("INDETERMINATE: f3read output could not be classified; review it above."))
	}

	if res.Cleanup != nil {
		s.printf("Removed %d test file(s).\n", len(res.Cleanup.Removed))
		for _, f := range res.Cleanup.Failed {
			s.println(s.styles.fail.Render(fmt.Sprintf("Could not remove %s: %s", f.Path, f.Error)))
		}
	}
	s.record("capacity", disk.DevicePath, status, started, res, nil)
	return s.pause(ctx)
}

// refusal renders a guard rejection for the operator.
func refusal(err error) string {
	switch {
	case errors.Is(err, security.ErrSystemDisk):
		return "this is the system disk"
	case errors.Is(err, security.ErrProtectedDevice):
		return "this device is protected by configuration"
	case errors.Is(err, security.ErrSystemDiskUnknown):
		return "the system disk is unknown (set --system-disk)"
	}
	return err.Error()
}

func (s *Shell) record(operation, device, status string, started time.Time, result interface{}, opErr error) {
	if s.Reports == nil {
		return
	}
	path, err := s.Reports.Record(operation, device, status, started, result, opErr)
	if err != nil {
		s.Logger.Log("WARN", "failed to save report", "operation", operation, "error", err.Error())
		return
	}
	if path != "" {
		s.printf("Report saved: %s\n", path)
	}
	s.Logger.Log("INFO", "diagnostic finished", "operation", operation, "device", device, "status", status)
}

var _ capacity.Prompter = (*Shell)(nil)
