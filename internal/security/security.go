package security

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

var (
	// ErrSystemDisk is returned when a destructive or stress operation targets the system disk.
	ErrSystemDisk = errors.New("refusing to operate on the system disk")
	// ErrProtectedDevice is returned for devices listed in security.protected_devices.
	ErrProtectedDevice = errors.New("refusing to operate on a protected device")
	// ErrSystemDiskUnknown is returned when the system disk could not be determined,
	// in which case no destructive or stress operation is allowed.
	ErrSystemDiskUnknown = errors.New("system disk is unknown; set security.system_disk or --system-disk")
)

// Guard decides whether a device may be written to or stress-read.
type Guard struct {
	systemDisk string
	protected  map[string]bool
}

func NewGuard(systemDisk string, protected []string) *Guard {
	g := &Guard{
		systemDisk: systemDisk,
		protected:  make(map[string]bool, len(protected)),
	}
	for _, dev := range protected {
		g.protected[dev] = true
	}
	return g
}

// SystemDisk returns the configured or detected system disk, "" if unknown.
func (g *Guard) SystemDisk() string {
	if g == nil {
		return ""
	}
	return g.systemDisk
}

func (g *Guard) IsSystemDisk(device string) bool {
	if g == nil {
		return false
	}
	return g.systemDisk != "" && device == g.systemDisk
}

// Check returns nil when device may be used for a destructive or stress operation.
func (g *Guard) Check(device string) error {
	if g == nil || g.systemDisk == "" {
		return ErrSystemDiskUnknown
	}
	if device == g.systemDisk {
		return fmt.Errorf("%w: %s", ErrSystemDisk, device)
	}
	if g.protected[device] {
		return fmt.Errorf("%w: %s", ErrProtectedDevice, device)
	}
	return nil
}

// IsRoot reports whether the process runs with effective uid 0.
func IsRoot() bool {
	return unix.Geteuid() == 0
}

// Escalator prefixes commands with sudo when the process is not privileged.
type Escalator struct {
	// Sudo is the resolved sudo path; empty disables escalation.
	Sudo    string
	Enabled bool
	IsRoot  func() bool
}

func NewEscalator(sudo string, enabled bool) *Escalator {
	return &Escalator{Sudo: sudo, Enabled: enabled, IsRoot: IsRoot}
}

// Wrap returns the command and arguments to run name with privilege.
func (e *Escalator) Wrap(name string, args ...string) (string, []string) {
	if e == nil || !e.Enabled || e.Sudo == "" || e.IsRoot() {
		return name, args
	}
	return e.Sudo, append([]string{name}, args...)
}
