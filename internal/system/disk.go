package system

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	utilexec "k8s.io/utils/exec"

	"diskinspector/internal/logging"
	"diskinspector/internal/security"
)

const devPrefix = "/dev/"

// ErrNoDisks means enumeration produced nothing usable; callers abort the flow.
var ErrNoDisks = errors.New("no disks available")

// DiskEntry is a physical disk as seen by the current enumeration.
type DiskEntry struct {
	DevicePath   string
	MountPoint   string // first mounted child partition, "" when none
	Size         string
	IsSystemDisk bool
}

func (d DiskEntry) Mounted() bool {
	return d.MountPoint != ""
}

// blockDevice mirrors one node of `lsblk -J` output.
type blockDevice struct {
	Name       string        `json:"name"`
	MountPoint string        `json:"mountpoint"`
	Type       string        `json:"type"`
	Size       string        `json:"size"`
	Children   []blockDevice `json:"children,omitempty"`
}

type lsblkOutput struct {
	BlockDevices []blockDevice `json:"blockdevices"`
}

// Catalog enumerates physical disks through lsblk.
type Catalog struct {
	exec   utilexec.Interface
	tools  *Toolchain
	guard  *security.Guard
	logger *logging.Logger
}

func NewCatalog(exec utilexec.Interface, tools *Toolchain, guard *security.Guard, logger *logging.Logger) *Catalog {
	return &Catalog{
		exec:   exec,
		tools:  tools,
		guard:  guard,
		logger: logger,
	}
}

// Enumerate lists disks in lsblk order. Any invocation or parse failure
// yields no entries and an error wrapping ErrNoDisks.
func (c *Catalog) Enumerate(ctx context.Context) ([]DiskEntry, error) {
	devices, err := c.list(ctx)
	if err != nil {
		c.logger.Log("ERROR", "disk enumeration failed", "error", err.Error())
		return nil, fmt.Errorf("%w: %v", ErrNoDisks, err)
	}

	entries := buildEntries(devices, c.guard)
	if len(entries) == 0 {
		return nil, ErrNoDisks
	}
	c.logger.Log("DEBUG", "disks enumerated", "count", len(entries))
	return entries, nil
}

// DetectSystemDisk returns the disk whose partition tree holds the root filesystem.
func (c *Catalog) DetectSystemDisk(ctx context.Context) (string, error) {
	devices, err := c.list(ctx)
	if err != nil {
		return "", err
	}
	disk := findSystemDisk(devices)
	if disk == "" {
		return "", fmt.Errorf("no disk hosts the root filesystem")
	}
	c.logger.Log("INFO", "system disk detected", "device", disk)
	return disk, nil
}

func (c *Catalog) list(ctx context.Context) ([]blockDevice, error) {
	lsblk, err := c.tools.Path(ToolLsblk)
	if err != nil {
		return nil, err
	}
	out, err := Run(c.exec.CommandContext(ctx, lsblk, "-J", "-o", "NAME,MOUNTPOINT,TYPE,SIZE"), ToolLsblk)
	if err != nil {
		return nil, err
	}
	return parseLsblkOutput(out)
}

func parseLsblkOutput(output []byte) ([]blockDevice, error) {
	var parsed lsblkOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse lsblk output: %w", err)
	}
	return parsed.BlockDevices, nil
}

func buildEntries(devices []blockDevice, guard *security.Guard) []DiskEntry {
	var entries []DiskEntry
	for _, dev := range devices {
		if dev.Type != "disk" || dev.Name == "" {
			continue
		}
		path := devicePath(dev.Name)
		entries = append(entries, DiskEntry{
			DevicePath:   path,
			MountPoint:   firstMountPoint(dev.Children),
			Size:         dev.Size,
			IsSystemDisk: guard.IsSystemDisk(path),
		})
	}
	return entries
}

func devicePath(name string) string {
	if strings.HasPrefix(name, devPrefix) {
		return name
	}
	return devPrefix + name
}

// firstMountPoint walks children depth-first and returns the first real
// mount point. Pseudo mount points such as [SWAP] are skipped.
func firstMountPoint(children []blockDevice) string {
	for _, child := range children {
		if isMountPoint(child.MountPoint) {
			return child.MountPoint
		}
		if mp := firstMountPoint(child.Children); mp != "" {
			return mp
		}
	}
	return ""
}

func isMountPoint(mp string) bool {
	return mp != "" && !strings.HasPrefix(mp, "[")
}

func findSystemDisk(devices []blockDevice) string {
	for _, dev := range devices {
		if dev.Type != "disk" {
			continue
		}
		if hostsRoot(dev) {
			return devicePath(dev.Name)
		}
	}
	return ""
}

func hostsRoot(dev blockDevice) bool {
	if dev.MountPoint == "/" {
		return true
	}
	for _, child := range dev.Children {
		if hostsRoot(child) {
			return true
		}
	}
	return false
}
