// Package smart reads SMART identity and attribute data through smartctl --json.
package smart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	utilexec "k8s.io/utils/exec"

	"diskinspector/internal/logging"
	"diskinspector/internal/security"
	"diskinspector/internal/system"
)

// Unknown is rendered for any field smartctl did not report.
const Unknown = "Unknown"

const bytesPerGB = 1 << 30

// ErrorKind distinguishes a failed invocation from unparsable output.
type ErrorKind string

const (
	KindInvocation ErrorKind = "invocation"
	KindParse      ErrorKind = "parse"
)

// Error is returned by Read for any failure.
type Error struct {
	Device     string
	Kind       ErrorKind
	ExitStatus int
	Stderr     string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindParse:
		return fmt.Sprintf("cannot parse smartctl output for %s: %v", e.Device, e.Err)
	default:
		return fmt.Sprintf("cannot read SMART data for %s (may need root or the device does not exist): %v", e.Device, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// smartctlJSON is the subset of `smartctl --json -i -A` used here.
type smartctlJSON struct {
	ModelName    string `json:"model_name"`
	SerialNumber string `json:"serial_number"`
	UserCapacity *struct {
		Bytes int64 `json:"bytes"`
	} `json:"user_capacity"`
	RotationRate   *int `json:"rotation_rate"`
	InterfaceSpeed *struct {
		Current struct {
			String string `json:"string"`
		} `json:"current"`
	} `json:"interface_speed"`
	SmartSupport *struct {
		Enabled *bool `json:"enabled"`
	} `json:"smart_support"`
	ATASmartAttributes struct {
		Table []struct {
			ID   int    `json:"id"`
			Name string `json:"name"`
			Raw  struct {
				Value int64 `json:"value"`
			} `json:"raw"`
		} `json:"table"`
	} `json:"ata_smart_attributes"`
	PowerOnTime *struct {
		Hours int64 `json:"hours"`
	} `json:"power_on_time"`
	Temperature *struct {
		Current int64 `json:"current"`
	} `json:"temperature"`
}

// Record is the SMART summary of one device. Nil pointers are absent fields.
type Record struct {
	Device         string   `json:"device"`
	Model          string   `json:"model,omitempty"`
	Serial         string   `json:"serial,omitempty"`
	CapacityBytes  *int64   `json:"capacity_bytes,omitempty"`
	CapacityGB     *float64 `json:"capacity_gb,omitempty"`
	DiskType       string   `json:"disk_type"`
	InterfaceSpeed string   `json:"interface_speed,omitempty"`
	SmartEnabled   *bool    `json:"smart_enabled,omitempty"`
	PowerOnHours   *int64   `json:"power_on_hours,omitempty"`
	Temperature    *int64   `json:"temperature,omitempty"`
}

// Field is a labelled value ready for display.
type Field struct {
	Label string
	Value string
}

// Fields returns the record in display order with Unknown for absent values.
func (r *Record) Fields() []Field {
	return []Field{
		{"Device", r.Device},
		{"Model", orUnknown(r.Model)},
		{"Serial number", orUnknown(r.Serial)},
		{"Capacity (bytes)", formatInt(r.CapacityBytes)},
		{"Capacity (GB)", formatGB(r.CapacityGB)},
		{"Disk type", orUnknown(r.DiskType)},
		{"Interface speed", orUnknown(r.InterfaceSpeed)},
		{"SMART enabled", formatBool(r.SmartEnabled)},
		{"Power-on hours", formatInt(r.PowerOnHours)},
		{"Temperature (C)", formatInt(r.Temperature)},
	}
}

// Reader runs smartctl, escalating through sudo when not root.
type Reader struct {
	exec      utilexec.Interface
	tools     *system.Toolchain
	escalator *security.Escalator
	logger    *logging.Logger
}

func NewReader(exec utilexec.Interface, tools *system.Toolchain, escalator *security.Escalator, logger *logging.Logger) *Reader {
	return &Reader{
		exec:      exec,
		tools:     tools,
		escalator: escalator,
		logger:    logger,
	}
}

// Read queries device. Any non-zero smartctl exit status is an invocation error.
func (r *Reader) Read(ctx context.Context, device string) (*Record, error) {
	path, err := r.tools.Path(system.ToolSmartctl)
	if err != nil {
		return nil, &Error{Device: device, Kind: KindInvocation, ExitStatus: -1, Err: err}
	}

	name, args := r.escalator.Wrap(path, "--json", "-i", "-A", device)
	r.logger.Log("DEBUG", "reading SMART data", "device", device, "cmd", name)
	out, err := system.Run(r.exec.CommandContext(ctx, name, args...), system.ToolSmartctl)
	if err != nil {
		smartErr := &Error{Device: device, Kind: KindInvocation, ExitStatus: system.ExitStatus(err), Err: err}
		var toolErr *system.ToolError
		if errors.As(err, &toolErr) {
			smartErr.Stderr = toolErr.Stderr
		}
		r.logger.Log("ERROR", "smartctl failed", "device", device, "status", smartErr.ExitStatus)
		return nil, smartErr
	}

	record, err := ParseRecord(device, out)
	if err != nil {
		r.logger.Log("ERROR", "smartctl output unparsable", "device", device, "error", err.Error())
		return nil, err
	}
	return record, nil
}

// ParseRecord decodes smartctl JSON output into a Record.
func ParseRecord(device string, data []byte) (*Record, error) {
	var raw smartctlJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &Error{Device: device, Kind: KindParse, Err: err}
	}

	rec := &Record{
		Device:   device,
		Model:    raw.ModelName,
		Serial:   raw.SerialNumber,
		DiskType: DiskType(raw.RotationRate),
	}
	if raw.UserCapacity != nil {
		b := raw.UserCapacity.Bytes
		gb := ToGB(b)
		rec.CapacityBytes = &b
		rec.CapacityGB = &gb
	}
	if raw.InterfaceSpeed != nil {
		rec.InterfaceSpeed = raw.InterfaceSpeed.Current.String
	}
	if raw.SmartSupport != nil {
		rec.SmartEnabled = raw.SmartSupport.Enabled
	}

	for _, attr := range raw.ATASmartAttributes.Table {
		v := attr.Raw.Value
		switch attr.Name {
		case "Power_On_Hours":
			rec.PowerOnHours = &v
		case "Temperature_Celsius", "Temperature":
			rec.Temperature = &v
		}
	}

	// NVMe devices have no ATA attribute table.
	if rec.PowerOnHours == nil && raw.PowerOnTime != nil {
		h := raw.PowerOnTime.Hours
		rec.PowerOnHours = &h
	}
	if rec.Temperature == nil && raw.Temperature != nil {
		c := raw.Temperature.Current
		rec.Temperature = &c
	}
	return rec, nil
}

// ToGB converts bytes to binary gigabytes rounded to two decimals.
func ToGB(bytes int64) float64 {
	return math.Round(float64(bytes)/bytesPerGB*100) / 100
}

// DiskType labels a rotation rate: HDD with its RPM, SSD for 0, Unknown otherwise.
func DiskType(rotationRate *int) string {
	switch {
	case rotationRate == nil || *rotationRate < 0:
		return Unknown
	case *rotationRate == 0:
		return "SSD"
	default:
		return fmt.Sprintf("HDD (%d RPM)", *rotationRate)
	}
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

func formatInt(v *int64) string {
	if v == nil {
		return Unknown
	}
	return strconv.FormatInt(*v, 10)
}

func formatGB(v *float64) string {
	if v == nil {
		return Unknown
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func formatBool(v *bool) string {
	if v == nil {
		return Unknown
	}
	return strconv.FormatBool(*v)
}
