package system

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	utilexec "k8s.io/utils/exec"

	"diskinspector/internal/config"
)

const (
	ToolLsblk    = "lsblk"
	ToolDf       = "df"
	ToolDd       = "dd"
	ToolSmartctl = "smartctl"
	ToolF3Write  = "f3write"
	ToolF3Read   = "f3read"
	ToolSudo     = "sudo"
)

// smartctl gained --json in 7.0.
const minSmartctlMajor = 7

// ErrMissingDependency is returned when an operation needs a tool that was not found at startup.
var ErrMissingDependency = errors.New("missing dependency")

var toolOrder = []string{ToolLsblk, ToolDf, ToolDd, ToolSmartctl, ToolF3Write, ToolF3Read, ToolSudo}

var smartctlVersionRe = regexp.MustCompile(`^smartctl (\d+)\.(\d+)`)

// ToolStatus describes the resolution of one external tool.
type ToolStatus struct {
	Name    string
	Path    string
	Version string
	Err     error
}

// Toolchain holds the external binaries resolved once at startup.
type Toolchain struct {
	paths    map[string]string
	versions map[string]string
	problems map[string]error
}

// NewToolchain returns a toolchain with every tool present at the given paths.
func NewToolchain(paths map[string]string) *Toolchain {
	t := &Toolchain{
		paths:    map[string]string{},
		versions: map[string]string{},
		problems: map[string]error{},
	}
	for name, path := range paths {
		t.paths[name] = path
	}
	return t
}

// ResolveTools looks every configured tool up in PATH and probes versions
// where the output format depends on them.
func ResolveTools(ctx context.Context, exec utilexec.Interface, cfg config.ToolsConfig) *Toolchain {
	t := NewToolchain(nil)
	configured := map[string]string{
		ToolLsblk:    cfg.Lsblk,
		ToolDf:       cfg.Df,
		ToolDd:       cfg.Dd,
		ToolSmartctl: cfg.Smartctl,
		ToolF3Write:  cfg.F3Write,
		ToolF3Read:   cfg.F3Read,
		ToolSudo:     cfg.Sudo,
	}

	for _, name := range toolOrder {
		bin := configured[name]
		if bin == "" {
			t.problems[name] = fmt.Errorf("%w: %s is not configured", ErrMissingDependency, name)
			continue
		}
		path, err := exec.LookPath(bin)
		if err != nil {
			t.problems[name] = fmt.Errorf("%w: %s not found: %v", ErrMissingDependency, bin, err)
			continue
		}
		t.paths[name] = path
	}

	if path, ok := t.paths[ToolSmartctl]; ok {
		version, err := probeSmartctl(ctx, exec, path)
		if err != nil {
			delete(t.paths, ToolSmartctl)
			t.problems[ToolSmartctl] = fmt.Errorf("%w: %v", ErrMissingDependency, err)
		} else {
			t.versions[ToolSmartctl] = version
		}
	}

	return t
}

func probeSmartctl(ctx context.Context, exec utilexec.Interface, path string) (string, error) {
	out, err := Run(exec.CommandContext(ctx, path, "--version"), ToolSmartctl)
	if err != nil {
		return "", fmt.Errorf("cannot determine smartctl version: %w", err)
	}
	m := smartctlVersionRe.FindSubmatch(out)
	if m == nil {
		return "", fmt.Errorf("unrecognised smartctl version output")
	}
	major, _ := strconv.Atoi(string(m[1]))
	version := string(m[1]) + "." + string(m[2])
	if major < minSmartctlMajor {
		return version, fmt.Errorf("smartctl %s has no JSON output, need %d.0 or newer", version, minSmartctlMajor)
	}
	return version, nil
}

// Path returns the resolved path of tool or an ErrMissingDependency error.
func (t *Toolchain) Path(tool string) (string, error) {
	if path, ok := t.paths[tool]; ok {
		return path, nil
	}
	if err, ok := t.problems[tool]; ok {
		return "", err
	}
	return "", fmt.Errorf("%w: %s", ErrMissingDependency, tool)
}

// Require fails with the first missing tool among tools.
func (t *Toolchain) Require(tools ...string) error {
	for _, tool := range tools {
		if _, err := t.Path(tool); err != nil {
			return err
		}
	}
	return nil
}

// Statuses lists every known tool in a stable order.
func (t *Toolchain) Statuses() []ToolStatus {
	statuses := make([]ToolStatus, 0, len(toolOrder))
	for _, name := range toolOrder {
		path, err := t.Path(name)
		statuses = append(statuses, ToolStatus{
			Name:    name,
			Path:    path,
			Version: t.versions[name],
			Err:     err,
		})
	}
	return statuses
}
