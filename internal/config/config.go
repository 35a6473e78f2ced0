package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk configuration of diskinspector.
type Config struct {
	Security  SecurityConfig  `yaml:"security"`
	Tools     ToolsConfig     `yaml:"tools"`
	Speed     SpeedConfig     `yaml:"speed"`
	Capacity  CapacityConfig  `yaml:"capacity"`
	Logging   LoggingConfig   `yaml:"logging"`
	Reporting ReportingConfig `yaml:"reporting"`
}

// SecurityConfig controls which devices destructive and stress tests may touch.
type SecurityConfig struct {
	// SystemDisk is the block device hosting the running system, e.g. /dev/sda.
	// Empty means "detect at startup" when DetectSystemDisk is set.
	SystemDisk       string   `yaml:"system_disk"`
	DetectSystemDisk bool     `yaml:"detect_system_disk"`
	ProtectedDevices []string `yaml:"protected_devices"`
	AutoEscalate     bool     `yaml:"auto_escalate"`
}

// ToolsConfig holds names or absolute paths of the external binaries.
type ToolsConfig struct {
	Lsblk    string `yaml:"lsblk"`
	Df       string `yaml:"df"`
	Dd       string `yaml:"dd"`
	Smartctl string `yaml:"smartctl"`
	F3Write  string `yaml:"f3write"`
	F3Read   string `yaml:"f3read"`
	Sudo     string `yaml:"sudo"`
}

type SpeedConfig struct {
	SizeMB   int    `yaml:"size_mb"`
	TempFile string `yaml:"temp_file"`
}

type CapacityConfig struct {
	// CleanupPatterns are glob patterns of files left behind by f3write.
	CleanupPatterns []string `yaml:"cleanup_patterns"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type ReportingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	LocalPath string `yaml:"local_path"`
}

const (
	MinSpeedSizeMB = 1
	MaxSpeedSizeMB = 64 * 1024
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Security: SecurityConfig{
			SystemDisk:       "",
			DetectSystemDisk: true,
			ProtectedDevices: []string{},
			AutoEscalate:     true,
		},
		Tools: ToolsConfig{
			Lsblk:    "lsblk",
			Df:       "df",
			Dd:       "dd",
			Smartctl: "smartctl",
			F3Write:  "f3write",
			F3Read:   "f3read",
			Sudo:     "sudo",
		},
		Speed: SpeedConfig{
			SizeMB:   512,
			TempFile: ".speed_test_temp_file.bin",
		},
		Capacity: CapacityConfig{
			CleanupPatterns: []string{"[0-9]*.h2w", ".f3*"},
		},
		Logging: LoggingConfig{
			Level: "INFO",
			File:  "",
		},
		Reporting: ReportingConfig{
			Enabled:   false,
			LocalPath: "./reports",
		},
	}
}

// Load reads the configuration from path. An empty path or a missing file
// yields the defaults; values present in the file override them.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Validate checks the configuration for values the tool cannot work with.
func Validate(config *Config) error {
	if disk := config.Security.SystemDisk; disk != "" && !strings.HasPrefix(disk, "/dev/") {
		return fmt.Errorf("system disk must be a /dev path, got %q", disk)
	}
	for _, dev := range config.Security.ProtectedDevices {
		if !strings.HasPrefix(dev, "/dev/") {
			return fmt.Errorf("protected device must be a /dev path, got %q", dev)
		}
	}

	tools := map[string]string{
		"lsblk":    config.Tools.Lsblk,
		"df":       config.Tools.Df,
		"dd":       config.Tools.Dd,
		"smartctl": config.Tools.Smartctl,
		"f3write":  config.Tools.F3Write,
		"f3read":   config.Tools.F3Read,
	}
	for name, value := range tools {
		if value == "" {
			return fmt.Errorf("tools.%s must not be empty", name)
		}
	}

	if config.Speed.SizeMB < MinSpeedSizeMB || config.Speed.SizeMB > MaxSpeedSizeMB {
		return fmt.Errorf("speed size must be between %d and %d MB, got %d", MinSpeedSizeMB, MaxSpeedSizeMB, config.Speed.SizeMB)
	}
	if config.Speed.TempFile == "" || strings.ContainsRune(config.Speed.TempFile, filepath.Separator) {
		return fmt.Errorf("speed temp file must be a plain file name, got %q", config.Speed.TempFile)
	}

	if len(config.Capacity.CleanupPatterns) == 0 {
		return fmt.Errorf("at least one capacity cleanup pattern is required")
	}
	for _, pattern := range config.Capacity.CleanupPatterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("invalid cleanup pattern %q: %w", pattern, err)
		}
	}

	validLevels := map[string]bool{
		"DEBUG": true,
		"INFO":  true,
		"WARN":  true,
		"ERROR": true,
	}
	if !validLevels[config.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	if config.Reporting.Enabled && config.Reporting.LocalPath == "" {
		return fmt.Errorf("reporting is enabled but local_path is empty")
	}

	return nil
}

// Save writes the configuration to path.
func Save(config *Config, path string) error {
	if err := Validate(config); err != nil {
		return fmt.Errorf("cannot save invalid config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
