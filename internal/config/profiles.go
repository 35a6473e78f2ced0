package config

import (
	"fmt"
)

// ApplyProfile sets the speed test size for a named profile.
func ApplyProfile(cfg *Config, profile string) error {
	switch profile {
	case "quick":
		cfg.Speed.SizeMB = 128
	case "standard":
		cfg.Speed.SizeMB = 512
	case "thorough":
		cfg.Speed.SizeMB = 2048
	default:
		return fmt.Errorf("unknown profile: %s", profile)
	}
	return nil
}
