package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// SwitchSettings is the [switching] table of the TOML config file. It is the
// subset of tuning that can be reloaded live through the config watcher.
type SwitchSettings struct {
	DayToNightThreshold float64 `toml:"day_to_night_threshold"`
	NightToDayThreshold float64 `toml:"night_to_day_threshold"`
	DayToNightHoldSec   int     `toml:"day_to_night_hold_sec"`
	NightToDayHoldSec   int     `toml:"night_to_day_hold_sec"`
	WarmupFrames        int     `toml:"warmup_frames"`
}

// DefaultSwitchSettings mirrors the deployed defaults.
func DefaultSwitchSettings() SwitchSettings {
	return SwitchSettings{
		DayToNightThreshold: 40,
		NightToDayThreshold: 70,
		DayToNightHoldSec:   10,
		NightToDayHoldSec:   10,
		WarmupFrames:        3,
	}
}

// Validate rejects settings that would break the hysteresis dead zone.
func (s SwitchSettings) Validate() error {
	if s.DayToNightThreshold < 0 || s.DayToNightThreshold > 255 {
		return fmt.Errorf("day_to_night_threshold %v outside 0-255", s.DayToNightThreshold)
	}
	if s.NightToDayThreshold < 0 || s.NightToDayThreshold > 255 {
		return fmt.Errorf("night_to_day_threshold %v outside 0-255", s.NightToDayThreshold)
	}
	if s.DayToNightThreshold >= s.NightToDayThreshold {
		return fmt.Errorf("day_to_night_threshold %v must be below night_to_day_threshold %v",
			s.DayToNightThreshold, s.NightToDayThreshold)
	}
	if s.DayToNightHoldSec < 0 || s.NightToDayHoldSec < 0 {
		return fmt.Errorf("hold durations must not be negative")
	}
	if s.WarmupFrames < 0 {
		return fmt.Errorf("warmup_frames must not be negative")
	}
	return nil
}

// DayToNightHold returns the darkening hold as a duration.
func (s SwitchSettings) DayToNightHold() time.Duration {
	return time.Duration(s.DayToNightHoldSec) * time.Second
}

// NightToDayHold returns the brightening hold as a duration.
func (s SwitchSettings) NightToDayHold() time.Duration {
	return time.Duration(s.NightToDayHoldSec) * time.Second
}

// LoadSwitchSettings reads the [switching] table from a TOML config file,
// filling absent keys with defaults. Suitable as a Watcher loader.
func LoadSwitchSettings(path string) (SwitchSettings, error) {
	settings := DefaultSwitchSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, err
	}

	var raw struct {
		Switching SwitchSettings `toml:"switching"`
	}
	raw.Switching = settings
	if err := toml.Unmarshal(data, &raw); err != nil {
		return settings, fmt.Errorf("failed to parse TOML config: %w", err)
	}

	if err := raw.Switching.Validate(); err != nil {
		return settings, err
	}
	return raw.Switching, nil
}
