package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	appLog "epochcal/internal/log"
	"epochcal/internal/timeconv"
)

// Clock source selectors.
const (
	ClockSystem = "system"
	ClockRTC    = "rtc"
	ClockAuto   = "auto"
)

// DefaultRTCAddr is the fixed I2C address of the DS1672 counter RTC.
const DefaultRTCAddr = 0x68

// ClockConfig selects where timestamps come from.
type ClockConfig struct {
	// Source is one of "system", "rtc" or "auto". "auto" tries the RTC on
	// Linux and falls back to the system clock.
	Source string `yaml:"source" json:"source"`
	// I2CBus is the periph.io bus name ("" for the default bus, /dev/i2c-1 on a Pi).
	I2CBus string `yaml:"i2c_bus" json:"i2c_bus"`
	// I2CAddr is the 7-bit address of the RTC.
	I2CAddr uint16 `yaml:"i2c_addr" json:"i2c_addr"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone names the fixed-offset zone used to decode samples
	// (e.g. "Asia/Seoul"). See timeconv.Timezones for the supported set.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is "debug", "info" or "error".
	LogLevel string `yaml:"log_level" json:"log_level"`

	// SampleCron is a standard 5-field cron schedule for the periodic
	// diagnostics sample.
	SampleCron string `yaml:"sample_cron" json:"sample_cron"`

	Clock ClockConfig `yaml:"clock" json:"clock"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:     "127.0.0.1:8080",
		Timezone:   timeconv.UTC.String(),
		LogLevel:   "info",
		SampleCron: "* * * * *",
		Clock: ClockConfig{
			Source:  ClockAuto,
			I2CBus:  "",
			I2CAddr: DefaultRTCAddr,
		},
		BasicAuth: nil,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = timeconv.UTC.String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SampleCron == "" {
		c.SampleCron = "* * * * *"
	}
	switch c.Clock.Source {
	case ClockSystem, ClockRTC, ClockAuto:
		// ok
	case "":
		c.Clock.Source = ClockAuto
	default:
		// Unknown value; auto still ends up on a working clock.
		appLog.Error("config: unknown clock source, using auto", nil, "source", c.Clock.Source)
		c.Clock.Source = ClockAuto
	}
	if c.Clock.I2CAddr == 0 {
		c.Clock.I2CAddr = DefaultRTCAddr
	}
}

// Validate checks values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if _, err := c.Zone(); err != nil {
		return fmt.Errorf("config: timezone: %w", err)
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if _, err := cron.ParseStandard(c.SampleCron); err != nil {
		return fmt.Errorf("config: sample_cron: %w", err)
	}
	if c.Clock.I2CAddr > 0x7f {
		return fmt.Errorf("config: clock.i2c_addr 0x%x is not a 7-bit address", c.Clock.I2CAddr)
	}
	return nil
}

// Zone resolves the configured timezone name.
func (c *Config) Zone() (timeconv.Timezone, error) {
	return timeconv.ParseTimezone(c.Timezone)
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - If the file exists, it is unmarshalled, normalized and validated.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".epochcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method that delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
