// Package config loads runtime settings: defaults, then an optional YAML
// file, then ROAST_* environment variables. Command-line flags are applied
// on top by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	LogPath  string `yaml:"log_path"`  // roast log; .db/.sqlite selects SQLite
	LogLevel string `yaml:"log_level"` // logrus level name
	LogFile  string `yaml:"log_file"`  // diagnostics file; empty means stderr
	Unit     string `yaml:"unit"`      // temperature unit shown to the operator
	HTTPAddr string `yaml:"http"`      // status page address; empty disables
	Broker   string `yaml:"broker"`    // MQTT broker URL; empty disables
	ClientID string `yaml:"client_id"`

	Button   Button   `yaml:"button"`
	Alerts   Alerts   `yaml:"alerts"`
	Defaults Defaults `yaml:"defaults"`
}

// Button configures the optional GPIO control-point button.
type Button struct {
	Chip     string        `yaml:"chip"`
	Pin      int           `yaml:"pin"` // BCM number; negative disables
	Poll     time.Duration `yaml:"poll"`
	Debounce time.Duration `yaml:"debounce"`
}

// Enabled reports whether a button pin is configured.
func (b Button) Enabled() bool {
	return b.Pin >= 0
}

// Alerts configures the live display and alert sinks.
type Alerts struct {
	Cadence     time.Duration `yaml:"cadence"`
	Hold        time.Duration `yaml:"hold"`
	JoinTimeout time.Duration `yaml:"join_timeout"`
	Bell        bool          `yaml:"bell"`
	Command     string        `yaml:"command"` // e.g. "afplay /System/Library/Sounds/Glass.aiff"
}

// Defaults are the session details filled in without prompting.
type Defaults struct {
	Origin      string `yaml:"origin"`
	BatchSize   string `yaml:"batch_size"`
	TargetLevel string `yaml:"target_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogPath:  "roast_log.csv",
		LogLevel: "warn",
		Unit:     "F",
		ClientID: "roast-timer",
		Button: Button{
			Chip:     "gpiochip0",
			Pin:      -1,
			Poll:     10 * time.Millisecond,
			Debounce: 50 * time.Millisecond,
		},
		Alerts: Alerts{
			Cadence:     100 * time.Millisecond,
			Hold:        3 * time.Second,
			JoinTimeout: 500 * time.Millisecond,
			Bell:        true,
		},
		Defaults: Defaults{
			Origin:      "Colombian",
			BatchSize:   "1",
			TargetLevel: "Medium-Dark",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and the environment seen through lookup.
func Load(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"ROAST_LOG_PATH":      &c.LogPath,
		"ROAST_LOG_LEVEL":     &c.LogLevel,
		"ROAST_LOG_FILE":      &c.LogFile,
		"ROAST_UNIT":          &c.Unit,
		"ROAST_HTTP":          &c.HTTPAddr,
		"ROAST_BROKER":        &c.Broker,
		"ROAST_CLIENT_ID":     &c.ClientID,
		"ROAST_BUTTON_CHIP":   &c.Button.Chip,
		"ROAST_ALERT_COMMAND": &c.Alerts.Command,
		"ROAST_ORIGIN":        &c.Defaults.Origin,
		"ROAST_BATCH_SIZE":    &c.Defaults.BatchSize,
		"ROAST_TARGET_LEVEL":  &c.Defaults.TargetLevel,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	durations := map[string]*time.Duration{
		"ROAST_BUTTON_POLL":     &c.Button.Poll,
		"ROAST_BUTTON_DEBOUNCE": &c.Button.Debounce,
		"ROAST_ALERT_CADENCE":   &c.Alerts.Cadence,
		"ROAST_ALERT_HOLD":      &c.Alerts.Hold,
	}
	for key, dst := range durations {
		v, ok := lookup(key)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
	}

	if v, ok := lookup("ROAST_BUTTON_PIN"); ok {
		pin, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ROAST_BUTTON_PIN: %w", err)
		}
		c.Button.Pin = pin
	}
	if v, ok := lookup("ROAST_ALERT_BELL"); ok {
		bell, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("ROAST_ALERT_BELL: %w", err)
		}
		c.Alerts.Bell = bell
	}
	return nil
}

// Validate checks the values that would otherwise fail mid-roast.
func (c Config) Validate() error {
	var errs []error
	if c.LogPath == "" {
		errs = append(errs, errors.New("log_path must not be empty"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.Unit {
	case "C", "F":
	default:
		errs = append(errs, fmt.Errorf("unit must be C or F, got %q", c.Unit))
	}
	if c.Alerts.Cadence <= 0 {
		errs = append(errs, errors.New("alerts.cadence must be positive"))
	}
	if c.Button.Enabled() && (c.Button.Poll <= 0 || c.Button.Debounce <= 0) {
		errs = append(errs, errors.New("button.poll and button.debounce must be positive"))
	}
	return errors.Join(errs...)
}
