package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "roast_log.csv", cfg.LogPath)
	assert.Equal(t, "F", cfg.Unit)
	assert.Equal(t, "Colombian", cfg.Defaults.Origin)
	assert.Equal(t, "Medium-Dark", cfg.Defaults.TargetLevel)
	assert.Equal(t, 100*time.Millisecond, cfg.Alerts.Cadence)
	assert.False(t, cfg.Button.Enabled())
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roast.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_path: /var/lib/roast/roasts.db
unit: C
broker: tcp://192.168.1.200:1883
button:
  pin: 17
  debounce: 80ms
alerts:
  cadence: 250ms
  command: afplay /System/Library/Sounds/Glass.aiff
defaults:
  origin: Ethiopian
`), 0o644))

	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/roast/roasts.db", cfg.LogPath)
	assert.Equal(t, "C", cfg.Unit)
	assert.Equal(t, 17, cfg.Button.Pin)
	assert.True(t, cfg.Button.Enabled())
	assert.Equal(t, 80*time.Millisecond, cfg.Button.Debounce)
	assert.Equal(t, 10*time.Millisecond, cfg.Button.Poll, "unset keys keep defaults")
	assert.Equal(t, 250*time.Millisecond, cfg.Alerts.Cadence)
	assert.Equal(t, "Ethiopian", cfg.Defaults.Origin)
	assert.Equal(t, "1", cfg.Defaults.BatchSize)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roast.yaml")
	require.NoError(t, os.WriteFile(path, []byte("unit: C\nbutton:\n  pin: 17\n"), 0o644))

	cfg, err := Load(path, env(map[string]string{
		"ROAST_UNIT":          "F",
		"ROAST_BUTTON_PIN":    "-1",
		"ROAST_ALERT_CADENCE": "50ms",
		"ROAST_ALERT_BELL":    "false",
		"ROAST_ORIGIN":        "Sumatra",
	}))
	require.NoError(t, err)
	assert.Equal(t, "F", cfg.Unit)
	assert.False(t, cfg.Button.Enabled())
	assert.Equal(t, 50*time.Millisecond, cfg.Alerts.Cadence)
	assert.False(t, cfg.Alerts.Bell)
	assert.Equal(t, "Sumatra", cfg.Defaults.Origin)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read config")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("button: [1, 2"), 0o644))
	_, err = Load(bad, nil)
	assert.ErrorContains(t, err, "parse config")

	_, err = Load("", env(map[string]string{"ROAST_BUTTON_PIN": "seventeen"}))
	assert.ErrorContains(t, err, "ROAST_BUTTON_PIN")

	_, err = Load("", env(map[string]string{"ROAST_ALERT_HOLD": "soon"}))
	assert.ErrorContains(t, err, "ROAST_ALERT_HOLD")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Unit = "K"
	cfg.LogLevel = "loud"
	cfg.Alerts.Cadence = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unit must be C or F")
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "alerts.cadence")

	cfg = Default()
	cfg.Button.Pin = 4
	cfg.Button.Debounce = 0
	assert.ErrorContains(t, cfg.Validate(), "button.poll and button.debounce")
}
