package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadRegistration_YAML(t *testing.T) {
	path := writeFile(t, "units.yaml", `
id: C
serial:
  port: /dev/ttyS0
hub:
  host: 192.168.50.10
units:
  A: {byte_count: 4, host: 192.168.50.22, port: 8080, webhook_path: /switch}
  B: {byte_count: 1}
  C: {byte_count: 3, host: 192.168.50.24}
`)

	reg, err := LoadRegistration(path)
	require.NoError(t, err)
	assert.Equal(t, "C", reg.ID)
	assert.Equal(t, "/dev/ttyS0", reg.Serial.Port)
	require.Len(t, reg.Units, 3)
	assert.Equal(t, UnitConfig{ByteCount: 4, Host: "192.168.50.22", Port: 8080, WebhookPath: "/switch"}, reg.Units["A"])
}

func TestLoadRegistration_JSON(t *testing.T) {
	path := writeFile(t, "config.json", `{"id": "B", "serial": {"port": "/dev/ttyS0", "baud": 57600}, "units": {"B": {"byte_count": 1}}}`)

	reg, err := LoadRegistration(path)
	require.NoError(t, err)
	assert.Equal(t, "B", reg.ID)
	assert.Equal(t, 57600, reg.Serial.Baud)
	assert.Equal(t, 1, reg.Units["B"].ByteCount)
}

func TestLoadRegistration_Missing(t *testing.T) {
	_, err := LoadRegistration(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		reg     *Registration
		wantErr error
	}{
		"valid": {
			reg: &Registration{Units: map[string]UnitConfig{"A": {ByteCount: 4}}},
		},
		"unset byte count is allowed": {
			reg: &Registration{Units: map[string]UnitConfig{"A": {}}},
		},
		"nil": {
			reg:     nil,
			wantErr: ErrNoUnits,
		},
		"no units": {
			reg:     &Registration{},
			wantErr: ErrNoUnits,
		},
		"id ending in a digit": {
			reg:     &Registration{Units: map[string]UnitConfig{"A1": {ByteCount: 1}}},
			wantErr: ErrInvalidUnitID,
		},
		"bridge id not registered": {
			reg:     &Registration{ID: "C", Units: map[string]UnitConfig{"A": {ByteCount: 1}}},
			wantErr: ErrBridgeUnit,
		},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			err := Validate(tt.reg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidate_Ranges(t *testing.T) {
	assert.Error(t, Validate(&Registration{Units: map[string]UnitConfig{"A": {ByteCount: 16}}}))
	assert.Error(t, Validate(&Registration{Units: map[string]UnitConfig{"A": {Port: 70000}}}))
	assert.Error(t, Validate(&Registration{Units: map[string]UnitConfig{"A": {WebhookPath: "state"}}}))
}

func TestValidate_DoesNotMutate(t *testing.T) {
	reg := &Registration{Units: map[string]UnitConfig{"A": {ByteCount: 4, Host: "h"}}}
	require.NoError(t, Validate(reg))
	assert.Equal(t, UnitConfig{ByteCount: 4, Host: "h"}, reg.Units["A"])
}

func TestValidateBridge(t *testing.T) {
	reg := &Registration{ID: "C", Units: map[string]UnitConfig{"C": {ByteCount: 3}}}
	assert.ErrorIs(t, ValidateBridge(reg), ErrSerialPort)

	reg.Serial.Port = "/dev/ttyS0"
	assert.NoError(t, ValidateBridge(reg))

	reg.ID = ""
	assert.ErrorIs(t, ValidateBridge(reg), ErrBridgeUnit)
}

func TestNormalize(t *testing.T) {
	reg := &Registration{
		Hub: EndpointConfig{Host: "hub"},
		Units: map[string]UnitConfig{
			"A": {ByteCount: 4, Host: "a"},
			"B": {ByteCount: 1, WebhookPath: "/switch"},
		},
	}
	Normalize(reg)

	assert.Equal(t, UnitConfig{ByteCount: 4, Host: "a", Port: DefaultPort, WebhookPath: DefaultWebhookPath}, reg.Units["A"])
	assert.Equal(t, UnitConfig{ByteCount: 1, WebhookPath: "/switch"}, reg.Units["B"])
	assert.Equal(t, DefaultPort, reg.Hub.Port)
	assert.Equal(t, DefaultBaud, reg.Serial.Baud)
}

func TestLoadSettings(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("WEBHOOK_TIMEOUT", "250ms")
	t.Setenv("MQTT_HOST", "tcp://broker:1883")
	t.Setenv("SYNC_SCHEDULE", "off")

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, s.WebhookTimeout)
	assert.Equal(t, "tcp://broker:1883", s.MQTT.Host)
	assert.Equal(t, "mt7688", s.MQTT.Topic)
	assert.True(t, s.SyncDisabled())
}

func TestLoadSettings_DotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STATIC_DIR=/srv/www\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("STATIC_DIR") })

	s, err := LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "/srv/www", s.StaticDir)
	assert.Equal(t, time.Second, s.WebhookTimeout)
	assert.Equal(t, "@every 5m", s.SyncSchedule)
	assert.False(t, s.SyncDisabled())
}

func TestLoad(t *testing.T) {
	t.Chdir(t.TempDir())
	path := writeFile(t, "units.yaml", "units:\n  C: {byte_count: 3, host: c}\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Registration.Units["C"].Port)
	assert.NotNil(t, cfg.Settings)

	bad := writeFile(t, "bad.yaml", "units:\n  C9: {byte_count: 3}\n")
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidUnitID)
}
