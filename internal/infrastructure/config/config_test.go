package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes a config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	content := `
site:
  id: "test-site"
  timezone: "Europe/Nicosia"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
control:
  cycle_interval: 10
devices:
  - id: "pump_01"
    name: "Pump"
    category: "pump"
    max_on_minutes: 60
    min_interval_minutes: 15
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.Control.CycleIntervalMinutes != 10 {
		t.Errorf("Control.CycleIntervalMinutes = %d, want 10", cfg.Control.CycleIntervalMinutes)
	}
	if got := cfg.CycleInterval(); got != 10*time.Minute {
		t.Errorf("CycleInterval() = %v, want 10m", got)
	}
	if cfg.Timezone().String() != "Europe/Nicosia" {
		t.Errorf("Timezone() = %q, want Europe/Nicosia", cfg.Timezone())
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	// A minimal file should still produce a complete, valid config.
	cfg, err := Load(writeConfig(t, `site: {id: "g1"}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Control.Thresholds.Temperature.CriticalHigh != 38 {
		t.Errorf("temperature critical_high default = %v, want 38", cfg.Control.Thresholds.Temperature.CriticalHigh)
	}
	if cfg.Control.Thresholds.SoilMoisture.WarningLow != 30 {
		t.Errorf("soil_moisture warning_low default = %v, want 30", cfg.Control.Thresholds.SoilMoisture.WarningLow)
	}
	if cfg.Control.Trend.WindowHours != 6 {
		t.Errorf("trend window default = %d, want 6", cfg.Control.Trend.WindowHours)
	}
	if len(cfg.Devices) != 2 {
		t.Fatalf("default devices = %d, want 2", len(cfg.Devices))
	}
	if cfg.Devices[0].ID != "pump_01" || cfg.Devices[1].ID != "fan_01" {
		t.Errorf("default device IDs = %q, %q", cfg.Devices[0].ID, cfg.Devices[1].ID)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GREENHOUSE_DATABASE_PATH", "/tmp/override.db")
	t.Setenv("GREENHOUSE_MQTT_HOST", "env-broker")
	t.Setenv("GREENHOUSE_FORECAST_API_KEY", "env-key")

	cfg, err := Load(writeConfig(t, `site: {id: "g1"}`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/override.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.MQTT.Broker.Host != "env-broker" {
		t.Errorf("MQTT.Broker.Host = %q, want env override", cfg.MQTT.Broker.Host)
	}
	if cfg.Forecast.APIKey != "env-key" {
		t.Errorf("Forecast.APIKey = %q, want env override", cfg.Forecast.APIKey)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing site id",
			mutate:  func(c *Config) { c.Site.ID = "" },
			wantMsg: "site.id is required",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Site.Timezone = "Mars/Olympus" },
			wantMsg: "not a valid IANA timezone",
		},
		{
			name:    "bad qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantMsg: "mqtt.qos",
		},
		{
			name:    "zero cycle interval",
			mutate:  func(c *Config) { c.Control.CycleIntervalMinutes = 0 },
			wantMsg: "control.cycle_interval",
		},
		{
			name: "inverted temperature bands",
			mutate: func(c *Config) {
				c.Control.Thresholds.Temperature.WarningHigh = 40
			},
			wantMsg: "warning_high must be below critical_high",
		},
		{
			name: "reasoner enabled without url",
			mutate: func(c *Config) {
				c.Reasoner.Enabled = true
				c.Reasoner.URL = ""
			},
			wantMsg: "reasoner.url is required",
		},
		{
			name: "unknown device category",
			mutate: func(c *Config) {
				c.Devices[0].Category = "heater"
			},
			wantMsg: "category must be",
		},
		{
			name: "duplicate device id",
			mutate: func(c *Config) {
				c.Devices[1].ID = c.Devices[0].ID
			},
			wantMsg: "is duplicated",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantMsg)
			}
		})
	}
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	if err := defaultConfig().Validate(); err != nil {
		t.Errorf("defaultConfig() should validate cleanly, got: %v", err)
	}
}
