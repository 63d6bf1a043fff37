package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Greenhouse Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site     SiteConfig     `yaml:"site"`
	Database DatabaseConfig `yaml:"database"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	API      APIConfig      `yaml:"api"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Forecast ForecastConfig `yaml:"forecast"`
	Reasoner ReasonerConfig `yaml:"reasoner"`
	Control  ControlConfig  `yaml:"control"`
	Sensors  SensorsConfig  `yaml:"sensors"`
	Devices  []DeviceConfig `yaml:"devices"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// SiteConfig contains site-specific information.
// Timezone drives the daily counter reset; coordinates drive the forecast lookup.
type SiteConfig struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Timezone string         `yaml:"timezone"`
	Location LocationConfig `yaml:"location"`
}

// LocationConfig contains geographic coordinates for weather forecasts.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// InfluxDBConfig contains InfluxDB connection settings for the optional
// time-series archive of sensor readings and decision outcomes.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// ForecastConfig contains weather forecast provider settings.
// The forecast is optional; the decision cycle tolerates its absence.
type ForecastConfig struct {
	Enabled         bool   `yaml:"enabled"`
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	TimeoutSeconds  int    `yaml:"timeout"`
	CacheTTLMinutes int    `yaml:"cache_ttl"`
	MaxStaleMinutes int    `yaml:"max_stale"`
}

// ReasonerConfig contains settings for the external decision reasoner.
// When disabled (or on any reasoner failure) the fallback policy decides.
type ReasonerConfig struct {
	Enabled           bool   `yaml:"enabled"`
	URL               string `yaml:"url"`
	TimeoutSeconds    int    `yaml:"timeout"`
	MaxAttempts       int    `yaml:"max_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay"`
}

// ControlConfig contains the decision loop settings.
type ControlConfig struct {
	CycleIntervalMinutes int              `yaml:"cycle_interval"`
	MaxReadingAgeMinutes int              `yaml:"max_reading_age"`
	DryRun               bool             `yaml:"dry_run"`
	Trend                TrendConfig      `yaml:"trend"`
	Thresholds           ThresholdsConfig `yaml:"thresholds"`
	Proactive            ProactiveConfig  `yaml:"proactive"`
	Durations            DurationsConfig  `yaml:"durations"`
}

// TrendConfig contains trend estimation settings.
type TrendConfig struct {
	WindowHours    int `yaml:"window_hours"`
	MinSamples     int `yaml:"min_samples"`
	MinSpanMinutes int `yaml:"min_span"`
}

// ProactiveConfig tunes the proactive fallback rule.
// The horizon is extended when tomorrow's forecast high reaches HotDayTemp.
type ProactiveConfig struct {
	HorizonHours         int     `yaml:"horizon_hours"`
	ExtendedHorizonHours int     `yaml:"extended_horizon_hours"`
	HotDayTemp           float64 `yaml:"hot_day_temp"`
}

// ThresholdsConfig contains fallback policy thresholds per measurement.
type ThresholdsConfig struct {
	Temperature  TemperatureThresholds `yaml:"temperature"`
	Humidity     HumidityThresholds    `yaml:"humidity"`
	SoilMoisture SoilThresholds        `yaml:"soil_moisture"`
}

// TemperatureThresholds contains temperature bands in degrees Celsius.
type TemperatureThresholds struct {
	CriticalHigh float64 `yaml:"critical_high"`
	WarningHigh  float64 `yaml:"warning_high"`
	WarningLow   float64 `yaml:"warning_low"`
	OptimalLow   float64 `yaml:"optimal_low"`
	OptimalHigh  float64 `yaml:"optimal_high"`
}

// HumidityThresholds contains relative humidity bands in percent.
type HumidityThresholds struct {
	CriticalHigh float64 `yaml:"critical_high"`
	WarningHigh  float64 `yaml:"warning_high"`
	OptimalLow   float64 `yaml:"optimal_low"`
	OptimalHigh  float64 `yaml:"optimal_high"`
}

// SoilThresholds contains soil moisture bands in percent.
type SoilThresholds struct {
	CriticalLow float64 `yaml:"critical_low"`
	WarningLow  float64 `yaml:"warning_low"`
	WarningHigh float64 `yaml:"warning_high"`
	OptimalLow  float64 `yaml:"optimal_low"`
	OptimalHigh float64 `yaml:"optimal_high"`
}

// DurationsConfig contains run durations (minutes) the fallback policy
// requests per rule tier. The executor clamps to each device's maximum.
type DurationsConfig struct {
	CriticalPumpMinutes  int `yaml:"critical_pump"`
	WarningPumpMinutes   int `yaml:"warning_pump"`
	ProactivePumpMinutes int `yaml:"proactive_pump"`
	CriticalFanMinutes   int `yaml:"critical_fan"`
	WarningFanMinutes    int `yaml:"warning_fan"`
	ProactiveFanMinutes  int `yaml:"proactive_fan"`
}

// SensorsConfig contains hard validity ranges for incoming readings.
// Readings outside these ranges are rejected as sensor faults.
type SensorsConfig struct {
	Temperature  SensorRangeConfig `yaml:"temperature"`
	Humidity     SensorRangeConfig `yaml:"humidity"`
	SoilMoisture SensorRangeConfig `yaml:"soil_moisture"`
	Light        SensorRangeConfig `yaml:"light"`
}

// SensorRangeConfig is an inclusive [Min, Max] validity range.
type SensorRangeConfig struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// DeviceConfig describes a single controllable device (relay channel).
type DeviceConfig struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	Category           string `yaml:"category"` // "pump" or "fan"
	MaxOnMinutes       int    `yaml:"max_on_minutes"`
	MinIntervalMinutes int    `yaml:"min_interval_minutes"`
}

// AlertsConfig contains alert publishing settings.
type AlertsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GREENHOUSE_SECTION_KEY
// For example: GREENHOUSE_DATABASE_PATH, GREENHOUSE_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
//
// Threshold and duration defaults mirror the agronomic baseline the fallback
// policy was commissioned with: ventilate at 32°C (critical 38°C), irrigate
// below 30% soil moisture (critical 20%), dehumidify above 90% RH.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "greenhouse-001",
			Name:     "Greenhouse",
			Timezone: "UTC",
		},
		Database: DatabaseConfig{
			Path:        "./data/greenhouse.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "greenhouse-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Forecast: ForecastConfig{
			BaseURL:         "https://api.openweathermap.org/data/2.5",
			TimeoutSeconds:  30,
			CacheTTLMinutes: 30,
			MaxStaleMinutes: 180,
		},
		Reasoner: ReasonerConfig{
			TimeoutSeconds:    120,
			MaxAttempts:       3,
			RetryDelaySeconds: 5,
		},
		Control: ControlConfig{
			CycleIntervalMinutes: 15,
			MaxReadingAgeMinutes: 30,
			Trend: TrendConfig{
				WindowHours:    6,
				MinSamples:     3,
				MinSpanMinutes: 30,
			},
			Thresholds: ThresholdsConfig{
				Temperature: TemperatureThresholds{
					CriticalHigh: 38,
					WarningHigh:  32,
					WarningLow:   15,
					OptimalLow:   18,
					OptimalHigh:  28,
				},
				Humidity: HumidityThresholds{
					CriticalHigh: 95,
					WarningHigh:  90,
					OptimalLow:   50,
					OptimalHigh:  80,
				},
				SoilMoisture: SoilThresholds{
					CriticalLow: 20,
					WarningLow:  30,
					WarningHigh: 80,
					OptimalLow:  40,
					OptimalHigh: 70,
				},
			},
			Proactive: ProactiveConfig{
				HorizonHours:         6,
				ExtendedHorizonHours: 12,
				HotDayTemp:           35,
			},
			Durations: DurationsConfig{
				CriticalPumpMinutes:  15,
				WarningPumpMinutes:   10,
				ProactivePumpMinutes: 45,
				CriticalFanMinutes:   30,
				WarningFanMinutes:    15,
				ProactiveFanMinutes:  20,
			},
		},
		Sensors: SensorsConfig{
			Temperature:  SensorRangeConfig{Min: -20, Max: 60},
			Humidity:     SensorRangeConfig{Min: 0, Max: 100},
			SoilMoisture: SensorRangeConfig{Min: 0, Max: 100},
			Light:        SensorRangeConfig{Min: 0, Max: 200000},
		},
		Devices: []DeviceConfig{
			{ID: "pump_01", Name: "Irrigation Pump", Category: "pump", MaxOnMinutes: 60, MinIntervalMinutes: 15},
			{ID: "fan_01", Name: "Ventilation Fan", Category: "fan", MaxOnMinutes: 120, MinIntervalMinutes: 10},
		},
		Alerts: AlertsConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GREENHOUSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("GREENHOUSE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GREENHOUSE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GREENHOUSE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GREENHOUSE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GREENHOUSE_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Secrets for the optional external services
	if v := os.Getenv("GREENHOUSE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("GREENHOUSE_FORECAST_API_KEY"); v != "" {
		cfg.Forecast.APIKey = v
	}
	if v := os.Getenv("GREENHOUSE_REASONER_URL"); v != "" {
		cfg.Reasoner.URL = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA timezone", c.Site.Timezone))
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// Control validation
	if c.Control.CycleIntervalMinutes < 1 {
		errs = append(errs, "control.cycle_interval must be at least 1 minute")
	}
	if c.Control.Trend.MinSamples < 2 {
		errs = append(errs, "control.trend.min_samples must be at least 2")
	}
	errs = append(errs, c.validateThresholds()...)

	// Reasoner validation
	if c.Reasoner.Enabled && c.Reasoner.URL == "" {
		errs = append(errs, "reasoner.url is required when reasoner.enabled is true")
	}
	if c.Reasoner.MaxAttempts < 1 {
		errs = append(errs, "reasoner.max_attempts must be at least 1")
	}

	// Forecast validation
	if c.Forecast.Enabled && c.Forecast.APIKey == "" {
		errs = append(errs, "forecast.api_key is required when forecast.enabled is true (set GREENHOUSE_FORECAST_API_KEY)")
	}

	// Device validation
	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		prefix := fmt.Sprintf("devices[%d]", i)
		if d.ID == "" {
			errs = append(errs, prefix+".id is required")
		}
		if seen[d.ID] {
			errs = append(errs, fmt.Sprintf("%s.id %q is duplicated", prefix, d.ID))
		}
		seen[d.ID] = true
		if d.Category != "pump" && d.Category != "fan" {
			errs = append(errs, fmt.Sprintf("%s.category must be \"pump\" or \"fan\", got %q", prefix, d.Category))
		}
		if d.MaxOnMinutes < 1 {
			errs = append(errs, prefix+".max_on_minutes must be at least 1")
		}
		if d.MinIntervalMinutes < 0 {
			errs = append(errs, prefix+".min_interval_minutes must not be negative")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// validateThresholds checks that threshold bands are internally consistent.
func (c *Config) validateThresholds() []string {
	var errs []string

	t := c.Control.Thresholds.Temperature
	if t.WarningHigh >= t.CriticalHigh {
		errs = append(errs, "control.thresholds.temperature: warning_high must be below critical_high")
	}
	if t.OptimalHigh > t.WarningHigh {
		errs = append(errs, "control.thresholds.temperature: optimal_high must not exceed warning_high")
	}
	if t.WarningLow > t.OptimalLow {
		errs = append(errs, "control.thresholds.temperature: warning_low must not exceed optimal_low")
	}

	h := c.Control.Thresholds.Humidity
	if h.WarningHigh >= h.CriticalHigh {
		errs = append(errs, "control.thresholds.humidity: warning_high must be below critical_high")
	}

	s := c.Control.Thresholds.SoilMoisture
	if s.CriticalLow >= s.WarningLow {
		errs = append(errs, "control.thresholds.soil_moisture: critical_low must be below warning_low")
	}
	if s.WarningLow > s.OptimalLow {
		errs = append(errs, "control.thresholds.soil_moisture: warning_low must not exceed optimal_low")
	}
	if s.OptimalHigh > s.WarningHigh {
		errs = append(errs, "control.thresholds.soil_moisture: optimal_high must not exceed warning_high")
	}

	return errs
}

// Timezone returns the site timezone location.
// Validate() guarantees the name parses, so failures fall back to UTC.
func (c *Config) Timezone() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CycleInterval returns the decision cycle interval as a Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Control.CycleIntervalMinutes) * time.Minute
}

// MaxReadingAge returns the freshness cutoff for sensor readings.
func (c *Config) MaxReadingAge() time.Duration {
	return time.Duration(c.Control.MaxReadingAgeMinutes) * time.Minute
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
