// Package config loads terrain settings from YAML, .env files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dori/terrain/internal/db"
	"github.com/dori/terrain/internal/model"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "TERRAIN_"

// Config holds all terrain configuration
type Config struct {
	DataDir    string `yaml:"data_dir"`
	CacheDir   string `yaml:"cache_dir"`
	Technician string `yaml:"technician"`

	Database DatabaseConfig `yaml:"database"`
	Pricing  PricingConfig  `yaml:"pricing"`
	Display  DisplayConfig  `yaml:"display"`
	Logging  LoggingConfig  `yaml:"logging"`

	Notifications bool `yaml:"notifications"`
}

// DatabaseConfig identifies the remote document store
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3, mysql
	DSN    string `yaml:"dsn"`
	// PollInterval is how often open interventions are checked for
	// writes made elsewhere
	PollInterval string `yaml:"poll_interval"`
}

// PricingConfig is used when a technician has no stored profile
type PricingConfig struct {
	HourlyRate      float64 `yaml:"hourly_rate"`
	TravelUnitFee   float64 `yaml:"travel_unit_fee"`
	RoundingMinutes int     `yaml:"rounding_minutes"`
	GPS             string  `yaml:"gps"`
}

// DisplayConfig configures the interactive view
type DisplayConfig struct {
	TickInterval string `yaml:"tick_interval"`
	Theme        string `yaml:"theme"`
}

// LoggingConfig configures the log file
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	File  string `yaml:"file"`
}

// Default returns the default configuration rooted at the default data dir
func Default() *Config {
	return &Config{
		DataDir: db.DefaultDataDir(),
		Database: DatabaseConfig{
			Driver:       db.DriverSQLite,
			PollInterval: "2s",
		},
		Pricing: PricingConfig{
			HourlyRate:      model.DefaultHourlyRate,
			TravelUnitFee:   model.DefaultTravelUnitFee,
			RoundingMinutes: model.DefaultRoundingMinutes,
			GPS:             string(model.NavMaps),
		},
		Display: DisplayConfig{
			TickInterval: "1s",
			Theme:        "nord",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Notifications: true,
	}
}

// DefaultPath returns the config file location
func DefaultPath() string {
	return filepath.Join(db.DefaultDataDir(), "config.yaml")
}

// LoadEnv loads .env files into the environment. Missing files are
// ignored; variables already set win.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the YAML file at path, applies TERRAIN_* overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate checks values that would otherwise fail later and obscurely
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Driver {
	case db.DriverSQLite, db.DriverMySQL:
	default:
		problems = append(problems, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.Driver == db.DriverMySQL && c.Database.DSN == "" {
		problems = append(problems, "mysql needs a dsn")
	}
	if c.Pricing.HourlyRate < 0 || c.Pricing.TravelUnitFee < 0 {
		problems = append(problems, "pricing must not be negative")
	}
	if c.Pricing.RoundingMinutes < 0 {
		problems = append(problems, "rounding_minutes must not be negative")
	}
	switch model.NavApp(c.Pricing.GPS) {
	case model.NavMaps, model.NavWaze, model.NavIPhone, "":
	default:
		problems = append(problems, fmt.Sprintf("unknown gps app %q", c.Pricing.GPS))
	}
	if _, err := parsePositiveDuration(c.Display.TickInterval); err != nil {
		problems = append(problems, "tick_interval: "+err.Error())
	}
	if _, err := time.ParseDuration(c.Database.PollInterval); err != nil {
		problems = append(problems, "poll_interval: "+err.Error())
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Profile returns the configured fallback pricing
func (c *Config) Profile() model.TechnicianProfile {
	return model.TechnicianProfile{
		Technician:      c.Technician,
		HourlyRate:      c.Pricing.HourlyRate,
		TravelUnitFee:   c.Pricing.TravelUnitFee,
		RoundingMinutes: c.Pricing.RoundingMinutes,
		GPS:             model.NavApp(c.Pricing.GPS),
	}.WithDefaults()
}

// TickInterval returns the display refresh period
func (c *Config) TickInterval() time.Duration {
	d, err := parsePositiveDuration(c.Display.TickInterval)
	if err != nil {
		return time.Second
	}
	return d
}

// PollInterval returns the realtime poll period; zero disables polling
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Database.PollInterval)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

func (c *Config) resolvePaths() {
	if c.Database.DSN == "" && c.Database.Driver == db.DriverSQLite {
		c.Database.DSN = filepath.Join(c.DataDir, "terrain.db")
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "cache")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "terrain.log")
	}
}

func (c *Config) applyEnvOverrides() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("DATA_DIR", &c.DataDir)
	str("CACHE_DIR", &c.CacheDir)
	str("TECHNICIAN", &c.Technician)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("POLL_INTERVAL", &c.Database.PollInterval)
	str("GPS", &c.Pricing.GPS)
	str("TICK_INTERVAL", &c.Display.TickInterval)
	str("THEME", &c.Display.Theme)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FILE", &c.Logging.File)

	if v := os.Getenv(EnvPrefix + "HOURLY_RATE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sHOURLY_RATE: %w", EnvPrefix, err)
		}
		c.Pricing.HourlyRate = f
	}
	if v := os.Getenv(EnvPrefix + "TRAVEL_UNIT_FEE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sTRAVEL_UNIT_FEE: %w", EnvPrefix, err)
		}
		c.Pricing.TravelUnitFee = f
	}
	if v := os.Getenv(EnvPrefix + "ROUNDING_MINUTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sROUNDING_MINUTES: %w", EnvPrefix, err)
		}
		c.Pricing.RoundingMinutes = n
	}
	if v := os.Getenv(EnvPrefix + "NOTIFICATIONS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sNOTIFICATIONS: %w", EnvPrefix, err)
		}
		c.Notifications = b
	}
	return nil
}

func parsePositiveDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	return d, nil
}
