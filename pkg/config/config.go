package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file.
const (
	EnvDatabasePassword = "INGESTOR_DB_PASSWORD"
	EnvJWTSecret        = "INGESTOR_JWT_SECRET"
)

const (
	landingDateLayout = "2006-01-02"
	defaultMaxRetries = 3
)

// Config represents the ingestor configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Sources    []SourceConfig   `yaml:"sources" validate:"required,min=1,dive"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Auth       AuthConfig       `yaml:"auth"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"15m"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host         string `yaml:"host" default:"localhost" validate:"required"`
	Port         int    `yaml:"port" default:"5432"`
	User         string `yaml:"user" default:"postgres"`
	Password     string `yaml:"password"`
	Database     string `yaml:"database" default:"rover_ingest" validate:"required"`
	SSLMode      string `yaml:"ssl_mode" default:"disable"`
	MaxOpenConns int    `yaml:"max_open_conns" default:"10" validate:"min=0"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled"`
}

// FetchConfig tunes the resilient upstream client.
type FetchConfig struct {
	Timeout          time.Duration `yaml:"timeout" default:"30s"`
	MaxRetries       *int          `yaml:"max_retries" validate:"omitempty,min=0"`
	BackoffBase      time.Duration `yaml:"backoff_base" default:"2s"`
	FailureThreshold int           `yaml:"failure_threshold" default:"5" validate:"min=1"`
	Cooldown         time.Duration `yaml:"cooldown" default:"60s"`
	UserAgent        string        `yaml:"user_agent" default:"rover-ingest/1.0"`
}

// Retries returns how many times a transient failure is retried. 0 disables retries; unset means 3.
func (c FetchConfig) Retries() int {
	if c.MaxRetries == nil {
		return defaultMaxRetries
	}
	return *c.MaxRetries
}

// SchedulerConfig drives the background runner.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// Interval between wakes. Ignored when RunAtHour is set.
	Interval time.Duration `yaml:"interval" default:"24h"`
	// RunAtHour wakes the runner once per day at the given UTC hour.
	RunAtHour      *int          `yaml:"run_at_hour" validate:"omitempty,min=0,max=23"`
	Lookback       int           `yaml:"lookback" default:"7" validate:"min=0"`
	Concurrency    int           `yaml:"concurrency" default:"1" validate:"min=1"`
	StaleAfter     time.Duration `yaml:"stale_after" default:"6h"`
	RunOnStart     bool          `yaml:"run_on_start"`
	SourceDeadline time.Duration `yaml:"source_deadline" default:"2h"`
}

// SourceConfig describes one upstream feed (one rover).
type SourceConfig struct {
	ID            string `yaml:"id" validate:"required"`
	Name          string `yaml:"name"`
	Category      string `yaml:"category" validate:"required"`
	BaseURL       string `yaml:"base_url" validate:"required,url"`
	LandingDate   string `yaml:"landing_date" validate:"required,datetime=2006-01-02"`
	InitialWindow int    `yaml:"initial_window" validate:"min=0"`
	PageSize      int    `yaml:"page_size" default:"100" validate:"min=1"`
	MaxPages      int    `yaml:"max_pages" default:"50" validate:"min=1"`
	Active        *bool  `yaml:"active"`
}

// IsActive reports whether the runner should ingest this source. Sources are active unless disabled explicitly.
func (s SourceConfig) IsActive() bool {
	return s.Active == nil || *s.Active
}

// Landing returns the parsed landing date (sol 0) in UTC.
func (s SourceConfig) Landing() time.Time {
	t, err := time.Parse(landingDateLayout, s.LandingDate)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// RateLimitConfig contains the static tier table.
type RateLimitConfig struct {
	Backend     string                `yaml:"backend" default:"memory" validate:"oneof=memory postgres"`
	DefaultTier string                `yaml:"default_tier" default:"free"`
	Tiers       map[string]TierConfig `yaml:"tiers"`
}

// TierConfig holds per-tier quotas. -1 means unlimited.
type TierConfig struct {
	HourlyLimit int `yaml:"hourly_limit" validate:"min=-1"`
	DailyLimit  int `yaml:"daily_limit" validate:"min=-1"`
}

// AuthConfig contains credential token settings
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer" default:"rover-ingest"`
}

// DefaultTiers is used when the config file declares no tiers.
func DefaultTiers() map[string]TierConfig {
	return map[string]TierConfig{
		"free":  {HourlyLimit: 60, DailyLimit: 500},
		"pro":   {HourlyLimit: 1000, DailyLimit: 10000},
		"power": {HourlyLimit: 10000, DailyLimit: -1},
	}
}

// Load loads configuration from a YAML file, applies defaults and env overrides, and validates it.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes raw YAML into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply config defaults: %w", err)
	}

	applyEnv(&cfg)

	if len(cfg.RateLimit.Tiers) == 0 {
		cfg.RateLimit.Tiers = DefaultTiers()
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvDatabasePassword); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

func validate(cfg *Config) error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(cfg); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("sources: duplicate id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
	}

	if _, ok := cfg.RateLimit.Tiers[cfg.RateLimit.DefaultTier]; !ok {
		return fmt.Errorf("rate_limit.default_tier %q is not a configured tier", cfg.RateLimit.DefaultTier)
	}
	for name, tier := range cfg.RateLimit.Tiers {
		if err := v.Struct(tier); err != nil {
			return fmt.Errorf("rate_limit.tiers.%s: %w", name, err)
		}
	}
	return nil
}

// Source returns the config for the given source id.
func (c *Config) Source(id string) (SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return SourceConfig{}, false
}
