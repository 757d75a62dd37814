package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL      string   `mapstructure:"REDIS_URL"`
	DefaultTenant string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins   []string `mapstructure:"-"`

	BatchWindowSeconds  int  `mapstructure:"BATCH_WINDOW_SECONDS"`
	TreatedGraceMinutes int  `mapstructure:"TREATED_GRACE_MINUTES"`
	SweepIntervalSecs   int  `mapstructure:"SWEEP_INTERVAL_SECONDS"`
	QueueDebugVerify    bool `mapstructure:"QUEUE_DEBUG_VERIFY"`

	AlertEmailRecipients []string `mapstructure:"-"`
	AlertSMSRecipients   []string `mapstructure:"-"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BATCH_WINDOW_SECONDS", 5)
	v.SetDefault("TREATED_GRACE_MINUTES", 5)
	v.SetDefault("SWEEP_INTERVAL_SECONDS", 60)
	v.SetDefault("QUEUE_DEBUG_VERIFY", false)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("REDIS_URL")
	v.BindEnv("DEFAULT_TENANT")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("BATCH_WINDOW_SECONDS")
	v.BindEnv("TREATED_GRACE_MINUTES")
	v.BindEnv("SWEEP_INTERVAL_SECONDS")
	v.BindEnv("QUEUE_DEBUG_VERIFY")
	v.BindEnv("ALERT_EMAIL_RECIPIENTS")
	v.BindEnv("ALERT_SMS_RECIPIENTS")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// List-valued keys arrive as comma-separated strings; Unmarshal's
	// whitespace splitting mangles them, so they are parsed here instead.
	cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	cfg.AlertEmailRecipients = splitList(v.GetString("ALERT_EMAIL_RECIPIENTS"))
	cfg.AlertSMSRecipients = splitList(v.GetString("ALERT_SMS_RECIPIENTS"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.BatchWindowSeconds < 1 {
		return fmt.Errorf("BATCH_WINDOW_SECONDS must be at least 1, got %d", c.BatchWindowSeconds)
	}
	if c.TreatedGraceMinutes < 0 {
		return fmt.Errorf("TREATED_GRACE_MINUTES must not be negative, got %d", c.TreatedGraceMinutes)
	}
	if c.SweepIntervalSecs < 1 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be at least 1, got %d", c.SweepIntervalSecs)
	}
	if c.IsProduction() && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required in production; the in-memory store is development only")
	}
	return nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// BatchWindow returns the scheduler batch window as a duration.
func (c *Config) BatchWindow() time.Duration {
	return time.Duration(c.BatchWindowSeconds) * time.Second
}

// TreatedGrace returns how long treated entries linger before removal.
func (c *Config) TreatedGrace() time.Duration {
	return time.Duration(c.TreatedGraceMinutes) * time.Minute
}

// SweepInterval returns how often the treated-entry sweeper runs.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSecs) * time.Second
}
