package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata" // timezone lookups must not depend on the host

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/timoknapp/contest-dashboard/pkg/contest"
	"github.com/timoknapp/contest-dashboard/pkg/util"
)

// EnvPrefix is prepended to every environment variable, e.g. CFD_ADDR.
const EnvPrefix = "CFD"

// Defaults
const (
	DefaultAddr           = ":8080"
	DefaultLogLevel       = "INFO"
	DefaultTimezone       = "UTC"
	DefaultStorePath      = "data/preferences.db"
	DefaultWarmupCron     = "*/5 * * * *"
	DefaultSweepCron      = "@hourly"
	DefaultSessionMaxIdle = 24 * time.Hour
)

// DefaultAllowedOrigins admits the frontend dev server.
var DefaultAllowedOrigins = []string{"http://localhost:3000"}

// Config is the validated runtime configuration.
type Config struct {
	Addr           string        `mapstructure:"addr"`
	SourceURL      string        `mapstructure:"source-url"`
	SourceTimeout  time.Duration `mapstructure:"source-timeout"`
	LogLevel       string        `mapstructure:"log-level"`
	Timezone       string        `mapstructure:"timezone"`
	StorePath      string        `mapstructure:"store-path"`
	WarmupEnabled  bool          `mapstructure:"warmup-enabled"`
	WarmupCron     string        `mapstructure:"warmup-cron"`
	SweepCron      string        `mapstructure:"sweep-cron"`
	SessionMaxIdle time.Duration `mapstructure:"session-max-idle"`
	AllowedOrigins []string      `mapstructure:"allowed-origins"`

	Location *time.Location `mapstructure:"-"`
}

// SetDefaults registers defaults and environment binding on v.
func SetDefaults(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// LOG_LEVEL is what the logger reads at bootstrap, accept it here too
	_ = v.BindEnv("log-level", EnvPrefix+"_LOG_LEVEL", "LOG_LEVEL")

	v.SetDefault("addr", DefaultAddr)
	v.SetDefault("source-url", contest.DefaultURL)
	v.SetDefault("source-timeout", contest.DefaultTimeout)
	v.SetDefault("log-level", DefaultLogLevel)
	v.SetDefault("timezone", DefaultTimezone)
	v.SetDefault("store-path", DefaultStorePath)
	v.SetDefault("warmup-enabled", true)
	v.SetDefault("warmup-cron", DefaultWarmupCron)
	v.SetDefault("sweep-cron", DefaultSweepCron)
	v.SetDefault("session-max-idle", DefaultSessionMaxIdle)
	v.SetDefault("allowed-origins", DefaultAllowedOrigins)
}

// ReadFile loads an optional config file. A missing default file is fine; a
// missing explicit file is not.
func ReadFile(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName(".contest-dashboard")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr must not be empty")
	}
	if c.SourceTimeout <= 0 {
		return fmt.Errorf("source-timeout must be positive, got %s", c.SourceTimeout)
	}
	if c.SessionMaxIdle <= 0 {
		return fmt.Errorf("session-max-idle must be positive, got %s", c.SessionMaxIdle)
	}

	for _, origin := range c.AllowedOrigins {
		if err := validateOrigin(origin); err != nil {
			return err
		}
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	c.Location = loc

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.WarmupCron); err != nil {
		return fmt.Errorf("invalid warmup-cron %q: %w", c.WarmupCron, err)
	}
	if _, err := parser.Parse(c.SweepCron); err != nil {
		return fmt.Errorf("invalid sweep-cron %q: %w", c.SweepCron, err)
	}
	return nil
}

// validateOrigin accepts "*" or a scheme://host[:port] origin without a path.
func validateOrigin(origin string) error {
	if origin == util.AnyOrigin {
		return nil
	}
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" || strings.Trim(u.Path, "/") != "" {
		return fmt.Errorf("invalid allowed origin %q: want scheme://host[:port]", origin)
	}
	return nil
}
