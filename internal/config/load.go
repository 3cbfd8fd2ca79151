package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Default worker tuning. The poll cadence and lease timeout come from the
// automation provider's rate-limit contract; see internal/task for how
// they are applied.
const (
	defaultPollInterval    = 15 * time.Second
	defaultMaxPollInterval = 60 * time.Second
	defaultLeaseTimeout    = 5 * time.Minute
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables use the DISPATCH_ prefix with
// underscores for nesting (e.g. DISPATCH_DATABASE_URL) and take precedence
// over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("hamibot.base_url", "https://api.hamibot.com")
	v.SetDefault("worker.poll_interval", defaultPollInterval)
	v.SetDefault("worker.max_poll_interval", defaultMaxPollInterval)
	v.SetDefault("worker.lease_timeout", defaultLeaseTimeout)

	// Optional config file alongside the binary or in the working directory
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine; environment variables may carry everything
	}

	// Environment variables: DISPATCH_SERVER_PORT, DISPATCH_DATABASE_URL, ...
	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults must be bound explicitly for Unmarshal to see
	// their environment values.
	for _, key := range []string{
		"database.url",
		"hamibot.token",
		"hamibot.script_id",
		"hamibot.device_id",
		"hamibot.device_name",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind environment variable for %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
