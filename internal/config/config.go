package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Hamibot  HamibotConfig  `mapstructure:"hamibot" validate:"required"`
	Worker   WorkerConfig   `mapstructure:"worker" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// HamibotConfig identifies the automation provider endpoint and the fixed
// device/script identity every dispatch call runs against.
type HamibotConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	Token      string `mapstructure:"token" validate:"required"`
	ScriptID   string `mapstructure:"script_id" validate:"required"`
	DeviceID   string `mapstructure:"device_id" validate:"required"`
	DeviceName string `mapstructure:"device_name" validate:"required"`
}

// WorkerConfig tunes the poll worker and lease manager. All values have
// defaults matching the production rate-limit contract; tests override
// them to run fast.
type WorkerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval" validate:"required,gt=0"`
	MaxPollInterval time.Duration `mapstructure:"max_poll_interval" validate:"required,gtefield=PollInterval"`
	LeaseTimeout    time.Duration `mapstructure:"lease_timeout" validate:"required,gt=0"`
}
