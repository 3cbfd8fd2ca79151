// Package config defines the application's typed configuration and its
// loading/validation logic. Configuration comes from environment variables
// (DISPATCH_ prefix) layered over an optional YAML config file.
package config
