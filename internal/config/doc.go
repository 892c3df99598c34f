// Package config handles YAML and TOML configuration loading with
// environment variable substitution.
//
// Files ending in .toml are decoded as TOML; everything else is YAML.
// Both formats support ${VAR} syntax for environment variable interpolation.
// Durations are written as Go duration strings ("5s", "1m30s").
package config
