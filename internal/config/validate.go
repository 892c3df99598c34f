package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Auth.Token == "" && c.Auth.TokenFile == "" {
		return errors.New("auth.token or auth.token_file is required")
	}

	if err := c.Gateway.validate(); err != nil {
		return err
	}

	if c.REST.BaseURL == "" {
		return errors.New("rest.base_url is required")
	}
	if _, err := url.ParseRequestURI(c.REST.BaseURL); err != nil {
		return fmt.Errorf("rest.base_url is invalid: %w", err)
	}

	if c.Checkpoint.Enabled {
		if c.Checkpoint.Host == "" {
			return errors.New("checkpoint.host is required when checkpoint.enabled is true")
		}
		if c.Checkpoint.Port < 1 || c.Checkpoint.Port > 65535 {
			return fmt.Errorf("checkpoint.port must be between 1 and 65535, got %d", c.Checkpoint.Port)
		}
		if c.Checkpoint.DB < 0 {
			return errors.New("checkpoint.db must be >= 0")
		}
	}

	if c.Journal.Enabled {
		if err := c.Journal.Database.validate("journal.database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}

func (g *GatewayConfig) validate() error {
	if g.URL != "" {
		u, err := url.Parse(g.URL)
		if err != nil {
			return fmt.Errorf("gateway.url is invalid: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("gateway.url must use ws or wss, got %q", u.Scheme)
		}
	}
	if g.Encoding != "json" {
		return fmt.Errorf("gateway.encoding must be json, got %q", g.Encoding)
	}
	if g.Intents < 0 {
		return errors.New("gateway.intents must be >= 0")
	}
	if g.ShardCount < 0 {
		return errors.New("gateway.shard_count must be >= 0")
	}
	if g.ShardCount > 0 && (g.ShardID < 0 || g.ShardID >= g.ShardCount) {
		return fmt.Errorf("gateway.shard_id (%d) must be in [0, shard_count (%d))", g.ShardID, g.ShardCount)
	}
	if g.ReconnectBaseDelay > g.ReconnectMaxDelay {
		return fmt.Errorf("gateway.reconnect_base_delay (%s) cannot exceed reconnect_max_delay (%s)",
			g.ReconnectBaseDelay, g.ReconnectMaxDelay)
	}
	if g.MaxReconnectAttempts < -1 {
		return errors.New("gateway.max_reconnect_attempts must be >= -1")
	}
	if g.BufferSize < 1 {
		return errors.New("gateway.buffer_size must be >= 1")
	}
	if g.CommandLimit < 1 {
		return errors.New("gateway.command_limit must be >= 1")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
