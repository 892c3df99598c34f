package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultGatewayVersion       = 10
	DefaultGatewayEncoding      = "json"
	DefaultLargeThreshold       = 50
	DefaultReconnectBaseDelay   = 1 * time.Second
	DefaultReconnectMaxDelay    = 60 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultWriteTimeout         = 5 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultGatewayBufferSize    = 1024
	DefaultCommandLimit         = 120
	DefaultCommandWindow        = 60 * time.Second
	DefaultRestURL              = "https://discord.com/api/v10"
	DefaultRESTTimeout          = 30 * time.Second
	DefaultRedisPort            = 6379
	DefaultKeyPrefix            = "relaygate"
	DefaultCheckpointTTL        = 15 * time.Minute
	DefaultCheckpointTimeout    = 2 * time.Second
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 10
	DefaultMinConns             = 2
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 10000
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
)

func (c *Config) applyDefaults() {
	// Gateway defaults
	if c.Gateway.Version == 0 {
		c.Gateway.Version = DefaultGatewayVersion
	}
	if c.Gateway.Encoding == "" {
		c.Gateway.Encoding = DefaultGatewayEncoding
	}
	if c.Gateway.LargeThreshold == 0 {
		c.Gateway.LargeThreshold = DefaultLargeThreshold
	}
	if c.Gateway.ReconnectBaseDelay == 0 {
		c.Gateway.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Gateway.ReconnectMaxDelay == 0 {
		c.Gateway.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Gateway.MaxReconnectAttempts == 0 {
		c.Gateway.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultWriteTimeout
	}
	if c.Gateway.HandshakeTimeout == 0 {
		c.Gateway.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Gateway.BufferSize == 0 {
		c.Gateway.BufferSize = DefaultGatewayBufferSize
	}
	if c.Gateway.CommandLimit == 0 {
		c.Gateway.CommandLimit = DefaultCommandLimit
	}
	if c.Gateway.CommandWindow == 0 {
		c.Gateway.CommandWindow = DefaultCommandWindow
	}

	// REST defaults
	if c.REST.BaseURL == "" {
		c.REST.BaseURL = DefaultRestURL
	}
	if c.REST.Timeout == 0 {
		c.REST.Timeout = DefaultRESTTimeout
	}

	// Checkpoint defaults
	if c.Checkpoint.Port == 0 {
		c.Checkpoint.Port = DefaultRedisPort
	}
	if c.Checkpoint.KeyPrefix == "" {
		c.Checkpoint.KeyPrefix = DefaultKeyPrefix
	}
	if c.Checkpoint.TTL == 0 {
		c.Checkpoint.TTL = DefaultCheckpointTTL
	}
	if c.Checkpoint.Timeout == 0 {
		c.Checkpoint.Timeout = DefaultCheckpointTimeout
	}

	// Journal defaults
	applyDBDefaults(&c.Journal.Database)
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
