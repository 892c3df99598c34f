package config

import "time"

// Config is the root configuration for a relaygate instance.
type Config struct {
	Gateway    GatewayConfig    `yaml:"gateway" toml:"gateway"`
	REST       RESTConfig       `yaml:"rest" toml:"rest"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" toml:"checkpoint"`
	Journal    JournalConfig    `yaml:"journal" toml:"journal"`
	Log        LogConfig        `yaml:"log" toml:"log"`
}

// GatewayConfig holds gateway connection settings.
type GatewayConfig struct {
	URL            string `yaml:"url" toml:"url"` // Empty means discover via GET /gateway/bot
	Version        int    `yaml:"version" toml:"version"`
	Encoding       string `yaml:"encoding" toml:"encoding"`
	Intents        int64  `yaml:"intents" toml:"intents"`
	Compress       bool   `yaml:"compress" toml:"compress"`
	LargeThreshold int    `yaml:"large_threshold" toml:"large_threshold"`
	ShardID        int    `yaml:"shard_id" toml:"shard_id"`
	ShardCount     int    `yaml:"shard_count" toml:"shard_count"`

	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay" toml:"reconnect_base_delay"`
	ReconnectMaxDelay    time.Duration `yaml:"reconnect_max_delay" toml:"reconnect_max_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"` // -1 = unlimited

	WriteTimeout     time.Duration `yaml:"write_timeout" toml:"write_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" toml:"handshake_timeout"`
	BufferSize       int           `yaml:"buffer_size" toml:"buffer_size"`

	CommandLimit  int           `yaml:"command_limit" toml:"command_limit"`
	CommandWindow time.Duration `yaml:"command_window" toml:"command_window"`
}

// RESTConfig holds REST API settings.
type RESTConfig struct {
	BaseURL   string        `yaml:"base_url" toml:"base_url"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
	UserAgent string        `yaml:"user_agent" toml:"user_agent"`
}

// AuthConfig holds the bot token. Token wins over TokenFile.
type AuthConfig struct {
	Token     string `yaml:"token" toml:"token"`
	TokenFile string `yaml:"token_file" toml:"token_file"`
}

// CheckpointConfig holds the Redis session checkpoint settings.
type CheckpointConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled"`
	Host      string        `yaml:"host" toml:"host"`
	Port      int           `yaml:"port" toml:"port"`
	Password  string        `yaml:"password" toml:"password"`
	DB        int           `yaml:"db" toml:"db"`
	KeyPrefix string        `yaml:"key_prefix" toml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl" toml:"ttl"`
	Timeout   time.Duration `yaml:"timeout" toml:"timeout"`
}

// JournalConfig holds the dispatch event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	Database      DBConfig      `yaml:"database" toml:"database"`
	BatchSize     int           `yaml:"batch_size" toml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" toml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size" toml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Name     string `yaml:"name" toml:"name"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	SSLMode  string `yaml:"ssl_mode" toml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
	MinConns int    `yaml:"min_conns" toml:"min_conns"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text, json
}
