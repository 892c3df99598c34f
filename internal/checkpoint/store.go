package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/relaygate/internal/gateway"
)

// Default settings.
const (
	DefaultKeyPrefix = "relaygate"
	DefaultTTL       = 15 * time.Minute
)

// ErrCorrupt is returned when a stored checkpoint cannot be decoded.
var ErrCorrupt = errors.New("checkpoint: corrupt session value")

// Config holds Redis connection and key settings.
type Config struct {
	Host      string
	Port      int
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
	ShardID   int
}

// Addr returns the Redis address in "host:port" format.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// redisClient is the subset of redis.Cmdable the store uses.
type redisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Store implements gateway.Checkpointer on Redis.
type Store struct {
	client redisClient
	key    string
	ttl    time.Duration
	logger *slog.Logger
}

var _ gateway.Checkpointer = (*Store)(nil)

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr(), err)
	}

	return newStore(client, cfg, logger), nil
}

func newStore(client redisClient, cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		client: client,
		key:    SessionKey(prefix, cfg.ShardID),
		ttl:    ttl,
		logger: logger.With("component", "checkpoint"),
	}
}

// SessionKey returns the Redis key holding the session for a shard.
func SessionKey(prefix string, shardID int) string {
	return prefix + ":session:" + strconv.Itoa(shardID)
}

// Key returns the key this store reads and writes.
func (s *Store) Key() string {
	return s.key
}

// Load returns the stored session. A missing key reports ok=false with no error.
func (s *Store) Load(ctx context.Context) (gateway.Session, bool, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return gateway.Session{}, false, nil
	}
	if err != nil {
		return gateway.Session{}, false, fmt.Errorf("get %s: %w", s.key, err)
	}

	var sess gateway.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return gateway.Session{}, false, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if !sess.Resumable() {
		return gateway.Session{}, false, nil
	}

	s.logger.Debug("loaded session checkpoint", "session_id", sess.ID, "seq", *sess.Sequence)
	return sess, true, nil
}

// Save stores the session and refreshes the TTL.
func (s *Store) Save(ctx context.Context, sess gateway.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", s.key, err)
	}
	return nil
}

// Clear deletes the stored session.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", s.key, err)
	}
	s.logger.Debug("cleared session checkpoint")
	return nil
}

// Close releases the Redis connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}
