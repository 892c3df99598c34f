package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/relaygate/internal/dispatch"
)

// Default settings.
const (
	DefaultBatchSize     = 500
	DefaultFlushInterval = time.Second
	DefaultBufferSize    = 10000
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS gateway_events (
	event_id    uuid PRIMARY KEY,
	session_id  text        NOT NULL,
	shard       integer     NOT NULL,
	seq         bigint      NOT NULL,
	name        text        NOT NULL,
	received_at timestamptz NOT NULL,
	payload     jsonb       NOT NULL,
	UNIQUE (session_id, seq)
);
CREATE INDEX IF NOT EXISTS gateway_events_name_received_at
	ON gateway_events (name, received_at);
`

const insertSQL = `
INSERT INTO gateway_events (event_id, session_id, shard, seq, name, received_at, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (session_id, seq) DO NOTHING
`

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer settings.
type Config struct {
	BatchSize     int
	FlushInterval time.Duration
	BufferSize    int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		BatchSize:     DefaultBatchSize,
		FlushInterval: DefaultFlushInterval,
		BufferSize:    DefaultBufferSize,
	}
}

// Stats contains writer counters.
type Stats struct {
	Queued    int
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Dropped   int64
	Skipped   int64
}

type row struct {
	EventID    uuid.UUID
	SessionID  string
	Shard      int
	Seq        int64
	Name       string
	ReceivedAt time.Time
	Payload    json.RawMessage
}

// Writer batches dispatch events into the gateway_events table.
type Writer struct {
	cfg    Config
	db     DB
	queue  *Queue[row]
	logger *slog.Logger
	newID  func() uuid.UUID

	flushMu sync.Mutex // serializes flushes

	mu      sync.Mutex
	stats   Stats
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// NewWriter creates a Writer. Zero config fields take defaults.
func NewWriter(cfg Config, db DB, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultBufferSize
	}
	return &Writer{
		cfg:    cfg,
		db:     db,
		queue:  NewQueue[row](cfg.BufferSize),
		logger: logger.With("component", "journal"),
		newID:  uuid.New,
	}
}

// EnsureSchema creates the gateway_events table if it does not exist.
func (w *Writer) EnsureSchema(ctx context.Context) error {
	if _, err := w.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create gateway_events: %w", err)
	}
	return nil
}

// Handle queues a dispatch event. It matches dispatch.Handler and is meant
// for Dispatcher.SubscribeAll. Lifecycle events carry no payload and are
// skipped. A full queue drops the event.
func (w *Writer) Handle(ctx context.Context, env dispatch.Envelope) error {
	if env.Raw == nil || env.Seq == 0 {
		w.mu.Lock()
		w.stats.Skipped++
		w.mu.Unlock()
		return nil
	}

	r := row{
		EventID:    w.newID(),
		SessionID:  env.SessionID,
		Shard:      env.Shard,
		Seq:        env.Seq,
		Name:       env.Name,
		ReceivedAt: env.ReceivedAt,
		Payload:    env.Raw,
	}
	if !w.queue.Push(r) {
		return fmt.Errorf("journal queue full, dropped %s seq %d", env.Name, env.Seq)
	}
	return nil
}

// Start begins flushing in the background.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("journal writer already started")
	}
	w.started = true

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(runCtx)

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop halts the background loop and flushes what is left using ctx.
func (w *Writer) Stop(ctx context.Context) error {
	w.mu.Lock()
	cancel := w.cancel
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
		return ctx.Err()
	}

	w.flushAll(ctx)
	w.logger.Info("journal writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Run starts the writer, blocks until ctx is done, then stops it with a
// fresh context bounded by timeout.
func (w *Writer) Run(ctx context.Context, timeout time.Duration) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return w.Stop(stopCtx)
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	qs := w.queue.Stats()
	w.mu.Lock()
	defer w.mu.Unlock()
	s := w.stats
	s.Queued = qs.Len
	s.Dropped = qs.Dropped
	return s
}

func (w *Writer) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.flushAll(ctx)
		case <-w.queue.Ready():
			if w.queue.Len() >= w.cfg.BatchSize {
				w.flushAll(ctx)
			}
		}
	}
}

// flushAll writes queued rows in batches until the queue is empty or a
// batch fails.
func (w *Writer) flushAll(ctx context.Context) {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	for {
		rows := w.queue.Drain(w.cfg.BatchSize)
		if len(rows) == 0 {
			return
		}
		if err := w.flush(ctx, rows); err != nil {
			return
		}
	}
}

func (w *Writer) flush(ctx context.Context, rows []row) error {
	start := time.Now()

	conflicts, err := w.insert(ctx, rows)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(rows))
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	w.stats.Inserts += int64(len(rows) - conflicts)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

func (w *Writer) insert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertSQL, r.EventID, r.SessionID, r.Shard, r.Seq, r.Name, r.ReceivedAt, []byte(r.Payload))
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		tag, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if tag.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
