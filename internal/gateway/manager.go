package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/rickgao/relaygate/internal/dispatch"
)

// Invalid Session frames are answered after a random delay in this range.
const (
	invalidSessionMinDelay = 1000 * time.Millisecond
	invalidSessionMaxDelay = 5000 * time.Millisecond
)

// Manager maintains one gateway connection.
type Manager interface {
	// Run connects and keeps the connection alive until Disconnect is
	// called, ctx is cancelled, or the connection fails terminally.
	// Cancelling ctx keeps the session (and its checkpoint) for a later
	// resume; Disconnect discards it.
	Run(ctx context.Context) error

	// Disconnect stops Run, closes the socket normally, and clears the
	// session. It waits for Run to return and is idempotent. It must not
	// be called from an event handler.
	Disconnect(ctx context.Context) error

	// UpdatePresence sends op 3.
	UpdatePresence(ctx context.Context, p Presence) error

	// RequestGuildMembers sends op 8.
	RequestGuildMembers(ctx context.Context, req RequestGuildMembers) error

	// State returns the current lifecycle state.
	State() State

	// Stats returns current connection statistics.
	Stats() Stats

	// Dispatcher returns the dispatcher events are delivered to.
	Dispatcher() *dispatch.Dispatcher
}

// connection is the state scoped to one socket.
type connection struct {
	client       *Client
	logger       *slog.Logger
	invalidTimer *time.Timer
	closeCode    int
}

func (c *connection) invalidC() <-chan time.Time {
	if c.invalidTimer == nil {
		return nil
	}
	return c.invalidTimer.C
}

// manager implements the Manager interface.
type manager struct {
	cfg        ManagerConfig
	logger     *slog.Logger
	dispatcher *dispatch.Dispatcher
	limiter    *rate.Limiter

	// Owned by the Run goroutine.
	session   SessionStore
	heartbeat *HeartbeatMonitor
	policy    *ReconnectPolicy

	state      atomic.Int32
	reconnects atomic.Int64
	latency    atomic.Int64
	lastSeq    atomic.Int64

	mu           sync.Mutex
	client       *Client
	running      bool
	disconnected bool
	cancel       context.CancelFunc
	done         chan struct{}

	now          func() time.Time
	invalidDelay func() time.Duration
}

// NewManager creates a Connection Manager. A nil dispatcher gets a fresh one.
func NewManager(cfg ManagerConfig, d *dispatch.Dispatcher, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if d == nil {
		d = dispatch.New(logger)
	}
	cfg = cfg.withDefaults()

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.CommandLimit > 0 && cfg.CommandWindow > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.CommandWindow/time.Duration(cfg.CommandLimit)), cfg.CommandLimit)
	}

	return &manager{
		cfg:          cfg,
		logger:       logger.With("component", "gateway", "shard", cfg.ShardID),
		dispatcher:   d,
		limiter:      limiter,
		heartbeat:    NewHeartbeatMonitor(),
		policy:       NewReconnectPolicy(cfg.ReconnectBaseDelay, cfg.ReconnectMaxDelay, cfg.MaxReconnectAttempts),
		now:          time.Now,
		invalidDelay: randomInvalidSessionDelay,
	}
}

// randomInvalidSessionDelay returns a delay drawn uniformly from [1s, 5s).
func randomInvalidSessionDelay() time.Duration {
	span := int64(invalidSessionMaxDelay - invalidSessionMinDelay)
	return invalidSessionMinDelay + time.Duration(rand.Int64N(span))
}

// Run drives the connection state machine.
func (m *manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.disconnected = false
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	defer func() {
		cancel()
		m.setState(StateDisconnected)
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
		close(done)
	}()

	m.restoreCheckpoint(runCtx)

	for {
		m.setState(StateConnecting)
		err := m.runConnection(runCtx)

		if stop, result := m.stopped(ctx); stop {
			return result
		}

		var closeErr *CloseError
		if errors.As(err, &closeErr) {
			if closeErr.Fatal {
				m.logger.Error("gateway closed with fatal code",
					"code", closeErr.Code,
					"reason", closeErr.Reason,
				)
				m.clearSession(runCtx)
				m.emitLifecycle(runCtx, dispatch.Disconnected{Code: closeErr.Code, Err: closeErr})
				return closeErr
			}
			if invalidatesSession(closeErr.Code) {
				m.logger.Info("close code invalidated session", "code", closeErr.Code)
				m.clearSession(runCtx)
			}
		}

		delay, ok := m.policy.Next()
		if !ok {
			err = fmt.Errorf("%w after %d attempts: %w", ErrReconnectExhausted, m.policy.Attempts(), err)
			m.logger.Error("giving up on gateway", "error", err)
			code := 0
			if closeErr != nil {
				code = closeErr.Code
			}
			m.emitLifecycle(runCtx, dispatch.Disconnected{Code: code, Err: err})
			return err
		}
		m.reconnects.Add(1)

		m.logger.Warn("gateway connection lost, reconnecting",
			"error", err,
			"attempt", m.policy.Attempts(),
			"delay", delay,
		)

		timer := time.NewTimer(delay)
		select {
		case <-runCtx.Done():
			timer.Stop()
			_, result := m.stopped(ctx)
			return result
		case <-timer.C:
		}
	}
}

// stopped reports whether Run must return because of Disconnect or
// cancellation of the caller's context.
func (m *manager) stopped(ctx context.Context) (bool, error) {
	if m.isDisconnected() {
		m.clearSession(ctx)
		m.logger.Info("gateway disconnected")
		m.emitLifecycle(ctx, dispatch.Disconnected{Code: websocket.CloseNormalClosure})
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		m.logger.Info("gateway stopping, session kept for resume",
			"session_id", m.session.ID(),
		)
		return true, err
	}
	return false, nil
}

// Disconnect stops the manager.
func (m *manager) Disconnect(ctx context.Context) error {
	m.mu.Lock()
	if !m.running {
		// No event loop owns the session; clear it while Run cannot start.
		m.clearSession(ctx)
		m.mu.Unlock()
		return nil
	}
	m.disconnected = true
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *manager) isDisconnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.disconnected
}

// runConnection runs one socket from dial to close. The returned error
// says why the socket ended.
func (m *manager) runConnection(ctx context.Context) error {
	logger := m.logger.With("attempt_id", uuid.NewString())
	gatewayURL := m.connectURL()

	client := NewClient(ClientConfig{
		URL:              gatewayURL,
		WriteTimeout:     m.cfg.WriteTimeout,
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		BufferSize:       m.cfg.BufferSize,
	}, logger)

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}

	c := &connection{client: client, logger: logger, closeCode: closeResumable}
	m.setClient(client)
	m.setState(StateAwaitingHello)
	defer m.teardown(c)

	logger.Info("gateway socket open", "url", gatewayURL)

	for {
		select {
		case <-ctx.Done():
			if m.isDisconnected() {
				c.closeCode = websocket.CloseNormalClosure
			}
			return ctx.Err()

		case msg, ok := <-client.Messages():
			if !ok {
				return &CloseError{Code: websocket.CloseAbnormalClosure, Reason: "read loop ended"}
			}
			if msg.Err != nil {
				ce := closeErrorFrom(msg.Err)
				logger.Warn("gateway socket closed",
					"code", ce.Code,
					"reason", ce.Reason,
					"class", Classify(ce.Code),
				)
				return ce
			}
			if err := m.handleMessage(ctx, c, msg); err != nil {
				return err
			}

		case <-m.heartbeat.C():
			if err := m.heartbeat.Beat(m.now()); err != nil {
				logger.Warn("heartbeat ack not received, forcing reconnect",
					"interval", m.heartbeat.Interval(),
				)
				return err
			}
			if err := m.sendHeartbeat(ctx, c); err != nil {
				return err
			}

		case <-c.invalidC():
			c.invalidTimer = nil
			if err := m.establish(c); err != nil {
				return err
			}
		}
	}
}

// teardown cancels every timer of the connection and closes its socket.
func (m *manager) teardown(c *connection) {
	m.heartbeat.Stop()
	if c.invalidTimer != nil {
		c.invalidTimer.Stop()
		c.invalidTimer = nil
	}
	m.setClient(nil)
	if err := c.client.Close(c.closeCode); err != nil {
		c.logger.Debug("close socket", "error", err)
	}
}

// handleMessage decodes and routes one inbound message. A non-nil error
// ends the connection.
func (m *manager) handleMessage(ctx context.Context, c *connection, msg Message) error {
	data := msg.Data
	if msg.Binary {
		inflated, err := inflate(data)
		if err != nil {
			c.logger.Warn("dropping malformed frame", "error", &DecodeError{Data: data, Err: err})
			return nil
		}
		data = inflated
	}

	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("dropping malformed frame", "error", &DecodeError{Data: data, Err: err})
		return nil
	}

	// Sequence is applied before anything else, control frames included.
	if f.Seq != nil {
		m.observe(c, *f.Seq)
	}

	switch f.Op {
	case OpHello:
		return m.handleHello(c, f)
	case OpHeartbeatAck:
		m.heartbeat.Ack(m.now())
		m.latency.Store(int64(m.heartbeat.Latency()))
	case OpHeartbeat:
		m.heartbeat.BeatNow(m.now())
		return m.sendHeartbeat(ctx, c)
	case OpReconnect:
		c.logger.Info("server requested reconnect")
		return ErrReconnectRequested
	case OpInvalidSession:
		m.handleInvalidSession(ctx, c, f)
	case OpDispatch:
		return m.handleDispatch(ctx, c, f, msg.ReceivedAt)
	default:
		c.logger.Warn("ignoring unknown opcode", "op", int(f.Op))
	}
	return nil
}

func (m *manager) observe(c *connection, seq int64) {
	if m.session.Observe(seq) {
		m.lastSeq.Store(seq)
		return
	}
	c.logger.Debug("ignoring non-increasing sequence", "seq", seq, "last", m.lastSeq.Load())
}

func (m *manager) handleHello(c *connection, f Frame) error {
	if s := m.State(); s != StateAwaitingHello {
		return fmt.Errorf("%w: hello received while %s", ErrProtocolViolation, s)
	}

	var hello HelloData
	if err := json.Unmarshal(f.Data, &hello); err != nil {
		return fmt.Errorf("%w: %w", ErrProtocolViolation, &DecodeError{Data: f.Data, Err: err})
	}
	if hello.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: hello with heartbeat interval %d", ErrProtocolViolation, hello.HeartbeatInterval)
	}

	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	m.heartbeat.Start(interval)
	c.logger.Debug("hello received",
		"heartbeat_interval", interval,
		"first_heartbeat_in", m.heartbeat.Scheduled(),
	)

	return m.establish(c)
}

// establish sends Resume when the session allows it, Identify otherwise.
func (m *manager) establish(c *connection) error {
	if m.session.Resumable() {
		seq, _ := m.session.Sequence()
		m.setState(StateResuming)
		c.logger.Info("resuming session", "session_id", m.session.ID(), "seq", seq)
		return m.send(c, OpResume, ResumeData{
			Token:     m.cfg.Token,
			SessionID: m.session.ID(),
			Seq:       seq,
		})
	}

	m.setState(StateIdentifying)
	c.logger.Info("identifying", "intents", int64(m.cfg.Intents))
	return m.send(c, OpIdentify, m.identifyData())
}

func (m *manager) identifyData() IdentifyData {
	d := IdentifyData{
		Token:          m.cfg.Token,
		Intents:        m.cfg.Intents,
		Properties:     m.cfg.Properties,
		Compress:       m.cfg.Compress,
		LargeThreshold: m.cfg.LargeThreshold,
		Presence:       m.cfg.Presence,
	}
	if m.cfg.ShardCount > 0 {
		d.Shard = &[2]int{m.cfg.ShardID, m.cfg.ShardCount}
	}
	return d
}

func (m *manager) handleInvalidSession(ctx context.Context, c *connection, f Frame) {
	var resumable bool
	if err := json.Unmarshal(f.Data, &resumable); err != nil {
		c.logger.Warn("malformed invalid session payload, treating as non-resumable",
			"error", &DecodeError{Data: f.Data, Err: err},
		)
		resumable = false
	}

	if !resumable {
		m.clearSession(ctx)
	}

	delay := m.invalidDelay()
	c.logger.Warn("session invalidated",
		"error", &InvalidSessionError{Resumable: resumable},
		"retry_in", delay,
	)

	if c.invalidTimer != nil {
		c.invalidTimer.Stop()
	}
	c.invalidTimer = time.NewTimer(delay)
}

func (m *manager) handleDispatch(ctx context.Context, c *connection, f Frame, receivedAt time.Time) error {
	var lifecycle dispatch.Event

	switch f.Type {
	case dispatch.NameReady:
		if s := m.State(); s != StateIdentifying && s != StateResuming {
			return fmt.Errorf("%w: READY received while %s", ErrProtocolViolation, s)
		}
		var rd readyData
		if err := json.Unmarshal(f.Data, &rd); err != nil || rd.SessionID == "" {
			return fmt.Errorf("%w: READY without session id", ErrProtocolViolation)
		}
		m.session.SetIdentity(rd.SessionID, rd.ResumeGatewayURL)
		m.markConnected(ctx, c)
		lifecycle = dispatch.Connected{SessionID: rd.SessionID}

	case dispatch.NameResumed:
		if s := m.State(); s != StateResuming {
			return fmt.Errorf("%w: RESUMED received while %s", ErrProtocolViolation, s)
		}
		m.markConnected(ctx, c)
		lifecycle = dispatch.Connected{SessionID: m.session.ID(), Resumed: true}
	}

	ev, err := dispatch.Decode(f.Type, f.Data)
	if err != nil {
		c.logger.Warn("dropping undecodable dispatch",
			"event", f.Type,
			"error", &DecodeError{Data: f.Data, Err: err},
		)
	} else {
		var seq int64
		if f.Seq != nil {
			seq = *f.Seq
		}
		m.dispatcher.Emit(ctx, dispatch.Envelope{
			Name:       f.Type,
			Seq:        seq,
			SessionID:  m.session.ID(),
			Shard:      m.cfg.ShardID,
			ReceivedAt: receivedAt,
			Raw:        f.Data,
			Event:      ev,
		})
	}

	if lifecycle != nil {
		m.emitLifecycle(ctx, lifecycle)
	}
	return nil
}

func (m *manager) markConnected(ctx context.Context, c *connection) {
	m.setState(StateConnected)
	m.policy.Reset()
	m.saveCheckpoint(ctx)
	seq, _ := m.session.Sequence()
	c.logger.Info("gateway connected", "session_id", m.session.ID(), "seq", seq)
}

func (m *manager) sendHeartbeat(ctx context.Context, c *connection) error {
	var d any
	if seq, ok := m.session.Sequence(); ok {
		d = seq
	}
	if err := m.send(c, OpHeartbeat, d); err != nil {
		return err
	}
	m.saveCheckpoint(ctx)
	return nil
}

func (m *manager) send(c *connection, op Opcode, d any) error {
	data, err := json.Marshal(outboundFrame{Op: op, Data: d})
	if err != nil {
		return fmt.Errorf("encode %s: %w", op, err)
	}
	if err := c.client.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", op, err)
	}
	return nil
}

// UpdatePresence sends a presence update.
func (m *manager) UpdatePresence(ctx context.Context, p Presence) error {
	return m.sendCommand(ctx, OpPresenceUpdate, p)
}

// RequestGuildMembers asks for guild member chunks.
func (m *manager) RequestGuildMembers(ctx context.Context, req RequestGuildMembers) error {
	return m.sendCommand(ctx, OpRequestGuildMembers, req)
}

// sendCommand sends an application command through the command limiter.
func (m *manager) sendCommand(ctx context.Context, op Opcode, d any) error {
	if m.State() != StateConnected {
		return ErrNotConnected
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for command slot: %w", err)
	}

	client := m.currentClient()
	if client == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(outboundFrame{Op: op, Data: d})
	if err != nil {
		return fmt.Errorf("encode %s: %w", op, err)
	}
	return client.Send(data)
}

// connectURL picks the resume address when a resume is possible and adds
// the version and encoding query parameters.
func (m *manager) connectURL() string {
	base := m.cfg.URL
	if m.session.Resumable() && m.session.ResumeURL() != "" {
		base = m.session.ResumeURL()
	}

	u, err := url.Parse(base)
	if err != nil {
		m.logger.Warn("invalid gateway url, using as is", "url", base, "error", err)
		return base
	}
	q := u.Query()
	if m.cfg.Version > 0 {
		q.Set("v", strconv.Itoa(m.cfg.Version))
	}
	encoding := m.cfg.Encoding
	if encoding == "" {
		encoding = "json"
	}
	q.Set("encoding", encoding)
	u.RawQuery = q.Encode()
	return u.String()
}

func (m *manager) clearSession(ctx context.Context) {
	m.session.Clear()
	m.lastSeq.Store(0)
	if m.cfg.Checkpoint == nil {
		return
	}
	cpCtx, cancel := m.checkpointContext(ctx)
	defer cancel()
	if err := m.cfg.Checkpoint.Clear(cpCtx); err != nil {
		m.logger.Warn("failed to clear session checkpoint", "error", err)
	}
}

func (m *manager) saveCheckpoint(ctx context.Context) {
	if m.cfg.Checkpoint == nil || m.session.ID() == "" {
		return
	}
	cpCtx, cancel := m.checkpointContext(ctx)
	defer cancel()
	if err := m.cfg.Checkpoint.Save(cpCtx, m.session.Snapshot()); err != nil {
		m.logger.Warn("failed to save session checkpoint", "error", err)
	}
}

func (m *manager) restoreCheckpoint(ctx context.Context) {
	if m.cfg.Checkpoint == nil {
		return
	}
	cpCtx, cancel := m.checkpointContext(ctx)
	defer cancel()

	snap, ok, err := m.cfg.Checkpoint.Load(cpCtx)
	if err != nil {
		m.logger.Warn("failed to load session checkpoint", "error", err)
		return
	}
	if !ok {
		return
	}
	m.session.Restore(snap)
	if seq, ok := m.session.Sequence(); ok {
		m.lastSeq.Store(seq)
	}
	m.logger.Info("restored session checkpoint",
		"session_id", snap.ID,
		"resumable", snap.Resumable(),
	)
}

// checkpointContext bounds a checkpoint call. It survives cancellation of
// ctx so the final clear on shutdown still runs.
func (m *manager) checkpointContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), m.cfg.CheckpointTimeout)
}

func (m *manager) emitLifecycle(ctx context.Context, ev dispatch.Event) {
	m.dispatcher.Emit(context.WithoutCancel(ctx), dispatch.Envelope{
		Name:       ev.EventName(),
		SessionID:  m.session.ID(),
		Shard:      m.cfg.ShardID,
		ReceivedAt: m.now(),
		Event:      ev,
	})
}

func (m *manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.Debug("state transition", "from", old, "to", s)
	}
}

func (m *manager) setClient(c *Client) {
	m.mu.Lock()
	m.client = c
	m.mu.Unlock()
}

func (m *manager) currentClient() *Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// State returns the current lifecycle state.
func (m *manager) State() State {
	return State(m.state.Load())
}

// Stats returns current statistics.
func (m *manager) Stats() Stats {
	return Stats{
		State:            m.State(),
		Reconnects:       m.reconnects.Load(),
		HeartbeatLatency: time.Duration(m.latency.Load()),
		LastSequence:     m.lastSeq.Load(),
	}
}

// Dispatcher returns the event dispatcher.
func (m *manager) Dispatcher() *dispatch.Dispatcher {
	return m.dispatcher
}
