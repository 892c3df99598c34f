package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Message is a raw message read from the socket. The final message on the
// channel carries Err and no data.
type Message struct {
	Data       []byte    // Raw message bytes from WebSocket
	Binary     bool      // True for binary (compressed) frames
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
	Err        error     // Terminal read error; the channel is closed after it
}

// Client is a single gateway socket.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger

	conn *websocket.Conn

	messages chan Message
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	mu        sync.RWMutex
	connected bool
	closed    bool
}

// NewClient creates a new gateway socket client.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = 1
	}
	def := DefaultClientConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}

	return &Client{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan Message, cfg.BufferSize),
		done:     make(chan struct{}),
	}
}

// Connect dials the gateway and starts the read loop.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}

	header := http.Header{}
	header.Set("Accept", "application/json")

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()

	c.logger.Debug("gateway socket connected", "url", c.cfg.URL)
	return nil
}

// Close closes the socket with the given close code. Safe to call twice.
func (c *Client) Close(code int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		c.logger.Debug("failed to send close frame", "code", code, "error", err)
	}

	return conn.Close()
}

// Send writes a text frame. Concurrent callers are serialized.
func (c *Client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the inbound message channel.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// readLoop reads messages and forwards them in arrival order. The read
// error that ends the loop is delivered as the last message.
func (c *Client) readLoop() {
	defer close(c.messages)
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
				// Close() was called; nobody is waiting for the error.
				return
			default:
			}
			select {
			case c.messages <- Message{Err: err, ReceivedAt: receivedAt}:
			case <-c.done:
			}
			return
		}

		msg := Message{
			Data:       data,
			Binary:     msgType == websocket.BinaryMessage,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

// closeErrorFrom converts a socket read error into a classified CloseError.
func closeErrorFrom(err error) *CloseError {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return &CloseError{
			Code:   ce.Code,
			Reason: ce.Text,
			Fatal:  Classify(ce.Code) == CloseFatal,
		}
	}
	return &CloseError{
		Code:   websocket.CloseAbnormalClosure,
		Reason: err.Error(),
	}
}
