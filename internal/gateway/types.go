package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"
)

// Errors
var (
	ErrNotConnected       = errors.New("gateway: not connected")
	ErrAlreadyRunning     = errors.New("gateway: manager already running")
	ErrAlreadyClosed      = errors.New("gateway: already closed")
	ErrProtocolViolation  = errors.New("gateway: protocol violation")
	ErrHeartbeatMissed    = errors.New("gateway: heartbeat ack missed")
	ErrReconnectRequested = errors.New("gateway: server requested reconnect")
	ErrReconnectExhausted = errors.New("gateway: reconnect attempts exhausted")
)

// DecodeError reports a frame that could not be decoded. It is logged and
// the frame is dropped; the connection stays up.
type DecodeError struct {
	Data []byte
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("gateway: decode frame (%d bytes): %v", len(e.Data), e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InvalidSessionError is produced by an Invalid Session frame.
type InvalidSessionError struct {
	Resumable bool
}

func (e *InvalidSessionError) Error() string {
	return fmt.Sprintf("gateway: invalid session (resumable=%t)", e.Resumable)
}

// CloseError describes why the socket closed and how it was classified.
type CloseError struct {
	Code   int
	Reason string
	Fatal  bool
}

func (e *CloseError) Error() string {
	class := "recoverable"
	if e.Fatal {
		class = "fatal"
	}
	if e.Reason == "" {
		return fmt.Sprintf("gateway: connection closed with code %d (%s)", e.Code, class)
	}
	return fmt.Sprintf("gateway: connection closed with code %d: %s (%s)", e.Code, e.Reason, class)
}

// Opcode is a gateway frame opcode. Values are part of the wire contract.
type Opcode int

const (
	OpDispatch            Opcode = 0
	OpHeartbeat           Opcode = 1
	OpIdentify            Opcode = 2
	OpPresenceUpdate      Opcode = 3
	OpResume              Opcode = 6
	OpReconnect           Opcode = 7
	OpRequestGuildMembers Opcode = 8
	OpInvalidSession      Opcode = 9
	OpHello               Opcode = 10
	OpHeartbeatAck        Opcode = 11
)

func (o Opcode) String() string {
	switch o {
	case OpDispatch:
		return "dispatch"
	case OpHeartbeat:
		return "heartbeat"
	case OpIdentify:
		return "identify"
	case OpPresenceUpdate:
		return "presence_update"
	case OpResume:
		return "resume"
	case OpReconnect:
		return "reconnect"
	case OpRequestGuildMembers:
		return "request_guild_members"
	case OpInvalidSession:
		return "invalid_session"
	case OpHello:
		return "hello"
	case OpHeartbeatAck:
		return "heartbeat_ack"
	}
	return fmt.Sprintf("op(%d)", int(o))
}

// Frame is an inbound gateway frame.
type Frame struct {
	Op   Opcode          `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  *int64          `json:"s"`
	Type string          `json:"t"`
}

// outboundFrame is a frame sent to the gateway.
type outboundFrame struct {
	Op   Opcode `json:"op"`
	Data any    `json:"d"`
}

// HelloData is the payload of a Hello frame.
type HelloData struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"` // milliseconds
}

// Intents is the gateway intents bitmask.
type Intents int64

const (
	IntentGuilds                 Intents = 1 << 0
	IntentGuildMembers           Intents = 1 << 1
	IntentGuildModeration        Intents = 1 << 2
	IntentGuildPresences         Intents = 1 << 8
	IntentGuildMessages          Intents = 1 << 9
	IntentGuildMessageReactions  Intents = 1 << 10
	IntentGuildMessageTyping     Intents = 1 << 11
	IntentDirectMessages         Intents = 1 << 12
	IntentDirectMessageReactions Intents = 1 << 13
	IntentMessageContent         Intents = 1 << 15
)

// IdentifyProperties describe the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Activity is a presence activity.
type Activity struct {
	Name  string `json:"name"`
	Type  int    `json:"type"`
	State string `json:"state,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Presence is sent with Identify and with op 3.
type Presence struct {
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"` // "online", "dnd", "idle", "invisible", "offline"
	AFK        bool       `json:"afk"`
}

// IdentifyData is the payload of an Identify frame.
type IdentifyData struct {
	Token          string             `json:"token"`
	Intents        Intents            `json:"intents"`
	Properties     IdentifyProperties `json:"properties"`
	Compress       bool               `json:"compress,omitempty"`
	LargeThreshold int                `json:"large_threshold,omitempty"`
	Shard          *[2]int            `json:"shard,omitempty"`
	Presence       *Presence          `json:"presence,omitempty"`
}

// ResumeData is the payload of a Resume frame.
type ResumeData struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// RequestGuildMembers is the payload of op 8.
type RequestGuildMembers struct {
	GuildID   string   `json:"guild_id"`
	Query     *string  `json:"query,omitempty"`
	Limit     int      `json:"limit"`
	Presences bool     `json:"presences,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Nonce     string   `json:"nonce,omitempty"`
}

// readyData is the part of READY the manager needs for session tracking.
type readyData struct {
	SessionID        string `json:"session_id"`
	ResumeGatewayURL string `json:"resume_gateway_url"`
}

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHello
	StateIdentifying
	StateResuming
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting_hello"
	case StateIdentifying:
		return "identifying"
	case StateResuming:
		return "resuming"
	case StateConnected:
		return "connected"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ClientConfig configures a single gateway socket.
type ClientConfig struct {
	URL              string        // Fully qualified gateway URL including query
	WriteTimeout     time.Duration // Write deadline for sends
	HandshakeTimeout time.Duration // WebSocket handshake timeout
	BufferSize       int           // Inbound message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteTimeout:     5 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		BufferSize:       1024,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	URL            string // Base gateway URL (e.g., wss://gateway.example.com)
	Version        int    // Gateway API version (query param v)
	Encoding       string // Only "json" is supported
	Token          string // Bot token sent in Identify/Resume
	Intents        Intents
	Properties     IdentifyProperties
	Presence       *Presence
	Compress       bool // Request per-message zlib payload compression
	LargeThreshold int
	ShardID        int
	ShardCount     int // 0 disables the shard field

	ReconnectBaseDelay   time.Duration // Backoff for the first reconnect attempt
	ReconnectMaxDelay    time.Duration // Cap for backoff (0 = no cap)
	MaxReconnectAttempts int           // Consecutive attempts before giving up (0 = unlimited)

	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	BufferSize       int

	CommandLimit  int           // Application commands allowed per window
	CommandWindow time.Duration // Window for CommandLimit

	CheckpointTimeout time.Duration // Per-call timeout for the Checkpointer
	Checkpoint        Checkpointer  // Optional session persistence (nil = none)
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Version:              10,
		Encoding:             "json",
		LargeThreshold:       50,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    60 * time.Second,
		MaxReconnectAttempts: 10,
		WriteTimeout:         5 * time.Second,
		HandshakeTimeout:     10 * time.Second,
		BufferSize:           1024,
		CommandLimit:         120,
		CommandWindow:        60 * time.Second,
		CheckpointTimeout:    2 * time.Second,
	}
}

// withDefaults fills zero fields from DefaultManagerConfig. Zero
// ReconnectMaxDelay, MaxReconnectAttempts and CommandLimit keep their
// documented meanings (no cap, unlimited, no limiter).
func (c ManagerConfig) withDefaults() ManagerConfig {
	def := DefaultManagerConfig()
	if c.Version == 0 {
		c.Version = def.Version
	}
	if c.Encoding == "" {
		c.Encoding = def.Encoding
	}
	if c.ReconnectBaseDelay <= 0 {
		c.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.BufferSize < 1 {
		c.BufferSize = def.BufferSize
	}
	if c.CheckpointTimeout <= 0 {
		c.CheckpointTimeout = def.CheckpointTimeout
	}
	if c.Properties == (IdentifyProperties{}) {
		c.Properties = IdentifyProperties{OS: runtime.GOOS, Browser: "relaygate", Device: "relaygate"}
	}
	return c
}

// Stats provides statistics about the connection manager.
type Stats struct {
	State            State
	Reconnects       int64
	HeartbeatLatency time.Duration
	LastSequence     int64
}
