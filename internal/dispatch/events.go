package dispatch

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is a decoded dispatch payload or a connection lifecycle event.
type Event interface {
	EventName() string
}

// Event names as sent in the frame's t field.
const (
	NameReady                 = "READY"
	NameResumed               = "RESUMED"
	NameGuildCreate           = "GUILD_CREATE"
	NameGuildDelete           = "GUILD_DELETE"
	NameChannelCreate         = "CHANNEL_CREATE"
	NameChannelUpdate         = "CHANNEL_UPDATE"
	NameChannelDelete         = "CHANNEL_DELETE"
	NameMessageCreate         = "MESSAGE_CREATE"
	NameMessageUpdate         = "MESSAGE_UPDATE"
	NameMessageDelete         = "MESSAGE_DELETE"
	NameMessageReactionAdd    = "MESSAGE_REACTION_ADD"
	NameMessageReactionRemove = "MESSAGE_REACTION_REMOVE"
	NameInteractionCreate     = "INTERACTION_CREATE"
	NameTypingStart           = "TYPING_START"
	NamePresenceUpdate        = "PRESENCE_UPDATE"

	// Lifecycle events are produced locally, never by the server.
	NameConnected    = "GATEWAY_CONNECTED"
	NameDisconnected = "GATEWAY_DISCONNECTED"
)

// User is a partial user object.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	GlobalName    string `json:"global_name"`
	Bot           bool   `json:"bot"`
}

// UnavailableGuild is a guild placeholder sent in READY.
type UnavailableGuild struct {
	ID          string `json:"id"`
	Unavailable bool   `json:"unavailable"`
}

// Channel is a partial channel object.
type Channel struct {
	ID       string `json:"id"`
	Type     int    `json:"type"`
	GuildID  string `json:"guild_id"`
	Name     string `json:"name"`
	ParentID string `json:"parent_id"`
}

// Message is a partial message object.
type Message struct {
	ID              string     `json:"id"`
	ChannelID       string     `json:"channel_id"`
	GuildID         string     `json:"guild_id"`
	Author          *User      `json:"author"`
	Content         string     `json:"content"`
	Timestamp       time.Time  `json:"timestamp"`
	EditedTimestamp *time.Time `json:"edited_timestamp"`
}

// Emoji is a partial emoji object.
type Emoji struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Ready is sent after a successful identify.
type Ready struct {
	Version          int                `json:"v"`
	User             User               `json:"user"`
	Guilds           []UnavailableGuild `json:"guilds"`
	SessionID        string             `json:"session_id"`
	ResumeGatewayURL string             `json:"resume_gateway_url"`
	Shard            []int              `json:"shard"`
}

// Resumed is sent after a successful resume and replay.
type Resumed struct{}

// GuildCreate carries a full guild.
type GuildCreate struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"owner_id"`
	MemberCount int       `json:"member_count"`
	Large       bool      `json:"large"`
	Unavailable bool      `json:"unavailable"`
	Channels    []Channel `json:"channels"`
}

// GuildDelete is sent when a guild becomes unavailable or the user leaves.
type GuildDelete UnavailableGuild

// ChannelCreate carries a new channel.
type ChannelCreate struct{ Channel }

// ChannelUpdate carries an updated channel.
type ChannelUpdate struct{ Channel }

// ChannelDelete carries a deleted channel.
type ChannelDelete struct{ Channel }

// MessageCreate carries a new message.
type MessageCreate struct{ Message }

// MessageUpdate carries an edited message.
type MessageUpdate struct{ Message }

// MessageDelete identifies a deleted message.
type MessageDelete struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
}

// MessageReactionAdd is sent when a reaction is added.
type MessageReactionAdd struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	GuildID   string `json:"guild_id"`
	Emoji     Emoji  `json:"emoji"`
}

// MessageReactionRemove is sent when a reaction is removed.
type MessageReactionRemove struct {
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	MessageID string `json:"message_id"`
	GuildID   string `json:"guild_id"`
	Emoji     Emoji  `json:"emoji"`
}

// InteractionCreate carries an interaction. Data is left raw because its
// shape depends on Type.
type InteractionCreate struct {
	ID            string          `json:"id"`
	ApplicationID string          `json:"application_id"`
	Type          int             `json:"type"`
	GuildID       string          `json:"guild_id"`
	ChannelID     string          `json:"channel_id"`
	Token         string          `json:"token"`
	Data          json.RawMessage `json:"data"`
}

// TypingStart is sent when a user starts typing.
type TypingStart struct {
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id"`
	UserID    string `json:"user_id"`
	Timestamp int64  `json:"timestamp"`
}

// PresenceUpdate is sent when a member's presence changes.
type PresenceUpdate struct {
	User    User   `json:"user"`
	GuildID string `json:"guild_id"`
	Status  string `json:"status"`
}

// Connected is emitted when the gateway reaches the connected state.
type Connected struct {
	SessionID string
	Resumed   bool
}

// Disconnected is emitted when the manager stops for good: a fatal close,
// exhausted reconnects, or an explicit disconnect (Err is nil then).
type Disconnected struct {
	Code int
	Err  error
}

// Unknown carries a dispatch the decoder has no type for.
type Unknown struct {
	Name string
	Raw  json.RawMessage
}

func (Ready) EventName() string                 { return NameReady }
func (Resumed) EventName() string               { return NameResumed }
func (GuildCreate) EventName() string           { return NameGuildCreate }
func (GuildDelete) EventName() string           { return NameGuildDelete }
func (ChannelCreate) EventName() string         { return NameChannelCreate }
func (ChannelUpdate) EventName() string         { return NameChannelUpdate }
func (ChannelDelete) EventName() string         { return NameChannelDelete }
func (MessageCreate) EventName() string         { return NameMessageCreate }
func (MessageUpdate) EventName() string         { return NameMessageUpdate }
func (MessageDelete) EventName() string         { return NameMessageDelete }
func (MessageReactionAdd) EventName() string    { return NameMessageReactionAdd }
func (MessageReactionRemove) EventName() string { return NameMessageReactionRemove }
func (InteractionCreate) EventName() string     { return NameInteractionCreate }
func (TypingStart) EventName() string           { return NameTypingStart }
func (PresenceUpdate) EventName() string        { return NamePresenceUpdate }
func (Connected) EventName() string             { return NameConnected }
func (Disconnected) EventName() string          { return NameDisconnected }
func (u Unknown) EventName() string             { return u.Name }

// Decode turns a dispatch payload into its typed event. Unrecognized names
// decode to Unknown without error.
func Decode(name string, raw json.RawMessage) (Event, error) {
	switch name {
	case NameReady:
		return decodeAs[Ready](name, raw)
	case NameResumed:
		return Resumed{}, nil
	case NameGuildCreate:
		return decodeAs[GuildCreate](name, raw)
	case NameGuildDelete:
		return decodeAs[GuildDelete](name, raw)
	case NameChannelCreate:
		return decodeAs[ChannelCreate](name, raw)
	case NameChannelUpdate:
		return decodeAs[ChannelUpdate](name, raw)
	case NameChannelDelete:
		return decodeAs[ChannelDelete](name, raw)
	case NameMessageCreate:
		return decodeAs[MessageCreate](name, raw)
	case NameMessageUpdate:
		return decodeAs[MessageUpdate](name, raw)
	case NameMessageDelete:
		return decodeAs[MessageDelete](name, raw)
	case NameMessageReactionAdd:
		return decodeAs[MessageReactionAdd](name, raw)
	case NameMessageReactionRemove:
		return decodeAs[MessageReactionRemove](name, raw)
	case NameInteractionCreate:
		return decodeAs[InteractionCreate](name, raw)
	case NameTypingStart:
		return decodeAs[TypingStart](name, raw)
	case NamePresenceUpdate:
		return decodeAs[PresenceUpdate](name, raw)
	}
	return Unknown{Name: name, Raw: raw}, nil
}

func decodeAs[T Event](name string, raw json.RawMessage) (Event, error) {
	var ev T
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return ev, nil
}
