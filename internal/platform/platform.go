// Package platform defines ClientSurface, the abstract chat-platform
// gateway the rest of the engine is built against. Concrete adapters
// (discord, telegram) translate ClientSurface calls into SDK calls;
// no other package imports an SDK type directly.
package platform

import (
	"context"
	"time"
)

// Event is a normalized inbound platform event handed to the event
// router (C7) and interaction dispatcher (C8).
type Event struct {
	Name      string
	GuildID   string
	ChannelID string
	UserID    string
	Data      map[string]any
}

// Intent is one bit of the platform's subscription intent set.
type Intent string

const (
	IntentGuilds               Intent = "guilds"
	IntentGuildMessages        Intent = "guild_messages"
	IntentMessageContent       Intent = "message_content"
	IntentGuildMembers         Intent = "guild_members"
	IntentGuildVoiceStates     Intent = "guild_voice_states"
	IntentGuildMessageReactions Intent = "guild_message_reactions"
	IntentGuildPresences       Intent = "guild_presences"
)

// MessageSend is the payload for any action that posts or edits a
// message; fields are optional and adapter-specific rendering decides
// which ones apply.
type MessageSend struct {
	Content    string
	Embeds     []Embed
	Components []Component
	Ephemeral  bool
	TTS        bool
}

type Embed struct {
	Title       string
	Description string
	Color       int
	Fields      []EmbedField
	Footer      string
	Thumbnail   string
	Image       string
	URL         string
	Timestamp   *time.Time
}

type EmbedField struct {
	Name   string
	Value  string
	Inline bool
}

// ComponentStyle matches spec.md's semantic button styles.
type ComponentStyle string

const (
	StylePrimary   ComponentStyle = "primary"
	StyleSecondary ComponentStyle = "secondary"
	StyleSuccess   ComponentStyle = "success"
	StyleDanger    ComponentStyle = "danger"
	StyleLink      ComponentStyle = "link"
)

type SelectKind string

const (
	SelectString      SelectKind = "string_select"
	SelectUser        SelectKind = "user_select"
	SelectRole        SelectKind = "role_select"
	SelectMentionable SelectKind = "mentionable_select"
	SelectChannel     SelectKind = "channel_select"
)

type Component struct {
	Kind       string // "button" | "select" | "text_input"
	CustomID   string
	Label      string
	Style      ComponentStyle
	SelectKind SelectKind
	Options    []SelectOption
	URL        string
	Emoji      string
	Disabled   bool
}

type SelectOption struct {
	Label       string
	Value       string
	Description string
	Emoji       string
	Default     bool
}

// ModerationTarget identifies the member an action applies to.
type ModerationTarget struct {
	GuildID string
	UserID  string
}

// CommandSpec is the platform-agnostic shape of a registrable slash
// command, derived from spec.Command.
type CommandSpec struct {
	Name        string
	Description string
	GuildID     string // empty means global registration
}

// TrackEndCallback is invoked by the adapter's voice transport when
// the currently playing resource finishes.
type TrackEndCallback func(guildID string)

// ClientSurface is the engine's only door into a chat platform.
type ClientSurface interface {
	// Lifecycle.
	Open(ctx context.Context, intents []Intent) error
	Close() error
	SetPresence(ctx context.Context, status, activity string) error

	// Events.
	Subscribe(eventName string, handler func(Event)) error

	// Commands.
	RegisterCommands(ctx context.Context, cmds []CommandSpec) error

	// Messaging.
	SendMessage(ctx context.Context, channelID string, msg MessageSend) (messageID string, err error)
	EditMessage(ctx context.Context, channelID, messageID string, msg MessageSend) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error
	SendDM(ctx context.Context, userID string, msg MessageSend) (messageID string, err error)
	CreateThread(ctx context.Context, channelID, name string) (threadID string, err error)
	Reply(ctx context.Context, interactionID, interactionToken string, msg MessageSend, deferred bool) error
	Defer(ctx context.Context, interactionID, interactionToken string, ephemeral bool) error

	// Moderation.
	Kick(ctx context.Context, target ModerationTarget, reason string) error
	Ban(ctx context.Context, target ModerationTarget, reason string, deleteMessageSeconds int) error
	Unban(ctx context.Context, target ModerationTarget, reason string) error
	Timeout(ctx context.Context, target ModerationTarget, until time.Time, reason string) error
	AddRole(ctx context.Context, target ModerationTarget, roleID string) error
	RemoveRole(ctx context.Context, target ModerationTarget, roleID string) error

	// Voice transport. VoiceJoin returns nil once the connection is
	// live, or an error if it does not become ready within the
	// adapter's own timeout.
	VoiceJoin(ctx context.Context, guildID, channelID string, selfDeaf, selfMute bool) error
	VoiceLeave(ctx context.Context, guildID string) error
	VoicePlay(ctx context.Context, guildID, source string, onEnd TrackEndCallback) error
	VoicePause(ctx context.Context, guildID string) error
	VoiceResume(ctx context.Context, guildID string) error
	VoiceStop(ctx context.Context, guildID string) error
	VoiceSetVolume(ctx context.Context, guildID string, volume int) error

	// Capability probe. The voice verbs check "voice" and report
	// ErrBackend when it is false (e.g. telegram has no voice
	// transport); reply checks "embeds" and drops embeds when it is
	// false.
	Supports(feature string) bool
}
