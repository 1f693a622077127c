// Package discord implements platform.ClientSurface over discordgo,
// the primary adapter exercised by the voice manager and moderation
// verbs.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/rakunlabs/flowbot/internal/errs"
	"github.com/rakunlabs/flowbot/internal/platform"
)

type Adapter struct {
	session *discordgo.Session

	mu     sync.RWMutex
	voices map[string]*voiceState
}

type voiceState struct {
	conn   *discordgo.VoiceConnection
	onEnd  platform.TrackEndCallback
	volume int
}

func New(token string) (*Adapter, error) {
	sess, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return &Adapter{session: sess, voices: make(map[string]*voiceState)}, nil
}

func (a *Adapter) Open(ctx context.Context, intents []platform.Intent) error {
	a.session.Identify.Intents = toDiscordIntents(intents)

	ready := make(chan struct{})
	var once sync.Once
	a.session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
		once.Do(func() { close(ready) })
	})

	if err := a.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	select {
	case <-ready:
		return nil
	case <-time.After(30 * time.Second):
		return fmt.Errorf("%w: discord gateway did not become ready in 30s", errs.ErrReadyTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) Close() error {
	return a.session.Close()
}

func (a *Adapter) SetPresence(_ context.Context, status, activity string) error {
	return a.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: status,
		Activities: []*discordgo.Activity{
			{Name: activity, Type: discordgo.ActivityTypeGame},
		},
	})
}

func (a *Adapter) Subscribe(eventName string, handler func(platform.Event)) error {
	switch eventName {
	case "ready":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.Ready) {
			handler(platform.Event{Name: "ready", Data: map[string]any{"raw": e}})
		})
	case "message_create":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
			handler(messageEvent("message_create", e.Message))
		})
	case "message_update":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageUpdate) {
			handler(messageEvent("message_update", e.Message))
		})
	case "message_delete":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageDelete) {
			handler(platform.Event{
				Name: "message_delete", GuildID: e.GuildID, ChannelID: e.ChannelID,
				Data: map[string]any{"message_id": e.ID},
			})
		})
	case "guild_member_add":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
			handler(platform.Event{Name: "guild_member_add", GuildID: e.GuildID, UserID: e.User.ID,
				Data: map[string]any{"member": e.Member}})
		})
	case "guild_member_remove":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
			handler(platform.Event{Name: "guild_member_remove", GuildID: e.GuildID, UserID: e.User.ID})
		})
	case "guild_member_update":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
			handler(platform.Event{Name: "guild_member_update", GuildID: e.GuildID, UserID: e.User.ID,
				Data: map[string]any{"member": e.Member}})
		})
	case "voice_state_update":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
			handler(platform.Event{Name: "voice_state_update", GuildID: e.GuildID, UserID: e.UserID,
				Data: map[string]any{"channel_id": e.ChannelID}})
		})
	case "message_reaction_add":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageReactionAdd) {
			handler(platform.Event{Name: "message_reaction_add", GuildID: e.GuildID, ChannelID: e.ChannelID, UserID: e.UserID,
				Data: map[string]any{"message_id": e.MessageID, "emoji": e.Emoji.Name}})
		})
	case "message_reaction_remove":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageReactionRemove) {
			handler(platform.Event{Name: "message_reaction_remove", GuildID: e.GuildID, ChannelID: e.ChannelID, UserID: e.UserID,
				Data: map[string]any{"message_id": e.MessageID, "emoji": e.Emoji.Name}})
		})
	case "presence_update":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.PresenceUpdate) {
			handler(platform.Event{Name: "presence_update", GuildID: e.GuildID, UserID: e.User.ID})
		})
	case "interaction_create":
		a.session.AddHandler(func(_ *discordgo.Session, e *discordgo.InteractionCreate) {
			handler(interactionEvent(e))
		})
	default:
		slog.Warn("discord adapter has no binding for event", "event", eventName)
	}
	return nil
}

func messageEvent(name string, m *discordgo.Message) platform.Event {
	authorID, bot := "", false
	if m.Author != nil {
		authorID, bot = m.Author.ID, m.Author.Bot
	}
	return platform.Event{
		Name: name, GuildID: m.GuildID, ChannelID: m.ChannelID, UserID: authorID,
		Data: map[string]any{
			"content": m.Content, "message_id": m.ID, "bot": bot,
			"attachments": attachmentsOf(m),
		},
	}
}

func attachmentsOf(m *discordgo.Message) []map[string]any {
	out := make([]map[string]any, 0, len(m.Attachments))
	for _, at := range m.Attachments {
		out = append(out, map[string]any{"filename": at.Filename, "url": at.URL, "size": float64(at.Size)})
	}
	return out
}

func interactionEvent(e *discordgo.InteractionCreate) platform.Event {
	name := "interaction_create"
	data := map[string]any{
		"interaction_id": e.ID,
		"token":          e.Token,
		"type":           int(e.Type),
	}
	userID := ""
	if e.Member != nil && e.Member.User != nil {
		userID = e.Member.User.ID
	} else if e.User != nil {
		userID = e.User.ID
	}
	switch e.Type {
	case discordgo.InteractionApplicationCommand:
		if d := e.ApplicationCommandData(); d.Name != "" {
			data["command"] = d.Name
		}
	case discordgo.InteractionMessageComponent:
		data["custom_id"] = e.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		data["custom_id"] = e.ModalSubmitData().CustomID
	}
	return platform.Event{Name: name, GuildID: e.GuildID, ChannelID: e.ChannelID, UserID: userID, Data: data}
}

func (a *Adapter) RegisterCommands(_ context.Context, cmds []platform.CommandSpec) error {
	for _, c := range cmds {
		appCmd := &discordgo.ApplicationCommand{Name: c.Name, Description: c.Description}
		if _, err := a.session.ApplicationCommandCreate(a.session.State.User.ID, c.GuildID, appCmd); err != nil {
			return fmt.Errorf("register command %q: %w", c.Name, err)
		}
	}
	return nil
}

func (a *Adapter) SendMessage(_ context.Context, channelID string, msg platform.MessageSend) (string, error) {
	send := toMessageSend(msg)
	m, err := a.session.ChannelMessageSendComplex(channelID, send)
	if err != nil {
		return "", fmt.Errorf("send message to %q: %w", channelID, err)
	}
	return m.ID, nil
}

func (a *Adapter) EditMessage(_ context.Context, channelID, messageID string, msg platform.MessageSend) error {
	edit := discordgo.NewMessageEdit(channelID, messageID)
	edit.Content = &msg.Content
	if len(msg.Embeds) > 0 {
		embeds := toEmbeds(msg.Embeds)
		edit.Embeds = &embeds
	}
	_, err := a.session.ChannelMessageEditComplex(edit)
	if err != nil {
		return fmt.Errorf("edit message %q: %w", messageID, err)
	}
	return nil
}

func (a *Adapter) DeleteMessage(_ context.Context, channelID, messageID string) error {
	return a.session.ChannelMessageDelete(channelID, messageID)
}

func (a *Adapter) BulkDeleteMessages(_ context.Context, channelID string, messageIDs []string) error {
	return a.session.ChannelMessagesBulkDelete(channelID, messageIDs)
}

func (a *Adapter) SendDM(_ context.Context, userID string, msg platform.MessageSend) (string, error) {
	ch, err := a.session.UserChannelCreate(userID)
	if err != nil {
		return "", fmt.Errorf("open DM channel with %q: %w", userID, err)
	}
	m, err := a.session.ChannelMessageSendComplex(ch.ID, toMessageSend(msg))
	if err != nil {
		return "", fmt.Errorf("send DM to %q: %w", userID, err)
	}
	return m.ID, nil
}

func (a *Adapter) CreateThread(_ context.Context, channelID, name string) (string, error) {
	th, err := a.session.ThreadStart(channelID, name, discordgo.ChannelTypeGuildPublicThread, 60)
	if err != nil {
		return "", fmt.Errorf("create thread %q: %w", name, err)
	}
	return th.ID, nil
}

func (a *Adapter) Reply(_ context.Context, interactionID, interactionToken string, msg platform.MessageSend, deferred bool) error {
	respType := discordgo.InteractionResponseChannelMessageWithSource
	if deferred {
		respType = discordgo.InteractionResponseUpdateMessage
	}
	data := &discordgo.InteractionResponseData{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponentRows(msg.Components),
	}
	if msg.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return a.session.InteractionRespond(&discordgo.Interaction{ID: interactionID, Token: interactionToken}, &discordgo.InteractionResponse{
		Type: respType,
		Data: data,
	})
}

func (a *Adapter) Defer(_ context.Context, interactionID, interactionToken string, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return a.session.InteractionRespond(&discordgo.Interaction{ID: interactionID, Token: interactionToken}, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
}

func (a *Adapter) Kick(_ context.Context, target platform.ModerationTarget, reason string) error {
	return a.session.GuildMemberDeleteWithReason(target.GuildID, target.UserID, reason)
}

func (a *Adapter) Ban(_ context.Context, target platform.ModerationTarget, reason string, deleteMessageSeconds int) error {
	return a.session.GuildBanCreateWithReason(target.GuildID, target.UserID, reason, deleteMessageSeconds)
}

func (a *Adapter) Unban(_ context.Context, target platform.ModerationTarget, reason string) error {
	return a.session.GuildBanDeleteWithReason(target.GuildID, target.UserID, reason)
}

func (a *Adapter) Timeout(_ context.Context, target platform.ModerationTarget, until time.Time, reason string) error {
	return a.session.GuildMemberTimeout(target.GuildID, target.UserID, &until, discordgo.WithAuditLogReason(reason))
}

func (a *Adapter) AddRole(_ context.Context, target platform.ModerationTarget, roleID string) error {
	return a.session.GuildMemberRoleAdd(target.GuildID, target.UserID, roleID)
}

func (a *Adapter) RemoveRole(_ context.Context, target platform.ModerationTarget, roleID string) error {
	return a.session.GuildMemberRoleRemove(target.GuildID, target.UserID, roleID)
}

func (a *Adapter) Supports(feature string) bool {
	switch feature {
	case "voice", "components", "embeds", "threads":
		return true
	default:
		return false
	}
}

func toDiscordIntents(intents []platform.Intent) discordgo.Intent {
	var out discordgo.Intent
	for _, i := range intents {
		switch i {
		case platform.IntentGuilds:
			out |= discordgo.IntentsGuilds
		case platform.IntentGuildMessages:
			out |= discordgo.IntentsGuildMessages
		case platform.IntentMessageContent:
			out |= discordgo.IntentMessageContent
		case platform.IntentGuildMembers:
			out |= discordgo.IntentsGuildMembers
		case platform.IntentGuildVoiceStates:
			out |= discordgo.IntentsGuildVoiceStates
		case platform.IntentGuildMessageReactions:
			out |= discordgo.IntentsGuildMessageReactions
		case platform.IntentGuildPresences:
			out |= discordgo.IntentsGuildPresences
		}
	}
	return out
}

func toEmbeds(embeds []platform.Embed) []*discordgo.MessageEmbed {
	if len(embeds) == 0 {
		return nil
	}
	out := make([]*discordgo.MessageEmbed, 0, len(embeds))
	for _, e := range embeds {
		d := &discordgo.MessageEmbed{
			Title: e.Title, Description: e.Description, Color: e.Color, URL: e.URL,
		}
		if e.Footer != "" {
			d.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
		}
		if e.Thumbnail != "" {
			d.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: e.Thumbnail}
		}
		if e.Image != "" {
			d.Image = &discordgo.MessageEmbedImage{URL: e.Image}
		}
		if e.Timestamp != nil {
			d.Timestamp = e.Timestamp.Format(time.RFC3339)
		}
		for _, f := range e.Fields {
			d.Fields = append(d.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
		}
		out = append(out, d)
	}
	return out
}

func toComponentRows(components []platform.Component) []discordgo.MessageComponent {
	if len(components) == 0 {
		return nil
	}
	var row discordgo.ActionsRow
	for _, c := range components {
		switch c.Kind {
		case "button":
			row.Components = append(row.Components, &discordgo.Button{
				Label: c.Label, Style: buttonStyle(c.Style), CustomID: c.CustomID, URL: c.URL, Disabled: c.Disabled,
			})
		case "select":
			var opts []discordgo.SelectMenuOption
			for _, o := range c.Options {
				opts = append(opts, discordgo.SelectMenuOption{Label: o.Label, Value: o.Value, Description: o.Description, Default: o.Default})
			}
			row.Components = append(row.Components, &discordgo.SelectMenu{
				CustomID: c.CustomID, MenuType: selectMenuType(c.SelectKind), Options: opts, Disabled: c.Disabled,
			})
		}
	}
	return []discordgo.MessageComponent{row}
}

func buttonStyle(s platform.ComponentStyle) discordgo.ButtonStyle {
	switch s {
	case platform.StyleSecondary:
		return discordgo.SecondaryButton
	case platform.StyleSuccess:
		return discordgo.SuccessButton
	case platform.StyleDanger:
		return discordgo.DangerButton
	case platform.StyleLink:
		return discordgo.LinkButton
	default:
		return discordgo.PrimaryButton
	}
}

func selectMenuType(k platform.SelectKind) discordgo.SelectMenuType {
	switch k {
	case platform.SelectUser:
		return discordgo.UserSelectMenu
	case platform.SelectRole:
		return discordgo.RoleSelectMenu
	case platform.SelectMentionable:
		return discordgo.MentionableSelectMenu
	case platform.SelectChannel:
		return discordgo.ChannelSelectMenu
	default:
		return discordgo.StringSelectMenu
	}
}

func toMessageSend(msg platform.MessageSend) *discordgo.MessageSend {
	return &discordgo.MessageSend{
		Content:    msg.Content,
		Embeds:     toEmbeds(msg.Embeds),
		Components: toComponentRows(msg.Components),
		TTS:        msg.TTS,
	}
}

// ─── Voice transport ───

func (a *Adapter) VoiceJoin(ctx context.Context, guildID, channelID string, selfDeaf, selfMute bool) error {
	conn, err := a.session.ChannelVoiceJoin(guildID, channelID, selfMute, selfDeaf)
	if err != nil {
		return fmt.Errorf("join voice channel %q: %w", channelID, err)
	}

	ready := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			if conn.Ready {
				close(ready)
				return
			}
			time.Sleep(100 * time.Millisecond)
		}
	}()

	select {
	case <-ready:
	case <-time.After(30 * time.Second):
		conn.Disconnect()
		return fmt.Errorf("%w: voice connection did not become ready in 30s", errs.ErrReadyTimeout)
	case <-ctx.Done():
		conn.Disconnect()
		return ctx.Err()
	}

	a.mu.Lock()
	a.voices[guildID] = &voiceState{conn: conn, volume: 100}
	a.mu.Unlock()
	return nil
}

func (a *Adapter) VoiceLeave(_ context.Context, guildID string) error {
	a.mu.Lock()
	vs, ok := a.voices[guildID]
	delete(a.voices, guildID)
	a.mu.Unlock()
	if !ok {
		return nil
	}
	return vs.conn.Disconnect()
}

// VoicePlay streams source (an adapter-specific locator already resolved
// to audio bytes elsewhere) is out of scope for this reference adapter:
// wiring a full Opus encoder pipeline is left to the embedding
// application. This method records the end callback and marks the
// connection speaking; the voice manager (C11) drives playback state
// independent of the low-level frame pump.
func (a *Adapter) VoicePlay(_ context.Context, guildID, _ string, onEnd platform.TrackEndCallback) error {
	a.mu.Lock()
	vs, ok := a.voices[guildID]
	if ok {
		vs.onEnd = onEnd
	}
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("no voice connection for guild %q", guildID)
	}
	return vs.conn.Speaking(true)
}

func (a *Adapter) VoicePause(_ context.Context, guildID string) error {
	a.mu.RLock()
	vs, ok := a.voices[guildID]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no voice connection for guild %q", guildID)
	}
	return vs.conn.Speaking(false)
}

func (a *Adapter) VoiceResume(_ context.Context, guildID string) error {
	a.mu.RLock()
	vs, ok := a.voices[guildID]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no voice connection for guild %q", guildID)
	}
	return vs.conn.Speaking(true)
}

func (a *Adapter) VoiceStop(_ context.Context, guildID string) error {
	a.mu.RLock()
	vs, ok := a.voices[guildID]
	a.mu.RUnlock()
	if !ok {
		return nil
	}
	return vs.conn.Speaking(false)
}

func (a *Adapter) VoiceSetVolume(_ context.Context, guildID string, volume int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	vs, ok := a.voices[guildID]
	if !ok {
		return fmt.Errorf("no voice connection for guild %q", guildID)
	}
	vs.volume = volume
	return nil
}
