// Package telegram implements platform.ClientSurface over
// telegram-bot-api. It proves the event router and action executor
// are platform-agnostic: it has no voice transport and no component
// builder support. Supports reports false for both; voice verbs then
// fail with ErrBackend, while messages are sent as plain text with any
// components and embeds dropped, without an error.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rakunlabs/flowbot/internal/errs"
	"github.com/rakunlabs/flowbot/internal/platform"
)

type Adapter struct {
	bot *tgbotapi.BotAPI

	handlers map[string][]func(platform.Event)
	cancel   context.CancelFunc
}

func New(token string) (*Adapter, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Adapter{bot: bot, handlers: make(map[string][]func(platform.Event))}, nil
}

func (a *Adapter) Open(ctx context.Context, _ []platform.Intent) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := a.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case upd := <-updates:
				a.dispatch(upd)
			}
		}
	}()
	return nil
}

func (a *Adapter) dispatch(upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	ev := platform.Event{
		Name:      "message_create",
		ChannelID: strconv.FormatInt(upd.Message.Chat.ID, 10),
		UserID:    strconv.FormatInt(upd.Message.From.ID, 10),
		Data:      map[string]any{"content": upd.Message.Text, "message_id": strconv.Itoa(upd.Message.MessageID)},
	}
	for _, h := range a.handlers["message_create"] {
		h(ev)
	}
}

func (a *Adapter) Close() error {
	if a.cancel != nil {
		a.cancel()
	}
	a.bot.StopReceivingUpdates()
	return nil
}

func (a *Adapter) SetPresence(_ context.Context, _, _ string) error {
	return nil // no presence concept on telegram bots
}

func (a *Adapter) Subscribe(eventName string, handler func(platform.Event)) error {
	switch eventName {
	case "message_create":
		a.handlers[eventName] = append(a.handlers[eventName], handler)
	default:
		slog.Warn("telegram adapter has no binding for event", "event", eventName)
	}
	return nil
}

func (a *Adapter) RegisterCommands(_ context.Context, cmds []platform.CommandSpec) error {
	var botCmds []tgbotapi.BotCommand
	for _, c := range cmds {
		botCmds = append(botCmds, tgbotapi.BotCommand{Command: c.Name, Description: c.Description})
	}
	_, err := a.bot.Request(tgbotapi.NewSetMyCommands(botCmds...))
	return err
}

func (a *Adapter) SendMessage(_ context.Context, channelID string, msg platform.MessageSend) (string, error) {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return "", fmt.Errorf("parse telegram chat id %q: %w", channelID, err)
	}
	sent, err := a.bot.Send(tgbotapi.NewMessage(chatID, msg.Content))
	if err != nil {
		return "", fmt.Errorf("send message to %q: %w", channelID, err)
	}
	return strconv.Itoa(sent.MessageID), nil
}

func (a *Adapter) EditMessage(_ context.Context, channelID, messageID string, msg platform.MessageSend) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return err
	}
	_, err = a.bot.Send(tgbotapi.NewEditMessageText(chatID, msgID, msg.Content))
	return err
}

func (a *Adapter) DeleteMessage(_ context.Context, channelID, messageID string) error {
	chatID, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return err
	}
	_, err = a.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID))
	return err
}

func (a *Adapter) BulkDeleteMessages(ctx context.Context, channelID string, messageIDs []string) error {
	for _, id := range messageIDs {
		if err := a.DeleteMessage(ctx, channelID, id); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) SendDM(ctx context.Context, userID string, msg platform.MessageSend) (string, error) {
	return a.SendMessage(ctx, userID, msg) // telegram private chat IDs double as user IDs
}

func (a *Adapter) CreateThread(_ context.Context, _, _ string) (string, error) {
	return "", fmt.Errorf("%w: threads are not supported on telegram", errs.ErrBackend)
}

func (a *Adapter) Reply(ctx context.Context, _, _ string, msg platform.MessageSend, _ bool) error {
	return fmt.Errorf("%w: interaction replies are not supported on telegram", errs.ErrBackend)
}

func (a *Adapter) Defer(context.Context, string, string, bool) error {
	return fmt.Errorf("%w: interaction defer is not supported on telegram", errs.ErrBackend)
}

func (a *Adapter) Kick(_ context.Context, target platform.ModerationTarget, _ string) error {
	chatID, err := strconv.ParseInt(target.GuildID, 10, 64)
	if err != nil {
		return err
	}
	userID, err := strconv.ParseInt(target.UserID, 10, 64)
	if err != nil {
		return err
	}
	_, err = a.bot.Request(tgbotapi.KickChatMemberConfig{ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID}})
	return err
}

func (a *Adapter) Ban(ctx context.Context, target platform.ModerationTarget, reason string, _ int) error {
	return a.Kick(ctx, target, reason) // telegram's kick is a permanent ban unless explicitly unbanned
}

func (a *Adapter) Unban(_ context.Context, target platform.ModerationTarget, _ string) error {
	chatID, err := strconv.ParseInt(target.GuildID, 10, 64)
	if err != nil {
		return err
	}
	userID, err := strconv.ParseInt(target.UserID, 10, 64)
	if err != nil {
		return err
	}
	_, err = a.bot.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID}})
	return err
}

func (a *Adapter) Timeout(_ context.Context, target platform.ModerationTarget, until time.Time, _ string) error {
	chatID, err := strconv.ParseInt(target.GuildID, 10, 64)
	if err != nil {
		return err
	}
	userID, err := strconv.ParseInt(target.UserID, 10, 64)
	if err != nil {
		return err
	}
	_, err = a.bot.Request(tgbotapi.RestrictChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		UntilDate:        until.Unix(),
	})
	return err
}

func (a *Adapter) AddRole(context.Context, platform.ModerationTarget, string) error {
	return fmt.Errorf("%w: roles are not a telegram concept", errs.ErrBackend)
}

func (a *Adapter) RemoveRole(context.Context, platform.ModerationTarget, string) error {
	return fmt.Errorf("%w: roles are not a telegram concept", errs.ErrBackend)
}

func (a *Adapter) VoiceJoin(context.Context, string, string, bool, bool) error {
	return fmt.Errorf("%w: voice is not supported on telegram", errs.ErrBackend)
}
func (a *Adapter) VoiceLeave(context.Context, string) error {
	return fmt.Errorf("%w: voice is not supported on telegram", errs.ErrBackend)
}
func (a *Adapter) VoicePlay(context.Context, string, string, platform.TrackEndCallback) error {
	return fmt.Errorf("%w: voice is not supported on telegram", errs.ErrBackend)
}
func (a *Adapter) VoicePause(context.Context, string) error {
	return fmt.Errorf("%w: voice is not supported on telegram", errs.ErrBackend)
}
func (a *Adapter) VoiceResume(context.Context, string) error {
	return fmt.Errorf("%w: voice is not supported on telegram", errs.ErrBackend)
}
func (a *Adapter) VoiceStop(context.Context, string) error {
	return fmt.Errorf("%w: voice is not supported on telegram", errs.ErrBackend)
}
func (a *Adapter) VoiceSetVolume(context.Context, string, int) error {
	return fmt.Errorf("%w: voice is not supported on telegram", errs.ErrBackend)
}

func (a *Adapter) Supports(feature string) bool {
	switch feature {
	case "voice", "components", "threads":
		return false
	case "embeds":
		return false
	default:
		return false
	}
}
