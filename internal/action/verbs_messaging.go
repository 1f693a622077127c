package action

import (
	"fmt"

	"github.com/rakunlabs/flowbot/internal/platform"
)

// contentFrom reads a message's text body; "content" is the
// spec-literal field name, "text" is accepted as an alias.
func contentFrom(params map[string]any) string {
	if c := str(params, "content"); c != "" {
		return c
	}
	return str(params, "text")
}

func registerMessaging(r *Registry) {
	r.Register("reply", verbReply)
	r.Register("send_message", verbSendMessage)
	r.Register("send_dm", verbSendDM)
	r.Register("edit_message", verbEditMessage)
	r.Register("delete_message", verbDeleteMessage)
	r.Register("bulk_delete", verbBulkDelete)
	r.Register("defer", verbDefer)
	r.Register("create_thread", verbCreateThread)
}

func channelIDFrom(actx *Context, params map[string]any) string {
	if c := str(params, "channel"); c != "" {
		return c
	}
	return actx.Ident.ChannelID
}

// messageSendFrom builds a platform.MessageSend from action params,
// resolving any embed(s)/components through actx.Components when one
// is wired. A nil Components builder (platforms and tests with no
// component concern) silently leaves embeds/components empty.
func messageSendFrom(actx *Context, params map[string]any) (platform.MessageSend, error) {
	msg := platform.MessageSend{
		Content:   contentFrom(params),
		Ephemeral: boolOr(params, "ephemeral", false),
		TTS:       boolOr(params, "tts", false),
	}
	if actx.Components == nil {
		return msg, nil
	}

	if rawEmbeds, ok := params["embeds"].([]any); ok {
		for _, raw := range rawEmbeds {
			fields, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			embed, err := actx.Components.BuildEmbed(fields, actx.Vars)
			if err != nil {
				return platform.MessageSend{}, fmt.Errorf("build embed: %w", err)
			}
			msg.Embeds = append(msg.Embeds, embed)
		}
	} else if fields, ok := params["embed"].(map[string]any); ok {
		embed, err := actx.Components.BuildEmbed(fields, actx.Vars)
		if err != nil {
			return platform.MessageSend{}, fmt.Errorf("build embed: %w", err)
		}
		msg.Embeds = append(msg.Embeds, embed)
	}

	if rawComponents, ok := params["components"].([]any); ok {
		for _, raw := range rawComponents {
			comp, err := actx.Components.BuildComponent(raw, actx.Vars)
			if err != nil {
				return platform.MessageSend{}, fmt.Errorf("build component: %w", err)
			}
			msg.Components = append(msg.Components, comp)
		}
	}

	return msg, nil
}

func verbReply(actx *Context, params map[string]any) (any, error) {
	msg, err := messageSendFrom(actx, params)
	if err != nil {
		return nil, fmt.Errorf("reply: %w", err)
	}
	if actx.InteractionID != "" {
		if !actx.Platform.Supports("embeds") && len(msg.Embeds) > 0 {
			msg.Embeds = nil
		}
		deferred := boolOr(params, "update", false)
		if err := actx.Platform.Reply(actx.Ctx, actx.InteractionID, actx.InteractionToken, msg, deferred); err != nil {
			return nil, fmt.Errorf("reply: %w", err)
		}
		return nil, nil
	}
	return verbSendMessage(actx, params)
}

func verbSendMessage(actx *Context, params map[string]any) (any, error) {
	channelID := channelIDFrom(actx, params)
	if channelID == "" {
		return nil, fmt.Errorf("send_message: no channel in context or params")
	}
	msg, err := messageSendFrom(actx, params)
	if err != nil {
		return nil, fmt.Errorf("send_message: %w", err)
	}
	id, err := actx.Platform.SendMessage(actx.Ctx, channelID, msg)
	if err != nil {
		return nil, fmt.Errorf("send_message: %w", err)
	}
	return id, nil
}

func verbSendDM(actx *Context, params map[string]any) (any, error) {
	userID, err := requireString(params, "user")
	if err != nil {
		userID = actx.Ident.UserID
	}
	if userID == "" {
		return nil, fmt.Errorf("send_dm: no user in context or params")
	}
	msg, err := messageSendFrom(actx, params)
	if err != nil {
		return nil, fmt.Errorf("send_dm: %w", err)
	}
	id, err := actx.Platform.SendDM(actx.Ctx, userID, msg)
	if err != nil {
		return nil, fmt.Errorf("send_dm: %w", err)
	}
	return id, nil
}

func verbEditMessage(actx *Context, params map[string]any) (any, error) {
	messageID, err := requireString(params, "message_id")
	if err != nil {
		return nil, err
	}
	channelID := channelIDFrom(actx, params)
	msg, err := messageSendFrom(actx, params)
	if err != nil {
		return nil, fmt.Errorf("edit_message: %w", err)
	}
	if err := actx.Platform.EditMessage(actx.Ctx, channelID, messageID, msg); err != nil {
		return nil, fmt.Errorf("edit_message: %w", err)
	}
	return nil, nil
}

func verbDeleteMessage(actx *Context, params map[string]any) (any, error) {
	messageID, err := requireString(params, "message_id")
	if err != nil {
		return nil, err
	}
	channelID := channelIDFrom(actx, params)
	if err := actx.Platform.DeleteMessage(actx.Ctx, channelID, messageID); err != nil {
		return nil, fmt.Errorf("delete_message: %w", err)
	}
	return nil, nil
}

func verbBulkDelete(actx *Context, params map[string]any) (any, error) {
	channelID := channelIDFrom(actx, params)
	ids := strSlice(params, "message_ids")
	if err := actx.Platform.BulkDeleteMessages(actx.Ctx, channelID, ids); err != nil {
		return nil, fmt.Errorf("bulk_delete: %w", err)
	}
	return nil, nil
}

func verbDefer(actx *Context, params map[string]any) (any, error) {
	if actx.InteractionID == "" {
		return nil, nil
	}
	ephemeral := boolOr(params, "ephemeral", false)
	if err := actx.Platform.Defer(actx.Ctx, actx.InteractionID, actx.InteractionToken, ephemeral); err != nil {
		return nil, fmt.Errorf("defer: %w", err)
	}
	return nil, nil
}

func verbCreateThread(actx *Context, params map[string]any) (any, error) {
	channelID := channelIDFrom(actx, params)
	name, err := requireString(params, "name")
	if err != nil {
		return nil, err
	}
	id, err := actx.Platform.CreateThread(actx.Ctx, channelID, name)
	if err != nil {
		return nil, fmt.Errorf("create_thread: %w", err)
	}
	return id, nil
}
