package action

import (
	"fmt"
	"time"

	"github.com/rakunlabs/flowbot/internal/platform"
)

func registerModeration(r *Registry) {
	r.Register("kick", verbKick)
	r.Register("ban", verbBan)
	r.Register("unban", verbUnban)
	r.Register("timeout", verbTimeout)
	r.Register("add_role", verbAddRole)
	r.Register("remove_role", verbRemoveRole)
}

func targetFrom(actx *Context, params map[string]any) platform.ModerationTarget {
	guildID := strOr(params, "guild", actx.Ident.GuildID)
	userID := strOr(params, "user", actx.Ident.UserID)
	return platform.ModerationTarget{GuildID: guildID, UserID: userID}
}

func verbKick(actx *Context, params map[string]any) (any, error) {
	if err := actx.Platform.Kick(actx.Ctx, targetFrom(actx, params), str(params, "reason")); err != nil {
		return nil, fmt.Errorf("kick: %w", err)
	}
	return nil, nil
}

func verbBan(actx *Context, params map[string]any) (any, error) {
	deleteSeconds := int(numOr(params, "delete_message_seconds", 0))
	if err := actx.Platform.Ban(actx.Ctx, targetFrom(actx, params), str(params, "reason"), deleteSeconds); err != nil {
		return nil, fmt.Errorf("ban: %w", err)
	}
	return nil, nil
}

func verbUnban(actx *Context, params map[string]any) (any, error) {
	if err := actx.Platform.Unban(actx.Ctx, targetFrom(actx, params), str(params, "reason")); err != nil {
		return nil, fmt.Errorf("unban: %w", err)
	}
	return nil, nil
}

func verbTimeout(actx *Context, params map[string]any) (any, error) {
	seconds, ok := num(params, "duration")
	if !ok {
		return nil, fmt.Errorf("timeout: parameter %q is required", "duration")
	}
	until := time.Now().Add(time.Duration(seconds) * time.Second)
	if err := actx.Platform.Timeout(actx.Ctx, targetFrom(actx, params), until, str(params, "reason")); err != nil {
		return nil, fmt.Errorf("timeout: %w", err)
	}
	return nil, nil
}

func verbAddRole(actx *Context, params map[string]any) (any, error) {
	roleID, err := requireString(params, "role")
	if err != nil {
		return nil, err
	}
	if err := actx.Platform.AddRole(actx.Ctx, targetFrom(actx, params), roleID); err != nil {
		return nil, fmt.Errorf("add_role: %w", err)
	}
	return nil, nil
}

func verbRemoveRole(actx *Context, params map[string]any) (any, error) {
	roleID, err := requireString(params, "role")
	if err != nil {
		return nil, err
	}
	if err := actx.Platform.RemoveRole(actx.Ctx, targetFrom(actx, params), roleID); err != nil {
		return nil, fmt.Errorf("remove_role: %w", err)
	}
	return nil, nil
}
