// Package event implements the C7 event router: named subscriptions
// with debounce/throttle suppression, fed to the flow engine's bare
// action-list runner.
package event

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	str2duration "github.com/xhit/go-str2duration/v2"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/expr"
	"github.com/rakunlabs/flowbot/internal/flow"
	"github.com/rakunlabs/flowbot/internal/spec"
)

// aliases maps a non-canonical event name to its canonical form (§3).
// Subscribing or emitting either name reaches the same handlers.
var aliases = map[string]string{
	"message":     "message_create",
	"member_join": "guild_member_add",
}

func canonical(name string) string {
	if c, ok := aliases[name]; ok {
		return c
	}
	return name
}

type subscription struct {
	id      int
	handler spec.EventHandler
}

// Router dispatches emitted events to every subscribed handler in
// registration order, honoring each handler's when/debounce/throttle.
type Router struct {
	mu       sync.Mutex
	handlers map[string][]subscription
	lastFire map[string]time.Time
	nextID   int

	Flow *flow.Engine
}

func NewRouter(fl *flow.Engine) *Router {
	return &Router{
		handlers: make(map[string][]subscription),
		lastFire: make(map[string]time.Time),
		Flow:     fl,
	}
}

// Subscribe registers an event handler for its (possibly aliased) event.
func (r *Router) Subscribe(h spec.EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := canonical(h.Event)
	r.nextID++
	r.handlers[name] = append(r.handlers[name], subscription{id: r.nextID, handler: h})
}

// Emit runs every handler subscribed to event (after alias
// canonicalization) in registration order. A failing handler never
// prevents its siblings from running.
func (r *Router) Emit(actx *action.Context, event string, vars map[string]any) {
	name := canonical(event)

	r.mu.Lock()
	subs := append([]subscription(nil), r.handlers[name]...)
	r.mu.Unlock()

	for _, sub := range subs {
		r.fireOne(actx, sub, vars)
	}
}

func (r *Router) fireOne(actx *action.Context, sub subscription, vars map[string]any) {
	h := sub.handler

	handlerVars := make(map[string]any, len(actx.Vars)+len(vars))
	for k, v := range actx.Vars {
		handlerVars[k] = v
	}
	for k, v := range vars {
		handlerVars[k] = v
	}

	if h.When != "" {
		val, err := expr.Evaluate(h.When, handlerVars)
		if err != nil {
			slog.Warn("event handler when-guard failed to evaluate", "event", h.Event, "error", err)
			return
		}
		if !expr.Truthy(val) {
			return
		}
	}

	key := fmt.Sprintf("%d|%s|%s|%s", sub.id, actx.Ident.GuildID, actx.Ident.ChannelID, actx.Ident.UserID)

	if h.Debounce != "" {
		d, err := str2duration.ParseDuration(h.Debounce)
		if err == nil {
			r.mu.Lock()
			last, seen := r.lastFire["debounce:"+key]
			r.mu.Unlock()
			if seen && time.Since(last) < d {
				return
			}
		}
	}
	if h.Throttle != "" {
		d, err := str2duration.ParseDuration(h.Throttle)
		if err == nil {
			r.mu.Lock()
			last, seen := r.lastFire["throttle:"+key]
			allow := !seen || time.Since(last) >= d
			if allow {
				r.lastFire["throttle:"+key] = time.Now()
			}
			r.mu.Unlock()
			if !allow {
				return
			}
		}
	}

	if h.Debounce != "" {
		r.mu.Lock()
		r.lastFire["debounce:"+key] = time.Now()
		r.mu.Unlock()
	}

	handlerCtx := &action.Context{
		Ctx: actx.Ctx, Vars: handlerVars, Ident: actx.Ident, Platform: actx.Platform,
		State: actx.State, Store: actx.Store, Voice: actx.Voice, Email: actx.Email,
		InteractionID: actx.InteractionID, InteractionToken: actx.InteractionToken,
		Emit: actx.Emit, Timers: actx.Timers, Components: actx.Components,
	}
	res := r.Flow.RunActions(handlerCtx, h.Actions)
	if res.Error != nil && !res.Aborted {
		slog.Error("event handler failed", "event", h.Event, "error", res.Error)
	}
}
