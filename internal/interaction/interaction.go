// Package interaction implements the C8 interaction dispatcher: chat
// commands, buttons, selects, modals, and the two context-menu
// channels, each keyed and looked up per spec.md §4.8.
package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/flow"
	"github.com/rakunlabs/flowbot/internal/platform"
	"github.com/rakunlabs/flowbot/internal/spec"
)

// registry holds one channel's registrations in insertion order, so
// wildcard fallback lookup can report "first registered wins".
type registry struct {
	mu      sync.RWMutex
	order   []string
	actions map[string][]spec.Action
}

func newRegistry() *registry {
	return &registry{actions: make(map[string][]spec.Action)}
}

func (r *registry) register(key string, actions []spec.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.actions[key]; !exists {
		r.order = append(r.order, key)
	}
	r.actions[key] = actions
}

// lookup tries an exact match first, then scans registered keys ending
// in "*" for the first whose prefix matches id.
func (r *registry) lookup(id string) ([]spec.Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.actions[id]; ok {
		return a, true
	}
	for _, key := range r.order {
		prefix, isWildcard := strings.CutSuffix(key, "*")
		if isWildcard && strings.HasPrefix(id, prefix) {
			return r.actions[key], true
		}
	}
	return nil, false
}

// Dispatcher routes inbound interactions to their registered action
// list, running them through the flow engine with a generic-error
// fallback reply when a handler fails before ever responding.
type Dispatcher struct {
	commands       *registry
	buttons        *registry
	selects        *registry
	modals         *registry
	contextUser    *registry
	contextMessage *registry

	Flow *flow.Engine
}

func NewDispatcher(fl *flow.Engine) *Dispatcher {
	return &Dispatcher{
		commands:       newRegistry(),
		buttons:        newRegistry(),
		selects:        newRegistry(),
		modals:         newRegistry(),
		contextUser:    newRegistry(),
		contextMessage: newRegistry(),
		Flow:           fl,
	}
}

func (d *Dispatcher) RegisterCommand(path string, actions []spec.Action) { d.commands.register(path, actions) }
func (d *Dispatcher) RegisterButton(customID string, actions []spec.Action) {
	d.buttons.register(customID, actions)
}
func (d *Dispatcher) RegisterSelect(customID string, actions []spec.Action) {
	d.selects.register(customID, actions)
}
func (d *Dispatcher) RegisterModal(customID string, actions []spec.Action) {
	d.modals.register(customID, actions)
}
func (d *Dispatcher) RegisterContextMenu(kind, name string, actions []spec.Action) {
	switch kind {
	case "message":
		d.contextMessage.register(name, actions)
	default:
		d.contextUser.register(name, actions)
	}
}

func (d *Dispatcher) DispatchCommand(actx *action.Context, path string) error {
	return d.dispatch(actx, d.commands, path)
}
func (d *Dispatcher) DispatchButton(actx *action.Context, customID string) error {
	return d.dispatch(actx, d.buttons, customID)
}
func (d *Dispatcher) DispatchSelect(actx *action.Context, customID string) error {
	return d.dispatch(actx, d.selects, customID)
}
func (d *Dispatcher) DispatchModal(actx *action.Context, customID string) error {
	return d.dispatch(actx, d.modals, customID)
}
func (d *Dispatcher) DispatchContextMenu(actx *action.Context, kind, name string) error {
	reg := d.contextUser
	if kind == "message" {
		reg = d.contextMessage
	}
	return d.dispatch(actx, reg, name)
}

func (d *Dispatcher) dispatch(actx *action.Context, reg *registry, key string) error {
	actions, ok := reg.lookup(key)
	if !ok {
		return fmt.Errorf("interaction: no handler registered for %q", key)
	}

	tracker := &respondTracker{ClientSurface: actx.Platform}
	guardedActx := &action.Context{
		Ctx: actx.Ctx, Vars: actx.Vars, Ident: actx.Ident, Platform: tracker,
		State: actx.State, Store: actx.Store, Voice: actx.Voice, Email: actx.Email,
		InteractionID: actx.InteractionID, InteractionToken: actx.InteractionToken,
		Emit: actx.Emit, Timers: actx.Timers, Components: actx.Components,
	}

	return d.runGuarded(guardedActx, tracker, actions, key)
}

func (d *Dispatcher) runGuarded(actx *action.Context, tracker *respondTracker, actions []spec.Action, key string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("interaction handler panicked", "key", key, "panic", r)
			d.replyGenericError(actx, tracker)
			err = fmt.Errorf("interaction handler panicked: %v", r)
		}
	}()

	res := d.Flow.RunActions(actx, actions)
	if res.Error != nil && !res.Aborted {
		slog.Error("interaction handler failed", "key", key, "error", res.Error)
		d.replyGenericError(actx, tracker)
		return res.Error
	}
	return nil
}

func (d *Dispatcher) replyGenericError(actx *action.Context, tracker *respondTracker) {
	if tracker.responded() {
		return
	}
	msg := platform.MessageSend{Content: "Something went wrong handling that."}
	if err := actx.Platform.Reply(actx.Ctx, actx.InteractionID, actx.InteractionToken, msg, false); err != nil {
		slog.Error("interaction generic error reply failed", "error", err)
	}
}

// respondTracker wraps a ClientSurface to record whether this
// interaction has already been replied to or deferred, so the
// dispatcher's panic/error fallback never double-responds.
type respondTracker struct {
	platform.ClientSurface
	mu   sync.Mutex
	done bool
}

func (t *respondTracker) responded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *respondTracker) Reply(ctx context.Context, interactionID, interactionToken string, msg platform.MessageSend, deferred bool) error {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	return t.ClientSurface.Reply(ctx, interactionID, interactionToken, msg, deferred)
}

func (t *respondTracker) Defer(ctx context.Context, interactionID, interactionToken string, ephemeral bool) error {
	t.mu.Lock()
	t.done = true
	t.mu.Unlock()
	return t.ClientSurface.Defer(ctx, interactionID, interactionToken, ephemeral)
}
