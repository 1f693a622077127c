package event_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/event"
	"github.com/rakunlabs/flowbot/internal/flow"
	"github.com/rakunlabs/flowbot/internal/spec"
	"github.com/rakunlabs/flowbot/internal/state"
)

// newRouter builds a router whose action.Context records every `emit`
// verb fired by a handler, so tests can assert on fire counts without
// needing real platform/state plumbing.
func newRouter() (*event.Router, *action.Context, *[]string) {
	exec := action.NewExecutor(action.NewRegistry())
	fl := flow.NewEngine(exec, nil)
	r := event.NewRouter(fl)

	var fired []string
	actx := &action.Context{
		Ctx:   context.Background(),
		Vars:  map[string]any{},
		Ident: state.Ident{GuildID: "g1", ChannelID: "c1", UserID: "u1"},
		Emit: func(name string, _ map[string]any) {
			fired = append(fired, name)
		},
	}
	return r, actx, &fired
}

func observe(name string) spec.Action {
	return spec.Action{Verb: "emit", Params: map[string]any{"event": name}}
}

func TestEmitRunsHandlersInRegistrationOrder(t *testing.T) {
	r, actx, fired := newRouter()

	r.Subscribe(spec.EventHandler{Event: "ready", Actions: []spec.Action{observe("first")}})
	r.Subscribe(spec.EventHandler{Event: "ready", Actions: []spec.Action{observe("second")}})

	r.Emit(actx, "ready", nil)
	assert.Equal(t, []string{"first", "second"}, *fired)
}

func TestEmitHonorsAlias(t *testing.T) {
	r, actx, fired := newRouter()

	r.Subscribe(spec.EventHandler{Event: "message_create", Actions: []spec.Action{observe("hit")}})
	r.Emit(actx, "message", nil)

	require.Len(t, *fired, 1)
	assert.Equal(t, "hit", (*fired)[0])
}

func TestEmitSkipsFalsyWhen(t *testing.T) {
	r, actx, fired := newRouter()
	actx.Vars["allowed"] = false

	r.Subscribe(spec.EventHandler{
		Event:   "ready",
		When:    "allowed",
		Actions: []spec.Action{observe("should-not-fire")},
	})
	r.Emit(actx, "ready", nil)
	assert.Empty(t, *fired)
}

func TestEmitThrottleDropsExtraFires(t *testing.T) {
	r, actx, fired := newRouter()

	r.Subscribe(spec.EventHandler{
		Event:    "ready",
		Throttle: "1h",
		Actions:  []spec.Action{observe("tick")},
	})

	r.Emit(actx, "ready", nil)
	r.Emit(actx, "ready", nil)
	assert.Equal(t, []string{"tick"}, *fired)
}

func TestEmitDebounceSuppressesRefireWithinWindow(t *testing.T) {
	r, actx, fired := newRouter()

	r.Subscribe(spec.EventHandler{
		Event:    "ready",
		Debounce: "1h",
		Actions:  []spec.Action{observe("tick")},
	})

	r.Emit(actx, "ready", nil)
	r.Emit(actx, "ready", nil)
	assert.Equal(t, []string{"tick"}, *fired)
}

func TestEmitIsolatesHandlerFailures(t *testing.T) {
	r, actx, fired := newRouter()

	r.Subscribe(spec.EventHandler{Event: "ready", Actions: []spec.Action{
		{Verb: "unknown_verb_name"},
	}})
	r.Subscribe(spec.EventHandler{Event: "ready", Actions: []spec.Action{observe("second")}})

	r.Emit(actx, "ready", nil)
	assert.Equal(t, []string{"second"}, *fired)
}
