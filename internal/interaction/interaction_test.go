package interaction_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/flow"
	"github.com/rakunlabs/flowbot/internal/interaction"
	"github.com/rakunlabs/flowbot/internal/platform"
	"github.com/rakunlabs/flowbot/internal/spec"
)

type fakePlatform struct {
	platform.ClientSurface
	replies int
}

func (f *fakePlatform) Reply(_ context.Context, _, _ string, _ platform.MessageSend, _ bool) error {
	f.replies++
	return nil
}

func (f *fakePlatform) Defer(_ context.Context, _, _ string, _ bool) error {
	f.replies++
	return nil
}

func newDispatcher() (*interaction.Dispatcher, *action.Context, *fakePlatform) {
	exec := action.NewExecutor(action.NewRegistry())
	fl := flow.NewEngine(exec, nil)
	d := interaction.NewDispatcher(fl)
	fp := &fakePlatform{}
	actx := &action.Context{Ctx: context.Background(), Vars: map[string]any{}, Platform: fp, InteractionID: "i1", InteractionToken: "t1"}
	return d, actx, fp
}

func TestDispatchExactMatch(t *testing.T) {
	d, actx, fp := newDispatcher()
	d.RegisterButton("confirm", []spec.Action{{Verb: "reply", Params: map[string]any{"content": "done"}}})

	err := d.DispatchButton(actx, "confirm")
	require.NoError(t, err)
	assert.Equal(t, 1, fp.replies)
}

func TestDispatchWildcardFallback(t *testing.T) {
	d, actx, fp := newDispatcher()
	d.RegisterButton("page:*", []spec.Action{{Verb: "reply", Params: map[string]any{"content": "paged"}}})

	err := d.DispatchButton(actx, "page:3")
	require.NoError(t, err)
	assert.Equal(t, 1, fp.replies)
}

func TestDispatchExactWinsOverWildcard(t *testing.T) {
	d, actx, fp := newDispatcher()
	d.RegisterButton("page:*", []spec.Action{{Verb: "reply", Params: map[string]any{"content": "wildcard"}}})
	d.RegisterButton("page:3", []spec.Action{{Verb: "reply", Params: map[string]any{"content": "exact"}}})

	err := d.DispatchButton(actx, "page:3")
	require.NoError(t, err)
	assert.Equal(t, 1, fp.replies)
}

func TestDispatchUnregisteredReturnsError(t *testing.T) {
	d, actx, _ := newDispatcher()
	err := d.DispatchButton(actx, "missing")
	assert.Error(t, err)
}

func TestDispatchFailureSendsGenericError(t *testing.T) {
	d, actx, fp := newDispatcher()
	d.RegisterButton("boom", []spec.Action{{Verb: "unknown_verb"}})

	err := d.DispatchButton(actx, "boom")
	assert.Error(t, err)
	assert.Equal(t, 1, fp.replies)
}

func TestDispatchAbortSendsNoGenericError(t *testing.T) {
	d, actx, fp := newDispatcher()
	d.RegisterButton("cancelled", []spec.Action{{Verb: "abort", Params: map[string]any{"reason": "x"}}})

	err := d.DispatchButton(actx, "cancelled")
	assert.NoError(t, err)
	assert.Equal(t, 0, fp.replies)
}

func TestDispatchFailureAfterReplySkipsGenericError(t *testing.T) {
	d, actx, fp := newDispatcher()
	d.RegisterButton("already-replied", []spec.Action{
		{Verb: "reply", Params: map[string]any{"content": "ok"}},
		{Verb: "unknown_verb"},
	})

	err := d.DispatchButton(actx, "already-replied")
	assert.Error(t, err)
	assert.Equal(t, 1, fp.replies)
}
