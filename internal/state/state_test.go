package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/spec"
	"github.com/rakunlabs/flowbot/internal/state"
	"github.com/rakunlabs/flowbot/internal/store/memory"
)

func TestGetReturnsDefaultWhenUnset(t *testing.T) {
	kv := memory.New()
	m := state.New(kv, "", []spec.Variable{
		{Name: "warnings", Scope: "member", Default: float64(0)},
	})

	v, err := m.Get(context.Background(), "warnings", state.Ident{GuildID: "g1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, float64(0), v)
}

func TestSetIsScopedPerMember(t *testing.T) {
	kv := memory.New()
	m := state.New(kv, "", []spec.Variable{
		{Name: "warnings", Scope: "member", Default: float64(0)},
	})
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "warnings", state.Ident{GuildID: "g1", UserID: "u1"}, float64(2)))

	v1, err := m.Get(ctx, "warnings", state.Ident{GuildID: "g1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), v1)

	v2, err := m.Get(ctx, "warnings", state.Ident{GuildID: "g1", UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, float64(0), v2)
}

func TestIncrementAccumulates(t *testing.T) {
	kv := memory.New()
	m := state.New(kv, "", []spec.Variable{
		{Name: "count", Scope: "guild", Default: float64(0)},
	})
	ctx := context.Background()
	ident := state.Ident{GuildID: "g1"}

	next, err := m.Increment(ctx, "count", ident, 1)
	require.NoError(t, err)
	assert.Equal(t, float64(1), next)

	next, err = m.Increment(ctx, "count", ident, 5)
	require.NoError(t, err)
	assert.Equal(t, float64(6), next)
}

func TestSnapshotIncludesAllDeclaredVariables(t *testing.T) {
	kv := memory.New()
	m := state.New(kv, "", []spec.Variable{
		{Name: "a", Scope: "global", Default: "x"},
		{Name: "b", Scope: "global", Default: "y"},
	})

	snap, err := m.Snapshot(context.Background(), state.Ident{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "x", "b": "y"}, snap)
}

func TestGuildScopeRequiresGuildID(t *testing.T) {
	kv := memory.New()
	m := state.New(kv, "", []spec.Variable{{Name: "x", Scope: "guild"}})

	err := m.Set(context.Background(), "x", state.Ident{}, "value")
	assert.Error(t, err)
}
