package flow_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/flow"
	"github.com/rakunlabs/flowbot/internal/spec"
)

func newActx(vars map[string]any) *action.Context {
	if vars == nil {
		vars = map[string]any{}
	}
	return &action.Context{Ctx: context.Background(), Vars: vars}
}

func newEngine(flows ...spec.Flow) *flow.Engine {
	exec := action.NewExecutor(action.NewRegistry())
	return flow.NewEngine(exec, flows)
}

func nestedAction(verb string, params map[string]any) map[string]any {
	return map[string]any{"verb": verb, "params": params}
}

func TestExecuteResolvesDefaultsAndRejectsMissingRequired(t *testing.T) {
	flows := []spec.Flow{
		{
			Name: "greet",
			Parameters: []spec.Parameter{
				{Name: "name", Type: "string", Required: true},
				{Name: "loud", Type: "boolean", Default: false},
			},
			Returns: "args.name",
		},
	}
	e := newEngine(flows...)

	res := e.Execute(newActx(nil), "greet", map[string]any{"name": "Ada"})
	require.NoError(t, res.Error)
	assert.Equal(t, "Ada", res.Value)

	res = e.Execute(newActx(nil), "greet", map[string]any{})
	require.Error(t, res.Error)
}

func TestFlowIfBranches(t *testing.T) {
	flows := []spec.Flow{
		{
			Name: "pick",
			Parameters: []spec.Parameter{
				{Name: "n", Type: "number", Required: true},
			},
			Actions: []spec.Action{
				{
					Verb: "flow_if",
					Params: map[string]any{
						"if":   "args.n > 10",
						"then": []any{nestedAction("return", map[string]any{"value": "\"big\""})},
						"else": []any{nestedAction("return", map[string]any{"value": "\"small\""})},
					},
				},
			},
		},
	}
	e := newEngine(flows...)

	res := e.Execute(newActx(nil), "pick", map[string]any{"n": float64(20)})
	require.NoError(t, res.Error)
	assert.Equal(t, "big", res.Value)

	res = e.Execute(newActx(nil), "pick", map[string]any{"n": float64(1)})
	require.NoError(t, res.Error)
	assert.Equal(t, "small", res.Value)
}

func TestAbortShortCircuitsRemainingActions(t *testing.T) {
	flows := []spec.Flow{
		{
			Name: "stopEarly",
			Actions: []spec.Action{
				{Verb: "abort", Params: map[string]any{"reason": "nope"}},
				{Verb: "return", Params: map[string]any{"value": "\"unreachable\""}},
			},
		},
	}
	e := newEngine(flows...)

	res := e.Execute(newActx(nil), "stopEarly", nil)
	assert.True(t, res.Aborted)
	assert.Error(t, res.Error)
	assert.Contains(t, res.Error.Error(), "nope")
}

func TestRepeatExposesZeroBasedIndex(t *testing.T) {
	flows := []spec.Flow{
		{
			Name:    "loopy",
			Returns: "i",
			Actions: []spec.Action{
				{
					Verb: "repeat",
					Params: map[string]any{
						"times": float64(3),
						"as":    "i",
						"do":    []any{nestedAction("log", map[string]any{"message": "tick"})},
					},
				},
			},
		},
	}
	e := newEngine(flows...)

	actx := newActx(nil)
	res := e.Execute(actx, "loopy", nil)
	require.NoError(t, res.Error)
	assert.Equal(t, float64(2), res.Value)
}

func TestCallFlowDepthCapped(t *testing.T) {
	flows := []spec.Flow{
		{
			Name: "recurse",
			Actions: []spec.Action{
				{Verb: "call_flow", Params: map[string]any{"flow": "recurse"}},
			},
		},
	}
	e := newEngine(flows...)

	res := e.Execute(newActx(nil), "recurse", nil)
	require.Error(t, res.Error)
}

func TestCallFlowBindsReturnValueUnderAs(t *testing.T) {
	flows := []spec.Flow{
		{
			Name:    "double",
			Returns: "args.n * 2",
			Parameters: []spec.Parameter{
				{Name: "n", Type: "number", Required: true},
			},
		},
		{
			Name:    "caller",
			Returns: "doubled",
			Actions: []spec.Action{
				{
					Verb: "call_flow",
					Params: map[string]any{
						"flow": "double",
						"args": map[string]any{"n": "5"},
						"as":   "doubled",
					},
				},
			},
		},
	}
	e := newEngine(flows...)

	actx := newActx(nil)
	res := e.Execute(actx, "caller", nil)
	require.NoError(t, res.Error)
	assert.Equal(t, float64(10), res.Value)
}
