// Package flow implements the C6 flow engine: named, parameterized
// action sequences with the control-handler table (flow_if,
// flow_switch, flow_while, repeat, parallel, batch, try, call_flow)
// layered on top of the C5 action executor.
package flow

import (
	"fmt"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/errs"
	"github.com/rakunlabs/flowbot/internal/expr"
	"github.com/rakunlabs/flowbot/internal/spec"
)

// MaxDepth bounds call_flow recursion.
const MaxDepth = 32

// MaxIterations bounds flow_while/repeat when no narrower cap is given
// explicitly. batch is not capped by it: it runs once per item.
const MaxIterations = 10000

// Engine holds the registered flows and runs them against the shared
// action executor.
type Engine struct {
	Executor *action.Executor
	flows    map[string]spec.Flow
}

func NewEngine(executor *action.Executor, flows []spec.Flow) *Engine {
	e := &Engine{Executor: executor, flows: make(map[string]spec.Flow, len(flows))}
	for _, f := range flows {
		e.flows[f.Name] = f
	}
	return e
}

// Result is the outcome of a flow invocation.
type Result struct {
	Success bool
	Aborted bool
	Value   any
	Error   error
}

// frame carries per-invocation control state: the nesting depth and
// the abort/return signals the control handlers set as they walk a
// flow's actions.
type frame struct {
	depth       int
	aborted     bool
	abortReason string
	returned    bool
	returnValue any
	failed      bool
}

// Execute resolves args against the named flow's declared parameters,
// builds a fresh action.Context scoped to this invocation, and walks
// its actions. parentActx supplies everything ambient (platform,
// state, store, voice, identity) but not its Vars, which are not
// inherited: a flow only sees {args: resolved}, plus {results: [...]}
// once the walk completes.
func (e *Engine) Execute(parentActx *action.Context, name string, args map[string]any) Result {
	return e.execute(parentActx, name, args, 0)
}

func (e *Engine) execute(parentActx *action.Context, name string, rawArgs map[string]any, depth int) Result {
	if depth >= MaxDepth {
		return Result{Error: fmt.Errorf("call_flow %q: %w", name, errs.ErrMaxFlowDepth)}
	}
	fl, ok := e.flows[name]
	if !ok {
		return Result{Error: fmt.Errorf("flow %q: %w", name, errs.ErrFlowNotFound)}
	}

	resolved, err := resolveArgs(fl.Parameters, rawArgs)
	if err != nil {
		return Result{Error: err}
	}

	vars := map[string]any{"args": resolved}
	childActx := &action.Context{
		Ctx: parentActx.Ctx, Vars: vars, Ident: parentActx.Ident, Platform: parentActx.Platform,
		State: parentActx.State, Store: parentActx.Store, Voice: parentActx.Voice, Email: parentActx.Email,
		InteractionID: parentActx.InteractionID, InteractionToken: parentActx.InteractionToken,
		Emit: parentActx.Emit, Timers: parentActx.Timers, Components: parentActx.Components,
	}

	fr := &frame{depth: depth + 1}
	var results []action.Result
	e.walk(childActx, fl.Actions, fr, &results, depth+1)

	vars["results"] = resultsToVars(results)

	if fr.aborted {
		return Result{Success: false, Aborted: true, Error: errs.NewAborted(fr.abortReason)}
	}
	if fr.failed {
		return Result{Error: fmt.Errorf("flow %q: %w", name, errs.ErrActionFailed)}
	}

	value := fr.returnValue
	if fl.Returns != "" {
		v, err := expr.Evaluate(fl.Returns, vars)
		if err != nil {
			return Result{Error: fmt.Errorf("flow %q: returns: %w", name, err)}
		}
		value = v
	}
	return Result{Success: true, Value: value}
}

// walk executes actions in order, dispatching control verbs to this
// engine's own handlers and everything else to the action executor.
func (e *Engine) walk(actx *action.Context, actions []spec.Action, fr *frame, results *[]action.Result, depth int) {
	for _, a := range actions {
		if actx.Ctx.Err() != nil || fr.aborted || fr.returned {
			return
		}
		if a.When != "" {
			ok, err := e.evalBool(actx, a.When, false)
			if err != nil {
				*results = append(*results, action.Result{Verb: a.Verb, Success: false, Error: err})
				fr.failed = true
				continue
			}
			if !ok {
				continue
			}
		}
		if handled, res := e.dispatchControl(actx, a, fr, depth); handled {
			if res != nil {
				*results = append(*results, *res)
				if !res.Success {
					fr.failed = true
				}
			}
			continue
		}
		execRes := e.Executor.ExecuteOne(a, actx)
		*results = append(*results, execRes)
		if !execRes.Success {
			fr.failed = true
		}
	}
}

func resultsToVars(results []action.Result) []any {
	out := make([]any, len(results))
	for i, r := range results {
		errMsg := ""
		if r.Error != nil {
			errMsg = r.Error.Error()
		}
		out[i] = map[string]any{
			"verb": r.Verb, "success": r.Success, "value": r.Value, "error": errMsg,
		}
	}
	return out
}

// resolveArgs applies declared defaults, rejects missing required
// parameters, and rejects type mismatches (array recognized separately
// from object).
func resolveArgs(params []spec.Parameter, raw map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for _, p := range params {
		v, present := raw[p.Name]
		if !present {
			if p.Required {
				return nil, fmt.Errorf("parameter %q: %w", p.Name, errs.ErrParameter)
			}
			v = p.Default
		}
		if v != nil && p.Type != "" && p.Type != "any" {
			if !typeMatches(v, p.Type) {
				return nil, fmt.Errorf("parameter %q: expected %s: %w", p.Name, p.Type, errs.ErrParameter)
			}
		}
		out[p.Name] = v
	}
	return out, nil
}

func typeMatches(v any, want string) bool {
	switch want {
	case "string":
		_, ok := v.(string)
		return ok
	case "number":
		switch v.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := v.(bool)
		return ok
	case "array":
		_, ok := v.([]any)
		return ok
	case "object":
		_, ok := v.(map[string]any)
		return ok
	default:
		return true
	}
}

// evalBool evaluates expression as a condition. When stateAware is
// true, the evaluation context is the action's vars overlaid with a
// fresh snapshot of its scoped state variables (flow_if/flow_while's
// "state-aware path"); otherwise plain vars are used.
func (e *Engine) evalBool(actx *action.Context, expression string, stateAware bool) (bool, error) {
	vars := actx.Vars
	if stateAware {
		merged, err := stateAwareVars(actx)
		if err != nil {
			return false, err
		}
		vars = merged
	}
	v, err := expr.Evaluate(expression, vars)
	if err != nil {
		return false, err
	}
	return expr.Truthy(v), nil
}

// RunActions executes a bare action list through the same
// control-handler walk as Execute, for short-lived callers (the event
// router, the interaction dispatcher, the cron scheduler) that need
// flow_if/try/parallel etc but not named-flow semantics like parameter
// resolution or depth tracking.
//
// Like Execute, RunActions surfaces a plain action failure (a verb
// that ran and did not succeed, whether or not an error_handler then
// ran for it) as a non-aborted error result, so callers can tell "a handler
// deliberately aborted" from "a handler broke" and react differently
// (e.g. the interaction dispatcher's generic-error fallback only fires
// on the latter).
func (e *Engine) RunActions(actx *action.Context, actions []spec.Action) Result {
	fr := &frame{}
	var results []action.Result
	e.walk(actx, actions, fr, &results, 0)
	if fr.aborted {
		return Result{Success: false, Aborted: true, Error: errs.NewAborted(fr.abortReason)}
	}
	if fr.failed {
		return Result{Success: false, Error: fmt.Errorf("flow: %w", errs.ErrActionFailed)}
	}
	return Result{Success: true, Value: fr.returnValue}
}

func stateAwareVars(actx *action.Context) (map[string]any, error) {
	out := make(map[string]any, len(actx.Vars)+4)
	for k, v := range actx.Vars {
		out[k] = v
	}
	if actx.State != nil {
		snap, err := actx.State.Snapshot(actx.Ctx, actx.Ident)
		if err != nil {
			return nil, err
		}
		for k, v := range snap {
			out[k] = v
		}
	}
	return out, nil
}
