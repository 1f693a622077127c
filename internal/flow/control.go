package flow

import (
	"fmt"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/errs"
	"github.com/rakunlabs/flowbot/internal/expr"
	"github.com/rakunlabs/flowbot/internal/spec"
)

// dispatchControl handles the verbs flow.md's control table names,
// returning handled=false for anything that should fall through to
// the action executor.
func (e *Engine) dispatchControl(actx *action.Context, a spec.Action, fr *frame, depth int) (bool, *action.Result) {
	switch a.Verb {
	case "abort":
		return true, e.handleAbort(actx, a, fr)
	case "return":
		return true, e.handleReturn(actx, a, fr)
	case "flow_if":
		return true, e.handleFlowIf(actx, a, fr, depth)
	case "flow_switch":
		return true, e.handleFlowSwitch(actx, a, fr, depth)
	case "flow_while":
		return true, e.handleFlowWhile(actx, a, fr, depth)
	case "repeat":
		return true, e.handleRepeat(actx, a, fr, depth)
	case "parallel":
		return true, e.handleParallel(actx, a)
	case "batch":
		return true, e.handleBatch(actx, a, depth)
	case "try":
		return true, e.handleTry(actx, a, fr, depth)
	case "call_flow":
		return true, e.handleCallFlow(actx, a, fr, depth)
	default:
		return false, nil
	}
}

func ok(verb string, value any) *action.Result {
	return &action.Result{Verb: verb, Success: true, Value: value}
}

func failed(verb string, err error) *action.Result {
	return &action.Result{Verb: verb, Success: false, Error: err}
}

func (e *Engine) handleAbort(actx *action.Context, a spec.Action, fr *frame) *action.Result {
	reason := ""
	if v, present := a.Params["reason"]; present {
		if s, isStr := v.(string); isStr {
			r, err := expr.Interpolate(s, actx.Vars)
			if err != nil {
				return failed(a.Verb, err)
			}
			reason = r
		}
	}
	fr.aborted = true
	fr.abortReason = reason
	return ok(a.Verb, nil)
}

func (e *Engine) handleReturn(actx *action.Context, a spec.Action, fr *frame) *action.Result {
	if v, present := a.Params["value"]; present {
		if s, isStr := v.(string); isStr {
			val, err := expr.Evaluate(s, actx.Vars)
			if err != nil {
				return failed(a.Verb, err)
			}
			fr.returnValue = val
		} else {
			fr.returnValue = v
		}
	}
	fr.returned = true
	return ok(a.Verb, fr.returnValue)
}

func (e *Engine) handleFlowIf(actx *action.Context, a spec.Action, fr *frame, depth int) *action.Result {
	condition, _ := a.Params["if"].(string)
	cond, err := e.evalBool(actx, condition, true)
	if err != nil {
		return failed(a.Verb, err)
	}
	var branch []spec.Action
	if cond {
		branch, err = spec.BuildActions(a.Params["then"])
	} else if _, hasElse := a.Params["else"]; hasElse {
		branch, err = spec.BuildActions(a.Params["else"])
	}
	if err != nil {
		return failed(a.Verb, err)
	}
	var results []action.Result
	e.walk(actx, branch, fr, &results, depth)
	return ok(a.Verb, resultsToVars(results))
}

func (e *Engine) handleFlowSwitch(actx *action.Context, a spec.Action, fr *frame, depth int) *action.Result {
	valueExpr, _ := a.Params["value"].(string)
	v, err := expr.Evaluate(valueExpr, actx.Vars)
	if err != nil {
		return failed(a.Verb, err)
	}

	cases, err := spec.BuildActionCases(a.Params["cases"])
	if err != nil {
		return failed(a.Verb, err)
	}
	key := expr.ToString(v)
	branch, matched := cases[key]
	if !matched {
		branch, err = spec.BuildActions(a.Params["default"])
		if err != nil {
			return failed(a.Verb, err)
		}
	}
	var results []action.Result
	e.walk(actx, branch, fr, &results, depth)
	return ok(a.Verb, resultsToVars(results))
}

func (e *Engine) handleFlowWhile(actx *action.Context, a spec.Action, fr *frame, depth int) *action.Result {
	condition, _ := a.Params["while"].(string)
	doActions, err := spec.BuildActions(a.Params["do"])
	if err != nil {
		return failed(a.Verb, err)
	}
	maxIter := MaxIterations
	if m, ok := a.Params["max_iterations"]; ok {
		if n := int(expr.ToNumber(m)); n > 0 && n < maxIter {
			maxIter = n
		}
	}

	var results []action.Result
	for i := 0; i < maxIter; i++ {
		if fr.aborted || fr.returned || actx.Ctx.Err() != nil {
			break
		}
		cond, err := e.evalBool(actx, condition, true)
		if err != nil {
			return failed(a.Verb, err)
		}
		if !cond {
			break
		}
		e.walk(actx, doActions, fr, &results, depth)
	}
	return ok(a.Verb, resultsToVars(results))
}

func (e *Engine) handleRepeat(actx *action.Context, a spec.Action, fr *frame, depth int) *action.Result {
	times, err := repeatCount(a.Params["times"], actx.Vars)
	if err != nil {
		return failed(a.Verb, err)
	}
	asName := "i"
	if s, ok := a.Params["as"].(string); ok && s != "" {
		asName = s
	}
	doActions, err := spec.BuildActions(a.Params["do"])
	if err != nil {
		return failed(a.Verb, err)
	}
	if times > MaxIterations {
		times = MaxIterations
	}

	var results []action.Result
	for i := 0; i < times; i++ {
		if fr.aborted || fr.returned || actx.Ctx.Err() != nil {
			break
		}
		actx.Vars[asName] = float64(i)
		e.walk(actx, doActions, fr, &results, depth)
	}
	return ok(a.Verb, resultsToVars(results))
}

func repeatCount(v any, vars map[string]any) (int, error) {
	var n float64
	switch x := v.(type) {
	case string:
		val, err := expr.Evaluate(x, vars)
		if err != nil {
			return 0, err
		}
		n = expr.ToNumber(val)
	default:
		n = expr.ToNumber(x)
	}
	if !expr.IsInt(n) || n < 0 {
		return 0, fmt.Errorf("repeat: 'times' must be a non-negative integer")
	}
	return int(n), nil
}

func (e *Engine) handleParallel(actx *action.Context, a spec.Action) *action.Result {
	branches, err := spec.BuildActions(a.Params["actions"])
	if err != nil {
		return failed(a.Verb, err)
	}
	results := e.Executor.ExecuteParallel(branches, actx)
	return ok(a.Verb, resultsToVars(results))
}

func (e *Engine) handleTry(actx *action.Context, a spec.Action, fr *frame, depth int) *action.Result {
	doActions, err := spec.BuildActions(a.Params["do"])
	if err != nil {
		return failed(a.Verb, err)
	}
	catchActions, err := spec.BuildActions(a.Params["catch"])
	if err != nil {
		return failed(a.Verb, err)
	}
	finallyActions, err := spec.BuildActions(a.Params["finally"])
	if err != nil {
		return failed(a.Verb, err)
	}

	var doResults []action.Result
	e.walk(actx, doActions, fr, &doResults, depth)

	failure := false
	var cause error
	for _, r := range doResults {
		if !r.Success {
			failure = true
			cause = r.Error
			break
		}
	}

	if failure && len(catchActions) > 0 {
		errVars := make(map[string]any, len(actx.Vars)+2)
		for k, v := range actx.Vars {
			errVars[k] = v
		}
		errVars["error"] = cause
		if cause != nil {
			errVars["errorMessage"] = cause.Error()
		}
		catchCtx := &action.Context{
			Ctx: actx.Ctx, Vars: errVars, Ident: actx.Ident, Platform: actx.Platform,
			State: actx.State, Store: actx.Store, Voice: actx.Voice, Email: actx.Email,
			InteractionID: actx.InteractionID, InteractionToken: actx.InteractionToken,
			Emit: actx.Emit, Timers: actx.Timers, Components: actx.Components,
		}
		var catchResults []action.Result
		e.walk(catchCtx, catchActions, fr, &catchResults, depth)
		doResults = append(doResults, catchResults...)
	}

	if len(finallyActions) > 0 {
		var finallyResults []action.Result
		e.walk(actx, finallyActions, fr, &finallyResults, depth)
		doResults = append(doResults, finallyResults...)
	}

	return ok(a.Verb, resultsToVars(doResults))
}

func (e *Engine) handleCallFlow(actx *action.Context, a spec.Action, fr *frame, depth int) *action.Result {
	flowName, _ := a.Params["flow"].(string)
	if flowName == "" {
		return failed(a.Verb, fmt.Errorf("call_flow: 'flow' is required"))
	}
	args := map[string]any{}
	if argExprs, ok := a.Params["args"].(map[string]any); ok {
		for k, v := range argExprs {
			if s, isStr := v.(string); isStr {
				val, err := expr.Evaluate(s, actx.Vars)
				if err != nil {
					return failed(a.Verb, fmt.Errorf("call_flow: arg %q: %w", k, err))
				}
				args[k] = val
			} else {
				args[k] = v
			}
		}
	}

	res := e.execute(actx, flowName, args, depth)
	if res.Aborted {
		fr.aborted = true
		if reason, ok := errsAborted(res.Error); ok {
			fr.abortReason = reason
		}
		return failed(a.Verb, res.Error)
	}
	if res.Error != nil {
		return failed(a.Verb, res.Error)
	}
	if as, ok := a.Params["as"].(string); ok && as != "" {
		actx.Vars[as] = res.Value
	}
	return ok(a.Verb, res.Value)
}

func errsAborted(err error) (string, bool) {
	a, ok := errs.AsAborted(err)
	if !ok {
		return "", false
	}
	return a.Reason, true
}
