// Package action implements the C5 action executor: a verb→handler
// registry plus the three execution strategies (one, sequence,
// parallel) spec.md §4.5 describes.
package action

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rakunlabs/flowbot/internal/component"
	"github.com/rakunlabs/flowbot/internal/expr"
	"github.com/rakunlabs/flowbot/internal/platform"
	"github.com/rakunlabs/flowbot/internal/spec"
	"github.com/rakunlabs/flowbot/internal/state"
	"github.com/rakunlabs/flowbot/internal/store"
	"github.com/rakunlabs/flowbot/internal/voice"
)

// Context bundles everything a verb handler needs: the evaluation
// vars a condition/expression sees, the scoped-variable manager, the
// platform surface, and the raw table store for db_* verbs.
type Context struct {
	Ctx      context.Context
	Vars     map[string]any
	Ident    state.Ident
	Platform platform.ClientSurface
	State    *state.Manager
	Store    store.Store
	Voice    *voice.Manager
	Email    *SMTPConfig

	// Components builds embeds and message components (buttons,
	// selects, modals) from spec-authored templates or inline fields;
	// nil on platforms/tests that never reference one.
	Components *component.Builder

	InteractionID    string
	InteractionToken string

	// Emit lets the `emit` verb hand a synthetic event to the event
	// router without action importing event (avoiding an import cycle).
	Emit func(eventName string, vars map[string]any)

	Timers *TimerManager
}

// Result is the outcome of one executeOne call.
type Result struct {
	Verb    string
	Success bool
	Value   any
	Error   error
}

// Handler implements one verb. params has already been interpolated.
type Handler func(ctx *Context, params map[string]any) (any, error)

// Registry maps verb names to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]Handler)}
	registerMessaging(r)
	registerModeration(r)
	registerVoice(r)
	registerStateVerbs(r)
	registerControl(r)
	registerScript(r)
	registerWebhook(r)
	registerEmail(r)
	return r
}

func (r *Registry) Register(verb string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[verb] = h
}

func (r *Registry) lookup(verb string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[verb]
	return h, ok
}

// Executor runs actions against the registry.
type Executor struct {
	Registry *Registry
}

func NewExecutor(reg *Registry) *Executor {
	return &Executor{Registry: reg}
}

// ExecuteOne evaluates `when` (skipping if falsy), invokes the verb
// handler, and on error runs error_handler with {error, errorMessage}
// folded into context. It never returns a Go error itself.
func (e *Executor) ExecuteOne(a spec.Action, actx *Context) Result {
	if a.When != "" {
		ok, err := truthyExpr(a.When, actx.Vars)
		if err != nil {
			slog.Warn("action when-guard failed to evaluate", "verb", a.Verb, "error", err)
			return Result{Verb: a.Verb, Success: false, Error: err}
		}
		if !ok {
			return Result{Verb: a.Verb, Success: true, Value: nil}
		}
	}

	handler, ok := e.Registry.lookup(a.Verb)
	if !ok {
		err := fmt.Errorf("unknown action verb %q", a.Verb)
		return e.handleError(a, actx, err)
	}

	params, err := interpolateParams(a.Params, actx.Vars)
	if err != nil {
		return e.handleError(a, actx, err)
	}

	value, err := handler(actx, params)
	if err != nil {
		return e.handleError(a, actx, err)
	}
	if as, ok := params["as"].(string); ok && as != "" {
		actx.Vars[as] = value
	}
	return Result{Verb: a.Verb, Success: true, Value: value}
}

func (e *Executor) handleError(a spec.Action, actx *Context, cause error) Result {
	if len(a.ErrorHandler) > 0 {
		errVars := cloneVars(actx.Vars)
		errVars["error"] = cause
		errVars["errorMessage"] = cause.Error()
		errCtx := &Context{
			Ctx: actx.Ctx, Vars: errVars, Ident: actx.Ident, Platform: actx.Platform,
			State: actx.State, Store: actx.Store, Voice: actx.Voice, Email: actx.Email, InteractionID: actx.InteractionID,
			InteractionToken: actx.InteractionToken, Emit: actx.Emit, Timers: actx.Timers, Components: actx.Components,
		}
		e.ExecuteSequence(a.ErrorHandler, errCtx)
	}
	return Result{Verb: a.Verb, Success: false, Error: cause}
}

// ExecuteSequence runs actions in declared order, collecting every
// result; it never aborts early on a handler error.
func (e *Executor) ExecuteSequence(actions []spec.Action, actx *Context) []Result {
	results := make([]Result, 0, len(actions))
	for _, a := range actions {
		results = append(results, e.ExecuteOne(a, actx))
	}
	return results
}

// ExecuteParallel runs actions concurrently, preserving input order in
// the result vector.
func (e *Executor) ExecuteParallel(actions []spec.Action, actx *Context) []Result {
	results := make([]Result, len(actions))
	var wg sync.WaitGroup
	for i, a := range actions {
		wg.Add(1)
		go func(i int, a spec.Action) {
			defer wg.Done()
			results[i] = e.ExecuteOne(a, actx)
		}(i, a)
	}
	wg.Wait()
	return results
}

func truthyExpr(expression string, vars map[string]any) (bool, error) {
	v, err := expr.Evaluate(expression, vars)
	if err != nil {
		return false, err
	}
	return expr.Truthy(v), nil
}

func cloneVars(vars map[string]any) map[string]any {
	out := make(map[string]any, len(vars)+2)
	for k, v := range vars {
		out[k] = v
	}
	return out
}

// interpolateParams walks params recursively, running every string
// value through C2 interpolation (spec.md §4.5).
func interpolateParams(params map[string]any, vars map[string]any) (map[string]any, error) {
	out, err := interpolateAny(params, vars)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

func interpolateAny(v any, vars map[string]any) (any, error) {
	switch x := v.(type) {
	case string:
		return expr.Interpolate(x, vars)
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			r, err := interpolateAny(val, vars)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			r, err := interpolateAny(val, vars)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}
