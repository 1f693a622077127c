// Package automod implements the C10 automod engine: rule evaluation
// against message content plus a sliding-window history, exemptions,
// and the hand-off of matches to the action executor.
package automod

import (
	"log/slog"
	"sync"
	"time"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/expr"
	"github.com/rakunlabs/flowbot/internal/spec"
)

// Match records one rule/trigger that fired against a message.
type Match struct {
	Rule    spec.AutomodRule
	Trigger spec.Trigger
	Matched []string
}

// Result is the outcome of Check.
type Result struct {
	Passed  bool
	Matches []Match
}

// escalationKey tracks how many times a given (guild,user) has matched
// a given rule, for the `escalation` action list.
type escalationKey struct {
	rule    string
	guildID string
	userID  string
}

// Engine evaluates automod rules in declared order against incoming
// message content.
type Engine struct {
	rules   []spec.AutomodRule
	history *History

	mu          sync.Mutex
	matchCounts map[escalationKey]int
}

func NewEngine(rules []spec.AutomodRule) *Engine {
	return &Engine{
		rules:       rules,
		history:     NewHistory(),
		matchCounts: make(map[escalationKey]int),
	}
}

// Check evaluates every enabled rule against content in declared
// order. vars is the expression context exposed to each rule's `when`
// guard (message fields, author, etc); mctx carries attachment/window
// identity the triggers themselves need.
func (e *Engine) Check(content string, mctx MessageContext, vars map[string]any, now time.Time) Result {
	// Record first: the `spam`/`duplicate` triggers' sliding-window
	// count includes the message currently being checked.
	e.history.Record(mctx.GuildID, mctx.ChannelID, mctx.UserID, content, now)

	var matches []Match

	for _, rule := range e.rules {
		if !rule.Enabled {
			continue
		}
		if e.exempt(rule.Exempt, mctx, vars) {
			continue
		}
		if rule.When != "" {
			val, err := expr.Evaluate(rule.When, vars)
			if err != nil {
				slog.Warn("automod: rule when-guard failed to evaluate", "rule", rule.Name, "error", err)
				continue
			}
			if !expr.Truthy(val) {
				continue
			}
		}

		for _, trigger := range rule.Triggers {
			ok, tokens := evalTrigger(trigger, content, mctx, e.history, now)
			if ok {
				matches = append(matches, Match{Rule: rule, Trigger: trigger, Matched: tokens})
			}
		}
	}

	return Result{Passed: len(matches) == 0, Matches: matches}
}

func (e *Engine) exempt(ex spec.Exempt, mctx MessageContext, vars map[string]any) bool {
	if contains(ex.Users, mctx.UserID) {
		return true
	}
	if roles, ok := vars["roles"].([]any); ok {
		for _, r := range roles {
			if rs, ok := r.(string); ok && contains(ex.Roles, rs) {
				return true
			}
		}
	}
	if contains(ex.Channels, mctx.ChannelID) {
		return true
	}
	if perms, ok := vars["permissions"].([]any); ok {
		for _, p := range perms {
			if ps, ok := p.(string); ok && contains(ex.Permissions, ps) {
				return true
			}
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// ExecuteActions runs every match's rule actions through the action
// executor, extending actx.Vars with `automod = {rule, trigger,
// matched}` per match, then runs escalation: whenever a matched rule has
// an escalation action list, that list runs on every match, on top of
// the regular actions, with the running per-(rule,guild,user) match
// count exposed as `automod_match_count`. No threshold is applied here.
func (e *Engine) ExecuteActions(exec *action.Executor, actx *action.Context, matches []Match) {
	for _, m := range matches {
		matchVars := cloneVars(actx.Vars)
		matchVars["automod"] = map[string]any{
			"rule":    m.Rule.Name,
			"trigger": m.Trigger.Kind,
			"matched": m.Matched,
		}
		matchCtx := childContext(actx, matchVars)

		for _, res := range exec.ExecuteSequence(m.Rule.Actions, matchCtx) {
			if !res.Success {
				slog.Error("automod: rule action failed", "rule", m.Rule.Name, "verb", res.Verb, "error", res.Error)
			}
		}

		if len(m.Rule.Escalation) > 0 {
			e.runEscalation(exec, matchCtx, m.Rule)
		}
	}
}

func (e *Engine) runEscalation(exec *action.Executor, actx *action.Context, rule spec.AutomodRule) {
	key := escalationKey{rule: rule.Name, guildID: actx.Ident.GuildID, userID: actx.Ident.UserID}

	e.mu.Lock()
	e.matchCounts[key]++
	count := e.matchCounts[key]
	e.mu.Unlock()

	escalationVars := cloneVars(actx.Vars)
	escalationVars["automod_match_count"] = count
	escCtx := childContext(actx, escalationVars)

	for _, res := range exec.ExecuteSequence(rule.Escalation, escCtx) {
		if !res.Success {
			slog.Error("automod: escalation action failed", "rule", rule.Name, "verb", res.Verb, "error", res.Error)
		}
	}
}

func cloneVars(src map[string]any) map[string]any {
	out := make(map[string]any, len(src)+2)
	for k, v := range src {
		out[k] = v
	}
	return out
}

func childContext(actx *action.Context, vars map[string]any) *action.Context {
	return &action.Context{
		Ctx: actx.Ctx, Vars: vars, Ident: actx.Ident, Platform: actx.Platform,
		State: actx.State, Store: actx.Store, Voice: actx.Voice, Email: actx.Email,
		InteractionID: actx.InteractionID, InteractionToken: actx.InteractionToken,
		Emit: actx.Emit, Timers: actx.Timers, Components: actx.Components,
	}
}
