package automod_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/action"
	"github.com/rakunlabs/flowbot/internal/automod"
	"github.com/rakunlabs/flowbot/internal/spec"
)

func TestCheckPassesWhenNoRuleMatches(t *testing.T) {
	e := automod.NewEngine([]spec.AutomodRule{
		{Name: "no-swearing", Enabled: true, Triggers: []spec.Trigger{
			{Kind: "keyword", Params: map[string]any{"keywords": []any{"badword"}}},
		}},
	})

	res := e.Check("hello world", automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "u"}, map[string]any{}, time.Now())
	assert.True(t, res.Passed)
	assert.Empty(t, res.Matches)
}

func TestCheckMatchesKeywordAndHonorsAllowed(t *testing.T) {
	e := automod.NewEngine([]spec.AutomodRule{
		{Name: "no-swearing", Enabled: true, Triggers: []spec.Trigger{
			{Kind: "keyword", Params: map[string]any{
				"keywords": []any{"darn"},
				"allowed":  []any{"darn tootin"},
			}},
		}},
	})

	blocked := e.Check("that's a darn shame", automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "u"}, map[string]any{}, time.Now())
	assert.False(t, blocked.Passed)
	require.Len(t, blocked.Matches, 1)

	allowed := e.Check("darn tootin right", automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "u2"}, map[string]any{}, time.Now())
	assert.True(t, allowed.Passed)
}

func TestCheckSkipsExemptUser(t *testing.T) {
	e := automod.NewEngine([]spec.AutomodRule{
		{
			Name: "no-swearing", Enabled: true,
			Exempt:   spec.Exempt{Users: []string{"mod1"}},
			Triggers: []spec.Trigger{{Kind: "keyword", Params: map[string]any{"keywords": []any{"badword"}}}},
		},
	})

	res := e.Check("badword here", automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "mod1"}, map[string]any{}, time.Now())
	assert.True(t, res.Passed)
}

func TestCheckSkipsFalsyWhen(t *testing.T) {
	e := automod.NewEngine([]spec.AutomodRule{
		{
			Name: "conditional", Enabled: true, When: "false",
			Triggers: []spec.Trigger{{Kind: "keyword", Params: map[string]any{"keywords": []any{"badword"}}}},
		},
	})

	res := e.Check("badword here", automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "u"}, map[string]any{}, time.Now())
	assert.True(t, res.Passed)
}

func TestCheckCapsThreshold(t *testing.T) {
	e := automod.NewEngine([]spec.AutomodRule{
		{Name: "yelling", Enabled: true, Triggers: []spec.Trigger{
			{Kind: "caps", Params: map[string]any{"threshold": float64(70)}},
		}},
	})

	res := e.Check("THIS IS SHOUTING", automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "u"}, map[string]any{}, time.Now())
	assert.False(t, res.Passed)

	quiet := e.Check("this is calm", automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "u"}, map[string]any{}, time.Now())
	assert.True(t, quiet.Passed)
}

func TestCheckSpamSlidingWindowDoesNotCrossUsers(t *testing.T) {
	e := automod.NewEngine([]spec.AutomodRule{
		{Name: "flood", Enabled: true, Triggers: []spec.Trigger{
			{Kind: "spam", Params: map[string]any{"threshold": float64(3), "window": "1m"}},
		}},
	})

	now := time.Now()
	mctxA := automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "a"}
	mctxB := automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "b"}

	e.Check("hi", mctxA, map[string]any{}, now)
	before := e.Check("hi", mctxA, map[string]any{}, now.Add(time.Second))
	assert.True(t, before.Passed, "only two messages so far, below the threshold of 3")

	triggered := e.Check("hi", mctxA, map[string]any{}, now.Add(2*time.Second))
	assert.False(t, triggered.Passed, "third message reaches the threshold")

	// user b's window is independent and still clean.
	resB := e.Check("hi", mctxB, map[string]any{}, now.Add(2*time.Second))
	assert.True(t, resB.Passed)
}

func TestCheckDuplicateRequiresSameContent(t *testing.T) {
	e := automod.NewEngine([]spec.AutomodRule{
		{Name: "copy-paste", Enabled: true, Triggers: []spec.Trigger{
			{Kind: "duplicate", Params: map[string]any{"threshold": float64(2), "window": "1m"}},
		}},
	})

	now := time.Now()
	mctx := automod.MessageContext{GuildID: "g", ChannelID: "c", UserID: "u"}

	e.Check("SAME TEXT", mctx, map[string]any{}, now)
	res := e.Check("same text", mctx, map[string]any{}, now.Add(time.Second))
	assert.False(t, res.Passed, "case-folded duplicate should match")
}

func TestExecuteActionsRunsEscalationOnEveryMatch(t *testing.T) {
	counts := map[string]int{}
	reg := action.NewRegistry()
	reg.Register("count_warn", func(_ *action.Context, _ map[string]any) (any, error) {
		counts["warn"]++
		return nil, nil
	})
	reg.Register("count_timeout", func(_ *action.Context, _ map[string]any) (any, error) {
		counts["timeout"]++
		return nil, nil
	})
	exec := action.NewExecutor(reg)

	rule := spec.AutomodRule{
		Name:       "no-swearing",
		Actions:    []spec.Action{{Verb: "count_warn"}},
		Escalation: []spec.Action{{Verb: "count_timeout"}},
	}
	e := automod.NewEngine([]spec.AutomodRule{rule})

	actx := &action.Context{Vars: map[string]any{}}
	matches := []automod.Match{{Rule: rule, Trigger: spec.Trigger{Kind: "keyword"}, Matched: []string{"x"}}}

	e.ExecuteActions(exec, actx, matches)
	e.ExecuteActions(exec, actx, matches)

	assert.Equal(t, 2, counts["warn"])
	assert.Equal(t, 2, counts["timeout"])
}
