package spec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `
identity:
  name: testbot
intents: [guilds, guild_messages]
commands:
  ping:
    description: "Replies with pong"
    actions:
      - reply:
          text: "pong"
  greet:
    actions:
      - flow_if:
          if: "${args.loud}"
          then:
            - reply: {text: "HELLO"}
          else:
            - reply: {text: "hello"}
events:
  message_create:
    when: "${message.author.bot == false}"
    actions:
      - verb: log
        level: info
        message: "got a message"
automod:
  rules:
    - name: no-links
      trigger:
        type: link
        blocked: ["bit.ly"]
      actions:
        - delete_message: {}
      escalation:
        - timeout: {duration: 60}
flows:
  - name: greetFlow
    parameters:
      - name: loud
        type: boolean
        required: false
        default: false
    actions:
      - reply: {text: "${args.loud}"}
`

func TestNormalizeFoldsShorthandIntoVerb(t *testing.T) {
	raw, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	norm, err := Normalize(raw)
	require.NoError(t, err)

	commands := norm["commands"].([]any)
	require.Len(t, commands, 2)

	ping := findByName(t, commands, "ping")
	actions := ping["actions"].([]any)
	require.Len(t, actions, 1)
	action := actions[0].(map[string]any)
	assert.Equal(t, "reply", action["verb"])
	params := action["params"].(map[string]any)
	assert.Equal(t, "pong", params["text"])
}

func TestNormalizeRecursesIntoFlowIfBranches(t *testing.T) {
	raw, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	norm, err := Normalize(raw)
	require.NoError(t, err)

	commands := norm["commands"].([]any)
	greet := findByName(t, commands, "greet")
	actions := greet["actions"].([]any)
	flowIf := actions[0].(map[string]any)
	assert.Equal(t, "flow_if", flowIf["verb"])
	params := flowIf["params"].(map[string]any)

	thenList := params["then"].([]any)
	require.Len(t, thenList, 1)
	thenAction := thenList[0].(map[string]any)
	assert.Equal(t, "reply", thenAction["verb"])

	elseList := params["else"].([]any)
	require.Len(t, elseList, 1)
}

func TestNormalizeKeepsExplicitVerbAndFoldsSiblingParams(t *testing.T) {
	raw, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	norm, err := Normalize(raw)
	require.NoError(t, err)

	events := norm["events"].([]any)
	require.Len(t, events, 1)
	msgEvent := events[0].(map[string]any)
	assert.Equal(t, "message_create", msgEvent["event"])
	assert.NotEmpty(t, msgEvent["when"])

	actions := msgEvent["actions"].([]any)
	logAction := actions[0].(map[string]any)
	assert.Equal(t, "log", logAction["verb"])
	params := logAction["params"].(map[string]any)
	assert.Equal(t, "info", params["level"])
}

func TestNormalizeEventMapCollectionBecomesSequence(t *testing.T) {
	raw, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	norm, err := Normalize(raw)
	require.NoError(t, err)

	events := norm["events"].([]any)
	require.Len(t, events, 1)
	assert.Equal(t, "message_create", events[0].(map[string]any)["event"])
}

func TestNormalizeAutomodRuleActionsAndEscalation(t *testing.T) {
	raw, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	norm, err := Normalize(raw)
	require.NoError(t, err)

	automod := norm["automod"].(map[string]any)
	rules := automod["rules"].([]any)
	require.Len(t, rules, 1)
	rule := rules[0].(map[string]any)
	assert.Equal(t, "no-links", rule["name"])

	escalation := rule["escalation"].([]any)
	require.Len(t, escalation, 1)
	assert.Equal(t, "timeout", escalation[0].(map[string]any)["verb"])
}

func TestNormalizeIsIdempotent(t *testing.T) {
	raw, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	once, err := Normalize(raw)
	require.NoError(t, err)

	twice, err := Normalize(once)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestNormalizeRejectsActionWithNoVerb(t *testing.T) {
	_, err := Normalize(map[string]any{
		"events": []any{
			map[string]any{
				"event": "ready",
				"actions": []any{
					map[string]any{"when": "${true}"},
				},
			},
		},
	})
	require.Error(t, err)
}

func TestNormalizeDiscardsNonMappingShorthandValue(t *testing.T) {
	raw, err := Decode([]byte(`
events:
  - event: ready
    actions:
      - log: "just a string, no params"
`))
	require.NoError(t, err)
	norm, err := Normalize(raw)
	require.NoError(t, err)

	events := norm["events"].([]any)
	actions := events[0].(map[string]any)["actions"].([]any)
	action := actions[0].(map[string]any)
	assert.Equal(t, "log", action["verb"])
	assert.Empty(t, action["params"].(map[string]any))
}

func TestBuildProducesTypedDocument(t *testing.T) {
	raw, err := Decode([]byte(sampleDoc))
	require.NoError(t, err)
	norm, err := Normalize(raw)
	require.NoError(t, err)
	doc, err := Build(norm)
	require.NoError(t, err)

	require.Len(t, doc.Commands, 2)
	require.Len(t, doc.Flows, 1)
	assert.Equal(t, "greetFlow", doc.Flows[0].Name)
	require.Len(t, doc.Flows[0].Parameters, 1)
	assert.Equal(t, "loud", doc.Flows[0].Parameters[0].Name)
	assert.Equal(t, false, doc.Flows[0].Parameters[0].Default)

	require.Len(t, doc.AutomodRules, 1)
	rule := doc.AutomodRules[0]
	require.Len(t, rule.Triggers, 1)
	assert.Equal(t, "link", rule.Triggers[0].Kind)
	assert.Equal(t, []any{"bit.ly"}, rule.Triggers[0].Params["blocked"])
}

func findByName(t *testing.T, list []any, name string) map[string]any {
	t.Helper()
	for _, raw := range list {
		m := raw.(map[string]any)
		if m["name"] == name {
			return m
		}
	}
	t.Fatalf("no record named %q", name)
	return nil
}
