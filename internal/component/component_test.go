package component_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rakunlabs/flowbot/internal/component"
	"github.com/rakunlabs/flowbot/internal/platform"
	"github.com/rakunlabs/flowbot/internal/spec"
)

func TestResolveColorOrderedRules(t *testing.T) {
	assert.Equal(t, 0xFF0000, component.ResolveColor(0xFF0000, nil, nil))
	assert.Equal(t, 0x010203, component.ResolveColor(map[string]any{"r": 1, "g": 2, "b": 3}, nil, nil))
	assert.Equal(t, 0xABCDEF, component.ResolveColor("#ABCDEF", nil, nil))
	assert.Equal(t, 42, component.ResolveColor("brand", nil, map[string]int{"brand": 42}))
	assert.Equal(t, 0xED4245, component.ResolveColor("red", nil, nil))
	assert.Equal(t, 0xABCDEF, component.ResolveColor("${hex}", map[string]any{"hex": "#ABCDEF"}, nil))
	assert.Equal(t, 0x000000, component.ResolveColor("not-a-color", nil, nil))
}

func TestResolveStyleDefaultsToPrimary(t *testing.T) {
	assert.Equal(t, platform.StyleDanger, component.ResolveStyle("danger"))
	assert.Equal(t, platform.StylePrimary, component.ResolveStyle("nonsense"))
}

func TestResolveSelectKindDefaultsToString(t *testing.T) {
	assert.Equal(t, platform.SelectUser, component.ResolveSelectKind("user_select"))
	assert.Equal(t, platform.SelectString, component.ResolveSelectKind("nonsense"))
}

func TestParseEmojiCustomAndLiteral(t *testing.T) {
	custom := component.ParseEmoji("<a:partyblob:123456>")
	assert.True(t, custom.Custom)
	assert.True(t, custom.Animated)
	assert.Equal(t, "partyblob", custom.Name)
	assert.Equal(t, "123456", custom.ID)

	literal := component.ParseEmoji("🎉")
	assert.False(t, literal.Custom)
	assert.Equal(t, "🎉", literal.Literal)
}

func TestBuildButtonInterpolatesFields(t *testing.T) {
	reg := component.NewRegistry(spec.Components{})
	b := component.NewBuilder(reg, nil)

	comp, err := b.BuildButton(map[string]any{
		"label":     "Confirm ${name}",
		"custom_id": "confirm:${id}",
		"style":     "success",
	}, map[string]any{"name": "Alice", "id": "42"})
	require.NoError(t, err)
	assert.Equal(t, "Confirm Alice", comp.Label)
	assert.Equal(t, "confirm:42", comp.CustomID)
	assert.Equal(t, platform.StyleSuccess, comp.Style)
}

func TestBuildButtonByRegisteredTemplateName(t *testing.T) {
	reg := component.NewRegistry(spec.Components{
		Buttons: []spec.ComponentTemplate{
			{Name: "confirm_btn", Fields: map[string]any{"label": "Yes", "custom_id": "yes"}},
		},
	})
	b := component.NewBuilder(reg, nil)

	comp, err := b.BuildButton("confirm_btn", nil)
	require.NoError(t, err)
	assert.Equal(t, "Yes", comp.Label)
}

func TestBuildButtonUnknownTemplateErrors(t *testing.T) {
	reg := component.NewRegistry(spec.Components{})
	b := component.NewBuilder(reg, nil)

	_, err := b.BuildButton("missing", nil)
	assert.Error(t, err)
}

func TestBuildSelectResolvesOptions(t *testing.T) {
	reg := component.NewRegistry(spec.Components{})
	b := component.NewBuilder(reg, nil)

	comp, err := b.BuildSelect(map[string]any{
		"custom_id": "pick",
		"kind":      "user_select",
		"options": []any{
			map[string]any{"label": "One", "value": "1"},
			map[string]any{"label": "Two", "value": "2", "default": true},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, platform.SelectUser, comp.SelectKind)
	require.Len(t, comp.Options, 2)
	assert.True(t, comp.Options[1].Default)
}

func TestBuildModalWrapsEachChildInItsOwnRow(t *testing.T) {
	reg := component.NewRegistry(spec.Components{})
	b := component.NewBuilder(reg, nil)

	modal, err := b.BuildModal(map[string]any{
		"title": "Feedback",
		"components": []any{
			map[string]any{"custom_id": "subject", "label": "Subject", "style": "short"},
			map[string]any{"custom_id": "body", "label": "Body", "style": "paragraph"},
		},
	}, nil)
	require.NoError(t, err)
	require.Len(t, modal.Rows, 2)
	assert.Len(t, modal.Rows[0], 1)
	assert.Equal(t, component.TextInputParagraph, modal.Rows[1][0].Style)
}

func TestBuildEmbedResolvesColorAndFields(t *testing.T) {
	reg := component.NewRegistry(spec.Components{})
	b := component.NewBuilder(reg, nil)

	embed, err := b.BuildEmbed(map[string]any{
		"title": "Hello ${name}",
		"color": "red",
		"fields": []any{
			map[string]any{"name": "Field", "value": "Value", "inline": true},
		},
	}, map[string]any{"name": "World"})
	require.NoError(t, err)
	assert.Equal(t, "Hello World", embed.Title)
	assert.Equal(t, 0xED4245, embed.Color)
	require.Len(t, embed.Fields, 1)
	assert.True(t, embed.Fields[0].Inline)
}
