package component

import (
	"fmt"

	"github.com/rakunlabs/flowbot/internal/expr"
	"github.com/rakunlabs/flowbot/internal/platform"
	"github.com/rakunlabs/flowbot/internal/spec"
)

// Builder resolves component/embed templates against a vars context,
// consulting Registry for named templates and an optional theme color
// table.
type Builder struct {
	Registry *Registry
	Theme    map[string]int
}

func NewBuilder(reg *Registry, theme map[string]int) *Builder {
	return &Builder{Registry: reg, Theme: theme}
}

// TextInput is one modal child; ClientSurface has no text-input
// concept since modals are resolved entirely on the engine side.
type TextInput struct {
	CustomID    string
	Label       string
	Style       TextInputStyle
	Placeholder string
	Required    bool
	MinLength   int
	MaxLength   int
}

// Modal is a fully resolved modal: a title plus one action row per
// child, each row wrapping exactly its one text input.
type Modal struct {
	Title string
	Rows  [][]TextInput
}

func fieldString(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func (b *Builder) renderField(fields map[string]any, key string, vars map[string]any) (string, error) {
	raw := fieldString(fields, key)
	if raw == "" {
		return "", nil
	}
	return renderString(raw, vars)
}

func resolveBool(v any, vars map[string]any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		out, err := expr.Evaluate(val, vars)
		if err != nil {
			return false
		}
		return expr.Truthy(out)
	default:
		return false
	}
}

// BuildButton resolves a button template (by name or inline
// definition) into a platform.Component.
func (b *Builder) BuildButton(tplOrInline any, vars map[string]any) (platform.Component, error) {
	tpl, err := resolveTemplate(b.Registry.button, tplOrInline)
	if err != nil {
		return platform.Component{}, err
	}
	fields := tpl.Fields

	label, err := b.renderField(fields, "label", vars)
	if err != nil {
		return platform.Component{}, err
	}
	customID, err := b.renderField(fields, "custom_id", vars)
	if err != nil {
		return platform.Component{}, err
	}
	url, err := b.renderField(fields, "url", vars)
	if err != nil {
		return platform.Component{}, err
	}
	emojiRaw, err := b.renderField(fields, "emoji", vars)
	if err != nil {
		return platform.Component{}, err
	}

	return platform.Component{
		Kind:     "button",
		CustomID: customID,
		Label:    label,
		Style:    ResolveStyle(fieldString(fields, "style")),
		URL:      url,
		Emoji:    emojiRaw,
		Disabled: resolveBool(fields["disabled"], vars),
	}, nil
}

// BuildSelect resolves a select-menu template into a
// platform.Component, including its options.
func (b *Builder) BuildSelect(tplOrInline any, vars map[string]any) (platform.Component, error) {
	tpl, err := resolveTemplate(b.Registry.selectTemplate, tplOrInline)
	if err != nil {
		return platform.Component{}, err
	}
	fields := tpl.Fields

	customID, err := b.renderField(fields, "custom_id", vars)
	if err != nil {
		return platform.Component{}, err
	}

	rawOptions, _ := fields["options"].([]any)
	options := make([]platform.SelectOption, 0, len(rawOptions))
	for _, raw := range rawOptions {
		optFields, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		label, err := renderString(fieldString(optFields, "label"), vars)
		if err != nil {
			return platform.Component{}, err
		}
		value, err := renderString(fieldString(optFields, "value"), vars)
		if err != nil {
			return platform.Component{}, err
		}
		desc, err := renderString(fieldString(optFields, "description"), vars)
		if err != nil {
			return platform.Component{}, err
		}
		emoji, err := renderString(fieldString(optFields, "emoji"), vars)
		if err != nil {
			return platform.Component{}, err
		}
		options = append(options, platform.SelectOption{
			Label: label, Value: value, Description: desc, Emoji: emoji,
			Default: resolveBool(optFields["default"], vars),
		})
	}

	return platform.Component{
		Kind:       "select",
		CustomID:   customID,
		SelectKind: ResolveSelectKind(fieldString(fields, "kind")),
		Options:    options,
		Disabled:   resolveBool(fields["disabled"], vars),
	}, nil
}

// BuildModal resolves a modal template into a Modal, wrapping each
// text-input child in its own action row.
func (b *Builder) BuildModal(tplOrInline any, vars map[string]any) (Modal, error) {
	tpl, err := resolveTemplate(b.Registry.modal, tplOrInline)
	if err != nil {
		return Modal{}, err
	}
	fields := tpl.Fields

	title, err := b.renderField(fields, "title", vars)
	if err != nil {
		return Modal{}, err
	}

	rawChildren, _ := fields["components"].([]any)
	modal := Modal{Title: title, Rows: make([][]TextInput, 0, len(rawChildren))}
	for _, raw := range rawChildren {
		childFields, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		label, err := renderString(fieldString(childFields, "label"), vars)
		if err != nil {
			return Modal{}, err
		}
		customID, err := renderString(fieldString(childFields, "custom_id"), vars)
		if err != nil {
			return Modal{}, err
		}
		placeholder, err := renderString(fieldString(childFields, "placeholder"), vars)
		if err != nil {
			return Modal{}, err
		}
		input := TextInput{
			CustomID:    customID,
			Label:       label,
			Style:       ResolveTextInputStyle(fieldString(childFields, "style")),
			Placeholder: placeholder,
			Required:    resolveBool(childFields["required"], vars),
			MinLength:   numberOr(childFields["min_length"], 0),
			MaxLength:   numberOr(childFields["max_length"], 0),
		}
		modal.Rows = append(modal.Rows, []TextInput{input})
	}
	return modal, nil
}

// BuildComponent resolves a single message-component entry, which may
// be a registered button/select template name or an inline map
// carrying a "kind" field ("button" or "select", default "button").
// A bare string name is tried against both registries, button first.
func (b *Builder) BuildComponent(tplOrInline any, vars map[string]any) (platform.Component, error) {
	if name, ok := tplOrInline.(string); ok {
		if _, err := b.Registry.button(name); err == nil {
			return b.BuildButton(name, vars)
		}
		if _, err := b.Registry.selectTemplate(name); err == nil {
			return b.BuildSelect(name, vars)
		}
		return platform.Component{}, fmt.Errorf("component: no button or select template named %q", name)
	}
	if fields, ok := tplOrInline.(map[string]any); ok && fieldString(fields, "kind") == "select" {
		return b.BuildSelect(tplOrInline, vars)
	}
	return b.BuildButton(tplOrInline, vars)
}

func numberOr(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return def
	}
}

// BuildEmbed resolves an inline embed field map into a platform.Embed.
// Embeds have no named-template registry of their own; they're always
// defined inline on the action (`reply`/`send_message` params).
func (b *Builder) BuildEmbed(fields map[string]any, vars map[string]any) (platform.Embed, error) {
	title, err := b.renderField(fields, "title", vars)
	if err != nil {
		return platform.Embed{}, err
	}
	description, err := b.renderField(fields, "description", vars)
	if err != nil {
		return platform.Embed{}, err
	}
	footer, err := b.renderField(fields, "footer", vars)
	if err != nil {
		return platform.Embed{}, err
	}
	thumbnail, err := b.renderField(fields, "thumbnail", vars)
	if err != nil {
		return platform.Embed{}, err
	}
	image, err := b.renderField(fields, "image", vars)
	if err != nil {
		return platform.Embed{}, err
	}
	url, err := b.renderField(fields, "url", vars)
	if err != nil {
		return platform.Embed{}, err
	}

	rawFields, _ := fields["fields"].([]any)
	embedFields := make([]platform.EmbedField, 0, len(rawFields))
	for _, raw := range rawFields {
		ff, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, err := renderString(fieldString(ff, "name"), vars)
		if err != nil {
			return platform.Embed{}, err
		}
		value, err := renderString(fieldString(ff, "value"), vars)
		if err != nil {
			return platform.Embed{}, err
		}
		embedFields = append(embedFields, platform.EmbedField{
			Name: name, Value: value, Inline: resolveBool(ff["inline"], vars),
		})
	}

	return platform.Embed{
		Title:       title,
		Description: description,
		Color:       ResolveColor(fields["color"], vars, b.Theme),
		Fields:      embedFields,
		Footer:      footer,
		Thumbnail:   thumbnail,
		Image:       image,
		URL:         url,
	}, nil
}
