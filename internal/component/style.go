package component

import "github.com/rakunlabs/flowbot/internal/platform"

// ResolveStyle maps a semantic button style to its platform constant.
// An unrecognized style defaults to primary.
func ResolveStyle(raw string) platform.ComponentStyle {
	switch platform.ComponentStyle(raw) {
	case platform.StylePrimary, platform.StyleSecondary, platform.StyleSuccess, platform.StyleDanger, platform.StyleLink:
		return platform.ComponentStyle(raw)
	default:
		return platform.StylePrimary
	}
}

// ResolveSelectKind maps a semantic select kind to its platform
// constant. An unrecognized kind defaults to string_select.
func ResolveSelectKind(raw string) platform.SelectKind {
	switch platform.SelectKind(raw) {
	case platform.SelectString, platform.SelectUser, platform.SelectRole, platform.SelectMentionable, platform.SelectChannel:
		return platform.SelectKind(raw)
	default:
		return platform.SelectString
	}
}

// TextInputStyle mirrors the platform's modal text-input style codes;
// kept local to this package since ClientSurface has no text-input
// concept of its own (modals are engine-side only).
type TextInputStyle int

const (
	TextInputShort TextInputStyle = iota + 1
	TextInputParagraph
)

// ResolveTextInputStyle maps "short"/"paragraph" to its integer code,
// defaulting to short for anything else.
func ResolveTextInputStyle(raw string) TextInputStyle {
	if raw == "paragraph" {
		return TextInputParagraph
	}
	return TextInputShort
}
