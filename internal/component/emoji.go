package component

import "regexp"

var customEmojiPattern = regexp.MustCompile(`^<(a?):(\w+):(\d+)>$`)

// ParsedEmoji is the result of matching a component's emoji field
// against the platform's custom-emoji wire shape.
type ParsedEmoji struct {
	Custom   bool
	Animated bool
	Name     string
	ID       string
	Literal  string // unicode literal, set when Custom is false
}

// ParseEmoji matches "<a?:name:id>" (a Discord-style custom emoji
// reference) or falls back to treating raw as a unicode literal.
func ParseEmoji(raw string) ParsedEmoji {
	m := customEmojiPattern.FindStringSubmatch(raw)
	if m == nil {
		return ParsedEmoji{Literal: raw}
	}
	return ParsedEmoji{
		Custom:   true,
		Animated: m[1] == "a",
		Name:     m[2],
		ID:       m[3],
	}
}
