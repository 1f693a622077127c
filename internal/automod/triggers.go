package automod

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rakunlabs/flowbot/internal/expr"
	"github.com/rakunlabs/flowbot/internal/spec"
)

// MessageContext is everything a trigger needs about the message
// being checked beyond its raw content.
type MessageContext struct {
	GuildID     string
	ChannelID   string
	UserID      string
	Attachments []string // filenames, e.g. "payload.exe"
}

var urlPattern = regexp.MustCompile(`https?://\S+`)
var mentionPattern = regexp.MustCompile(`<@!?&?\d+>`)
var inviteLinkPattern = regexp.MustCompile(`(?i)(discord\.gg/\S+|discordapp\.com/invite/\S+)`)
var emojiPattern = regexp.MustCompile(`\p{So}|\p{Sk}`)

// evalTrigger runs one trigger kind against content, returning whether
// it matched and the tokens it matched on.
func evalTrigger(t spec.Trigger, content string, mctx MessageContext, hist *History, now time.Time) (bool, []string) {
	switch t.Kind {
	case "keyword":
		return matchKeyword(t.Params, content)
	case "regex":
		return matchRegex(t.Params, content)
	case "link":
		return matchLink(t.Params, content)
	case "invite":
		return matchInvite(content)
	case "caps":
		return matchCaps(t.Params, content)
	case "emoji_spam":
		return matchEmojiSpam(t.Params, content)
	case "mention_spam":
		return matchMentionSpam(t.Params, content)
	case "newline_spam":
		return matchNewlineSpam(t.Params, content)
	case "attachment":
		return matchAttachment(t.Params, mctx)
	case "spam":
		return matchSpam(t.Params, mctx, hist, now)
	case "duplicate":
		return matchDuplicate(t.Params, content, mctx, hist, now)
	default:
		return false, nil
	}
}

func matchKeyword(params map[string]any, content string) (bool, []string) {
	lower := strings.ToLower(content)
	for _, allowed := range paramStrings(params, "allowed") {
		if strings.Contains(lower, strings.ToLower(allowed)) {
			return false, nil
		}
	}
	var hits []string
	for _, kw := range paramStrings(params, "keywords") {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits = append(hits, kw)
		}
	}
	return len(hits) > 0, hits
}

func matchRegex(params map[string]any, content string) (bool, []string) {
	var hits []string
	for _, pattern := range paramStrings(params, "regex") {
		if !expr.LooksSafe(pattern) {
			continue
		}
		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			continue
		}
		hits = append(hits, re.FindAllString(content, -1)...)
	}
	return len(hits) > 0, hits
}

func matchLink(params map[string]any, content string) (bool, []string) {
	urls := urlPattern.FindAllString(content, -1)
	if len(urls) == 0 {
		return false, nil
	}
	blocked := paramStrings(params, "blocked")
	allowed := paramStrings(params, "allowed")

	var hits []string
	for _, url := range urls {
		switch {
		case containsAny(url, blocked):
			hits = append(hits, url)
		case len(allowed) > 0 && !containsAny(url, allowed):
			hits = append(hits, url)
		case len(blocked) == 0 && len(allowed) == 0:
			hits = append(hits, url)
		}
	}
	return len(hits) > 0, hits
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func matchInvite(content string) (bool, []string) {
	hits := inviteLinkPattern.FindAllString(content, -1)
	return len(hits) > 0, hits
}

func matchCaps(params map[string]any, content string) (bool, []string) {
	threshold := paramFloat(params, "threshold", 70)
	var letters, upper int
	for _, r := range content {
		if !unicode.IsLetter(r) || r > unicode.MaxASCII {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return false, nil
	}
	pct := float64(upper) / float64(letters) * 100
	if pct >= threshold {
		return true, []string{fmt.Sprintf("%.0f%% caps", pct)}
	}
	return false, nil
}

func matchEmojiSpam(params map[string]any, content string) (bool, []string) {
	threshold := paramInt(params, "threshold", 10)
	hits := emojiPattern.FindAllString(content, -1)
	if len(hits) >= threshold {
		return true, hits
	}
	return false, nil
}

func matchMentionSpam(params map[string]any, content string) (bool, []string) {
	threshold := paramInt(params, "threshold", 5)
	hits := mentionPattern.FindAllString(content, -1)
	if len(hits) >= threshold {
		return true, hits
	}
	return false, nil
}

func matchNewlineSpam(params map[string]any, content string) (bool, []string) {
	threshold := paramInt(params, "threshold", 10)
	count := strings.Count(content, "\n")
	if count >= threshold {
		return true, []string{content}
	}
	return false, nil
}

func matchAttachment(params map[string]any, mctx MessageContext) (bool, []string) {
	if len(mctx.Attachments) == 0 {
		return false, nil
	}
	blocked := paramStrings(params, "blocked")
	allowed := paramStrings(params, "allowed")
	_, hasThreshold := params["threshold"]

	var hits []string
	for _, name := range mctx.Attachments {
		ext := extensionOf(name)
		switch {
		case containsAny(ext, blocked):
			hits = append(hits, name)
		case len(allowed) > 0 && !containsAny(ext, allowed):
			hits = append(hits, name)
		}
	}
	if hasThreshold {
		if max := paramInt(params, "threshold", 0); len(mctx.Attachments) > max {
			hits = append(hits, mctx.Attachments...)
		}
	}
	return len(hits) > 0, hits
}

func extensionOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

func matchSpam(params map[string]any, mctx MessageContext, hist *History, now time.Time) (bool, []string) {
	threshold := paramInt(params, "threshold", 5)
	window := paramDuration(params, "window", time.Minute)
	count := hist.CountWithin(mctx.GuildID, mctx.ChannelID, mctx.UserID, window, now)
	if count >= threshold {
		return true, nil
	}
	return false, nil
}

func matchDuplicate(params map[string]any, content string, mctx MessageContext, hist *History, now time.Time) (bool, []string) {
	threshold := paramInt(params, "threshold", 3)
	window := paramDuration(params, "window", 5*time.Minute)
	count := hist.CountDuplicateWithin(mctx.GuildID, mctx.ChannelID, mctx.UserID, content, window, now)
	if count >= threshold {
		return true, []string{content}
	}
	return false, nil
}
