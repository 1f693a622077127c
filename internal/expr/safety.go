package expr

import "regexp"

// maxPatternLen is the longest pattern the `replace` transform will
// attempt to compile as a regular expression before falling back to
// literal substring behavior.
const maxPatternLen = 500

// looksSafe runs the static checks required by the spec's Safety
// section before a pattern is handed to regexp.Compile: patterns
// longer than 500 characters, nested quantifiers `(…[+*])[+*]`,
// overlapping-alternative quantifiers `(…|…)[+*]`, and quantified
// back-references are all rejected up front.
//
// Go's regexp package (RE2) cannot itself suffer catastrophic
// backtracking, but the spec's policy is to reject these shapes
// regardless — treating them the same way a backtracking engine's
// operator would need to, so behavior does not silently change if the
// implementation ever swaps engines.
// LooksSafe exposes the same static check to callers outside this
// package that compile their own patterns against user content (the
// automod engine's `regex` trigger).
func LooksSafe(pattern string) bool {
	return looksSafe(pattern)
}

func looksSafe(pattern string) bool {
	if len(pattern) > maxPatternLen {
		return false
	}
	if nestedQuantifier.MatchString(pattern) {
		return false
	}
	if overlappingAltQuantifier.MatchString(pattern) {
		return false
	}
	if quantifiedBackref.MatchString(pattern) {
		return false
	}
	return true
}

var (
	// (something[+*])[+*] — a group that is itself quantified,
	// containing a quantified sub-expression.
	nestedQuantifier = regexp.MustCompile(`\([^()]*[+*][^()]*\)[+*]`)
	// (a|b)[+*] — a quantified alternation.
	overlappingAltQuantifier = regexp.MustCompile(`\([^()]*\|[^()]*\)[+*]`)
	// \1+ / \1* — a quantified back-reference (RE2 doesn't support
	// back-references at all, but the literal text could still appear
	// in a user-authored pattern headed to the literal-fallback path).
	quantifiedBackref = regexp.MustCompile(`\\[1-9][0-9]*[+*]`)
)

// safeReplace implements the `replace` transform: if the search
// pattern passes looksSafe and compiles, every regex match is
// replaced; otherwise (unsafe shape, or invalid pattern) it falls back
// to a literal, case-sensitive substring replacement.
func safeReplace(s, pattern, repl string) string {
	if looksSafe(pattern) {
		if re, err := regexp.Compile("(?i)" + pattern); err == nil {
			return re.ReplaceAllString(s, repl)
		}
	}
	return literalReplace(s, pattern, repl)
}

func literalReplace(s, search, repl string) string {
	if search == "" {
		return s
	}
	out := ""
	for {
		idx := indexOf(s, search)
		if idx < 0 {
			out += s
			break
		}
		out += s[:idx] + repl
		s = s[idx+len(search):]
	}
	return out
}

func indexOf(s, sub string) int {
	n, m := len(s), len(sub)
	if m == 0 || m > n {
		if m == 0 {
			return 0
		}
		return -1
	}
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == sub {
			return i
		}
	}
	return -1
}
