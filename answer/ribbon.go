package answer

import (
	"regexp"
	"strings"
)

// Ribbon is the compact debug/summary string the backend attaches to
// an answer, e.g. "mode=short fallback=0 intent=product tone=neutral".
// The format is a loose sequence of key=value tokens; parsing stays
// defensive because the backend may add or reorder flags.
type Ribbon string

var (
	ribbonFallbackRe = regexp.MustCompile(`\bfallback=1\b`)
	ribbonIntentRe   = regexp.MustCompile(`(?i)\bintent=([a-z_]+)\b`)
	ribbonToneRe     = regexp.MustCompile(`\btone=([A-Za-z_]+)\b`)
)

func (r Ribbon) String() string { return string(r) }

func (r Ribbon) Empty() bool { return strings.TrimSpace(string(r)) == "" }

// Fallback reports whether the ribbon flags the answer as a fallback.
func (r Ribbon) Fallback() bool {
	return ribbonFallbackRe.MatchString(string(r))
}

// Intent returns the detected intent flag, lowercased, or "".
func (r Ribbon) Intent() string {
	m := ribbonIntentRe.FindStringSubmatch(string(r))
	if len(m) < 2 {
		return ""
	}
	return strings.ToLower(m[1])
}

// Tone returns the detected tone flag, lowercased, defaulting to
// "neutral" when absent.
func (r Ribbon) Tone() string {
	m := ribbonToneRe.FindStringSubmatch(string(r))
	if len(m) < 2 {
		return "neutral"
	}
	return strings.ToLower(m[1])
}
