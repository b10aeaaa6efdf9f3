// Package sanitize strips structural artifacts local models sometimes leak
// into otherwise-conversational text: speaker tags, bracketed meta-notes and
// asterisk action markup.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	metaNotePattern   = regexp.MustCompile(`(?i)\[(?:Note|Meta|Aside|System):[^\]]*\]`)
	actionPattern     = regexp.MustCompile(`\*[^*]*\*`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// Sanitizer removes leading speaker tags for a fixed set of role names plus
// the configured persona name. Compile one per persona; Clean is safe for
// concurrent use.
type Sanitizer struct {
	speakerTag *regexp.Regexp
}

// New builds a Sanitizer that also strips the given persona name as a leading
// speaker tag. An empty name falls back to the builtin role tags only.
func New(personaName string) *Sanitizer {
	tags := []string{"User", "Assistant", "System", "Coder", "AI"}
	name := strings.TrimSpace(personaName)
	if name != "" {
		tags = append(tags, regexp.QuoteMeta(name))
	}
	pattern := `(?i)^\s*(?:` + strings.Join(tags, ":|") + `:)\s*`
	return &Sanitizer{speakerTag: regexp.MustCompile(pattern)}
}

// Clean removes, in order: a leading speaker-role prefix, bracketed
// meta-notes, asterisk-delimited actions; then collapses whitespace runs to
// single spaces and trims. Idempotent for well-formed inputs.
func (s *Sanitizer) Clean(raw string) string {
	out := s.speakerTag.ReplaceAllString(raw, "")
	out = metaNotePattern.ReplaceAllString(out, "")
	out = actionPattern.ReplaceAllString(out, "")
	out = whitespacePattern.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}
