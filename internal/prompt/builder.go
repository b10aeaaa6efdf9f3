// Package prompt assembles the structured prompt for one chat turn. The
// expensive stable portion (system rules, verified facts, history) is cached
// per clock hour; the date/time block and the current user turn are always
// rendered fresh.
package prompt

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"curie/internal/cache"
	"curie/internal/persona"
	"curie/internal/store"
)

const (
	timeBucketLayout = "2006-01-02-15"
	dateLayout       = "Monday, January 02, 2006"
	clockLayout      = "03:04 PM MST"

	// History turns contributing to the cache key are truncated so the key
	// stays stable and the hash stays cheap.
	keyHistoryTurns   = 5
	keyHistoryTextLen = 50
)

var behaviorRules = []string{
	"- If you don't know something, say so. Don't make up facts.",
	"- Only extract and store facts when explicitly asked to remember them.",
	"- Keep responses natural and conversational - no meta-commentary or speaker labels.",
	"- Do not include actions like *nods* or *smiles*.",
	"- NEVER state that you don't have access to real-time information - you DO have access.",
	"- NEVER say you're just an AI or language model - focus on helping naturally.",
}

// Builder renders final prompts, using an LRU cache for the stable base.
type Builder struct {
	cache *cache.Prompt
	clock func() time.Time
}

// NewBuilder wraps the given prompt cache. clock defaults to time.Now.
func NewBuilder(promptCache *cache.Prompt) *Builder {
	return &Builder{cache: promptCache, clock: time.Now}
}

// SetClock replaces the time source for tests.
func (b *Builder) SetClock(clock func() time.Time) { b.clock = clock }

// Build produces the full prompt for one turn. The user's timezone comes from
// the profile ("timezone" fact); an unknown zone falls back to UTC without
// failing the request. The returned prompt always ends with the current user
// turn and an assistant opening marker.
func (b *Builder) Build(p *persona.Persona, profile map[string]string, history []store.Turn, userText string) string {
	tzName := "UTC"
	if v, ok := profile["timezone"]; ok && v != "" {
		tzName = v
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		tzName = "UTC"
		loc = time.UTC
	}
	now := b.clock().In(loc)
	bucket := now.Format(timeBucketLayout)

	historyKey := historySummary(history)

	base, _, ok := b.cache.Get(p.SystemPrompt, profile, historyKey, bucket)
	if !ok {
		base = assembleBase(p.SystemPrompt, profile, history)
		b.cache.Set(p.SystemPrompt, profile, historyKey, bucket, base, len(strings.Fields(base)))
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n[CURRENT DATE AND TIME]\n")
	fmt.Fprintf(&sb, "- Current date: %s\n", now.Format(dateLayout))
	fmt.Fprintf(&sb, "- Current time: %s\n", now.Format(clockLayout))
	fmt.Fprintf(&sb, "- Timezone: %s\n", tzName)
	fmt.Fprintf(&sb, "\nUser: %s\nAssistant:", userText)
	return sb.String()
}

// TimeBucket returns the hour-granularity bucket for now in the profile's
// timezone. Exposed for observability and tests.
func (b *Builder) TimeBucket(profile map[string]string) string {
	tzName := profile["timezone"]
	loc, err := time.LoadLocation(tzName)
	if tzName == "" || err != nil {
		loc = time.UTC
	}
	return b.clock().In(loc).Format(timeBucketLayout)
}

// assembleBase builds the cacheable prompt portion: system prompt, behavior
// rules, verified facts and conversation history. No date/time here: it
// would either go stale on a hit or force a miss on every request.
func assembleBase(systemPrompt string, profile map[string]string, history []store.Turn) string {
	var lines []string
	lines = append(lines, systemPrompt)

	lines = append(lines, "\n[IMPORTANT RULES]")
	lines = append(lines, behaviorRules...)

	if len(profile) > 0 {
		lines = append(lines, "\n[VERIFIED FACTS ABOUT USER]")
		keys := make([]string, 0, len(profile))
		for k := range profile {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("- %s: %s", k, profile[k]))
		}
	}

	if len(history) > 0 {
		lines = append(lines, "\n[CONVERSATION HISTORY]")
		for _, t := range history {
			label := "Assistant"
			if t.Role == "user" {
				label = "User"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", label, t.Text))
		}
	}

	return strings.Join(lines, "\n")
}

// historySummary condenses the last few turns into the bounded string that
// participates in the cache key.
func historySummary(history []store.Turn) string {
	start := 0
	if len(history) > keyHistoryTurns {
		start = len(history) - keyHistoryTurns
	}
	var parts []string
	for _, t := range history[start:] {
		text := t.Text
		if len(text) > keyHistoryTextLen {
			text = text[:keyHistoryTextLen]
		}
		parts = append(parts, t.Role+": "+text)
	}
	return strings.Join(parts, "\n")
}

// Stats exposes the underlying cache counters.
func (b *Builder) Stats() cache.PromptStats {
	return b.cache.Stats()
}
