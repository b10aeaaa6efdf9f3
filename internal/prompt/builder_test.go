package prompt

import (
	"strings"
	"testing"
	"time"

	"curie/internal/cache"
	"curie/internal/persona"
	"curie/internal/store"
)

func testPersona() *persona.Persona {
	return &persona.Persona{
		Name:         "Curie",
		SystemPrompt: "You are Curie, a helpful assistant.",
	}
}

func newTestBuilder() (*Builder, *time.Time) {
	b := NewBuilder(cache.NewPrompt(10))
	now := time.Date(2026, 8, 29, 14, 30, 0, 0, time.UTC)
	b.SetClock(func() time.Time { return now })
	return b, &now
}

func TestBuildContainsAllSectionsInOrder(t *testing.T) {
	b, _ := newTestBuilder()

	profile := map[string]string{"name": "Ada", "likes": "tea"}
	history := []store.Turn{
		{Role: "user", Text: "hello"},
		{Role: "assistant", Text: "bonjour"},
	}
	out := b.Build(testPersona(), profile, history, "what's new?")

	sections := []string{
		"You are Curie, a helpful assistant.",
		"[IMPORTANT RULES]",
		"[VERIFIED FACTS ABOUT USER]",
		"- likes: tea",
		"[CONVERSATION HISTORY]",
		"User: hello",
		"Assistant: bonjour",
		"[CURRENT DATE AND TIME]",
		"User: what's new?",
	}
	last := -1
	for _, s := range sections {
		i := strings.Index(out, s)
		if i < 0 {
			t.Fatalf("missing section %q in prompt:\n%s", s, out)
		}
		if i < last {
			t.Fatalf("section %q out of order", s)
		}
		last = i
	}
	if !strings.HasSuffix(out, "Assistant:") {
		t.Fatalf("prompt must end with the assistant opening marker, got %q", out[len(out)-30:])
	}
}

func TestBuildOmitsEmptySections(t *testing.T) {
	b, _ := newTestBuilder()
	out := b.Build(testPersona(), nil, nil, "hi")

	if strings.Contains(out, "[VERIFIED FACTS ABOUT USER]") {
		t.Fatal("facts section should be omitted for an empty profile")
	}
	if strings.Contains(out, "[CONVERSATION HISTORY]") {
		t.Fatal("history section should be omitted with no turns")
	}
	if !strings.Contains(out, "User: hi") {
		t.Fatal("current turn must always be present")
	}
}

func TestBuildUsesProfileTimezone(t *testing.T) {
	b, _ := newTestBuilder()
	out := b.Build(testPersona(), map[string]string{"timezone": "Asia/Hong_Kong"}, nil, "hi")

	// 14:30 UTC = 22:30 HKT.
	if !strings.Contains(out, "10:30 PM") {
		t.Fatalf("expected HKT local time in prompt:\n%s", out)
	}
	if !strings.Contains(out, "- Timezone: Asia/Hong_Kong") {
		t.Fatal("expected timezone line")
	}
}

func TestBuildInvalidTimezoneFallsBackToUTC(t *testing.T) {
	b, _ := newTestBuilder()
	out := b.Build(testPersona(), map[string]string{"timezone": "Mars/Olympus"}, nil, "hi")

	if !strings.Contains(out, "- Timezone: UTC") {
		t.Fatalf("expected UTC fallback:\n%s", out)
	}
}

func TestHourBoundaryBustsCacheAndRefreshesClock(t *testing.T) {
	b, now := newTestBuilder()
	p := testPersona()

	b.Build(p, nil, nil, "hi")
	b.Build(p, nil, nil, "hi")
	s := b.Stats()
	if s.Hits != 1 || s.Misses != 1 {
		t.Fatalf("expected one hit one miss within the hour, got %+v", s)
	}

	*now = now.Add(time.Hour)
	out := b.Build(p, nil, nil, "hi")
	s = b.Stats()
	if s.Misses != 2 {
		t.Fatalf("expected a miss after the hour boundary, got %+v", s)
	}
	if !strings.Contains(out, "03:30 PM") {
		t.Fatalf("date/time block must reflect the new hour:\n%s", out)
	}
}

func TestCachedBaseStillGetsFreshTurnText(t *testing.T) {
	b, _ := newTestBuilder()
	p := testPersona()

	b.Build(p, nil, nil, "first question")
	out := b.Build(p, nil, nil, "second question")
	if !strings.Contains(out, "User: second question") {
		t.Fatal("cached base must be combined with the fresh user turn")
	}
	if strings.Contains(out, "first question") {
		t.Fatal("previous turn text must not leak from the cache")
	}
}

func TestHistorySummaryBounded(t *testing.T) {
	long := strings.Repeat("x", 200)
	var history []store.Turn
	for i := 0; i < 12; i++ {
		history = append(history, store.Turn{Role: "user", Text: long})
	}
	sum := historySummary(history)
	if len(sum) > keyHistoryTurns*(keyHistoryTextLen+10) {
		t.Fatalf("summary not bounded: %d bytes", len(sum))
	}
}
