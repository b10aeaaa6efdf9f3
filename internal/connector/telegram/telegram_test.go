package telegram

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitMessageShortTextSingleChunk(t *testing.T) {
	chunks := splitMessage("bonjour", 4000)
	if len(chunks) != 1 || chunks[0] != "bonjour" {
		t.Fatalf("unexpected chunks: %#v", chunks)
	}
}

func TestSplitMessageKeepsRunesIntact(t *testing.T) {
	// Two-byte runes with an odd byte limit force a cut inside a rune
	// unless splitting respects boundaries.
	text := strings.Repeat("é", 100)
	chunks := splitMessage(text, 25)

	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if !utf8.ValidString(chunk) {
			t.Fatalf("chunk %d is not valid UTF-8: %q", i, chunk)
		}
		if len(chunk) > 25 {
			t.Fatalf("chunk %d exceeds limit: %d bytes", i, len(chunk))
		}
		rebuilt.WriteString(chunk)
	}
	if rebuilt.String() != text {
		t.Fatal("chunks do not reassemble to the original text")
	}
}

func TestSplitMessageASCIIExactBoundaries(t *testing.T) {
	text := strings.Repeat("a", 10)
	chunks := splitMessage(text, 4)
	if len(chunks) != 3 || chunks[0] != "aaaa" || chunks[2] != "aa" {
		t.Fatalf("unexpected chunks: %#v", chunks)
	}
}
