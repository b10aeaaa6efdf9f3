package model

import (
	"strings"
	"testing"
)

func TestSanityFilterPassesNormalText(t *testing.T) {
	in := "Bonjour! The weather in Paris is mild today."
	out, tripped := sanityFilter(in)
	if tripped || out != in {
		t.Fatalf("normal text should pass untouched, got %q tripped=%v", out, tripped)
	}
}

func TestSanityFilterEmpty(t *testing.T) {
	out, tripped := sanityFilter("   \n  ")
	if !tripped || out != msgEmptyResponse {
		t.Fatalf("expected empty-response substitution, got %q", out)
	}
}

func TestSanityFilterCharacterRuns(t *testing.T) {
	out, tripped := sanityFilter("well " + strings.Repeat("a", 11) + " indeed")
	if !tripped || out != msgDegenerate {
		t.Fatalf("expected apology for 11-char run, got %q tripped=%v", out, tripped)
	}

	// Ten repeats stay under the threshold.
	if _, tripped := sanityFilter("well " + strings.Repeat("a", 10) + " indeed"); tripped {
		t.Fatal("10-char run should pass")
	}
}

func TestSanityFilterTwoCharUnits(t *testing.T) {
	out, tripped := sanityFilter(strings.Repeat("ha", 20))
	if !tripped || out != msgDegenerate {
		t.Fatalf("expected apology for repeated unit, got %q tripped=%v", out, tripped)
	}
}

func TestSanityFilterConsecutiveWords(t *testing.T) {
	out, tripped := sanityFilter("I really think so so so so much about it")
	if !tripped || out != msgDegenerate {
		t.Fatalf("expected apology for word loop, got %q tripped=%v", out, tripped)
	}

	if _, tripped := sanityFilter("it was very very very calm out there"); tripped {
		t.Fatal("three repeats should pass")
	}
}

func TestSanityFilterTooShort(t *testing.T) {
	out, tripped := sanityFilter("k")
	if !tripped || out != msgTooShort {
		t.Fatalf("expected too-short substitution, got %q", out)
	}
}

func TestSanityFilterAllowsAccentedText(t *testing.T) {
	in := "C'est intéressant! On y va ensemble."
	if _, tripped := sanityFilter(in); tripped {
		t.Fatal("multilingual text should pass")
	}
}
