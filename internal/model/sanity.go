package model

import "strings"

// Canned substitutions for degenerate output. Local-model inference
// occasionally collapses into repetition loops; failing closed with a short
// retry message beats surfacing nonsense.
const (
	msgEmptyResponse = "I'm having trouble formulating a response. Could you rephrase that?"
	msgDegenerate    = "I apologize, I seem to have generated an invalid response. Could you try asking again?"
	msgTooShort      = "I'm not sure how to respond to that."
)

const (
	repeatUnitMax    = 2  // detect runs of 1- and 2-character units
	repeatThreshold  = 11 // consecutive repeats that count as degenerate
	wordRepeatLimit  = 3  // max allowed consecutive identical words
	wordRepeatMinLen = 5  // skip the word check for very short replies
)

// sanityFilter rejects empty, repetitive or gibberish responses, substituting
// a canned clarification instead. Returns the response unchanged, and false,
// when it passes.
func sanityFilter(response string) (string, bool) {
	trimmed := strings.TrimSpace(response)
	if trimmed == "" {
		return msgEmptyResponse, true
	}
	if hasRepeatedUnit(trimmed, repeatUnitMax, repeatThreshold) {
		return msgDegenerate, true
	}
	if hasConsecutiveWordRepeats(trimmed) {
		return msgDegenerate, true
	}
	if len(trimmed) < 2 {
		return msgTooShort, true
	}
	return response, false
}

// hasRepeatedUnit reports whether any unit of 1..maxUnit runes repeats at
// least minRepeats times consecutively ("aaaaaaaaaaa", "hahahahahahahahahahaha").
func hasRepeatedUnit(s string, maxUnit, minRepeats int) bool {
	r := []rune(s)
	for unit := 1; unit <= maxUnit; unit++ {
		streak := 0
		for i := unit; i < len(r); i++ {
			if r[i] == r[i-unit] {
				streak++
				// streak matching positions plus the seed unit cover
				// streak+unit runes, i.e. (streak+unit)/unit full repeats.
				if (streak+unit)/unit >= minRepeats {
					return true
				}
			} else {
				streak = 0
			}
		}
	}
	return false
}

func hasConsecutiveWordRepeats(s string) bool {
	words := strings.Fields(s)
	if len(words) <= wordRepeatMinLen {
		return false
	}
	run := 1
	for i := 1; i < len(words); i++ {
		if strings.EqualFold(words[i], words[i-1]) {
			run++
			if run > wordRepeatLimit {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}
