package extract

import "strings"

// guessLanguage is a minimal stopword-frequency language guesser. No
// language-detection library appears anywhere in the pack (justified
// stdlib use — see DESIGN.md); it only distinguishes English from German,
// the two languages the lemma-shadow/transliteration fields (§3) care
// about, and returns ok=false when neither clears a confidence margin —
// mirroring §4.3's "absent if not confident" contract.
var enStopwords = map[string]bool{
	"the": true, "and": true, "of": true, "to": true, "in": true,
	"is": true, "that": true, "it": true, "for": true, "with": true,
	"as": true, "was": true, "on": true, "are": true, "this": true,
}

var deStopwords = map[string]bool{
	"der": true, "die": true, "das": true, "und": true, "ist": true,
	"von": true, "den": true, "mit": true, "auf": true, "für": true,
	"nicht": true, "ein": true, "eine": true, "sich": true, "dem": true,
}

func guessLanguage(content string) (string, bool) {
	words := strings.Fields(strings.ToLower(content))
	if len(words) < 4 {
		return "", false
	}

	enHits, deHits := 0, 0
	for _, w := range words {
		w = strings.Trim(w, ".,;:!?\"'()[]{}")
		if enStopwords[w] {
			enHits++
		}
		if deStopwords[w] {
			deHits++
		}
	}

	const margin = 2
	switch {
	case enHits >= margin && enHits > deHits:
		return "en", true
	case deHits >= margin && deHits > enHits:
		return "de", true
	default:
		return "", false
	}
}
