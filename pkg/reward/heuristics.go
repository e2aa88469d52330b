package reward

import (
	"strings"
	"unicode"
)

// Discourse markers that signal a step building on prior reasoning.
var consistencyMarkers = []string{
	"therefore", "thus", "hence", "because", "since", "consequently",
	"it follows", "as a result", "given that", "this implies",
}

// Words that suggest the step contradicts or abandons its own chain.
var contradictionMarkers = []string{
	"contradicts", "inconsistent", "paradox", "on the other hand",
	"actually no", "this is wrong", "cannot both",
}

var citationMarkers = []string{
	"according to", "study", "studies", "report", "survey", "source",
	"data from", "et al", "published", "measured", "observed",
}

// consistencyHeuristic scores logical flow from discourse markers. The first
// step of a chain has nothing to follow from and scores a flat baseline.
func consistencyHeuristic(step string, prior []string) float64 {
	if len(prior) == 0 {
		return 0.6
	}

	lower := strings.ToLower(step)
	score := 0.5
	for _, marker := range consistencyMarkers {
		if strings.Contains(lower, marker) {
			score += 0.15
			break
		}
	}
	for _, marker := range contradictionMarkers {
		if strings.Contains(lower, marker) {
			score -= 0.3
			break
		}
	}

	// A step that repeats nothing from its chain is probably a non sequitur.
	if !sharesToken(lower, prior) {
		score -= 0.15
	}

	return clamp01(score)
}

// evidenceHeuristic scores citation and data cues: source language, numbers,
// and direct quotes each count once.
func evidenceHeuristic(step string, _ []string) float64 {
	lower := strings.ToLower(step)
	score := 0.2

	for _, marker := range citationMarkers {
		if strings.Contains(lower, marker) {
			score += 0.35
			break
		}
	}
	if strings.IndexFunc(step, unicode.IsDigit) >= 0 {
		score += 0.3
	}
	if strings.ContainsAny(step, `"“”`) {
		score += 0.15
	}

	return clamp01(score)
}

// sharesToken reports whether the step reuses any content word from the
// chain so far. Short words are ignored as connective noise.
func sharesToken(lowerStep string, prior []string) bool {
	stepTokens := make(map[string]struct{})
	for _, tok := range strings.Fields(lowerStep) {
		if len(tok) > 3 {
			stepTokens[strings.Trim(tok, ".,;:!?")] = struct{}{}
		}
	}
	for _, p := range prior {
		for _, tok := range strings.Fields(strings.ToLower(p)) {
			tok = strings.Trim(tok, ".,;:!?")
			if len(tok) > 3 {
				if _, ok := stepTokens[tok]; ok {
					return true
				}
			}
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
