package smartmode

import (
	"strings"
	"unicode/utf8"

	"github.com/chabad-mafteach/mafteach/internal/domain/search/mode"
)

// Capabilities describes the system state the selector consults.
type Capabilities struct {
	EmbeddingAvailable  bool
	VectorDataAvailable bool
}

// Decision is the outcome of smart mode selection.
type Decision struct {
	Mode         mode.Mode `json:"mode"`
	Confidence   float64   `json:"confidence"`
	Reasoning    string    `json:"reasoning"`
	FallbackUsed bool      `json:"fallback_used"`
}

// shortHebrewMax is the length (in runes) up to which Hebrew queries match
// better against exact title fields than against embeddings.
const shortHebrewMax = 10

// Decide picks a search strategy for a query. It performs no I/O and
// always returns a decision; rules are evaluated in order, first match
// wins.
func Decide(query string, caps Capabilities) Decision {
	trimmed := strings.TrimSpace(query)

	if trimmed == "" {
		return Decision{
			Mode:       mode.Keyword,
			Confidence: 1.0,
			Reasoning:  "Empty query - using keyword search",
		}
	}

	if !caps.EmbeddingAvailable || !caps.VectorDataAvailable {
		return Decision{
			Mode:         mode.Keyword,
			Confidence:   0.9,
			Reasoning:    "AI services unavailable - using keyword search",
			FallbackUsed: true,
		}
	}

	hebrew := IsHebrew(trimmed)
	length := utf8.RuneCountInString(trimmed)
	multiWord := strings.ContainsRune(trimmed, ' ')

	if hebrew {
		if length <= shortHebrewMax {
			return Decision{
				Mode:       mode.Keyword,
				Confidence: 0.95,
				Reasoning:  "Short Hebrew query - keyword search on Hebrew titles",
			}
		}
		return Decision{
			Mode:       mode.Semantic,
			Confidence: 0.8,
			Reasoning:  "Longer Hebrew query - trying semantic for conceptual matches",
		}
	}

	if multiWord {
		return Decision{
			Mode:       mode.Semantic,
			Confidence: 0.85,
			Reasoning:  "Multi-word English query - semantic search for conceptual understanding",
		}
	}

	return Decision{
		Mode:       mode.Hybrid,
		Confidence: 0.8,
		Reasoning:  "Single English word - hybrid for exact + conceptual matches",
	}
}

// Explain renders a decision as a short human-readable label suitable for
// display next to the results.
func Explain(d Decision, query string) string {
	var explanation string
	if d.FallbackUsed {
		explanation = "Using keyword search (AI unavailable)"
	} else {
		switch d.Mode {
		case mode.Keyword:
			explanation = "Exact match search"
		case mode.Semantic:
			explanation = "Conceptual search"
		case mode.Hybrid:
			explanation = "Combined exact + conceptual search"
		}
	}
	if IsHebrew(query) {
		return explanation + " (Hebrew content)"
	}
	return explanation + " (English content)"
}

// IsHebrew classifies a query by counting Hebrew-block runes against Latin
// letters; the majority wins. This is a character-ratio heuristic, not
// language detection, and is approximate by design of the corpus (queries
// are either Hebrew titles or English/transliterated phrases).
func IsHebrew(text string) bool {
	var hebrew, latin int
	for _, r := range text {
		switch {
		case r >= 0x0590 && r <= 0x05FF:
			hebrew++
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			latin++
		}
	}
	return hebrew > latin
}
