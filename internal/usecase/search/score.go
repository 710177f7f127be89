package search

import (
	"sort"
	"strings"
	"time"

	"github.com/chabad-mafteach/mafteach/internal/domain/search/result"
)

// Relevance weights. Full-query title matches dominate, content and type
// matches rank below them, and per-term partial matches break ties.
const (
	weightTitle       = 50
	weightTitleEN     = 40
	weightContent     = 20
	weightType        = 15
	weightTermTitle   = 10
	weightTermTitleEN = 8
)

// minTermLen drops stop-word-sized terms from partial matching.
const minTermLen = 3

// Recency boost: up to 10 points for content updated today, decaying to
// zero over recencyWindowDays.
const (
	recencyWindowDays = 30
	recencyMaxBoost   = 10.0
	recencyDecayDays  = 3.0
)

// highlightContext is how many characters surround a match in a highlight.
const highlightContext = 50

// queryTerms splits a query into partial-match terms.
func queryTerms(query string) []string {
	var terms []string
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len(t) >= minTermLen {
			terms = append(terms, t)
		}
	}
	return terms
}

// scoreRecord computes the relevance score for one keyword hit.
func scoreRecord(rec result.Record, query string, now time.Time) float64 {
	queryLower := strings.ToLower(query)
	title := strings.ToLower(rec.Title)
	titleEN := strings.ToLower(rec.TitleEN)

	var score float64

	if title != "" && strings.Contains(title, queryLower) {
		score += weightTitle
	}
	if titleEN != "" && strings.Contains(titleEN, queryLower) {
		score += weightTitleEN
	}
	for _, text := range rec.Texts {
		if strings.Contains(strings.ToLower(text), queryLower) {
			score += weightContent
		}
	}
	if rec.Type != "" && strings.Contains(strings.ToLower(rec.Type), queryLower) {
		score += weightType
	}

	for _, term := range queryTerms(query) {
		if title != "" && strings.Contains(title, term) {
			score += weightTermTitle
		}
		if titleEN != "" && strings.Contains(titleEN, term) {
			score += weightTermTitleEN
		}
	}

	if !rec.UpdatedAt.IsZero() {
		days := now.Sub(rec.UpdatedAt).Hours() / 24
		if days >= 0 && days < recencyWindowDays {
			if boost := recencyMaxBoost - days/recencyDecayDays; boost > 0 {
				score += boost
			}
		}
	}

	return score
}

// highlightFields lists the fields highlights are drawn from, in display
// priority order.
var highlightFields = []string{
	"description", "definition_positive", "overview", "practical_takeaways",
}

// highlights extracts match snippets from a record's title and content
// fields, each with highlightContext characters of surrounding text.
func highlights(rec result.Record, query string) []string {
	var out []string
	for _, value := range append([]string{rec.Title, rec.TitleEN}, textsInOrder(rec)...) {
		if snippet, ok := highlightIn(value, query); ok {
			out = append(out, snippet)
		}
	}
	return out
}

func textsInOrder(rec result.Record) []string {
	var values []string
	seen := make(map[string]bool)
	for _, f := range highlightFields {
		if v, ok := rec.Texts[f]; ok {
			values = append(values, v)
			seen[f] = true
		}
	}
	// Remaining fields in stable order.
	var rest []string
	for f := range rec.Texts {
		if !seen[f] {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	for _, f := range rest {
		values = append(values, rec.Texts[f])
	}
	return values
}

func highlightIn(value, query string) (string, bool) {
	if value == "" {
		return "", false
	}
	runes := []rune(value)
	lower := []rune(strings.ToLower(value))
	queryRunes := []rune(strings.ToLower(query))

	idx := runeIndex(lower, queryRunes)
	if idx < 0 {
		return "", false
	}
	start := idx - highlightContext
	if start < 0 {
		start = 0
	}
	end := idx + len(queryRunes) + highlightContext
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[start:end]), true
}

func runeIndex(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j := range needle {
			if haystack[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// suggestions offers query refinements: matching item types and up to
// three related titles whose content mentions the query.
func suggestions(records []result.Record, query string) []string {
	queryLower := strings.ToLower(query)

	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, rec := range records {
		if rec.Type != "" && strings.Contains(strings.ToLower(rec.Type), queryLower) {
			add("Type: " + rec.Type)
		}
	}

	related := 0
	for _, rec := range records {
		if related >= 3 {
			break
		}
		if rec.Title == "" || strings.ToLower(rec.Title) == queryLower {
			continue
		}
		for _, f := range []string{"description", "overview"} {
			if strings.Contains(strings.ToLower(rec.Texts[f]), queryLower) && rec.Texts[f] != "" {
				add(rec.Title)
				related++
				break
			}
		}
	}

	if len(out) > 5 {
		out = out[:5]
	}
	return out
}
