package search

import (
	"sort"

	"github.com/chabad-mafteach/mafteach/internal/domain/search/result"
)

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

// fuseRRF merges semantic and keyword rankings via Reciprocal Rank Fusion.
// score(d) = sum of 1/(k + rank_i(d)) for each ranking where d appears.
// When an item appears in both lists, the semantic item's fields are kept
// (its snippet reflects the conceptual match) and its highlights are taken
// from the keyword side.
func fuseRRF(semantic, keyword []result.Item, topK int) []result.Item {
	type scored struct {
		item       result.Item
		score      float64
		inSemantic bool
	}

	merged := make(map[string]*scored)

	for rank, item := range semantic {
		s := 1.0 / float64(rrfK+rank+1)
		merged[item.ID] = &scored{item: item, score: s, inSemantic: true}
	}

	for rank, item := range keyword {
		s := 1.0 / float64(rrfK+rank+1)
		if existing, ok := merged[item.ID]; ok {
			existing.score += s
			if len(existing.item.Highlights) == 0 {
				existing.item.Highlights = item.Highlights
			}
		} else {
			merged[item.ID] = &scored{item: item, score: s}
		}
	}

	items := make([]result.Item, 0, len(merged))
	for _, s := range merged {
		s.item.RelevanceScore = s.score
		items = append(items, s.item)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].RelevanceScore > items[j].RelevanceScore
	})

	if len(items) > topK {
		items = items[:topK]
	}
	return items
}
