package cache

import (
	"fmt"
	"sort"
	"strings"

	"github.com/chabad-mafteach/mafteach/internal/domain/search/collection"
)

// Key prefixes group entries for targeted invalidation.
const (
	SemanticPrefix  = "semantic:"
	SmartPrefix     = "search:"
	EmbeddingPrefix = "embed:"
)

// SemanticKey builds the deterministic cache key for a semantic search.
// The query is case-folded and trimmed and the collection set is sorted,
// so semantically identical requests collide while different parameters
// never do.
func SemanticKey(query string, collections []collection.Name, limit int, threshold float64) string {
	names := make([]string, len(collections))
	for i, c := range collections {
		names[i] = string(c)
	}
	sort.Strings(names)

	normalized := strings.ToLower(strings.TrimSpace(query))
	return fmt.Sprintf("%s%s:%s:%d:%g", SemanticPrefix, normalized, strings.Join(names, ","), limit, threshold)
}

// SmartKey builds the cache key for a smart-search response.
func SmartKey(query, mode string, limit int, threshold float64) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	return fmt.Sprintf("%s%s:%s:%d:%g", SmartPrefix, normalized, mode, limit, threshold)
}
