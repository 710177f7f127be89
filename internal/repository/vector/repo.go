// Package vector performs similarity search over CMS-stored embeddings.
// Embeddings live as JSON arrays on content items; candidates are
// fetched in bulk and scored in process with cosine similarity.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/chabad-mafteach/mafteach/internal/domain"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/collection"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/result"
	"github.com/chabad-mafteach/mafteach/internal/transport/directus"
)

// DefaultCandidateLimit caps how many embedded items one search scores.
const DefaultCandidateLimit = 1000

const snippetMaxLen = 200

type cms interface {
	ListItems(ctx context.Context, collection string, q directus.Query) ([]map[string]any, error)
}

// fields per collection holding the display values for a hit.
type fieldSpec struct {
	title   string
	slug    string
	snippet string
}

var specs = map[collection.Name]fieldSpec{
	collection.Topics:     {title: "canonical_title", slug: "slug", snippet: "description"},
	collection.Statements: {title: "text", snippet: "text"},
}

// Repo scores query vectors against stored item embeddings.
type Repo struct {
	cms            cms
	logger         *zap.Logger
	candidateLimit int
}

// New creates a vector repository. candidateLimit <= 0 uses
// DefaultCandidateLimit.
func New(c cms, logger *zap.Logger, candidateLimit int) *Repo {
	if candidateLimit <= 0 {
		candidateLimit = DefaultCandidateLimit
	}
	return &Repo{cms: c, logger: logger, candidateLimit: candidateLimit}
}

// Search returns items from one collection whose embedding similarity to
// query meets threshold, best match first, at most limit results. Items
// with malformed embeddings are skipped.
func (r *Repo) Search(
	ctx context.Context, col collection.Name, query []float32, threshold float64, limit int,
) ([]result.Result, error) {
	spec, ok := specs[col]
	if !ok {
		return nil, fmt.Errorf("collection %q has no embeddings", col)
	}

	fields := []string{"id", spec.title, "embedding"}
	if spec.slug != "" {
		fields = append(fields, spec.slug)
	}
	if spec.snippet != "" && spec.snippet != spec.title {
		fields = append(fields, spec.snippet)
	}

	items, err := r.cms.ListItems(ctx, string(col), directus.Query{
		Fields: fields,
		Filter: directus.NotNull("embedding"),
		Limit:  r.candidateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch %s candidates: %w", col, err)
	}

	hits := make([]result.Result, 0, limit)
	for _, item := range items {
		embedding, ok := parseEmbedding(item["embedding"])
		if !ok {
			r.logger.Debug("skipping item with malformed embedding",
				zap.String("collection", string(col)),
				zap.Any("id", item["id"]))
			continue
		}
		sim := domain.CosineSimilarity(query, embedding)
		if sim < threshold {
			continue
		}
		hits = append(hits, result.Result{
			ID:         stringField(item, "id"),
			Collection: col,
			Similarity: sim,
			Title:      stringField(item, spec.title),
			Slug:       stringField(item, spec.slug),
			Snippet:    truncate(stringField(item, spec.snippet), snippetMaxLen),
		})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// parseEmbedding accepts the two shapes the CMS serves: a JSON array
// decoded to []any, or a string containing the JSON array.
func parseEmbedding(raw any) ([]float32, bool) {
	switch v := raw.(type) {
	case []any:
		vec := make([]float32, len(v))
		for i, elem := range v {
			f, ok := elem.(float64)
			if !ok {
				return nil, false
			}
			vec[i] = float32(f)
		}
		return vec, len(vec) > 0
	case string:
		var vec []float32
		if err := json.Unmarshal([]byte(v), &vec); err != nil {
			return nil, false
		}
		return vec, len(vec) > 0
	default:
		return nil, false
	}
}

func stringField(item map[string]any, key string) string {
	if key == "" {
		return ""
	}
	switch v := item[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
