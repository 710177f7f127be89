package request

import (
	"fmt"
	"strings"

	"github.com/chabad-mafteach/mafteach/internal/domain"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/collection"
)

// Semantic search parameter defaults.
const (
	DefaultLimit     = 10
	DefaultThreshold = 0.7
	MaxLimit         = 100
)

// Semantic holds validated semantic search parameters.
type Semantic struct {
	query       string
	collections []collection.Name
	limit       int
	threshold   float64
}

// NewSemantic validates and constructs semantic search parameters.
// Collections default to {topics, statements}; zero limit and threshold
// take the documented defaults.
func NewSemantic(query string, collections []collection.Name, limit int, threshold float64) (Semantic, error) {
	if strings.TrimSpace(query) == "" {
		return Semantic{}, fmt.Errorf("%w: Query parameter is required", domain.ErrInvalidQuery)
	}
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit < 0 || limit > MaxLimit {
		return Semantic{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidQuery, MaxLimit)
	}
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 || threshold > 1 {
		return Semantic{}, fmt.Errorf("%w: threshold must be between 0 and 1", domain.ErrInvalidQuery)
	}
	if len(collections) == 0 {
		collections = collection.DefaultSemantic()
	}
	for _, c := range collections {
		if !c.IsValid() {
			return Semantic{}, fmt.Errorf("%w: unknown collection %q", domain.ErrInvalidQuery, c)
		}
		if !c.HasEmbeddings() {
			return Semantic{}, fmt.Errorf("%w: collection %q has no embeddings", domain.ErrInvalidQuery, c)
		}
	}
	return Semantic{
		query:       query,
		collections: collections,
		limit:       limit,
		threshold:   threshold,
	}, nil
}

// Query returns the raw query text.
func (s *Semantic) Query() string { return s.query }

// Collections returns the collections to search.
func (s *Semantic) Collections() []collection.Name { return s.collections }

// Limit returns the maximum result count.
func (s *Semantic) Limit() int { return s.limit }

// Threshold returns the minimum similarity.
func (s *Semantic) Threshold() float64 { return s.threshold }
