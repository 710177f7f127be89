package result

import (
	"time"

	"github.com/chabad-mafteach/mafteach/internal/domain/search/collection"
)

// Result is a single vector search hit.
type Result struct {
	ID         string          `json:"id"`
	Collection collection.Name `json:"collection"`
	Similarity float64         `json:"similarity"`
	Title      string          `json:"title"`
	Slug       string          `json:"slug,omitempty"`
	Snippet    string          `json:"snippet,omitempty"`
}

// Record is a CMS item as fetched for keyword search, before scoring.
// Texts holds the searched content fields keyed by CMS field name.
type Record struct {
	ID        string
	Title     string
	TitleEN   string
	Translit  string
	Slug      string
	Type      string
	UpdatedAt time.Time
	Texts     map[string]string
}

// Item is a keyword search hit with relevance metadata attached.
type Item struct {
	ID             string          `json:"id"`
	Collection     collection.Name `json:"collection"`
	Title          string          `json:"title"`
	TitleEnglish   string          `json:"title_en,omitempty"`
	Slug           string          `json:"slug,omitempty"`
	Type           string          `json:"type,omitempty"`
	Description    string          `json:"description,omitempty"`
	UpdatedAt      string          `json:"date_updated,omitempty"`
	RelevanceScore float64         `json:"relevance_score"`
	Highlights     []string        `json:"highlights,omitempty"`
}
