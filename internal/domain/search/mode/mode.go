package mode

// Mode is the search strategy.
type Mode string

// Search mode constants.
const (
	// Keyword matches query text against indexed CMS fields.
	Keyword Mode = "keyword"
	// Semantic ranks by vector similarity over embeddings.
	Semantic Mode = "semantic"
	// Hybrid fuses keyword and semantic rankings.
	Hybrid Mode = "hybrid"
	// Auto lets the smart selector pick a strategy per query.
	Auto Mode = "auto"
)

// IsValid checks if the mode is one of the supported values.
func (m Mode) IsValid() bool {
	return m == Keyword || m == Semantic || m == Hybrid || m == Auto
}
