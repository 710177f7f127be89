package domain

import "context"

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and provider metadata
// through the decorator chain.
type EmbeddingResult struct {
	Embedding   []float32
	Model       string
	Dimensions  int
	TotalTokens int
}
