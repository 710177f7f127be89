package search

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chabad-mafteach/mafteach/internal/cache"
	"github.com/chabad-mafteach/mafteach/internal/domain"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/collection"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/mode"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/request"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/result"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/smartmode"
	"github.com/chabad-mafteach/mafteach/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.RegisterSearchMetrics()
	m.Run()
}

type mockEmbedder struct {
	mu     sync.Mutex
	calls  int
	result domain.EmbeddingResult
	err    error
}

func (m *mockEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return m.result, m.err
}

func (m *mockEmbedder) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockVectors struct {
	mu    sync.Mutex
	byCol map[collection.Name][]result.Result
	err   error
}

func (m *mockVectors) Search(
	_ context.Context, col collection.Name, _ []float32, _ float64, _ int,
) ([]result.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.byCol[col], nil
}

type mockContents struct {
	mu    sync.Mutex
	byCol map[collection.Name][]result.Record
	err   error
}

func (m *mockContents) Search(
	_ context.Context, col collection.Name, _ string, _, _ int,
) ([]result.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.byCol[col], nil
}

var allCaps = smartmode.Capabilities{EmbeddingAvailable: true, VectorDataAvailable: true}

func newTestService(
	embed *mockEmbedder, vectors *mockVectors, contents *mockContents,
	caps smartmode.Capabilities, opts ...Option,
) *Service {
	if embed == nil {
		embed = &mockEmbedder{result: domain.EmbeddingResult{
			Embedding: []float32{1, 0}, Model: "text-embedding-3-small", Dimensions: 2,
		}}
	}
	if vectors == nil {
		vectors = &mockVectors{}
	}
	if contents == nil {
		contents = &mockContents{}
	}
	return New(embed, vectors, contents, cache.NewMemory(), caps, zap.NewNop(), opts...)
}

func semanticReq(t *testing.T, query string) request.Semantic {
	t.Helper()
	req, err := request.NewSemantic(query, nil, 0, 0)
	if err != nil {
		t.Fatalf("NewSemantic: %v", err)
	}
	return req
}

func TestSemanticMergesAndCaches(t *testing.T) {
	embed := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{1, 0}, Model: "text-embedding-3-small",
	}}
	vectors := &mockVectors{byCol: map[collection.Name][]result.Result{
		collection.Topics: {
			{ID: "t1", Collection: collection.Topics, Similarity: 0.9, Title: "Bitul"},
			{ID: "t2", Collection: collection.Topics, Similarity: 0.75, Title: "Anavah"},
		},
		collection.Statements: {
			{ID: "s1", Collection: collection.Statements, Similarity: 0.8, Title: "On humility"},
		},
	}}
	svc := newTestService(embed, vectors, nil, allCaps)

	resp, err := svc.Semantic(context.Background(), semanticReq(t, "bitul"))
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if resp.Cached {
		t.Error("first response reported cached")
	}
	if got := len(resp.Results); got != 3 {
		t.Fatalf("got %d results, want 3", got)
	}
	for i, want := range []string{"t1", "s1", "t2"} {
		if resp.Results[i].ID != want {
			t.Errorf("results[%d].ID = %q, want %q", i, resp.Results[i].ID, want)
		}
	}
	if resp.Metadata.TotalResults != 3 || resp.Metadata.Model != "text-embedding-3-small" {
		t.Errorf("metadata = %+v", resp.Metadata)
	}
	if resp.Metadata.Threshold != request.DefaultThreshold {
		t.Errorf("threshold = %g", resp.Metadata.Threshold)
	}

	// Second identical request is served from cache without re-embedding.
	again, err := svc.Semantic(context.Background(), semanticReq(t, "bitul"))
	if err != nil {
		t.Fatalf("Semantic (cached): %v", err)
	}
	if !again.Cached {
		t.Error("second response not reported cached")
	}
	if embed.Calls() != 1 {
		t.Errorf("embedder called %d times, want 1", embed.Calls())
	}
	if len(again.Results) != 3 {
		t.Errorf("cached results = %d, want 3", len(again.Results))
	}
}

func TestSemanticAppliesLimit(t *testing.T) {
	hits := make([]result.Result, 0, 20)
	for i := 0; i < 20; i++ {
		hits = append(hits, result.Result{
			ID: string(rune('a' + i)), Collection: collection.Topics, Similarity: 0.99 - float64(i)/100,
		})
	}
	vectors := &mockVectors{byCol: map[collection.Name][]result.Result{collection.Topics: hits}}
	svc := newTestService(nil, vectors, nil, allCaps)

	req, err := request.NewSemantic("teshuvah", []collection.Name{collection.Topics}, 5, 0.5)
	if err != nil {
		t.Fatalf("NewSemantic: %v", err)
	}
	resp, err := svc.Semantic(context.Background(), req)
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if len(resp.Results) != 5 {
		t.Errorf("got %d results, want 5", len(resp.Results))
	}
}

func TestSemanticEmbedError(t *testing.T) {
	embed := &mockEmbedder{err: domain.ErrEmbeddingProviderError}
	svc := newTestService(embed, nil, nil, allCaps)

	_, err := svc.Semantic(context.Background(), semanticReq(t, "bitul"))
	if !errors.Is(err, domain.ErrEmbeddingProviderError) {
		t.Fatalf("err = %v, want embedding provider error", err)
	}
}

func TestSemanticVectorSearchError(t *testing.T) {
	vectors := &mockVectors{err: errors.New("cms down")}
	svc := newTestService(nil, vectors, nil, allCaps)

	if _, err := svc.Semantic(context.Background(), semanticReq(t, "bitul")); err == nil {
		t.Fatal("expected error")
	}
}

func TestSemanticEmptyResults(t *testing.T) {
	svc := newTestService(nil, &mockVectors{}, nil, allCaps)

	resp, err := svc.Semantic(context.Background(), semanticReq(t, "unmatched"))
	if err != nil {
		t.Fatalf("Semantic: %v", err)
	}
	if resp.Results == nil || len(resp.Results) != 0 {
		t.Errorf("results = %#v, want empty non-nil slice", resp.Results)
	}
}

func TestSmartRejectsShortQuery(t *testing.T) {
	svc := newTestService(nil, nil, nil, allCaps)

	_, err := svc.Smart(context.Background(), "a", mode.Auto, 0)
	if !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("err = %v, want invalid query", err)
	}
	if !strings.Contains(err.Error(), "Query must be at least 2 characters long") {
		t.Errorf("err = %q, missing length message", err)
	}
}

func TestSmartKeywordGroupsAndScores(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	contents := &mockContents{byCol: map[collection.Name][]result.Record{
		collection.Topics: {
			{ID: "t1", Title: "אחר", Texts: map[string]string{"description": "mentions tzedakah"}},
			{ID: "t2", Title: "Tzedakah", TitleEN: "Charity", Slug: "tzedakah",
				UpdatedAt: now.AddDate(0, 0, -1)},
		},
		collection.Documents: {
			{ID: "d1", Title: "Tzedakah discourse", Type: "maamar"},
		},
	}}
	svc := newTestService(nil, nil, contents,
		smartmode.Capabilities{}, WithClock(func() time.Time { return now }))

	resp, err := svc.Smart(context.Background(), "tzedakah", mode.Auto, 0)
	if err != nil {
		t.Fatalf("Smart: %v", err)
	}
	if resp.Mode.Mode != mode.Keyword || !resp.Mode.FallbackUsed {
		t.Errorf("mode = %+v, want keyword fallback (no AI capabilities)", resp.Mode)
	}
	if resp.Explanation != "Using keyword search (AI unavailable) (English content)" {
		t.Errorf("explanation = %q", resp.Explanation)
	}
	if len(resp.Results.Topics) != 2 || len(resp.Results.Documents) != 1 {
		t.Fatalf("groups = %d topics, %d documents", len(resp.Results.Topics), len(resp.Results.Documents))
	}
	// Title match plus recency outranks a description-only match.
	if resp.Results.Topics[0].ID != "t2" {
		t.Errorf("top topic = %s, want t2", resp.Results.Topics[0].ID)
	}
	if resp.Results.Topics[0].RelevanceScore <= resp.Results.Topics[1].RelevanceScore {
		t.Error("topics not sorted by relevance")
	}
	if resp.TotalResults != 3 {
		t.Errorf("total = %d, want 3", resp.TotalResults)
	}
	if resp.HasMore {
		t.Error("has_more set with partial groups")
	}
}

func TestSmartSemanticMode(t *testing.T) {
	vectors := &mockVectors{byCol: map[collection.Name][]result.Result{
		collection.Topics: {
			{ID: "t1", Collection: collection.Topics, Similarity: 0.91, Title: "Bitul", Snippet: "about bitul"},
		},
	}}
	svc := newTestService(nil, vectors, nil, allCaps)

	// Multi-word English query selects semantic mode.
	resp, err := svc.Smart(context.Background(), "what is self nullification", mode.Auto, 0)
	if err != nil {
		t.Fatalf("Smart: %v", err)
	}
	if resp.Mode.Mode != mode.Semantic {
		t.Fatalf("mode = %s, want semantic", resp.Mode.Mode)
	}
	if len(resp.Results.Topics) != 1 {
		t.Fatalf("topics = %d, want 1", len(resp.Results.Topics))
	}
	item := resp.Results.Topics[0]
	if item.RelevanceScore != 0.91 || item.Description != "about bitul" {
		t.Errorf("item = %+v", item)
	}
	if len(resp.Results.Documents) != 0 {
		t.Error("semantic mode returned documents hits")
	}
}

func TestSmartHybridFusesRankings(t *testing.T) {
	vectors := &mockVectors{byCol: map[collection.Name][]result.Result{
		collection.Topics: {
			{ID: "both", Collection: collection.Topics, Similarity: 0.9, Title: "Emunah"},
			{ID: "sem-only", Collection: collection.Topics, Similarity: 0.8, Title: "Bitachon"},
		},
	}}
	contents := &mockContents{byCol: map[collection.Name][]result.Record{
		collection.Topics: {
			{ID: "kw-only", Title: "Emunah stories"},
			{ID: "both", Title: "Emunah"},
		},
	}}
	svc := newTestService(nil, vectors, contents, allCaps)

	// Single English word selects hybrid mode.
	resp, err := svc.Smart(context.Background(), "emunah", mode.Auto, 0)
	if err != nil {
		t.Fatalf("Smart: %v", err)
	}
	if resp.Mode.Mode != mode.Hybrid {
		t.Fatalf("mode = %s, want hybrid", resp.Mode.Mode)
	}
	if len(resp.Results.Topics) != 3 {
		t.Fatalf("topics = %d, want 3", len(resp.Results.Topics))
	}
	// The item present in both rankings wins the fused ordering.
	if resp.Results.Topics[0].ID != "both" {
		t.Errorf("top fused = %s, want both", resp.Results.Topics[0].ID)
	}
}

func TestSmartExplicitModeFallsBackWithoutAI(t *testing.T) {
	svc := newTestService(nil, nil, nil, smartmode.Capabilities{})

	resp, err := svc.Smart(context.Background(), "teshuvah concepts", mode.Semantic, 0)
	if err != nil {
		t.Fatalf("Smart: %v", err)
	}
	if resp.Mode.Mode != mode.Keyword || !resp.Mode.FallbackUsed {
		t.Errorf("mode = %+v, want keyword fallback", resp.Mode)
	}
}

func TestSmartInvalidMode(t *testing.T) {
	svc := newTestService(nil, nil, nil, allCaps)
	if _, err := svc.Smart(context.Background(), "teshuvah", mode.Mode("fuzzy"), 0); !errors.Is(err, domain.ErrInvalidQuery) {
		t.Fatalf("err = %v, want invalid query", err)
	}
}

func TestSmartCachesResponses(t *testing.T) {
	embed := &mockEmbedder{result: domain.EmbeddingResult{Embedding: []float32{1, 0}, Model: "m"}}
	vectors := &mockVectors{byCol: map[collection.Name][]result.Result{
		collection.Topics: {{ID: "t1", Collection: collection.Topics, Similarity: 0.9}},
	}}
	svc := newTestService(embed, vectors, nil, allCaps)

	query := "deep conceptual question"
	if _, err := svc.Smart(context.Background(), query, mode.Auto, 0); err != nil {
		t.Fatalf("Smart: %v", err)
	}
	again, err := svc.Smart(context.Background(), query, mode.Auto, 0)
	if err != nil {
		t.Fatalf("Smart (cached): %v", err)
	}
	if !again.Cached {
		t.Error("second response not reported cached")
	}
	if embed.Calls() != 1 {
		t.Errorf("embedder called %d times, want 1", embed.Calls())
	}
}

// blockingEmbedder parks every Embed call until released, letting the
// test line up concurrent requests behind one flight.
type blockingEmbedder struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
}

func (b *blockingEmbedder) Embed(context.Context, string) (domain.EmbeddingResult, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return domain.EmbeddingResult{Embedding: []float32{1, 0}, Model: "m"}, nil
}

func TestSemanticConcurrentRequestsShareOneFlight(t *testing.T) {
	embed := &blockingEmbedder{release: make(chan struct{})}
	svc := New(embed, &mockVectors{}, &mockContents{},
		cache.NewMemory(), allCaps, zap.NewNop())

	req := semanticReq(t, "shared question")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Semantic(context.Background(), req); err != nil {
				t.Errorf("Semantic: %v", err)
			}
		}()
	}

	// Give every goroutine time to reach the flight before releasing the
	// leader's embedding call.
	time.Sleep(100 * time.Millisecond)
	close(embed.release)
	wg.Wait()

	embed.mu.Lock()
	defer embed.mu.Unlock()
	if embed.calls != 1 {
		t.Errorf("embedder called %d times, want 1", embed.calls)
	}
}
