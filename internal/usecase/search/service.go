// Package search orchestrates keyword, semantic, and hybrid search across
// the content collections, with mode selection, result caching, and
// request deduplication.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/chabad-mafteach/mafteach/internal/cache"
	"github.com/chabad-mafteach/mafteach/internal/domain"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/collection"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/mode"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/request"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/result"
	"github.com/chabad-mafteach/mafteach/internal/domain/search/smartmode"
	"github.com/chabad-mafteach/mafteach/internal/metrics"
)

// DefaultResultTTL is how long search responses stay cached.
const DefaultResultTTL = 5 * time.Minute

// DefaultSmartLimit is the per-collection result cap for smart search.
const DefaultSmartLimit = 20

// SemanticMetadata describes how a semantic search was executed.
type SemanticMetadata struct {
	TotalResults        int               `json:"total_results"`
	CollectionsSearched []collection.Name `json:"collections_searched"`
	Threshold           float64           `json:"threshold"`
	Model               string            `json:"model"`
}

// SemanticResponse is the payload of a semantic search.
type SemanticResponse struct {
	Results  []result.Result  `json:"results"`
	Query    string           `json:"query"`
	Cached   bool             `json:"cached"`
	Metadata SemanticMetadata `json:"metadata"`
}

// GroupedItems holds smart search hits grouped by collection.
type GroupedItems struct {
	Topics     []result.Item `json:"topics"`
	Statements []result.Item `json:"statements"`
	Documents  []result.Item `json:"documents"`
	Locations  []result.Item `json:"locations"`
}

// SmartResponse is the payload of a smart search.
type SmartResponse struct {
	Query        string             `json:"query"`
	Mode         smartmode.Decision `json:"mode"`
	Explanation  string             `json:"explanation"`
	Results      GroupedItems       `json:"results"`
	TotalResults int                `json:"total_results"`
	Suggestions  []string           `json:"suggestions,omitempty"`
	Cached       bool               `json:"cached"`
	HasMore      bool               `json:"has_more"`
}

// Service coordinates embedding, vector search, and keyword search.
type Service struct {
	embed    Embedder
	vectors  VectorSearcher
	contents ContentSearcher
	store    cache.Store
	caps     smartmode.Capabilities
	logger   *zap.Logger
	group    singleflight.Group

	resultTTL time.Duration
	threshold float64
	now       func() time.Time
}

// Option adjusts service construction.
type Option func(*Service)

// WithResultTTL overrides the search response cache TTL.
func WithResultTTL(ttl time.Duration) Option {
	return func(s *Service) { s.resultTTL = ttl }
}

// WithThreshold overrides the similarity threshold smart search applies
// to its semantic and hybrid paths.
func WithThreshold(t float64) Option {
	return func(s *Service) { s.threshold = t }
}

// WithClock injects a time source for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New creates a search service. caps reflects whether embedding and
// vector data are available; the smart mode selector consults it.
func New(
	embed Embedder, vectors VectorSearcher, contents ContentSearcher,
	store cache.Store, caps smartmode.Capabilities, logger *zap.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		embed:     embed,
		vectors:   vectors,
		contents:  contents,
		store:     store,
		caps:      caps,
		logger:    logger,
		resultTTL: DefaultResultTTL,
		threshold: request.DefaultThreshold,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Semantic runs a vector similarity search across the requested
// collections. Identical concurrent requests share one execution, and
// responses are cached for the configured TTL.
func (s *Service) Semantic(ctx context.Context, req request.Semantic) (SemanticResponse, error) {
	key := cache.SemanticKey(req.Query(), req.Collections(), req.Limit(), req.Threshold())

	if resp, ok := s.cachedSemantic(ctx, key); ok {
		metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
		metrics.SearchRequestsTotal.WithLabelValues(string(mode.Semantic), "ok").Inc()
		return resp, nil
	}
	metrics.SearchCacheTotal.WithLabelValues("miss").Inc()

	// Identical in-flight requests collapse onto one embedding call and
	// one search; followers receive the leader's response.
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.semanticUncached(ctx, req, key)
	})
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(mode.Semantic), "error").Inc()
		return SemanticResponse{}, err
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(mode.Semantic), "ok").Inc()
	return v.(SemanticResponse), nil
}

func (s *Service) cachedSemantic(ctx context.Context, key string) (SemanticResponse, bool) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return SemanticResponse{}, false
	}
	var resp SemanticResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.logger.Warn("discarding corrupt cached search response", zap.String("key", key))
		return SemanticResponse{}, false
	}
	resp.Cached = true
	return resp, true
}

func (s *Service) semanticUncached(
	ctx context.Context, req request.Semantic, key string,
) (SemanticResponse, error) {
	if s.embed == nil {
		return SemanticResponse{}, fmt.Errorf(
			"%w: embedding provider not configured", domain.ErrEmbeddingProviderError)
	}

	emb, err := s.embed.Embed(ctx, req.Query())
	if err != nil {
		return SemanticResponse{}, fmt.Errorf("vectorize query: %w", err)
	}

	cols := req.Collections()
	perCol := make([][]result.Result, len(cols))

	g, gctx := errgroup.WithContext(ctx)
	for i, col := range cols {
		g.Go(func() error {
			hits, err := s.vectors.Search(gctx, col, emb.Embedding, req.Threshold(), req.Limit())
			if err != nil {
				return fmt.Errorf("vector search %s: %w", col, err)
			}
			perCol[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return SemanticResponse{}, err
	}

	var all []result.Result
	for _, hits := range perCol {
		all = append(all, hits...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Similarity > all[j].Similarity })
	if len(all) > req.Limit() {
		all = all[:req.Limit()]
	}
	if all == nil {
		all = []result.Result{}
	}

	resp := SemanticResponse{
		Results: all,
		Query:   req.Query(),
		Metadata: SemanticMetadata{
			TotalResults:        len(all),
			CollectionsSearched: cols,
			Threshold:           req.Threshold(),
			Model:               emb.Model,
		},
	}
	s.cacheResponse(ctx, key, resp)
	return resp, nil
}

// Smart runs a search with automatic mode selection. An explicit mode
// skips selection but still falls back to keyword search when the
// semantic stack is unavailable.
func (s *Service) Smart(
	ctx context.Context, query string, requested mode.Mode, limit int,
) (SmartResponse, error) {
	trimmed := strings.TrimSpace(query)
	if utf8.RuneCountInString(trimmed) < 2 {
		return SmartResponse{}, fmt.Errorf("%w: Query must be at least 2 characters long", domain.ErrInvalidQuery)
	}
	if limit <= 0 {
		limit = DefaultSmartLimit
	}
	if limit > request.MaxLimit {
		return SmartResponse{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidQuery, request.MaxLimit)
	}

	decision, err := s.decide(trimmed, requested)
	if err != nil {
		return SmartResponse{}, err
	}

	key := cache.SmartKey(trimmed, string(decision.Mode), limit, s.threshold)
	if resp, ok := s.cachedSmart(ctx, key); ok {
		metrics.SearchCacheTotal.WithLabelValues("hit").Inc()
		metrics.SearchRequestsTotal.WithLabelValues(string(decision.Mode), "ok").Inc()
		return resp, nil
	}
	metrics.SearchCacheTotal.WithLabelValues("miss").Inc()

	resp, err := s.smartUncached(ctx, trimmed, decision, limit)
	if err != nil {
		metrics.SearchRequestsTotal.WithLabelValues(string(decision.Mode), "error").Inc()
		return SmartResponse{}, err
	}
	metrics.SearchRequestsTotal.WithLabelValues(string(decision.Mode), "ok").Inc()

	s.cacheResponse(ctx, key, resp)
	return resp, nil
}

func (s *Service) decide(query string, requested mode.Mode) (smartmode.Decision, error) {
	if requested == "" || requested == mode.Auto {
		return smartmode.Decide(query, s.caps), nil
	}
	if !requested.IsValid() {
		return smartmode.Decision{}, fmt.Errorf("%w: unknown search mode %q", domain.ErrInvalidQuery, requested)
	}
	if requested != mode.Keyword && (!s.caps.EmbeddingAvailable || !s.caps.VectorDataAvailable) {
		return smartmode.Decision{
			Mode:         mode.Keyword,
			Confidence:   0.9,
			Reasoning:    "AI services unavailable - using keyword search",
			FallbackUsed: true,
		}, nil
	}
	return smartmode.Decision{
		Mode:       requested,
		Confidence: 1.0,
		Reasoning:  "Mode explicitly requested",
	}, nil
}

func (s *Service) cachedSmart(ctx context.Context, key string) (SmartResponse, bool) {
	raw, err := s.store.Get(ctx, key)
	if err != nil {
		return SmartResponse{}, false
	}
	var resp SmartResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		s.logger.Warn("discarding corrupt cached search response", zap.String("key", key))
		return SmartResponse{}, false
	}
	resp.Cached = true
	return resp, true
}

func (s *Service) smartUncached(
	ctx context.Context, query string, decision smartmode.Decision, limit int,
) (SmartResponse, error) {
	resp := SmartResponse{
		Query:       query,
		Mode:        decision,
		Explanation: smartmode.Explain(decision, query),
	}

	switch decision.Mode {
	case mode.Keyword:
		grouped, records, err := s.searchKeyword(ctx, query, collection.All(), limit)
		if err != nil {
			return SmartResponse{}, err
		}
		resp.Results = grouped
		resp.Suggestions = suggestions(records, query)

	case mode.Semantic:
		grouped, err := s.searchSemantic(ctx, query, limit)
		if err != nil {
			return SmartResponse{}, err
		}
		resp.Results = grouped

	case mode.Hybrid:
		grouped, records, err := s.searchKeyword(ctx, query, collection.All(), limit)
		if err != nil {
			return SmartResponse{}, err
		}
		semantic, err := s.searchSemantic(ctx, query, limit)
		if err != nil {
			return SmartResponse{}, err
		}
		grouped.Topics = fuseRRF(semantic.Topics, grouped.Topics, limit)
		grouped.Statements = fuseRRF(semantic.Statements, grouped.Statements, limit)
		resp.Results = grouped
		resp.Suggestions = suggestions(records, query)

	default:
		return SmartResponse{}, fmt.Errorf("%w: unsupported search mode %q", domain.ErrInvalidQuery, decision.Mode)
	}

	resp.TotalResults = len(resp.Results.Topics) + len(resp.Results.Statements) +
		len(resp.Results.Documents) + len(resp.Results.Locations)
	resp.HasMore = len(resp.Results.Topics) == limit || len(resp.Results.Statements) == limit ||
		len(resp.Results.Documents) == limit || len(resp.Results.Locations) == limit
	return resp, nil
}

// searchKeyword queries each collection concurrently, scores the records,
// and returns items grouped by collection plus the raw topic records for
// suggestion generation.
func (s *Service) searchKeyword(
	ctx context.Context, query string, cols []collection.Name, limit int,
) (GroupedItems, []result.Record, error) {
	now := s.now()

	var mu sync.Mutex
	grouped := emptyGroups()
	var topicRecords []result.Record

	g, gctx := errgroup.WithContext(ctx)
	for _, col := range cols {
		g.Go(func() error {
			records, err := s.contents.Search(gctx, col, query, limit, 0)
			if err != nil {
				return fmt.Errorf("keyword search %s: %w", col, err)
			}

			items := make([]result.Item, 0, len(records))
			for _, rec := range records {
				items = append(items, s.recordToItem(rec, col, query, now))
			}
			sort.Slice(items, func(i, j int) bool {
				return items[i].RelevanceScore > items[j].RelevanceScore
			})

			mu.Lock()
			defer mu.Unlock()
			setGroup(grouped, col, items)
			if col == collection.Topics {
				topicRecords = records
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GroupedItems{}, nil, err
	}
	return *grouped, topicRecords, nil
}

// searchSemantic embeds the query and searches the embedded collections,
// returning hits as grouped items.
func (s *Service) searchSemantic(
	ctx context.Context, query string, limit int,
) (GroupedItems, error) {
	if s.embed == nil {
		return GroupedItems{}, fmt.Errorf(
			"%w: embedding provider not configured", domain.ErrEmbeddingProviderError)
	}

	emb, err := s.embed.Embed(ctx, query)
	if err != nil {
		return GroupedItems{}, fmt.Errorf("vectorize query: %w", err)
	}

	cols := collection.DefaultSemantic()
	perCol := make([][]result.Result, len(cols))

	g, gctx := errgroup.WithContext(ctx)
	for i, col := range cols {
		g.Go(func() error {
			hits, err := s.vectors.Search(gctx, col, emb.Embedding, s.threshold, limit)
			if err != nil {
				return fmt.Errorf("vector search %s: %w", col, err)
			}
			perCol[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GroupedItems{}, err
	}

	grouped := emptyGroups()
	for i, col := range cols {
		items := make([]result.Item, 0, len(perCol[i]))
		for _, hit := range perCol[i] {
			items = append(items, result.Item{
				ID:             hit.ID,
				Collection:     hit.Collection,
				Title:          hit.Title,
				Slug:           hit.Slug,
				Description:    hit.Snippet,
				RelevanceScore: hit.Similarity,
			})
		}
		setGroup(grouped, col, items)
	}
	return *grouped, nil
}

func (s *Service) recordToItem(
	rec result.Record, col collection.Name, query string, now time.Time,
) result.Item {
	item := result.Item{
		ID:             rec.ID,
		Collection:     col,
		Title:          rec.Title,
		TitleEnglish:   rec.TitleEN,
		Slug:           rec.Slug,
		Type:           rec.Type,
		Description:    rec.Texts["description"],
		RelevanceScore: scoreRecord(rec, query, now),
		Highlights:     highlights(rec, query),
	}
	if !rec.UpdatedAt.IsZero() {
		item.UpdatedAt = rec.UpdatedAt.Format(time.RFC3339)
	}
	return item
}

func (s *Service) cacheResponse(ctx context.Context, key string, resp any) {
	raw, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("marshal search response for cache", zap.Error(err))
		return
	}
	if err := s.store.Set(ctx, key, raw, s.resultTTL); err != nil {
		s.logger.Warn("cache search response", zap.String("key", key), zap.Error(err))
	}
}

func emptyGroups() *GroupedItems {
	return &GroupedItems{
		Topics:     []result.Item{},
		Statements: []result.Item{},
		Documents:  []result.Item{},
		Locations:  []result.Item{},
	}
}

func setGroup(g *GroupedItems, col collection.Name, items []result.Item) {
	switch col {
	case collection.Topics:
		g.Topics = items
	case collection.Statements:
		g.Statements = items
	case collection.Documents:
		g.Documents = items
	case collection.Locations:
		g.Locations = items
	}
}
