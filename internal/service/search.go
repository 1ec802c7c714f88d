package service

import (
	"context"
	"strings"
	"time"

	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/logger"
	"github.com/keilo/catalogd/internal/repository"
	"github.com/keilo/catalogd/internal/search"
)

// SearchResult is one page of ranked catalog entries. Degraded is true when
// the index was unavailable and results came from the database fallback,
// which ranks by recency instead of relevance.
type SearchResult struct {
	Products []domain.Product `json:"products"`
	Degraded bool             `json:"degraded,omitempty"`
}

// SearchService is the query gateway: the index answers ranked queries, and
// the catalog database serves as a degraded fallback when the index is down.
type SearchService struct {
	products *repository.ProductRepository
	index    SearchIndex
	embedder *search.Embedder
}

// NewSearchService creates a new query gateway.
// Parameters:
//   - products: repository for catalog entries and the search fallback.
//   - index: search index client.
//   - embedder: query embedder matching the index's vector dimension.
//
// Returns:
//   - *SearchService: initialized query gateway.
func NewSearchService(products *repository.ProductRepository, index SearchIndex, embedder *search.Embedder) *SearchService {
	return &SearchService{
		products: products,
		index:    index,
		embedder: embedder,
	}
}

// Search executes a ranked catalog query scoped to one store, optionally
// filtered by category. Index hits are resolved against the catalog and
// returned in score order; hits whose catalog row has vanished (index lagging
// a delete) are dropped silently. When the index fails the query degrades to
// the database fallback; only both paths failing surfaces an error.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - storeID: owning store ID.
//   - query: free-text query, matched with typo tolerance by the index.
//   - categoryID: optional category filter, empty for all.
//   - limit: max results per page.
//   - offset: pagination offset.
//
// Returns:
//   - *SearchResult: ranked page, possibly degraded.
//   - error: non-nil only when both the index and the fallback fail.
func (s *SearchService) Search(ctx context.Context, storeID, query, categoryID string, limit, offset int) (*SearchResult, error) {
	query = strings.TrimSpace(query)
	if limit <= 0 {
		limit = 20
	}
	started := time.Now()

	hits, err := s.index.Search(ctx, s.embedder.EmbedQuery(query), storeID, categoryID, limit, offset)
	if err != nil {
		logger.CtxWarn(ctx, "Index search failed, degrading to database fallback: %v", err)
		return s.fallback(ctx, storeID, query, categoryID, limit, offset, err)
	}

	products, err := s.resolveHits(ctx, hits)
	if err != nil {
		logger.CtxWarn(ctx, "Hit resolution failed, degrading to database fallback: %v", err)
		return s.fallback(ctx, storeID, query, categoryID, limit, offset, err)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(started).Milliseconds(),
		logger.FieldCount:      len(products),
	}).Debug(ctx, "Search served from index: store=%s, query=%q", storeID, query)
	return &SearchResult{Products: products}, nil
}

// fallback serves the query from the catalog database. indexErr is the error
// that forced the degradation; it is joined into the returned error when the
// fallback fails too.
func (s *SearchService) fallback(ctx context.Context, storeID, query, categoryID string, limit, offset int, indexErr error) (*SearchResult, error) {
	products, err := s.products.SearchFallback(ctx, storeID, query, categoryID, limit, offset)
	if err != nil {
		logger.CtxError(ctx, "Search fallback failed after index failure: index=%v, db=%v", indexErr, err)
		return nil, domain.NewTransportError("search unavailable: index and fallback both failed", err)
	}
	return &SearchResult{Products: products, Degraded: true}, nil
}

// resolveHits loads the catalog rows for index hits, preserving score order.
func (s *SearchService) resolveHits(ctx context.Context, hits []search.Hit) ([]domain.Product, error) {
	if len(hits) == 0 {
		return []domain.Product{}, nil
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.ProductID)
	}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*domain.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	ordered := make([]domain.Product, 0, len(hits))
	for _, h := range hits {
		p, ok := byID[h.ProductID]
		if !ok {
			// Index lagging a catalog delete; drop the hit.
			continue
		}
		ordered = append(ordered, *p)
	}
	return ordered, nil
}

// Autocomplete suggests catalog entry names for a prefix, ranked by
// popularity. Served straight from the database; prefix lookups are cheap
// and exact.
func (s *SearchService) Autocomplete(ctx context.Context, storeID, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []string{}, nil
	}
	if limit <= 0 || limit > 25 {
		limit = 10
	}
	names, err := s.products.SuggestNames(ctx, storeID, prefix, limit)
	if err != nil {
		return nil, domain.NewTransportError("autocomplete lookup failed", err)
	}
	return names, nil
}
