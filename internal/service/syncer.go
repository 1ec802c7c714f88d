package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/logger"
	"github.com/keilo/catalogd/internal/repository"
	"github.com/keilo/catalogd/internal/search"
)

// SearchIndex is the index contract the synchronizer and the query gateway
// depend on. Implemented by search.QdrantIndex; tests substitute fakes.
type SearchIndex interface {
	Upsert(ctx context.Context, doc *search.Document, vector []float32) error
	Remove(ctx context.Context, productID string) error
	Search(ctx context.Context, vector []float32, storeID, categoryID string, limit, offset int) ([]search.Hit, error)
	CreateStaging(ctx context.Context) (string, error)
	BulkUpsert(ctx context.Context, collection string, docs []*search.Document, vectors [][]float32) error
	PromoteStaging(ctx context.Context, staging string) error
	DropCollection(ctx context.Context, name string) error
}

// SyncConfig holds synchronizer tuning.
type SyncConfig struct {
	RebuildBatch   int // products per bulk upsert during rebuild
	RebuildRetries int // attempts per batch beyond the first
}

// SyncService projects catalog entries into the search index. Per-entry
// upserts keep the index trailing the catalog after merges; RebuildAll
// reconstructs it from scratch without a window where searches see an empty
// index.
type SyncService struct {
	products   *repository.ProductRepository
	categories *repository.CategoryRepository
	index      SearchIndex
	embedder   *search.Embedder
	batch      int
	retries    int
}

// NewSyncService creates a new synchronizer.
// Parameters:
//   - products: repository for catalog entries.
//   - categories: repository used to denormalize category names into documents.
//   - index: search index client.
//   - embedder: document embedder matching the index's vector dimension.
//   - cfg: rebuild tuning; zero values fall back to defaults (batch 256, 3 retries).
//
// Returns:
//   - *SyncService: initialized synchronizer.
func NewSyncService(
	products *repository.ProductRepository,
	categories *repository.CategoryRepository,
	index SearchIndex,
	embedder *search.Embedder,
	cfg SyncConfig,
) *SyncService {
	if cfg.RebuildBatch <= 0 {
		cfg.RebuildBatch = 256
	}
	if cfg.RebuildRetries <= 0 {
		cfg.RebuildRetries = 3
	}
	return &SyncService{
		products:   products,
		categories: categories,
		index:      index,
		embedder:   embedder,
		batch:      cfg.RebuildBatch,
		retries:    cfg.RebuildRetries,
	}
}

// Upsert projects one catalog entry into the index. Archived or deleted
// entries are removed instead so they never surface in search results. The
// operation is idempotent: re-projecting an unchanged entry overwrites the
// same point.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - productID: catalog entry to project.
//
// Returns:
//   - error: non-nil if the catalog read or the index write fails.
func (s *SyncService) Upsert(ctx context.Context, productID string) error {
	product, err := s.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return s.Remove(ctx, productID)
		}
		return domain.NewTransportError("product lookup for index sync failed", err)
	}

	if product.Archived {
		return s.Remove(ctx, productID)
	}

	doc := s.buildDocument(ctx, product)
	if err := s.index.Upsert(ctx, doc, s.embedder.EmbedDocument(doc)); err != nil {
		return domain.NewTransportError("index upsert failed", err)
	}
	return nil
}

// Remove deletes a catalog entry's point from the index. Removing an absent
// point is a no-op.
func (s *SyncService) Remove(ctx context.Context, productID string) error {
	if err := s.index.Remove(ctx, productID); err != nil {
		return domain.NewTransportError("index remove failed", err)
	}
	return nil
}

// RebuildAll reconstructs the index from the catalog through a staging
// collection. The live index keeps serving until the staging collection is
// complete and promoted in one alias swap; a failed rebuild drops the staging
// collection and leaves the live index untouched. Searches never observe a
// half-built or empty index.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//
// Returns:
//   - int: number of documents indexed.
//   - error: non-nil if any batch exhausts its retries or the swap fails.
func (s *SyncService) RebuildAll(ctx context.Context) (int, error) {
	started := time.Now()

	staging, err := s.index.CreateStaging(ctx)
	if err != nil {
		return 0, domain.NewTransportError("staging collection create failed", err)
	}

	total := 0
	offset := 0
	for {
		products, err := s.products.ListBatch(ctx, s.batch, offset)
		if err != nil {
			s.dropStaging(ctx, staging)
			return 0, domain.NewTransportError("catalog scan failed during rebuild", err)
		}
		if len(products) == 0 {
			break
		}
		offset += len(products)

		docs := make([]*search.Document, 0, len(products))
		vectors := make([][]float32, 0, len(products))
		for i := range products {
			if products[i].Archived {
				continue
			}
			doc := s.buildDocument(ctx, &products[i])
			docs = append(docs, doc)
			vectors = append(vectors, s.embedder.EmbedDocument(doc))
		}
		if len(docs) == 0 {
			continue
		}

		if err := s.upsertBatchWithRetry(ctx, staging, docs, vectors); err != nil {
			s.dropStaging(ctx, staging)
			return 0, err
		}
		total += len(docs)
	}

	if err := s.index.PromoteStaging(ctx, staging); err != nil {
		s.dropStaging(ctx, staging)
		return 0, domain.NewTransportError("staging promote failed", err)
	}

	logger.With(logger.Fields{
		logger.FieldDurationMs: time.Since(started).Milliseconds(),
		logger.FieldCount:      total,
	}).Info(ctx, "Index rebuild complete: collection=%s", staging)
	return total, nil
}

func (s *SyncService) upsertBatchWithRetry(ctx context.Context, staging string, docs []*search.Document, vectors [][]float32) error {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		lastErr = s.index.BulkUpsert(ctx, staging, docs, vectors)
		if lastErr == nil {
			return nil
		}
		logger.CtxWarn(ctx, "Rebuild batch upsert failed: attempt=%d, size=%d, error=%v",
			attempt+1, len(docs), lastErr)
	}
	return domain.NewTransportError(
		fmt.Sprintf("rebuild batch failed after %d attempts", s.retries+1), lastErr)
}

// dropStaging is best-effort cleanup; an orphaned staging collection is
// harmless and the next rebuild gets a fresh name.
func (s *SyncService) dropStaging(ctx context.Context, staging string) {
	if err := s.index.DropCollection(ctx, staging); err != nil {
		logger.CtxWarn(ctx, "Failed to drop staging collection %s: %v", staging, err)
	}
}

// buildDocument denormalizes a catalog entry into an index document. A
// dangling category reference degrades to an empty category name rather than
// failing the projection.
func (s *SyncService) buildDocument(ctx context.Context, product *domain.Product) *search.Document {
	categoryName, err := s.categories.NameByID(ctx, product.CategoryID)
	if err != nil {
		logger.CtxWarn(ctx, "Category name lookup failed for %s: %v", product.CategoryID, err)
	}
	return &search.Document{
		ProductID:    product.ID,
		StoreID:      product.StoreID,
		Name:         product.Name,
		Description:  product.Description,
		Keywords:     product.Keywords,
		CategoryID:   product.CategoryID,
		CategoryName: categoryName,
		Price:        product.Price,
		Popularity:   product.Popularity,
		Featured:     product.Featured,
		CreatedAt:    product.CreatedAt.Unix(),
	}
}
