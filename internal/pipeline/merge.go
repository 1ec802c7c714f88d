package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/logger"
	"github.com/keilo/catalogd/internal/repository"
	"github.com/panjf2000/ants/v2"
	"gorm.io/gorm"
)

// Upserter is the Search Synchronizer contract the merge worker needs:
// project one catalog entry into the index, idempotently.
type Upserter interface {
	Upsert(ctx context.Context, productID string) error
}

// MergerConfig holds merge tuning.
type MergerConfig struct {
	RowFanout int // bounded parallelism within one chunk
}

// Merger consumes one chunk at a time and applies an idempotent create/update
// per row. Rows are independent after the per-row existence lookup, so they
// are processed with a small fixed fan-out. One row's failure never aborts
// its siblings.
type Merger struct {
	products   *repository.ProductRepository
	categories CategoryChecker
	syncer     Upserter
	pool       *ants.Pool
}

// NewMerger creates a Merger with a worker pool of cfg.RowFanout (default 4).
func NewMerger(products *repository.ProductRepository, categories CategoryChecker, syncer Upserter, cfg MergerConfig) (*Merger, error) {
	fanout := cfg.RowFanout
	if fanout <= 0 {
		fanout = 4
	}
	pool, err := ants.NewPool(fanout)
	if err != nil {
		return nil, err
	}
	return &Merger{
		products:   products,
		categories: categories,
		syncer:     syncer,
		pool:       pool,
	}, nil
}

// Release tears down the row worker pool.
func (m *Merger) Release() {
	m.pool.Release()
}

// ChunkOutcome is the per-chunk result reported to the job tracker once, not
// per row, to bound status-update volume.
type ChunkOutcome struct {
	Succeeded int
	Failed    int
}

// MergeChunk processes every row of the chunk with bounded parallelism and
// returns the aggregate outcome. Row-level errors are counted and logged;
// only a broken worker pool surfaces as an error.
func (m *Merger) MergeChunk(ctx context.Context, chunk domain.Chunk) (ChunkOutcome, error) {
	var succeeded, failed int64
	var wg sync.WaitGroup

	// Category existence is racy against validation (a category may have
	// been deleted in between), so it is re-checked here, once per distinct
	// category per chunk.
	checker := newMemoizedChecker(m.categories)

	for i := range chunk.Rows {
		row := chunk.Rows[i]
		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			if err := m.mergeRow(ctx, chunk.StoreID, row, checker); err != nil {
				atomic.AddInt64(&failed, 1)
				logger.CtxWarn(ctx, "Row merge failed: store=%s, name=%q, error=%v",
					chunk.StoreID, row.Name, err)
				return
			}
			atomic.AddInt64(&succeeded, 1)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return ChunkOutcome{}, err
		}
	}
	wg.Wait()

	return ChunkOutcome{
		Succeeded: int(atomic.LoadInt64(&succeeded)),
		Failed:    int(atomic.LoadInt64(&failed)),
	}, nil
}

// mergeRow applies one validated row: create on first sight of the name,
// field-diffed update otherwise, and a clean skip when nothing differs.
// Write avoidance matters because every write triggers an index sync.
func (m *Merger) mergeRow(ctx context.Context, storeID string, row domain.ImportRow, checker *memoizedChecker) error {
	exists, err := checker.exists(ctx, storeID, row.CategoryID)
	if err != nil {
		return domain.NewTransportError("category existence check failed", err)
	}
	if !exists {
		return domain.NewReferenceError("category_id", "category no longer exists in store")
	}

	existing, err := m.products.GetByStoreName(ctx, storeID, row.Name)
	switch {
	case err == nil:
		return m.updateExisting(ctx, existing, row)
	case errors.Is(err, gorm.ErrRecordNotFound):
		return m.createNew(ctx, storeID, row)
	default:
		return domain.NewTransportError("product lookup failed", err)
	}
}

func (m *Merger) createNew(ctx context.Context, storeID string, row domain.ImportRow) error {
	product := &domain.Product{
		ID:          uuid.New().String(),
		StoreID:     storeID,
		Name:        row.Name,
		Description: row.Description,
		Price:       row.Price,
		CategoryID:  row.CategoryID,
		Keywords:    row.Keywords,
		DownloadURL: row.DownloadURL,
		VideoURL:    row.VideoURL,
		Featured:    row.Featured,
		Archived:    row.Archived,
		Images:      buildImages("", row.Images),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	for i := range product.Images {
		product.Images[i].ProductID = product.ID
	}

	if err := m.products.Create(ctx, product); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a create race on (store, name), likely a redelivered
			// sibling chunk. Converge by updating the winner's row.
			existing, gerr := m.products.GetByStoreName(ctx, storeID, row.Name)
			if gerr != nil {
				return domain.NewConflictError("create race on product name", err)
			}
			return m.updateExisting(ctx, existing, row)
		}
		return domain.NewTransportError("product create failed", err)
	}

	m.syncIndex(ctx, product.ID)
	return nil
}

func (m *Merger) updateExisting(ctx context.Context, existing *domain.Product, row domain.ImportRow) error {
	changed := diffFields(existing, row)
	imagesChanged := row.Images != nil && !stringSlicesEqual(existing.ImageURLs(), row.Images)

	if !changed && !imagesChanged {
		// Nothing differs: zero writes, zero index calls.
		return nil
	}

	if changed {
		existing.Description = row.Description
		existing.Price = row.Price
		existing.CategoryID = row.CategoryID
		existing.Keywords = row.Keywords
		existing.DownloadURL = row.DownloadURL
		existing.VideoURL = row.VideoURL
		existing.Featured = row.Featured
		existing.Archived = row.Archived
		existing.UpdatedAt = time.Now()
		if err := m.products.Update(ctx, existing); err != nil {
			return domain.NewTransportError("product update failed", err)
		}
	}

	if imagesChanged {
		images := buildImages(existing.ID, row.Images)
		if err := m.products.ReplaceImages(ctx, existing.ID, images); err != nil {
			return domain.NewTransportError("image replace failed", err)
		}
	}

	m.syncIndex(ctx, existing.ID)
	return nil
}

// syncIndex projects the write into the search index. An index failure never
// rolls back the catalog write; the index is left stale and the failure is
// logged for later reconciliation.
func (m *Merger) syncIndex(ctx context.Context, productID string) {
	if m.syncer == nil {
		return
	}
	if err := m.syncer.Upsert(ctx, productID); err != nil {
		logger.CtxError(ctx, "Index upsert failed, index is stale: product=%s, error=%v", productID, err)
	}
}

// diffFields reports whether any merge-owned field of existing differs from
// the row. Keyword comparison is set equality; order carries no meaning.
func diffFields(existing *domain.Product, row domain.ImportRow) bool {
	return existing.Description != row.Description ||
		existing.Price != row.Price ||
		existing.CategoryID != row.CategoryID ||
		existing.DownloadURL != row.DownloadURL ||
		existing.VideoURL != row.VideoURL ||
		existing.Featured != row.Featured ||
		existing.Archived != row.Archived ||
		!keywordSetsEqual(existing.Keywords, row.Keywords)
}

func keywordSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, k := range a {
		set[k] = true
	}
	for _, k := range b {
		if !set[k] {
			return false
		}
	}
	return true
}

func stringSlicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func buildImages(productID string, urls []string) []domain.ProductImage {
	images := make([]domain.ProductImage, 0, len(urls))
	for i, url := range urls {
		images = append(images, domain.ProductImage{
			ID:        uuid.New().String(),
			ProductID: productID,
			Position:  i,
			URL:       url,
			CreatedAt: time.Now(),
		})
	}
	return images
}

// memoizedChecker caches category existence per chunk so a chunk of rows in
// the same category costs one lookup. Safe for concurrent row workers.
type memoizedChecker struct {
	inner CategoryChecker
	mu    sync.Mutex
	seen  map[string]bool
}

func newMemoizedChecker(inner CategoryChecker) *memoizedChecker {
	return &memoizedChecker{inner: inner, seen: make(map[string]bool)}
}

func (c *memoizedChecker) exists(ctx context.Context, storeID, categoryID string) (bool, error) {
	key := storeID + "/" + categoryID
	c.mu.Lock()
	cached, ok := c.seen[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	// The lock is not held across the lookup; a duplicate check under
	// contention is cheaper than blocking sibling rows on the network.
	exists, err := c.inner.Exists(ctx, storeID, categoryID)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.seen[key] = exists
	c.mu.Unlock()
	return exists, nil
}
