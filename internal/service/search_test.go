package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/repository"
	"github.com/keilo/catalogd/internal/search"
)

// fakeIndex is an in-memory SearchIndex double recording all traffic.
type fakeIndex struct {
	mu        sync.Mutex
	hits      []search.Hit
	searchErr error

	upserted []string
	docs     []*search.Document
	removed  []string
	writeErr error

	stagings  int
	bulks     [][]string
	bulkErr   error
	promoted  []string
	dropped   []string
	promote   error
}

func (f *fakeIndex) Upsert(ctx context.Context, doc *search.Document, vector []float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.upserted = append(f.upserted, doc.ProductID)
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeIndex) Remove(ctx context.Context, productID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.removed = append(f.removed, productID)
	return nil
}

func (f *fakeIndex) Search(ctx context.Context, vector []float32, storeID, categoryID string, limit, offset int) ([]search.Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.hits, nil
}

func (f *fakeIndex) CreateStaging(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stagings++
	return fmt.Sprintf("staging-%d", f.stagings), nil
}

func (f *fakeIndex) BulkUpsert(ctx context.Context, collection string, docs []*search.Document, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkErr != nil {
		return f.bulkErr
	}
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ProductID
	}
	f.bulks = append(f.bulks, ids)
	return nil
}

func (f *fakeIndex) PromoteStaging(ctx context.Context, staging string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.promote != nil {
		return f.promote
	}
	f.promoted = append(f.promoted, staging)
	return nil
}

func (f *fakeIndex) DropCollection(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, name)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&domain.Product{},
		&domain.ProductImage{},
		&domain.Category{},
	))
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, id, storeID, name string) {
	t.Helper()
	require.NoError(t, db.Create(&domain.Product{
		ID:         id,
		StoreID:    storeID,
		Name:       name,
		Price:      5,
		CategoryID: "cat-1",
	}).Error)
}

func TestSearchResolvesHitsInScoreOrder(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedProduct(t, db, "p1", "store-1", "Minimal Logo Pack")
	seedProduct(t, db, "p2", "store-1", "Logo Bundle")

	index := &fakeIndex{hits: []search.Hit{
		{ProductID: "p2", Score: 0.9},
		{ProductID: "p1", Score: 0.7},
	}}
	svc := NewSearchService(repository.NewProductRepository(db), index, search.NewEmbedder(64))

	result, err := svc.Search(ctx, "store-1", "logo", "", 10, 0)
	require.NoError(t, err)
	require.False(t, result.Degraded)
	require.Len(t, result.Products, 2)
	require.Equal(t, "p2", result.Products[0].ID, "hit order must follow score order")
	require.Equal(t, "p1", result.Products[1].ID)
}

func TestSearchDropsUnresolvableHits(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedProduct(t, db, "p1", "store-1", "Minimal Logo Pack")

	index := &fakeIndex{hits: []search.Hit{
		{ProductID: "p-deleted", Score: 0.95}, // index lagging a delete
		{ProductID: "p1", Score: 0.7},
	}}
	svc := NewSearchService(repository.NewProductRepository(db), index, search.NewEmbedder(64))

	result, err := svc.Search(ctx, "store-1", "logo", "", 10, 0)
	require.NoError(t, err)
	require.Len(t, result.Products, 1)
	require.Equal(t, "p1", result.Products[0].ID)
}

func TestSearchDegradesToFallbackOnIndexFailure(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedProduct(t, db, "p1", "store-1", "Minimal Logo Pack")
	seedProduct(t, db, "p2", "store-2", "Other Store Logo")

	index := &fakeIndex{searchErr: errors.New("connection refused")}
	svc := NewSearchService(repository.NewProductRepository(db), index, search.NewEmbedder(64))

	result, err := svc.Search(ctx, "store-1", "logo", "", 10, 0)
	require.NoError(t, err, "index failure must degrade, not fail")
	require.True(t, result.Degraded)
	require.Len(t, result.Products, 1, "fallback must stay store-scoped")
	require.Equal(t, "p1", result.Products[0].ID)
}

func TestSearchHardErrorWhenBothPathsFail(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	// Closing the underlying pool makes the fallback query fail too.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	index := &fakeIndex{searchErr: errors.New("connection refused")}
	svc := NewSearchService(repository.NewProductRepository(db), index, search.NewEmbedder(64))

	_, err = svc.Search(ctx, "store-1", "logo", "", 10, 0)
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindTransport))
}

func TestAutocomplete(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	seedProduct(t, db, "p1", "store-1", "Logo Pack")
	seedProduct(t, db, "p2", "store-1", "Logo Bundle")
	seedProduct(t, db, "p3", "store-1", "Texture Set")

	svc := NewSearchService(repository.NewProductRepository(db), &fakeIndex{}, search.NewEmbedder(64))

	names, err := svc.Autocomplete(ctx, "store-1", "Logo", 10)
	require.NoError(t, err)
	require.Len(t, names, 2)

	// Empty prefix short-circuits without a database call.
	names, err = svc.Autocomplete(ctx, "store-1", "  ", 10)
	require.NoError(t, err)
	require.Empty(t, names)
}
