package pipeline

import (
	"context"
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
)

// countingUpserter records index projections.
type countingUpserter struct {
	mu    sync.Mutex
	calls int
	ids   []string
}

func (u *countingUpserter) Upsert(ctx context.Context, productID string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.calls++
	u.ids = append(u.ids, productID)
	return nil
}

func (u *countingUpserter) count() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.calls
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// Single connection: concurrent row workers would otherwise hit SQLite
	// busy errors that say nothing about the merge logic under test.
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

func seedCategory(t *testing.T, db *gorm.DB, storeID, id string) {
	t.Helper()
	require.NoError(t, db.Create(&domain.Category{ID: id, StoreID: storeID, Name: "Category " + id}).Error)
}

func newTestMerger(t *testing.T, db *gorm.DB, syncer Upserter) *Merger {
	t.Helper()
	m, err := NewMerger(
		repository.NewProductRepository(db),
		repository.NewCategoryRepository(db),
		syncer,
		MergerConfig{RowFanout: 2},
	)
	require.NoError(t, err)
	t.Cleanup(m.Release)
	return m
}

func importRow(name string) domain.ImportRow {
	return domain.ImportRow{
		Name:       name,
		Price:      9.99,
		CategoryID: "cat-1",
		Keywords:   []string{"logo", "vector"},
	}
}

func TestMergeChunkCreatesProducts(t *testing.T) {
	db := openTestDB(t)
	seedCategory(t, db, "store-1", "cat-1")
	syncer := &countingUpserter{}
	m := newTestMerger(t, db, syncer)

	chunk := domain.Chunk{
		JobID:   "job-1",
		StoreID: "store-1",
		Rows:    []domain.ImportRow{importRow("Logo"), importRow("Icon"), importRow("Banner")},
	}

	outcome, err := m.MergeChunk(context.Background(), chunk)
	require.NoError(t, err)
	require.Equal(t, 3, outcome.Succeeded)
	require.Equal(t, 0, outcome.Failed)

	var count int64
	require.NoError(t, db.Model(&domain.Product{}).Count(&count).Error)
	require.EqualValues(t, 3, count)
	require.Equal(t, 3, syncer.count())
}

func TestMergeChunkIdempotentRedelivery(t *testing.T) {
	db := openTestDB(t)
	seedCategory(t, db, "store-1", "cat-1")
	syncer := &countingUpserter{}
	m := newTestMerger(t, db, syncer)

	chunk := domain.Chunk{
		JobID:   "job-1",
		StoreID: "store-1",
		Rows:    []domain.ImportRow{importRow("Logo"), importRow("Icon")},
	}

	_, err := m.MergeChunk(context.Background(), chunk)
	require.NoError(t, err)
	firstSyncs := syncer.count()

	// Redelivery of the identical chunk: same row count, zero new writes,
	// zero new index calls.
	outcome, err := m.MergeChunk(context.Background(), chunk)
	require.NoError(t, err)
	require.Equal(t, 2, outcome.Succeeded)

	var count int64
	require.NoError(t, db.Model(&domain.Product{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
	require.Equal(t, firstSyncs, syncer.count(), "clean re-merge must not touch the index")
}

func TestMergeChunkUpdatesChangedFields(t *testing.T) {
	db := openTestDB(t)
	seedCategory(t, db, "store-1", "cat-1")
	syncer := &countingUpserter{}
	m := newTestMerger(t, db, syncer)

	chunk := domain.Chunk{JobID: "job-1", StoreID: "store-1", Rows: []domain.ImportRow{importRow("Logo")}}
	_, err := m.MergeChunk(context.Background(), chunk)
	require.NoError(t, err)

	updated := importRow("Logo")
	updated.Price = 14.99
	updated.Description = "refreshed"
	chunk.Rows = []domain.ImportRow{updated}

	outcome, err := m.MergeChunk(context.Background(), chunk)
	require.NoError(t, err)
	require.Equal(t, 1, outcome.Succeeded)

	products := repository.NewProductRepository(db)
	got, err := products.GetByStoreName(context.Background(), "store-1", "Logo")
	require.NoError(t, err)
	require.Equal(t, 14.99, got.Price)
	require.Equal(t, "refreshed", got.Description)

	var count int64
	require.NoError(t, db.Model(&domain.Product{}).Count(&count).Error)
	require.EqualValues(t, 1, count, "update must not create a second row")
}

func TestMergeChunkReplacesImageListWholesale(t *testing.T) {
	db := openTestDB(t)
	seedCategory(t, db, "store-1", "cat-1")
	m := newTestMerger(t, db, &countingUpserter{})

	row := importRow("Logo")
	row.Images = []string{"a.png", "b.png"}
	chunk := domain.Chunk{JobID: "job-1", StoreID: "store-1", Rows: []domain.ImportRow{row}}
	_, err := m.MergeChunk(context.Background(), chunk)
	require.NoError(t, err)

	// Reorder: same set, different positions. Wholesale replace must apply it.
	row.Images = []string{"b.png", "a.png"}
	chunk.Rows = []domain.ImportRow{row}
	_, err = m.MergeChunk(context.Background(), chunk)
	require.NoError(t, err)

	products := repository.NewProductRepository(db)
	got, err := products.GetByStoreName(context.Background(), "store-1", "Logo")
	require.NoError(t, err)
	require.Equal(t, []string{"b.png", "a.png"}, got.ImageURLs())
}

func TestMergeChunkRowIndependence(t *testing.T) {
	db := openTestDB(t)
	seedCategory(t, db, "store-1", "cat-1")
	m := newTestMerger(t, db, &countingUpserter{})

	orphan := importRow("Orphan")
	orphan.CategoryID = "cat-deleted" // validated before the category vanished
	chunk := domain.Chunk{
		JobID:   "job-1",
		StoreID: "store-1",
		Rows:    []domain.ImportRow{importRow("Logo"), orphan, importRow("Icon")},
	}

	outcome, err := m.MergeChunk(context.Background(), chunk)
	require.NoError(t, err)
	require.Equal(t, 2, outcome.Succeeded)
	require.Equal(t, 1, outcome.Failed)

	var count int64
	require.NoError(t, db.Model(&domain.Product{}).Count(&count).Error)
	require.EqualValues(t, 2, count, "one bad row must not abort its siblings")
}

func TestKeywordSetsEqual(t *testing.T) {
	testCases := []struct {
		name string
		a, b []string
		want bool
	}{
		{name: "same order", a: []string{"a", "b"}, b: []string{"a", "b"}, want: true},
		{name: "different order", a: []string{"a", "b"}, b: []string{"b", "a"}, want: true},
		{name: "different length", a: []string{"a"}, b: []string{"a", "b"}, want: false},
		{name: "different members", a: []string{"a", "b"}, b: []string{"a", "c"}, want: false},
		{name: "both empty", a: nil, b: nil, want: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := keywordSetsEqual(tc.a, tc.b); got != tc.want {
				t.Errorf("keywordSetsEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}
