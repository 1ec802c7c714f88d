package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keilo/catalogd/internal/domain"
	"github.com/keilo/catalogd/internal/feed"
	"github.com/keilo/catalogd/internal/pipeline"
	"github.com/keilo/catalogd/internal/queue"
	"github.com/keilo/catalogd/internal/repository"
)

func importerFixture(t *testing.T) (*ImportService, *queue.GormQueue, *repository.JobRepository) {
	t.Helper()
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&domain.ImportJob{}, &queue.Message{}))
	require.NoError(t, db.Create(&domain.Category{ID: "cat-1", StoreID: "store-1", Name: "Logos"}).Error)

	jobs := repository.NewJobRepository(db)
	taskq := queue.NewGormQueue(db)
	validator := pipeline.NewValidator(repository.NewCategoryRepository(db))

	svc := NewImportService(jobs, validator, taskq, nil, ImporterConfig{
		ChunkSize: 2,
		Dispatcher: pipeline.DispatcherConfig{
			BatchSize: 2,
			Rate:      1000,
			Backoff:   time.Millisecond,
		},
	})
	return svc, taskq, jobs
}

func rawRows(names ...string) []pipeline.RawRow {
	raws := make([]pipeline.RawRow, len(names))
	for i, n := range names {
		raws[i] = pipeline.RawRow{Name: n, Price: 5.0, CategoryID: "cat-1"}
	}
	return raws
}

func TestSubmitAcceptsFeedAndDispatches(t *testing.T) {
	ctx := context.Background()
	svc, taskq, _ := importerFixture(t)

	raws := rawRows("Logo", "Icon", "Banner", "Poster", "Sticker")
	bad := pipeline.RawRow{Name: "Broken", Price: "-1", CategoryID: "cat-1"}
	raws = append(raws, bad)

	result, err := svc.Submit(ctx, "store-1", "actor-1", raws, nil, feed.FormatJSON)
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	require.Equal(t, 5, result.AcceptedRows)
	require.Equal(t, 3, result.PlannedChunks)
	require.Equal(t, 6, result.Job.TotalRows)
	require.Equal(t, 1, result.Job.FailedRows, "validation failures are counted up front")

	// Dispatch runs in the background; all chunks land on the queue.
	require.Eventually(t, func() bool {
		pending, err := taskq.Pending(ctx, result.Job.ID)
		return err == nil && pending == 3
	}, 2*time.Second, 10*time.Millisecond)

	view, err := svc.Status(ctx, result.Job.ID)
	require.NoError(t, err)
	require.EqualValues(t, 3, view.PendingChunks)
}

func TestSubmitAllRowsInvalidCompletesImmediately(t *testing.T) {
	ctx := context.Background()
	svc, taskq, _ := importerFixture(t)

	raws := []pipeline.RawRow{
		{Name: "", Price: 5.0, CategoryID: "cat-1"},
		{Name: "Orphan", Price: 5.0, CategoryID: "cat-gone"},
	}

	result, err := svc.Submit(ctx, "store-1", "", raws, nil, feed.FormatJSON)
	require.NoError(t, err)
	require.Len(t, result.Failures, 2)
	require.Equal(t, domain.JobStatusCompleted, result.Job.Status)
	require.Equal(t, 2, result.Job.FailedRows)
	require.Equal(t, 2, result.Job.ProcessedRows)

	pending, err := taskq.Pending(ctx, result.Job.ID)
	require.NoError(t, err)
	require.Zero(t, pending, "nothing dispatchable must reach the queue")
}

func TestSubmitUnreachableCategoryStoreFailsSubmission(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&domain.ImportJob{}, &queue.Message{}))

	jobs := repository.NewJobRepository(db)
	taskq := queue.NewGormQueue(db)

	// Close the pool so the category existence check hits a transport error.
	sqlDB, err := db.DB()
	require.NoError(t, err)

	validator := pipeline.NewValidator(repository.NewCategoryRepository(db))
	svc := NewImportService(jobs, validator, taskq, nil, ImporterConfig{})

	require.NoError(t, sqlDB.Close())

	_, err = svc.Submit(ctx, "store-1", "", rawRows("Logo"), nil, feed.FormatJSON)
	require.Error(t, err)
	require.True(t, domain.IsKind(err, domain.KindTransport))
}

func TestAbortStopsFurtherDispatch(t *testing.T) {
	ctx := context.Background()
	svc, _, jobs := importerFixture(t)

	result, err := svc.Submit(ctx, "store-1", "", rawRows("Logo", "Icon"), nil, feed.FormatJSON)
	require.NoError(t, err)

	require.NoError(t, svc.Abort(ctx, result.Job.ID))

	flag, err := jobs.AbortRequested(ctx, result.Job.ID)
	require.NoError(t, err)
	require.True(t, flag)
}
