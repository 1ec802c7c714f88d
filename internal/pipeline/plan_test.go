package pipeline

import (
	"fmt"
	"testing"

	"github.com/keilo/catalogd/internal/domain"
)

func makeRows(n int) []domain.ImportRow {
	rows := make([]domain.ImportRow, n)
	for i := range rows {
		rows[i] = domain.ImportRow{Name: fmt.Sprintf("Item %d", i), Price: 1, CategoryID: "cat-1"}
	}
	return rows
}

func TestPlanChunks(t *testing.T) {
	testCases := []struct {
		name       string
		rows       int
		size       int
		wantChunks int
		wantLast   int
	}{
		{name: "exact multiple", rows: 80, size: 40, wantChunks: 2, wantLast: 40},
		{name: "remainder chunk", rows: 85, size: 40, wantChunks: 3, wantLast: 5},
		{name: "single short chunk", rows: 3, size: 40, wantChunks: 1, wantLast: 3},
		{name: "size one", rows: 4, size: 1, wantChunks: 4, wantLast: 1},
		{name: "default size", rows: 41, size: 0, wantChunks: 2, wantLast: 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			chunks := PlanChunks("job-1", "store-1", makeRows(tc.rows), tc.size)
			if len(chunks) != tc.wantChunks {
				t.Fatalf("Got %d chunks, want %d", len(chunks), tc.wantChunks)
			}
			if got := len(chunks[len(chunks)-1].Rows); got != tc.wantLast {
				t.Errorf("Last chunk has %d rows, want %d", got, tc.wantLast)
			}

			// Every row lands in exactly one chunk, in order.
			total := 0
			for i, c := range chunks {
				if c.Seq != i {
					t.Errorf("Chunk %d has seq %d", i, c.Seq)
				}
				if c.JobID != "job-1" || c.StoreID != "store-1" {
					t.Errorf("Chunk %d lost its job/store tags", i)
				}
				total += len(c.Rows)
			}
			if total != tc.rows {
				t.Errorf("Chunks cover %d rows, want %d", total, tc.rows)
			}
		})
	}
}

func TestPlanChunksEmpty(t *testing.T) {
	if chunks := PlanChunks("job-1", "store-1", nil, 40); chunks != nil {
		t.Errorf("Expected nil for empty rows, got %d chunks", len(chunks))
	}
}
