package pipeline

import "github.com/keilo/catalogd/internal/domain"

// DefaultChunkSize bounds rows per queue message. Sized in the tens of rows
// to keep each enqueued unit well under the transport's message-size limit.
const DefaultChunkSize = 40

// PlanChunks splits validated rows into ordered chunks of at most size rows,
// each tagged with the owning job and store. Every row lands in exactly one
// chunk; chunk boundaries never split a row. A size <= 0 falls back to
// DefaultChunkSize.
func PlanChunks(jobID, storeID string, rows []domain.ImportRow, size int) []domain.Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(rows) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, domain.Chunk{
			JobID:   jobID,
			StoreID: storeID,
			Seq:     len(chunks),
			Rows:    rows[start:end],
		})
	}
	return chunks
}
