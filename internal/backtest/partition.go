package backtest

import (
	"sort"
)

// Chunk is a contiguous batch of markets replayed by one worker.
type Chunk struct {
	Index   int
	Markets []string
}

// Partition sorts ids and splits them into contiguous chunks of
// min(perChunk, ceil(n/workers)) markets, at least one per chunk.
func Partition(ids []string, workers, perChunk int) []Chunk {
	if len(ids) == 0 {
		return nil
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	workers = max(workers, 1)
	size := (len(sorted) + workers - 1) / workers
	if perChunk > 0 {
		size = min(size, perChunk)
	}
	size = max(size, 1)

	chunks := make([]Chunk, 0, (len(sorted)+size-1)/size)
	for start := 0; start < len(sorted); start += size {
		end := min(start+size, len(sorted))
		chunks = append(chunks, Chunk{
			Index:   len(chunks),
			Markets: sorted[start:end:end],
		})
	}
	return chunks
}
