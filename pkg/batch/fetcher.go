package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultChunkSize is the maximum number of IDs Azure DevOps accepts per batch request.
const DefaultChunkSize = 200

// progressEvery controls how often progress is logged for long fetches.
const progressEvery = 5

// ChunkFunc fetches the records for one chunk of IDs.
type ChunkFunc[T any] func(ctx context.Context, ids []int) ([]T, error)

// Plan splits ids into ordered chunks of at most size IDs. A non-positive size
// falls back to DefaultChunkSize. The chunks share ids' backing array.
func Plan(ids []int, size int) [][]int {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if len(ids) == 0 {
		return nil
	}

	chunks := make([][]int, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end:end])
	}
	return chunks
}

// FetchInChunks calls fetch once per chunk, sequentially, and concatenates the
// results in chunk order. It fails on the first chunk error without returning
// partial data.
func FetchInChunks[T any](ctx context.Context, ids []int, chunkSize int, fetch ChunkFunc[T]) ([]T, error) {
	chunks := Plan(ids, chunkSize)
	if len(chunks) == 0 {
		return []T{}, nil
	}

	start := time.Now()
	if len(chunks) > 1 {
		log.Debug().
			Int("ids", len(ids)).
			Int("chunks", len(chunks)).
			Msg("Starting chunked fetch")
	}

	results := make([]T, 0, len(ids))
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		items, err := fetch(ctx, chunk)
		if err != nil {
			log.Warn().
				Err(err).
				Int("chunk", i+1).
				Int("total", len(chunks)).
				Msg("Chunk fetch failed")
			return nil, fmt.Errorf("fetch chunk %d/%d: %w", i+1, len(chunks), err)
		}
		results = append(results, items...)

		if (i+1)%progressEvery == 0 && i+1 < len(chunks) {
			log.Info().
				Int("fetched", i+1).
				Int("total", len(chunks)).
				Float64("progress_pct", float64(i+1)/float64(len(chunks))*100).
				Msg("Fetch progress")
		}
	}

	if len(chunks) > 1 {
		log.Debug().
			Int("ids", len(ids)).
			Int("records", len(results)).
			Dur("duration", time.Since(start)).
			Msg("Chunked fetch complete")
	}

	return results, nil
}
