package interfaces

import (
	"context"

	"github.com/reportlens/reportlens/rag/types"
)

// Engine defines the interface for vector collection backends.
//
// Upsert is idempotent: existing entries for the document are deleted before
// the new set is inserted, so a re-index never leaves stale chunks mixed with
// new ones. Search restricts results to allowedDocIDs (unrestricted when the
// set is empty), returns similarity normalized to [0, 1], and breaks metric
// ties by ascending (sequence, document_id).
type Engine interface {
	Upsert(ctx context.Context, documentID, sourceName string, chunks []types.Chunk) error
	Search(ctx context.Context, queryVector []float32, k int, allowedDocIDs []string) ([]types.SearchResult, error)
	Delete(ctx context.Context, documentID string) error
	Stats(ctx context.Context) (types.StoreStats, error)
	Reset(ctx context.Context) error
	Count() int
}
