package types

import "time"

// Chunk is a contiguous span of a document's text, the unit of embedding and
// retrieval. Identity is (DocumentID, Sequence); chunks are immutable once embedded.
type Chunk struct {
	DocumentID string
	Sequence   int
	Text       string
	Start      int
	End        int
	Embedding  []float32
}

// SearchResult represents a single result from a similarity query.
type SearchResult struct {
	DocumentID string
	Sequence   int
	SourceName string
	Content    string

	// Similarity between the query and the chunk, normalized to [0, 1].
	// The higher the value, the more similar the chunk is to the query.
	Similarity float32
}

// DocumentRecord is the registry's durable view of one indexed document.
type DocumentRecord struct {
	ID           string    `json:"id"`
	DisplayName  string    `json:"display_name"`
	SourceFormat string    `json:"source_format"`
	ChunkCount   int       `json:"chunk_count"`
	IndexedAt    time.Time `json:"indexed_at"`
	Status       string    `json:"status"`
}

// Document statuses. A document is queryable only while its status is
// StatusIndexed; Verify demotes drifted documents to StatusInconsistent.
const (
	StatusIndexed      = "indexed"
	StatusInconsistent = "inconsistent"
)

// StoreStats reports the observable state of the vector collection.
type StoreStats struct {
	Entries       int            `json:"entries"`
	Documents     int            `json:"documents"`
	EntriesPerDoc map[string]int `json:"entries_per_document"`
}

// Answer is the orchestrator's output: the generated text plus the exact
// context it was grounded on. Grounded is false when retrieval came back empty
// and the deterministic fallback was returned without a generation call.
type Answer struct {
	Text     string         `json:"text"`
	Contexts []SearchResult `json:"contexts"`
	Grounded bool           `json:"grounded"`
}
