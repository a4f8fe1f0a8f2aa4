package rag

import (
	"fmt"

	"github.com/reportlens/reportlens/rag/types"
)

// Chunker splits document text into overlapping fixed-size spans.
// Identical input text and parameters always yield identical chunk
// boundaries, which keeps re-indexing idempotent.
type Chunker struct {
	maxSpan int
	overlap int
}

// NewChunker validates 0 <= overlap < maxSpan and returns a Chunker.
func NewChunker(maxSpan, overlap int) (*Chunker, error) {
	if maxSpan <= 0 {
		return nil, fmt.Errorf("%w: max span must be positive, got %d", ErrInvalidInput, maxSpan)
	}
	if overlap < 0 || overlap >= maxSpan {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidInput, maxSpan, overlap)
	}
	return &Chunker{maxSpan: maxSpan, overlap: overlap}, nil
}

// Chunk slices text greedily: take maxSpan characters, advance the start by
// maxSpan-overlap, repeat. The final chunk may be shorter than maxSpan; text
// shorter than maxSpan yields exactly one chunk. Spans and the Start/End
// offsets count runes, not bytes, so a span edge never splits a multi-byte
// character. Embeddings are left unset.
func (c *Chunker) Chunk(documentID, text string) []types.Chunk {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := c.maxSpan - c.overlap
	var chunks []types.Chunk
	for start, seq := 0, 0; start < len(runes); start, seq = start+step, seq+1 {
		end := start + c.maxSpan
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, types.Chunk{
			DocumentID: documentID,
			Sequence:   seq,
			Text:       string(runes[start:end]),
			Start:      start,
			End:        end,
		})
		if end == len(runes) {
			break
		}
	}

	return chunks
}
