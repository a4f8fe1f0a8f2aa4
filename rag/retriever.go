package rag

import (
	"context"
	"fmt"

	"github.com/mudler/xlog"

	"github.com/reportlens/reportlens/rag/interfaces"
	"github.com/reportlens/reportlens/rag/types"
)

// Retriever answers a query with the top-K most relevant chunks, scoped to a
// caller-selected subset of documents. An empty allowed set means the whole
// collection.
type Retriever struct {
	engine   interfaces.Engine
	embedder Embedder
	registry *Registry
	defaultK int
	minScore float32
}

// NewRetriever creates a Retriever. defaultK is used when a request passes
// k < 1; minScore drops results whose normalized similarity falls below it
// (0 disables the floor).
func NewRetriever(engine interfaces.Engine, embedder Embedder, registry *Registry, defaultK int, minScore float32) *Retriever {
	if defaultK < 1 {
		defaultK = 5
	}
	return &Retriever{
		engine:   engine,
		embedder: embedder,
		registry: registry,
		defaultK: defaultK,
		minScore: minScore,
	}
}

// Retrieve embeds the query and searches the collection restricted to
// allowedDocIDs. Every identifier in the filter must name a queryable
// document; violations are rejected before the search. When nothing relevant
// is found the explicit ErrNoContext is returned instead of an empty success,
// so the orchestrator can short-circuit.
func (r *Retriever) Retrieve(ctx context.Context, query string, allowedDocIDs []string, k int) ([]types.SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidInput)
	}
	if k < 1 {
		k = r.defaultK
	}

	for _, id := range allowedDocIDs {
		if !r.registry.Exists(id) {
			return nil, fmt.Errorf("%w: filter references unregistered document %q", ErrInvalidInput, id)
		}
		if !r.registry.Queryable(id) {
			return nil, fmt.Errorf("%w: document %q is not queryable, re-index it first", ErrInvalidInput, id)
		}
	}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	results, err := r.engine.Search(ctx, vectors[0], k, allowedDocIDs)
	if err != nil {
		return nil, fmt.Errorf("searching for %q: %w", truncate(query, 80), err)
	}

	filtered := results[:0]
	for _, res := range results {
		if res.Similarity >= r.minScore {
			filtered = append(filtered, res)
		}
	}

	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w for query %q", ErrNoContext, truncate(query, 80))
	}

	xlog.Debug("Retrieved context", "results", len(filtered), "documents", len(allowedDocIDs))
	return filtered, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
