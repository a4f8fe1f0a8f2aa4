package rag

import "errors"

// Sentinel errors for the indexing and retrieval paths. Callers distinguish
// these with errors.Is; leaf errors are wrapped with operation context
// (which document, which query) on the way up.
var (
	// ErrInvalidInput marks malformed requests: empty query, bad chunk
	// parameters, a filter naming unregistered documents. Rejected before
	// any store mutation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing document. An empty search result is not
	// an error; a missing registry entry is.
	ErrNotFound = errors.New("document not found")

	// ErrNoContext signals that retrieval produced no relevant chunks. The
	// orchestrator short-circuits on it instead of prompting the generator
	// with no grounding.
	ErrNoContext = errors.New("no relevant context")

	// ErrStoreUnavailable marks a backend connection failure, surfaced
	// distinctly from an empty result.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrUnreadableDocument marks a source file that could not be loaded
	// or converted to text.
	ErrUnreadableDocument = errors.New("unreadable document")
)

// Generation failure kinds, mapped from the external capability's errors so
// the caller can decide whether to retry with a different provider. No retry
// happens at this layer.
var (
	ErrInvalidCredential = errors.New("generation: invalid credential")
	ErrRateLimited       = errors.New("generation: rate limit exceeded")
	ErrModelUnavailable  = errors.New("generation: model unavailable")
	ErrGenerationTimeout = errors.New("generation: timeout")
	ErrGenerationFailed  = errors.New("generation failed")
	ErrEmbeddingFailed   = errors.New("embedding model unavailable")
)
