package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mudler/xlog"
	"github.com/sashabaranov/go-openai"
)

// Embedder maps text to fixed-dimension vectors. Embed returns one vector per
// input, same order as the input.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions(ctx context.Context) (int, error)
}

// OpenAIEmbedder embeds text through an OpenAI-compatible embeddings endpoint.
// The model is probed once on first use; concurrent first calls share a single
// initialization guarded by a mutex, so the probe never runs twice.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string

	mu      sync.Mutex
	ready   bool
	initErr error
	dims    int
}

// NewOpenAIEmbedder returns an uninitialized embedder; the model is resolved
// lazily on the first Embed or Dimensions call.
func NewOpenAIEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	return &OpenAIEmbedder{client: client, model: model}
}

// ensureInitialized probes the model with a test embedding. An unresolvable
// model name is an initialization error, fatal for the operation that
// triggered it; that error is cached so later callers fail fast. A canceled
// context or a transport failure says nothing about the model, so the probe
// stays unresolved and the next caller retries it.
func (e *OpenAIEmbedder) ensureInitialized(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready {
		return e.initErr
	}

	xlog.Info("Initializing embedding model", "model", e.model)
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{"test"},
		Model: openai.EmbeddingModel(e.model),
	})
	switch {
	case err != nil:
		wrapped := fmt.Errorf("%w: probing model %q: %v", ErrEmbeddingFailed, e.model, err)
		var apiErr *openai.APIError
		if !errors.As(err, &apiErr) {
			return wrapped
		}
		e.initErr = wrapped
	case len(resp.Data) == 0:
		e.initErr = fmt.Errorf("%w: model %q returned no embedding data", ErrEmbeddingFailed, e.model)
	default:
		e.dims = len(resp.Data[0].Embedding)
		xlog.Info("Embedding model ready", "model", e.model, "dimensions", e.dims)
	}
	e.ready = true

	return e.initErr
}

// Embed returns one vector per input text, preserving order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.ensureInitialized(ctx); err != nil {
		return nil, err
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d", ErrEmbeddingFailed, len(texts), len(resp.Data))
	}

	// The API reports the position of each vector; order by it rather than
	// trusting response order.
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbeddingFailed, d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}

// Dimensions reports the vector size of the underlying model.
func (e *OpenAIEmbedder) Dimensions(ctx context.Context) (int, error) {
	if err := e.ensureInitialized(ctx); err != nil {
		return 0, err
	}
	return e.dims, nil
}

var (
	sharedEmbeddersMu sync.Mutex
	sharedEmbedders   = map[string]*OpenAIEmbedder{}
)

// SharedEmbedder returns the process-wide embedder for the given model,
// creating it on first request. All callers reuse the same instance so the
// model is loaded once per process.
func SharedEmbedder(client *openai.Client, model string) *OpenAIEmbedder {
	sharedEmbeddersMu.Lock()
	defer sharedEmbeddersMu.Unlock()

	if e, ok := sharedEmbedders[model]; ok {
		return e
	}
	e := NewOpenAIEmbedder(client, model)
	sharedEmbedders[model] = e
	return e
}
