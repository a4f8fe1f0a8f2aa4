package rag

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mudler/xlog"

	"github.com/reportlens/reportlens/rag/interfaces"
	"github.com/reportlens/reportlens/rag/sources"
	"github.com/reportlens/reportlens/rag/types"
)

// Indexer drives the indexing pipeline: load, chunk, embed, store, register.
// The store upsert and the registry write happen in that fixed order; a
// failure in between leaves the document unregistered (not queryable) rather
// than partially queryable. Removal runs the pair in reverse.
type Indexer struct {
	engine   interfaces.Engine
	registry *Registry
	embedder Embedder
	chunker  *Chunker
	assetDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewIndexer creates an Indexer. assetDir holds a copy of every indexed source
// file so documents can be re-indexed without a fresh upload.
func NewIndexer(engine interfaces.Engine, registry *Registry, embedder Embedder, chunker *Chunker, assetDir string) (*Indexer, error) {
	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, fmt.Errorf("creating asset dir: %w", err)
	}
	return &Indexer{
		engine:   engine,
		registry: registry,
		embedder: embedder,
		chunker:  chunker,
		assetDir: assetDir,
		locks:    map[string]*sync.Mutex{},
	}, nil
}

// lockFor serializes operations on a single document identifier so concurrent
// re-indexing of the same document cannot interleave delete/insert sequences.
func (ix *Indexer) lockFor(documentID string) *sync.Mutex {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	l, ok := ix.locks[documentID]
	if !ok {
		l = &sync.Mutex{}
		ix.locks[documentID] = l
	}
	return l
}

// Index ingests the file at path as documentID, replacing any previous index
// of the same document. The source file is copied into the asset directory
// first so Reindex can re-run from it later.
func (ix *Indexer) Index(ctx context.Context, documentID, displayName, path string) (types.DocumentRecord, error) {
	if documentID == "" {
		return types.DocumentRecord{}, fmt.Errorf("%w: empty document id", ErrInvalidInput)
	}
	if displayName == "" {
		displayName = filepath.Base(path)
	}

	if _, err := os.Stat(path); err != nil {
		return types.DocumentRecord{}, fmt.Errorf("%w: %s: %v", ErrUnreadableDocument, path, err)
	}

	stored := filepath.Join(ix.assetDir, documentID+filepath.Ext(path))
	if stored != path {
		if err := copyFile(path, stored); err != nil {
			return types.DocumentRecord{}, fmt.Errorf("copying source for %s: %w", documentID, err)
		}
	}

	return ix.index(ctx, documentID, displayName, stored)
}

// Reindex re-runs the pipeline from the stored copy of the document's source.
func (ix *Indexer) Reindex(ctx context.Context, documentID string) (types.DocumentRecord, error) {
	rec, err := ix.registry.Get(documentID)
	if err != nil {
		return types.DocumentRecord{}, fmt.Errorf("reindexing %s: %w", documentID, err)
	}

	stored := filepath.Join(ix.assetDir, documentID+"."+rec.SourceFormat)
	return ix.index(ctx, documentID, rec.DisplayName, stored)
}

func (ix *Indexer) index(ctx context.Context, documentID, displayName, path string) (types.DocumentRecord, error) {
	lock := ix.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	text, err := sources.Load(path)
	if err != nil {
		return types.DocumentRecord{}, fmt.Errorf("%w: loading %s: %v", ErrUnreadableDocument, documentID, err)
	}
	if text == "" {
		return types.DocumentRecord{}, fmt.Errorf("%w: document %s is empty", ErrUnreadableDocument, documentID)
	}

	chunks := ix.chunker.Chunk(documentID, text)

	// Embedding runs outside any shared lock; only the per-document lock is
	// held, and chunk order is preserved end to end.
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return types.DocumentRecord{}, fmt.Errorf("embedding document %s: %w", documentID, err)
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}

	// Store first, then register. A crash here leaves the document absent
	// from the registry and therefore not queryable.
	if err := ix.engine.Upsert(ctx, documentID, displayName, chunks); err != nil {
		return types.DocumentRecord{}, fmt.Errorf("storing document %s: %w", documentID, err)
	}

	rec := types.DocumentRecord{
		ID:           documentID,
		DisplayName:  displayName,
		SourceFormat: sources.FormatName(path),
		ChunkCount:   len(chunks),
		IndexedAt:    time.Now().UTC(),
		Status:       types.StatusIndexed,
	}
	if err := ix.registry.Register(rec); err != nil {
		return types.DocumentRecord{}, fmt.Errorf("registering document %s: %w", documentID, err)
	}

	xlog.Info("Indexed document", "document", documentID, "chunks", len(chunks))
	return rec, nil
}

// Remove unregisters the document and then deletes its entries, the reverse
// of the indexing order, so the registry never points at missing chunks.
func (ix *Indexer) Remove(ctx context.Context, documentID string) error {
	lock := ix.lockFor(documentID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := ix.registry.Get(documentID)
	if err != nil {
		return fmt.Errorf("removing %s: %w", documentID, err)
	}

	if err := ix.registry.Unregister(documentID); err != nil {
		return fmt.Errorf("unregistering %s: %w", documentID, err)
	}
	if err := ix.engine.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("deleting entries for %s: %w", documentID, err)
	}

	os.Remove(filepath.Join(ix.assetDir, documentID+"."+rec.SourceFormat))

	xlog.Info("Removed document", "document", documentID)
	return nil
}

// Verify cross-checks registry chunk counts against the store. Documents
// whose counts disagree are marked inconsistent and excluded from query
// filters until re-indexed; no silent repair is attempted. It returns the
// store stats it fetched along with the identifiers it demoted.
func (ix *Indexer) Verify(ctx context.Context) (types.StoreStats, []string, error) {
	stats, err := ix.engine.Stats(ctx)
	if err != nil {
		return types.StoreStats{}, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	records, err := ix.registry.ListAll()
	if err != nil {
		return stats, nil, fmt.Errorf("listing registry: %w", err)
	}

	var drifted []string
	for _, rec := range records {
		if stats.EntriesPerDoc[rec.ID] == rec.ChunkCount {
			continue
		}
		xlog.Warn("Registry and store disagree, marking document inconsistent",
			"document", rec.ID, "registered", rec.ChunkCount, "stored", stats.EntriesPerDoc[rec.ID])
		if err := ix.registry.SetStatus(rec.ID, types.StatusInconsistent); err != nil {
			return stats, drifted, fmt.Errorf("marking %s inconsistent: %w", rec.ID, err)
		}
		drifted = append(drifted, rec.ID)
	}

	return stats, drifted, nil
}

func copyFile(src, dst string) error {
	in, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, in, 0644)
}
