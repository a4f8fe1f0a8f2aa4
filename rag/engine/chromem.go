package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"

	"github.com/mudler/xlog"
	"github.com/philippgille/chromem-go"
	"github.com/reportlens/reportlens/rag/types"
)

const statePrefix = "collection-"

// ChromemDB is the embedded vector collection backend. Chunk vectors live in a
// persistent chromem collection; a sidecar JSON state file tracks per-document
// entry counts so Stats can report them without enumerating the collection.
type ChromemDB struct {
	sync.Mutex
	collectionName string
	db             *chromem.DB
	collection     *chromem.Collection
	statePath      string
	docCounts      map[string]int
}

// NewChromemDBCollection opens (or creates) a persistent collection under path.
func NewChromemDBCollection(collection, path string) (*ChromemDB, error) {
	db, err := chromem.NewPersistentDB(path, true)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db: %w", err)
	}

	c := &ChromemDB{
		collectionName: collection,
		db:             db,
		statePath:      filepath.Join(path, fmt.Sprintf("%s%s.json", statePrefix, collection)),
		docCounts:      map[string]int{},
	}

	// All vectors are precomputed by the embedder; the collection must never
	// embed on its own.
	col, err := db.GetOrCreateCollection(collection, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %q: %w", collection, err)
	}
	c.collection = col

	if err := c.loadState(); err != nil {
		return nil, err
	}

	return c, nil
}

func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("collection requires precomputed embeddings")
}

func entryID(documentID string, sequence int) string {
	return fmt.Sprintf("%s:%06d", documentID, sequence)
}

func (c *ChromemDB) loadState() error {
	data, err := os.ReadFile(c.statePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading collection state: %w", err)
	}
	return json.Unmarshal(data, &c.docCounts)
}

// saveState is called with the engine lock held.
func (c *ChromemDB) saveState() error {
	data, err := json.Marshal(c.docCounts)
	if err != nil {
		return err
	}
	return os.WriteFile(c.statePath, data, 0644)
}

func (c *ChromemDB) Count() int {
	return c.collection.Count()
}

// Upsert replaces all entries for the document with the given chunk set. The
// state file is written after the insert, so a crash in between leaves a count
// mismatch that Verify surfaces instead of a silently stale entry set.
func (c *ChromemDB) Upsert(ctx context.Context, documentID, sourceName string, chunks []types.Chunk) error {
	if documentID == "" {
		return fmt.Errorf("empty document id")
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to store for document %s", documentID)
	}

	c.Lock()
	defer c.Unlock()

	// Delete unconditionally, not just when the sidecar knows the document:
	// entries can survive a crash that lost the state file, and the filtered
	// delete is a no-op when nothing matches.
	if c.collection.Count() > 0 {
		if err := c.collection.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
			return fmt.Errorf("deleting stale entries for %s: %w", documentID, err)
		}
	}

	documents := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %d of document %s has no embedding", chunk.Sequence, documentID)
		}
		documents[i] = chromem.Document{
			ID:        entryID(documentID, chunk.Sequence),
			Content:   chunk.Text,
			Embedding: chunk.Embedding,
			Metadata: map[string]string{
				"document_id": documentID,
				"sequence":    strconv.Itoa(chunk.Sequence),
				"source":      sourceName,
			},
		}
	}

	if err := c.collection.AddDocuments(ctx, documents, runtime.NumCPU()); err != nil {
		return fmt.Errorf("storing %d entries for %s: %w", len(documents), documentID, err)
	}

	c.docCounts[documentID] = len(chunks)
	if err := c.saveState(); err != nil {
		return fmt.Errorf("saving collection state: %w", err)
	}

	xlog.Debug("Upserted document entries", "document", documentID, "entries", len(chunks))
	return nil
}

// Delete removes all entries for the document; no-op when absent.
func (c *ChromemDB) Delete(ctx context.Context, documentID string) error {
	c.Lock()
	defer c.Unlock()

	if _, exists := c.docCounts[documentID]; !exists && c.collection.Count() == 0 {
		return nil
	}

	if err := c.collection.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return fmt.Errorf("deleting entries for %s: %w", documentID, err)
	}

	delete(c.docCounts, documentID)
	if err := c.saveState(); err != nil {
		return fmt.Errorf("saving collection state: %w", err)
	}

	return nil
}

// Search returns the top-k entries by similarity, restricted to allowedDocIDs
// when non-empty. Similarity is cosine mapped to [0, 1]; equal scores are
// ordered by ascending (sequence, document_id) so results are deterministic.
func (c *ChromemDB) Search(ctx context.Context, queryVector []float32, k int, allowedDocIDs []string) ([]types.SearchResult, error) {
	// The lock spans the count and the query: chromem rejects nResults above
	// the live entry count, so a delete landing between the two calls would
	// fail an otherwise valid query.
	c.Lock()
	defer c.Unlock()

	total := c.collection.Count()
	if total == 0 || k < 1 {
		return nil, nil
	}

	// chromem caps nResults at the collection size and has no multi-value
	// metadata filter, so fetch everything and scope here. Collections hold
	// report chunks, not web corpora; this stays cheap.
	raw, err := c.collection.QueryEmbedding(ctx, queryVector, total, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}

	allowed := map[string]bool{}
	for _, id := range allowedDocIDs {
		allowed[id] = true
	}

	results := make([]types.SearchResult, 0, len(raw))
	for _, r := range raw {
		docID := r.Metadata["document_id"]
		if len(allowed) > 0 && !allowed[docID] {
			continue
		}
		seq, err := strconv.Atoi(r.Metadata["sequence"])
		if err != nil {
			return nil, fmt.Errorf("corrupt sequence metadata on entry %s: %w", r.ID, err)
		}
		results = append(results, types.SearchResult{
			DocumentID: docID,
			Sequence:   seq,
			SourceName: r.Metadata["source"],
			Content:    r.Content,
			Similarity: normalizeCosine(r.Similarity),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		if results[i].Sequence != results[j].Sequence {
			return results[i].Sequence < results[j].Sequence
		}
		return results[i].DocumentID < results[j].DocumentID
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// normalizeCosine maps cosine similarity from [-1, 1] onto [0, 1].
func normalizeCosine(s float32) float32 {
	n := (1 + s) / 2
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// Stats reports entry and document counts. The per-document counts come from
// the sidecar state written after each insert, so a crash mid-upsert shows up
// as a mismatch against the live entry count.
func (c *ChromemDB) Stats(ctx context.Context) (types.StoreStats, error) {
	c.Lock()
	defer c.Unlock()

	perDoc := make(map[string]int, len(c.docCounts))
	for id, n := range c.docCounts {
		perDoc[id] = n
	}

	return types.StoreStats{
		Entries:       c.collection.Count(),
		Documents:     len(perDoc),
		EntriesPerDoc: perDoc,
	}, nil
}

// Reset drops and recreates the collection and clears the state file.
func (c *ChromemDB) Reset(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	if err := c.db.DeleteCollection(c.collectionName); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	collection, err := c.db.GetOrCreateCollection(c.collectionName, nil, rejectEmbedding)
	if err != nil {
		return fmt.Errorf("recreating collection: %w", err)
	}
	c.collection = collection

	c.docCounts = map[string]int{}
	return c.saveState()
}
