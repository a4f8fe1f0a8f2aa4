package rag

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/reportlens/reportlens/rag/types"
)

var bucketDocuments = []byte("documents")

// Registry is the durable record of which documents have been indexed. It is
// the source of truth for what can appear in retrieval filters: a document is
// queryable only if it is registered with status "indexed" and its chunks
// exist in the collection store.
type Registry struct {
	db *bbolt.DB
}

// OpenRegistry opens (or creates) the registry database at path.
func OpenRegistry(path string) (*Registry, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDocuments)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create documents bucket: %w", err)
	}

	return &Registry{db: db}, nil
}

// Register writes the document record, replacing any previous entry for the
// same identifier (replace-on-reindex, not merge).
func (r *Registry) Register(rec types.DocumentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("%w: empty document id", ErrInvalidInput)
	}
	if rec.Status == "" {
		rec.Status = types.StatusIndexed
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketDocuments).Put([]byte(rec.ID), data)
	})
}

// Unregister removes the document record. Removing an unknown document is
// ErrNotFound so callers can tell a stale identifier from a successful delete.
func (r *Registry) Unregister(id string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDocuments)
		if b.Get([]byte(id)) == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return b.Delete([]byte(id))
	})
}

// Get returns the record for one document.
func (r *Registry) Get(id string) (types.DocumentRecord, error) {
	var rec types.DocumentRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDocuments).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &rec)
	})
	return rec, err
}

// ListAll returns every registered document, ordered by identifier.
func (r *Registry) ListAll() ([]types.DocumentRecord, error) {
	var records []types.DocumentRecord
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocuments).ForEach(func(k, v []byte) error {
			var rec types.DocumentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt registry entry %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	return records, err
}

// Exists reports whether the document is registered at all, regardless of
// status.
func (r *Registry) Exists(id string) bool {
	exists := false
	r.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(bucketDocuments).Get([]byte(id)) != nil
		return nil
	})
	return exists
}

// Queryable reports whether the document may appear in retrieval filters.
func (r *Registry) Queryable(id string) bool {
	rec, err := r.Get(id)
	return err == nil && rec.Status == types.StatusIndexed
}

// SetStatus updates a document's status, used by Verify to mark drifted
// documents inconsistent until they are re-indexed.
func (r *Registry) SetStatus(id, status string) error {
	rec, err := r.Get(id)
	if err != nil {
		return err
	}
	rec.Status = status
	return r.Register(rec)
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}
