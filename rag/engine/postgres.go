package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mudler/xlog"
	"github.com/reportlens/reportlens/rag/types"
)

// PostgresDB is the pgvector-backed collection engine. Each collection maps to
// one table; filtered similarity search runs as an ANN query with a
// document_id = ANY(...) restriction, so scoping happens in the database.
type PostgresDB struct {
	pool          *pgxpool.Pool
	tableName     string
	embeddingDims int
}

// NewPostgresDBCollection connects to databaseURL and prepares the collection
// table for vectors of the given dimension.
func NewPostgresDBCollection(collectionName, databaseURL string, embeddingDims int) (*PostgresDB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL is required for the PostgreSQL engine")
	}
	if embeddingDims <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", embeddingDims)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pg := &PostgresDB{
		pool:          pool,
		tableName:     sanitizeTableName(collectionName),
		embeddingDims: embeddingDims,
	}

	if err := pg.setupDatabase(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	return pg, nil
}

func sanitizeTableName(name string) string {
	name = strings.ReplaceAll(name, "-", "_")
	name = strings.ReplaceAll(name, ".", "_")
	name = strings.ReplaceAll(name, " ", "_")
	if len(name) > 0 && (name[0] < 'a' || name[0] > 'z') && (name[0] < 'A' || name[0] > 'Z') {
		name = "col_" + name
	}
	return "chunks_" + name
}

func (p *PostgresDB) setupDatabase() error {
	ctx := context.Background()

	_, err := p.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to enable vector extension: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			sequence INTEGER NOT NULL,
			source TEXT,
			content TEXT NOT NULL,
			embedding VECTOR(%d),
			UNIQUE (document_id, sequence)
		)
	`, p.tableName, p.embeddingDims))
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_document ON %s (document_id)
	`, p.tableName, p.tableName))
	if err != nil {
		return fmt.Errorf("failed to create document index: %w", err)
	}

	_, err = p.pool.Exec(ctx, fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s
		USING hnsw(embedding vector_cosine_ops)
	`, p.tableName, p.tableName))
	if err != nil {
		xlog.Warn("Failed to create HNSW index, similarity search will scan", "error", err)
	}

	return nil
}

func formatVector(vec []float32) string {
	parts := make([]string, len(vec))
	for i, v := range vec {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (p *PostgresDB) Count() int {
	var count int
	err := p.pool.QueryRow(context.Background(), fmt.Sprintf("SELECT COUNT(*) FROM %s", p.tableName)).Scan(&count)
	if err != nil {
		xlog.Error("Failed to count entries", "error", err)
		return 0
	}
	return count
}

// Upsert replaces the document's entry set inside a single transaction, so a
// failure mid-operation rolls back to the previous consistent state.
func (p *PostgresDB) Upsert(ctx context.Context, documentID, sourceName string, chunks []types.Chunk) error {
	if documentID == "" {
		return fmt.Errorf("empty document id")
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunks to store for document %s", documentID)
	}

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning upsert for %s: %w", documentID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", p.tableName), documentID); err != nil {
		return fmt.Errorf("deleting stale entries for %s: %w", documentID, err)
	}

	for _, chunk := range chunks {
		if len(chunk.Embedding) == 0 {
			return fmt.Errorf("chunk %d of document %s has no embedding", chunk.Sequence, documentID)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, document_id, sequence, source, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6::vector)
		`, p.tableName),
			entryID(documentID, chunk.Sequence), documentID, chunk.Sequence,
			sourceName, chunk.Text, formatVector(chunk.Embedding))
		if err != nil {
			return fmt.Errorf("inserting chunk %d of %s: %w", chunk.Sequence, documentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing upsert for %s: %w", documentID, err)
	}

	xlog.Debug("Upserted document entries", "document", documentID, "entries", len(chunks))
	return nil
}

// Delete removes all entries for the document; no-op when absent.
func (p *PostgresDB) Delete(ctx context.Context, documentID string) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE document_id = $1", p.tableName), documentID)
	if err != nil {
		return fmt.Errorf("deleting entries for %s: %w", documentID, err)
	}
	return nil
}

// Search runs a cosine ANN query scoped to allowedDocIDs (all documents when
// empty). Cosine distance d in [0, 2] maps to similarity 1 - d/2 in [0, 1];
// ties are broken by ascending (sequence, document_id) in the ORDER BY.
func (p *PostgresDB) Search(ctx context.Context, queryVector []float32, k int, allowedDocIDs []string) ([]types.SearchResult, error) {
	if k < 1 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT document_id, sequence, COALESCE(source, ''), content,
		       1 - (embedding <=> $1::vector) / 2 AS similarity
		FROM %s
		WHERE cardinality($2::text[]) = 0 OR document_id = ANY($2)
		ORDER BY similarity DESC, sequence ASC, document_id ASC
		LIMIT $3
	`, p.tableName)

	if allowedDocIDs == nil {
		allowedDocIDs = []string{}
	}

	rows, err := p.pool.Query(ctx, query, formatVector(queryVector), allowedDocIDs, k)
	if err != nil {
		return nil, fmt.Errorf("querying collection: %w", err)
	}
	defer rows.Close()

	var results []types.SearchResult
	for rows.Next() {
		var r types.SearchResult
		var similarity float64
		if err := rows.Scan(&r.DocumentID, &r.Sequence, &r.SourceName, &r.Content, &similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		r.Similarity = float32(similarity)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}

	return results, nil
}

// Stats reports entry and per-document counts straight from the table.
func (p *PostgresDB) Stats(ctx context.Context) (types.StoreStats, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(`
		SELECT document_id, COUNT(*) FROM %s GROUP BY document_id
	`, p.tableName))
	if err != nil {
		return types.StoreStats{}, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	stats := types.StoreStats{EntriesPerDoc: map[string]int{}}
	for rows.Next() {
		var docID string
		var count int
		if err := rows.Scan(&docID, &count); err != nil {
			return types.StoreStats{}, fmt.Errorf("scanning stats row: %w", err)
		}
		stats.EntriesPerDoc[docID] = count
		stats.Entries += count
	}
	if err := rows.Err(); err != nil {
		return types.StoreStats{}, fmt.Errorf("reading stats: %w", err)
	}
	stats.Documents = len(stats.EntriesPerDoc)

	return stats, nil
}

// Reset drops and recreates the collection table.
func (p *PostgresDB) Reset(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE", p.tableName)); err != nil {
		return fmt.Errorf("failed to drop table: %w", err)
	}
	return p.setupDatabase()
}

// Close releases the connection pool.
func (p *PostgresDB) Close() {
	p.pool.Close()
}
