package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrDocumentNotFound indicates a lookup for a document ID that was
// never ingested or has been deleted.
var ErrDocumentNotFound = errors.New("document not found")

// Store persists research documents and their embedded chunks in
// PostgreSQL with pgvector, and answers nearest-neighbor queries by
// cosine similarity. The same metric is used at index-build time and
// query time.
//
// Store is safe for concurrent use; the pool manages connections and
// no connection is held across anything but a single query or
// transaction.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store. A nil logger selects slog.Default().
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// UpsertDocument inserts or overwrites document metadata by ID.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO research_documents (id, title, authors, journal, year, doi, abstract, full_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			authors = EXCLUDED.authors,
			journal = EXCLUDED.journal,
			year = EXCLUDED.year,
			doi = EXCLUDED.doi,
			abstract = EXCLUDED.abstract,
			full_text = EXCLUDED.full_text,
			updated_at = now()`,
		doc.ID, doc.Title, doc.Authors, doc.Journal, doc.Year, doc.DOI, doc.Abstract, doc.FullText,
	)
	if err != nil {
		return fmt.Errorf("upserting document %q: %w", doc.ID, err)
	}
	return nil
}

// ReplaceChunks atomically swaps the stored chunks of a document for
// the given set. Delete-then-insert in one transaction makes
// re-ingestion idempotent: running the same ingest twice leaves
// exactly the latest chunk count, never duplicates.
func (s *Store) ReplaceChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM research_chunks WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting prior chunks for %q: %w", documentID, err)
	}

	for _, c := range chunks {
		vec := pgvector.NewVector(c.Embedding)
		if _, err := tx.Exec(ctx, `
			INSERT INTO research_chunks (document_id, ordinal, chunk_text, embedding)
			VALUES ($1, $2, $3, $4)`,
			documentID, c.Ordinal, c.Text, vec,
		); err != nil {
			return fmt.Errorf("inserting chunk %d of %q: %w", c.Ordinal, documentID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk replacement for %q: %w", documentID, err)
	}

	s.logger.Debug("replaced chunks", "document_id", documentID, "count", len(chunks))
	return nil
}

// DeleteDocument removes a document and, via foreign key cascade, its
// chunks.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM research_documents WHERE id = $1`, documentID); err != nil {
		return fmt.Errorf("deleting document %q: %w", documentID, err)
	}
	return nil
}

// TopKSimilar returns up to k chunks ordered by descending cosine
// similarity to the query vector. Identical similarities tie-break on
// the more recent publication year, then chunk row id for determinism.
// A corpus with fewer than k chunks returns all of them without error.
func (s *Store) TopKSimilar(ctx context.Context, queryVector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	vec := pgvector.NewVector(queryVector)
	rows, err := s.pool.Query(ctx, `
		SELECT c.document_id, c.ordinal, c.chunk_text,
		       1 - (c.embedding <=> $1) AS similarity,
		       d.title, d.authors, d.journal, d.year, d.doi
		FROM research_chunks c
		JOIN research_documents d ON d.id = c.document_id
		ORDER BY c.embedding <=> $1 ASC, d.year DESC, c.id ASC
		LIMIT $2`,
		vec, k,
	)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(
			&m.Chunk.DocumentID, &m.Chunk.Ordinal, &m.Chunk.Text,
			&m.Similarity,
			&m.Title, &m.Authors, &m.Journal, &m.Year, &m.DOI,
		); err != nil {
			return nil, fmt.Errorf("scanning match: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading matches: %w", err)
	}

	return matches, nil
}

// CountChunks reports how many chunks a document currently has.
func (s *Store) CountChunks(ctx context.Context, documentID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM research_chunks WHERE document_id = $1`, documentID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks for %q: %w", documentID, err)
	}
	return n, nil
}

// GetStats returns corpus-wide document and chunk counts.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT count(*) FROM research_documents),
		       (SELECT count(*) FROM research_chunks)`,
	).Scan(&st.Documents, &st.Chunks)
	if err != nil {
		return Stats{}, fmt.Errorf("reading corpus stats: %w", err)
	}
	st.Refreshed = time.Now()
	return st, nil
}

// GetDocument fetches document metadata by ID. Returns
// ErrDocumentNotFound wrapped when the document does not exist.
func (s *Store) GetDocument(ctx context.Context, documentID string) (Document, error) {
	var d Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, authors, journal, year, doi, abstract, full_text
		FROM research_documents WHERE id = $1`, documentID,
	).Scan(&d.ID, &d.Title, &d.Authors, &d.Journal, &d.Year, &d.DOI, &d.Abstract, &d.FullText)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, fmt.Errorf("document %q: %w", documentID, ErrDocumentNotFound)
		}
		return Document{}, fmt.Errorf("fetching document %q: %w", documentID, err)
	}
	return d, nil
}
