// Package corpus manages the research-paper side of carebridge: the
// documents caregiver answers are grounded in, their chunked text, and
// the pgvector-backed similarity index.
//
// Corpus data carries no personal information and stays plaintext,
// which is why it lives in its own package, away from the encrypted
// patient namespace.
package corpus

import "time"

// Document is an ingested research paper. Immutable once ingested
// except for re-ingestion overwrite keyed by ID.
type Document struct {
	ID       string `json:"id"` // stable identifier, DOI when available
	Title    string `json:"title"`
	Authors  string `json:"authors"`
	Journal  string `json:"journal"`
	Year     int    `json:"year"`
	DOI      string `json:"doi"`
	Abstract string `json:"abstract"`
	FullText string `json:"full_text"`
}

// Chunk is an ordered text segment of a document and the unit of
// retrieval. A document's chunks are never reordered.
type Chunk struct {
	DocumentID string
	Ordinal    int
	Text       string
	Embedding  []float32
}

// Match is one similarity-search hit: the chunk plus the parent
// document metadata needed to cite it.
type Match struct {
	Chunk
	Title      string
	Authors    string
	Journal    string
	Year       int
	DOI        string
	Similarity float32
}

// Stats summarizes corpus size, used by status reporting.
type Stats struct {
	Documents int64
	Chunks    int64
	Refreshed time.Time
}
