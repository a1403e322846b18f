// Package ingest drives the corpus ingestion pipeline: chunk each
// research document, embed the chunks in batches, and write
// chunk/vector pairs to the store.
//
// Ingestion is an offline batch job. It is safely resumable: chunk
// replacement is idempotent per document, so a crashed run can be
// restarted without producing duplicates.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/carebridge/carebridge/internal/corpus"
	"github.com/carebridge/carebridge/internal/model"
)

// ErrNoDocuments indicates an empty ingestion request.
var ErrNoDocuments = errors.New("no documents to ingest")

// ChunkStore is the slice of the corpus store ingestion needs.
type ChunkStore interface {
	UpsertDocument(ctx context.Context, doc corpus.Document) error
	ReplaceChunks(ctx context.Context, documentID string, chunks []corpus.Chunk) error
}

// Options tunes the pipeline. Zero values select the defaults noted
// per field.
type Options struct {
	MaxChunkTokens int           // default 500
	OverlapTokens  int           // default 50
	MaxAttempts    int           // embedding retry cap, default 3
	InitialBackoff time.Duration // default 500ms
	RatePerSecond  float64       // embed-call rate limit, default 5
}

func (o *Options) applyDefaults() {
	if o.MaxChunkTokens <= 0 {
		o.MaxChunkTokens = 500
	}
	if o.OverlapTokens <= 0 {
		o.OverlapTokens = 50
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.RatePerSecond <= 0 {
		o.RatePerSecond = 5
	}
}

// DocumentError records why one document failed. Only the first error
// per document is kept; later chunks of a failed document are skipped.
type DocumentError struct {
	DocumentID string
	Err        error
}

// Report summarizes one ingestion run.
type Report struct {
	Accepted int
	Failed   int
	Chunks   int
	Elapsed  time.Duration
	Errors   []DocumentError
}

// Pipeline ingests documents. One failing document never aborts the
// batch; it is reported and processing moves on.
type Pipeline struct {
	store    ChunkStore
	embedder model.Embedder
	limiter  *rate.Limiter
	opts     Options
	logger   *slog.Logger
}

// New creates a Pipeline. A nil logger selects slog.Default().
func New(store ChunkStore, embedder model.Embedder, opts Options, logger *slog.Logger) *Pipeline {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    store,
		embedder: embedder,
		limiter:  rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1),
		opts:     opts,
		logger:   logger,
	}
}

// Ingest processes documents sequentially. batchSize caps how many
// chunk texts go into one embedding call; it is clamped to the
// embedder's own batch limit.
func (p *Pipeline) Ingest(ctx context.Context, docs []corpus.Document, batchSize int) (Report, error) {
	if len(docs) == 0 {
		return Report{}, ErrNoDocuments
	}
	if batchSize <= 0 || batchSize > p.embedder.MaxBatchSize() {
		batchSize = p.embedder.MaxBatchSize()
	}

	start := time.Now()
	var report Report

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			report.Elapsed = time.Since(start)
			return report, fmt.Errorf("ingestion aborted: %w", err)
		}

		chunks, err := p.ingestDocument(ctx, doc, batchSize)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, DocumentError{DocumentID: doc.ID, Err: err})
			p.logger.Error("document ingestion failed", "document_id", doc.ID, "error", err)
			continue
		}

		report.Accepted++
		report.Chunks += chunks
		p.logger.Info("document ingested", "document_id", doc.ID, "chunks", chunks)
	}

	report.Elapsed = time.Since(start)
	return report, nil
}

// ingestDocument chunks, embeds and stores one document. Returns the
// number of chunks written.
func (p *Pipeline) ingestDocument(ctx context.Context, doc corpus.Document, batchSize int) (int, error) {
	segments, err := corpus.Split(p.composeText(doc), p.opts.MaxChunkTokens, p.opts.OverlapTokens)
	if err != nil {
		return 0, err
	}
	if len(segments) == 0 {
		return 0, errors.New("document has no text")
	}

	chunks := make([]corpus.Chunk, 0, len(segments))
	for batchStart := 0; batchStart < len(segments); batchStart += batchSize {
		batch := segments[batchStart:min(batchStart+batchSize, len(segments))]

		texts := make([]string, len(batch))
		for i, seg := range batch {
			texts[i] = seg.Text
		}

		vectors, err := p.embedWithRetry(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embedding chunks %d-%d: %w", batchStart, batchStart+len(batch)-1, err)
		}

		for i, seg := range batch {
			chunks = append(chunks, corpus.Chunk{
				DocumentID: doc.ID,
				Ordinal:    seg.Ordinal,
				Text:       seg.Text,
				Embedding:  vectors[i],
			})
		}
	}

	if err := p.store.UpsertDocument(ctx, doc); err != nil {
		return 0, err
	}
	if err := p.store.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

// composeText builds the embeddable text for a document. Title and
// abstract lead so the strongest retrieval signal is never truncated
// off the front.
func (p *Pipeline) composeText(doc corpus.Document) string {
	text := doc.Title
	if doc.Abstract != "" {
		text += "\n\n" + doc.Abstract
	}
	if doc.FullText != "" {
		text += "\n\n" + doc.FullText
	}
	return text
}

// embedWithRetry calls the embedder with exponential backoff. A
// canceled context is permanent; everything else from the hosted
// service is treated as transient up to the attempt cap.
func (p *Pipeline) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.opts.InitialBackoff

	op := func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		result, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		vectors = result
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(p.opts.MaxAttempts-1)), ctx))
	if err != nil {
		return nil, err
	}
	return vectors, nil
}
