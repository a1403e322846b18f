// Package app wires configuration, the database pool, the Genkit
// model clients and the domain pipelines into one container the CLI
// commands share.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/genkit"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/corpus"
	"github.com/carebridge/carebridge/internal/cryptobox"
	"github.com/carebridge/carebridge/internal/identity"
	"github.com/carebridge/carebridge/internal/ingest"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/patient"
	"github.com/carebridge/carebridge/internal/retrieval"
	"github.com/carebridge/carebridge/internal/safety"
	"github.com/carebridge/carebridge/internal/scrub"
)

// App holds every long-lived component. Build it with Setup and
// release resources with Close.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Genkit *genkit.Genkit
	Pool   *pgxpool.Pool
	Box    *cryptobox.Box
	Vision model.Generator

	Scrubber  *scrub.Scrubber
	Patients  *patient.Store
	Corpus    *corpus.Store
	Registrar *identity.Registrar
	Alerts    *safety.Recorder
	Ingestor  *ingest.Pipeline
	Answerer  *retrieval.Pipeline

	cleanups []func()
}

// Close releases resources in reverse acquisition order.
func (a *App) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

// Setup validates the configuration and builds the full container.
// On error everything acquired so far is released.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &App{Config: cfg, Logger: logger}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool
	a.cleanups = append(a.cleanups, pool.Close)

	box, err := provideBox(cfg)
	if err != nil {
		return nil, err
	}
	a.Box = box

	g, embedder, generator, vision, err := provideModels(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Genkit = g
	a.Vision = vision

	a.Scrubber = scrub.New()
	a.Patients = patient.NewStore(pool, box, a.Scrubber, logger)
	a.Corpus = corpus.NewStore(pool, logger)
	a.Registrar = identity.NewRegistrar(a.Patients, identity.DefaultRetryBudget, logger)
	a.Alerts = safety.NewRecorder(pool, a.Scrubber, logger)

	a.Ingestor = ingest.New(a.Corpus, embedder, ingest.Options{
		MaxChunkTokens: cfg.MaxChunkTokens,
		OverlapTokens:  cfg.OverlapTokens,
		MaxAttempts:    cfg.MaxRetryAttempts,
		InitialBackoff: cfg.InitialBackoff,
	}, logger)

	a.Answerer = retrieval.New(embedder, generator, a.Corpus, a.Patients, a.Alerts,
		retrieval.Options{
			TopK:             cfg.TopK,
			MaxQuestionChars: cfg.MaxQuestionChars,
			MaxContextTokens: cfg.MaxContextTokens,
			CallTimeout:      cfg.CallTimeout,
			RequestTimeout:   cfg.RequestTimeout,
			MaxAttempts:      cfg.MaxRetryAttempts,
			InitialBackoff:   cfg.InitialBackoff,
			CacheTTL:         cfg.CacheTTL,
			CacheEntries:     cfg.CacheEntries,
		}, logger)

	ok = true
	return a, nil
}
