package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/carebridge/db"
	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/cryptobox"
	"github.com/carebridge/carebridge/internal/model"
)

// providePool runs migrations and opens the connection pool. A ping
// with a short timeout fails fast when the database is unreachable.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// provideBox builds the encryption box from the configured master key.
func provideBox(cfg *config.Config) (*cryptobox.Box, error) {
	masterKey, err := cfg.MasterKey()
	if err != nil {
		return nil, err
	}
	return cryptobox.New(masterKey, uint8(cfg.KeyVersion))
}

// provideModels initializes Genkit with the Google AI plugin and wraps
// the embedder and the text and vision generators behind the model
// interfaces.
func provideModels(ctx context.Context, cfg *config.Config) (*genkit.Genkit, model.Embedder, model.Generator, model.Generator, error) {
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		return nil, nil, nil, nil, fmt.Errorf("%w: set GEMINI_API_KEY", config.ErrMissingAPIKey)
	}

	g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
	if g == nil {
		return nil, nil, nil, nil, fmt.Errorf("initializing genkit")
	}

	embedder := model.NewGenkitEmbedder(
		googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel),
		cfg.EmbedderDimension,
		cfg.EmbedBatchSize,
	)
	generator := model.NewGenkitGenerator(g, cfg.ModelName, cfg.Temperature, cfg.MaxOutputTokens)
	vision := model.NewGenkitGenerator(g, cfg.VisionModelName, cfg.Temperature, cfg.MaxOutputTokens)
	return g, embedder, generator, vision, nil
}
