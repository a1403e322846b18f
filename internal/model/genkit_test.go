package model

import (
	"context"
	"errors"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// mockAIEmbedder is a minimal ai.Embedder for exercising the adapter.
type mockAIEmbedder struct {
	err   error
	short bool // return one embedding fewer than requested
	empty bool // return a zero-length vector
}

func (m *mockAIEmbedder) Name() string { return "mock-embedder" }

func (m *mockAIEmbedder) Register(_ api.Registry) {}

func (m *mockAIEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	if m.err != nil {
		return nil, m.err
	}

	n := len(req.Input)
	if m.short && n > 0 {
		n--
	}
	embeddings := make([]*ai.Embedding, n)
	for i := range embeddings {
		vec := []float32{float32(i), float32(i + 1)}
		if m.empty {
			vec = nil
		}
		embeddings[i] = &ai.Embedding{Embedding: vec}
	}
	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

func TestGenkitEmbedderBatch(t *testing.T) {
	e := NewGenkitEmbedder(&mockAIEmbedder{}, 2, 10)

	vectors, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch() failed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if vectors[1][0] != 1 {
		t.Errorf("vectors out of order: %v", vectors)
	}
}

func TestGenkitEmbedderSingle(t *testing.T) {
	e := NewGenkitEmbedder(&mockAIEmbedder{}, 2, 10)

	vec, err := e.Embed(context.Background(), "one")
	if err != nil {
		t.Fatalf("Embed() failed: %v", err)
	}
	if len(vec) != 2 {
		t.Errorf("expected 2-dimensional vector, got %d", len(vec))
	}
}

func TestGenkitEmbedderRejectsOversizedBatch(t *testing.T) {
	e := NewGenkitEmbedder(&mockAIEmbedder{}, 2, 2)

	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b", "c"}); err == nil {
		t.Error("expected error for batch above the limit")
	}
}

func TestGenkitEmbedderEmptyInput(t *testing.T) {
	e := NewGenkitEmbedder(&mockAIEmbedder{}, 2, 10)

	vectors, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) failed: %v", err)
	}
	if vectors != nil {
		t.Errorf("expected nil for empty input, got %v", vectors)
	}
}

func TestGenkitEmbedderCountMismatch(t *testing.T) {
	e := NewGenkitEmbedder(&mockAIEmbedder{short: true}, 2, 10)

	if _, err := e.EmbedBatch(context.Background(), []string{"a", "b"}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("EmbedBatch() = %v, want ErrEmptyResponse on count mismatch", err)
	}
}

func TestGenkitEmbedderEmptyVector(t *testing.T) {
	e := NewGenkitEmbedder(&mockAIEmbedder{empty: true}, 2, 10)

	if _, err := e.EmbedBatch(context.Background(), []string{"a"}); !errors.Is(err, ErrEmptyResponse) {
		t.Errorf("EmbedBatch() = %v, want ErrEmptyResponse on empty vector", err)
	}
}

func TestGenkitEmbedderPropagatesErrors(t *testing.T) {
	boom := errors.New("quota exhausted")
	e := NewGenkitEmbedder(&mockAIEmbedder{err: boom}, 2, 10)

	if _, err := e.EmbedBatch(context.Background(), []string{"a"}); !errors.Is(err, boom) {
		t.Errorf("EmbedBatch() = %v, want wrapped %v", err, boom)
	}
}

func TestGeneratorConfigCarriesSampling(t *testing.T) {
	gg := NewGenkitGenerator(nil, "googleai/gemini-2.5-flash", 0.7, 1024)

	cfg := gg.generateConfig()
	if cfg.Temperature == nil || *cfg.Temperature != 0.7 {
		t.Errorf("Temperature = %v, want 0.7", cfg.Temperature)
	}
	if cfg.MaxOutputTokens != 1024 {
		t.Errorf("MaxOutputTokens = %d, want 1024", cfg.MaxOutputTokens)
	}
}

func TestGenkitEmbedderGeometry(t *testing.T) {
	e := NewGenkitEmbedder(&mockAIEmbedder{}, 768, 100)
	if e.Dimension() != 768 {
		t.Errorf("Dimension() = %d", e.Dimension())
	}
	if e.MaxBatchSize() != 100 {
		t.Errorf("MaxBatchSize() = %d", e.MaxBatchSize())
	}
}
