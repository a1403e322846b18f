package model

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"google.golang.org/genai"
)

// GenkitEmbedder adapts a Genkit ai.Embedder to the Embedder interface.
type GenkitEmbedder struct {
	embedder  ai.Embedder
	dimension int
	batchSize int
}

// NewGenkitEmbedder wraps a registered Genkit embedder. dimension is
// the model's output vector length and must match the pgvector column;
// batchSize caps how many texts one EmbedBatch call may carry.
func NewGenkitEmbedder(embedder ai.Embedder, dimension, batchSize int) *GenkitEmbedder {
	return &GenkitEmbedder{embedder: embedder, dimension: dimension, batchSize: batchSize}
}

func (e *GenkitEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *GenkitEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if len(texts) > e.batchSize {
		return nil, fmt.Errorf("batch of %d exceeds embedder limit %d", len(texts), e.batchSize)
	}

	input := make([]*ai.Document, len(texts))
	for i, t := range texts {
		input[i] = ai.DocumentFromText(t, nil)
	}

	// gemini-embedding-001 emits 3072 dimensions natively; request
	// truncation to the dimension the pgvector schema stores.
	dim := int32(e.dimension)
	resp, err := e.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   input,
		Options: &genai.EmbedContentConfig{OutputDimensionality: &dim},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding batch of %d: %w", len(texts), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d", ErrEmptyResponse, len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if len(emb.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", ErrEmptyResponse, i)
		}
		vectors[i] = emb.Embedding
	}
	return vectors, nil
}

func (e *GenkitEmbedder) MaxBatchSize() int { return e.batchSize }

func (e *GenkitEmbedder) Dimension() int { return e.dimension }

// GenkitGenerator adapts genkit.Generate to the Generator interface.
type GenkitGenerator struct {
	g           *genkit.Genkit
	modelName   string
	temperature float32
	maxTokens   int
}

// NewGenkitGenerator creates a generator bound to a model name in
// Genkit's provider/model form, e.g. "googleai/gemini-2.5-flash".
// temperature and maxOutputTokens are passed on every call.
func NewGenkitGenerator(g *genkit.Genkit, modelName string, temperature float32, maxOutputTokens int) *GenkitGenerator {
	return &GenkitGenerator{
		g:           g,
		modelName:   modelName,
		temperature: temperature,
		maxTokens:   maxOutputTokens,
	}
}

// generateConfig builds the sampling configuration sent with each
// request.
func (gg *GenkitGenerator) generateConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(gg.temperature),
		MaxOutputTokens: int32(gg.maxTokens),
	}
}

func (gg *GenkitGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	opts := []ai.GenerateOption{
		ai.WithModelName(gg.modelName),
		ai.WithConfig(gg.generateConfig()),
	}
	if req.System != "" {
		opts = append(opts, ai.WithSystem(req.System))
	}

	if len(req.Image) > 0 {
		// Multimodal requests carry the image inline as a data URL,
		// the form the googlegenai plugin accepts.
		encoded := base64.StdEncoding.EncodeToString(req.Image)
		message := ai.NewUserMessage(
			ai.NewMediaPart(req.MIMEType, "data:"+req.MIMEType+";base64,"+encoded),
			ai.NewTextPart(req.Prompt),
		)
		opts = append(opts, ai.WithMessages(message))
	} else {
		opts = append(opts, ai.WithPrompt(req.Prompt))
	}

	resp, err := genkit.Generate(ctx, gg.g, opts...)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}

	text := resp.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
