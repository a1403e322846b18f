// Package model defines the narrow interfaces carebridge requires from
// the hosted embedding and generative models, plus their Genkit-backed
// implementations.
//
// The pipelines depend only on these interfaces, so their control flow
// and tests are deterministic given fixed stub responses; the hosted
// services' non-determinism and latency stay behind this boundary.
package model

import (
	"context"
	"errors"
)

// ErrEmptyResponse indicates the hosted model returned no usable
// output for a well-formed request.
var ErrEmptyResponse = errors.New("model returned empty response")

// Embedder maps text to fixed-dimension dense vectors.
type Embedder interface {
	// Embed embeds a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds up to MaxBatchSize texts in one call,
	// returning vectors in input order. Quota and auth errors fail
	// the whole batch.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// MaxBatchSize is the largest batch EmbedBatch accepts.
	MaxBatchSize() int

	// Dimension is the fixed output vector length.
	Dimension() int
}

// GenerateRequest is one prompt for the generative model. Image is
// optional; when set, MIMEType must name its content type.
type GenerateRequest struct {
	System   string
	Prompt   string
	Image    []byte
	MIMEType string
}

// Generator maps a prompt, optionally with an image, to free text
// under a system instruction that constrains style and citation
// format.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}
