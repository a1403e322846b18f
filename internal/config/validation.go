package config

import "fmt"

// Validate checks the configuration for values that would fail later
// in confusing ways. Returns the first sentinel error found, wrapped
// with detail for errors.Is checks.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidModelName)
	}

	if c.EmbedderDimension <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}
	if c.EmbedBatchSize <= 0 {
		return fmt.Errorf("%w: embed_batch_size %d", ErrInvalidChunking, c.EmbedBatchSize)
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: %d, want 1-50", ErrInvalidTopK, c.TopK)
	}
	if c.MaxChunkTokens <= 0 {
		return fmt.Errorf("%w: max_chunk_tokens %d", ErrInvalidChunking, c.MaxChunkTokens)
	}
	if c.OverlapTokens < 0 || c.OverlapTokens >= c.MaxChunkTokens {
		return fmt.Errorf("%w: overlap_tokens %d must be in [0, max_chunk_tokens)", ErrInvalidChunking, c.OverlapTokens)
	}
	if c.MaxContextTokens < c.MaxChunkTokens {
		return fmt.Errorf("%w: max_context_tokens %d smaller than one chunk", ErrInvalidChunking, c.MaxContextTokens)
	}
	if c.MaxQuestionChars <= 0 {
		return fmt.Errorf("%w: max_question_chars %d", ErrInvalidChunking, c.MaxQuestionChars)
	}

	if c.KeyVersion < 1 || c.KeyVersion > 255 {
		return fmt.Errorf("%w: key_version %d, want 1-255", ErrInvalidEncryptionKey, c.KeyVersion)
	}
	if _, err := c.MasterKey(); err != nil {
		return err
	}

	if c.MaxRetryAttempts < 1 || c.MaxRetryAttempts > 10 {
		return fmt.Errorf("%w: max_retry_attempts %d, want 1-10", ErrInvalidRetryPolicy, c.MaxRetryAttempts)
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("%w: initial_backoff %s", ErrInvalidRetryPolicy, c.InitialBackoff)
	}
	if c.CallTimeout <= 0 || c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidRetryPolicy)
	}

	if c.PostgresHost == "" {
		return ErrInvalidPostgresHost
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	return nil
}
