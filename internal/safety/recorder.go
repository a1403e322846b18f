package safety

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/carebridge/internal/identity"
	"github.com/carebridge/carebridge/internal/scrub"
)

// excerptLimit bounds how much of a flagged message is stored. The
// alert exists so a clinician can triage; it must not become a
// plaintext transcript.
const excerptLimit = 100

// Recorder writes redacted safety alerts for clinician review.
type Recorder struct {
	pool     *pgxpool.Pool
	scrubber *scrub.Scrubber
	logger   *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger selects slog.Default().
func NewRecorder(pool *pgxpool.Pool, scrubber *scrub.Scrubber, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{pool: pool, scrubber: scrubber, logger: logger}
}

// Record stores an alert with a scrubbed, truncated excerpt of the
// flagged message. The excerpt passes the PII scrubber first and is
// cut to excerptLimit runes.
func (r *Recorder) Record(ctx context.Context, lookupKey string, res Result, message string) error {
	excerpt := r.scrubber.Scrub(message)
	if runes := []rune(excerpt); len(runes) > excerptLimit {
		excerpt = string(runes[:excerptLimit]) + "..."
	}

	if _, err := r.pool.Exec(ctx, `
		INSERT INTO safety_alerts (lookup_key, category, severity, excerpt, keywords)
		VALUES ($1, $2, 'critical', $3, $4)`,
		lookupKey, string(res.Category), excerpt, res.Keywords,
	); err != nil {
		return fmt.Errorf("recording safety alert: %w", err)
	}

	r.logger.Warn("safety alert recorded",
		"category", res.Category,
		"key_prefix", identity.KeyPrefix(lookupKey),
	)
	return nil
}
