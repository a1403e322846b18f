package identity

import (
	"context"
	"fmt"
	"log/slog"
)

// KeyChecker reports whether a lookup key is already issued.
// Defined here because Registrar is the consumer; the patient store
// satisfies it.
type KeyChecker interface {
	LookupKeyExists(ctx context.Context, lookupKey string) (bool, error)
}

// Registrar issues patient codes that are guaranteed unique among
// stored lookup keys, regenerating on collision up to a retry budget.
type Registrar struct {
	checker KeyChecker
	budget  int
	logger  *slog.Logger
}

// NewRegistrar creates a Registrar. budget <= 0 selects
// DefaultRetryBudget; a nil logger selects slog.Default().
func NewRegistrar(checker KeyChecker, budget int, logger *slog.Logger) *Registrar {
	if budget <= 0 {
		budget = DefaultRetryBudget
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Registrar{checker: checker, budget: budget, logger: logger}
}

// NewCode generates a code whose lookup key does not collide with any
// already issued key. Returns the formatted code and its lookup key.
func (r *Registrar) NewCode(ctx context.Context) (code, lookupKey string, err error) {
	for attempt := 0; attempt < r.budget; attempt++ {
		code, err = Generate()
		if err != nil {
			return "", "", err
		}

		lookupKey, err = LookupKey(code)
		if err != nil {
			// Generate always emits a well-formed code; a failure
			// here means the generator itself is broken.
			return "", "", err
		}

		exists, err := r.checker.LookupKeyExists(ctx, lookupKey)
		if err != nil {
			return "", "", fmt.Errorf("checking lookup key: %w", err)
		}
		if !exists {
			return code, lookupKey, nil
		}

		r.logger.Warn("patient code collision, regenerating",
			"attempt", attempt+1,
			"key_prefix", KeyPrefix(lookupKey),
		)
	}

	return "", "", fmt.Errorf("%w: after %d attempts", ErrCodeExhausted, r.budget)
}
