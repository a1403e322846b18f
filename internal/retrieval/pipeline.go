// Package retrieval answers caregiver questions over the research
// corpus. A question moves through a fixed sequence of states, any of
// which can fail into the absorbing Failed state; the answer is only
// persisted once generation succeeded and the caller is still waiting.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/carebridge/carebridge/internal/corpus"
	"github.com/carebridge/carebridge/internal/identity"
	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/patient"
	"github.com/carebridge/carebridge/internal/safety"
)

// State names where a question is in its lifecycle. Transitions only
// move forward; Failed absorbs every error.
type State string

const (
	StateReceived  State = "received"
	StateEmbedded  State = "embedded"
	StateRetrieved State = "retrieved"
	StateGrounded  State = "grounded"
	StateAnswered  State = "answered"
	StatePersisted State = "persisted"
	StateFailed    State = "failed"
)

var (
	ErrInvalidQuery          = errors.New("question is empty")
	ErrQuestionTooLong       = errors.New("question exceeds the length limit")
	ErrUnknownPatient        = errors.New("no patient registered for this code")
	ErrEmbeddingUnavailable  = errors.New("embedding service unavailable")
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	ErrTimeout               = errors.New("question not answered within the deadline")
)

// TurnStore persists and reads conversation turns for a patient.
// *patient.Store satisfies it.
type TurnStore interface {
	LookupKeyExists(ctx context.Context, lookupKey string) (bool, error)
	SaveTurn(ctx context.Context, lookupKey string, turn patient.Turn) error
	History(ctx context.Context, lookupKey string) ([]patient.Turn, error)
}

// Searcher finds the corpus chunks nearest a query vector.
// *corpus.Store satisfies it.
type Searcher interface {
	TopKSimilar(ctx context.Context, queryVector []float32, k int) ([]corpus.Match, error)
}

// AlertRecorder stores redacted crisis alerts. *safety.Recorder
// satisfies it.
type AlertRecorder interface {
	Record(ctx context.Context, lookupKey string, res safety.Result, message string) error
}

// Options tunes the pipeline. Zero values select the defaults noted
// per field.
type Options struct {
	TopK             int           // default 5
	MaxQuestionChars int           // default 2000
	MaxContextTokens int           // prompt excerpt budget, default 4000
	CallTimeout      time.Duration // per external call attempt, default 20s
	RequestTimeout   time.Duration // overall per-question deadline, default 60s
	MaxAttempts      int           // transient-failure retry cap per call, default 3
	InitialBackoff   time.Duration // first retry delay, default 500ms
	CacheTTL         time.Duration // default 10m
	CacheEntries     int           // default 256
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = 5
	}
	if o.MaxQuestionChars <= 0 {
		o.MaxQuestionChars = 2000
	}
	if o.MaxContextTokens <= 0 {
		o.MaxContextTokens = 4000
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 20 * time.Second
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 500 * time.Millisecond
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 10 * time.Minute
	}
	if o.CacheEntries <= 0 {
		o.CacheEntries = 256
	}
}

// Answer is the result of one question.
type Answer struct {
	Text      string             `json:"text"`
	Citations []patient.Citation `json:"citations,omitempty"`
	Nonce     string             `json:"nonce"`
	State     State              `json:"state"`
	Crisis    bool               `json:"crisis,omitempty"`
	Category  string             `json:"category,omitempty"`
	Cached    bool               `json:"cached,omitempty"`
}

// Pipeline runs question answering end to end.
type Pipeline struct {
	embedder model.Embedder
	gen      model.Generator
	searcher Searcher
	turns    TurnStore
	alerts   AlertRecorder
	cache    *answerCache
	opts     Options
	logger   *slog.Logger
}

// New creates a Pipeline. A nil logger selects slog.Default().
func New(embedder model.Embedder, gen model.Generator, searcher Searcher,
	turns TurnStore, alerts AlertRecorder, opts Options, logger *slog.Logger) *Pipeline {
	opts.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		embedder: embedder,
		gen:      gen,
		searcher: searcher,
		turns:    turns,
		alerts:   alerts,
		cache:    newAnswerCache(opts.CacheEntries, opts.CacheTTL),
		opts:     opts,
		logger:   logger,
	}
}

// Ask answers a caregiver's question for the patient behind lookupKey.
// The key must already be derived from a validated code.
func (p *Pipeline) Ask(ctx context.Context, lookupKey, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return p.fail(ErrInvalidQuery)
	}
	if len([]rune(question)) > p.opts.MaxQuestionChars {
		return p.fail(ErrQuestionTooLong)
	}

	exists, err := p.turns.LookupKeyExists(ctx, lookupKey)
	if err != nil {
		return p.fail(fmt.Errorf("checking patient: %w", err))
	}
	if !exists {
		return p.fail(ErrUnknownPatient)
	}

	// Screening comes before any model call. A crisis or a diagnosis
	// request gets a fixed response; no retrieval happens for either.
	if res := safety.Screen(question); res.Crisis || res.Diagnosis {
		return p.screenedAnswer(ctx, lookupKey, question, res)
	}

	key := cacheKey(lookupKey, question)
	if hit, ok := p.cache.get(key); ok {
		hit.Cached = true
		p.logger.Debug("answer served from cache", "key_prefix", identity.KeyPrefix(lookupKey))
		return hit, nil
	}

	// The overall deadline covers every external call and their
	// retries. Hitting it surfaces as ErrTimeout, distinct from the
	// caller abandoning the request.
	reqCtx, cancel := context.WithTimeout(ctx, p.opts.RequestTimeout)
	defer cancel()

	answer, err := p.answer(reqCtx, lookupKey, question)
	if err != nil {
		if reqCtx.Err() != nil && ctx.Err() == nil {
			return p.fail(fmt.Errorf("%w (%s): %w", ErrTimeout, p.opts.RequestTimeout, err))
		}
		return p.fail(err)
	}
	p.cache.put(key, answer)
	return answer, nil
}

// answer runs the embed, retrieve, ground, generate, persist sequence.
func (p *Pipeline) answer(ctx context.Context, lookupKey, question string) (Answer, error) {
	vector, err := p.embed(ctx, question)
	if err != nil {
		return Answer{}, err
	}

	matches, err := p.search(ctx, vector)
	if err != nil {
		return Answer{}, fmt.Errorf("searching corpus: %w", err)
	}

	prompt, used := buildPrompt(question, matches, p.opts.MaxContextTokens)

	text, err := p.generate(ctx, prompt)
	if err != nil {
		return Answer{}, err
	}

	answer := Answer{
		Text:      text,
		Citations: extractCitations(text, used),
		Nonce:     uuid.NewString(),
		State:     StateAnswered,
	}

	// An answer for a caller that already gave up is discarded, never
	// stored. The unique nonce makes a retried persist idempotent.
	if err := ctx.Err(); err != nil {
		return Answer{}, fmt.Errorf("caller gone before persist: %w", err)
	}
	p.persist(ctx, lookupKey, question, &answer)
	return answer, nil
}

// screenedAnswer handles crisis and diagnosis-request messages with
// the fixed response texts. Crisis messages additionally produce an
// alert for clinician review.
func (p *Pipeline) screenedAnswer(ctx context.Context, lookupKey, question string, res safety.Result) (Answer, error) {
	answer := Answer{
		Text:     res.Response,
		Nonce:    uuid.NewString(),
		State:    StateAnswered,
		Crisis:   res.Crisis,
		Category: string(res.Category),
	}

	if res.Crisis {
		if err := p.alerts.Record(ctx, lookupKey, res, question); err != nil {
			p.logger.Error("safety alert not recorded", "error", err,
				"key_prefix", identity.KeyPrefix(lookupKey))
		}
	}

	p.persist(ctx, lookupKey, question, &answer)
	return answer, nil
}

// persist saves the turn and advances the state. Persistence failure
// does not void an answer the caregiver already has; it is logged and
// the answer stays in the Answered state.
func (p *Pipeline) persist(ctx context.Context, lookupKey, question string, answer *Answer) {
	turn := patient.Turn{
		Nonce:     answer.Nonce,
		Question:  question,
		Answer:    answer.Text,
		Citations: answer.Citations,
		AskedAt:   time.Now().UTC(),
	}
	if err := p.turns.SaveTurn(ctx, lookupKey, turn); err != nil {
		p.logger.Error("turn not persisted", "error", err,
			"key_prefix", identity.KeyPrefix(lookupKey))
		return
	}
	answer.State = StatePersisted
}

func (p *Pipeline) embed(ctx context.Context, question string) ([]float32, error) {
	var vector []float32
	err := p.withRetry(ctx, func(callCtx context.Context) error {
		v, err := p.embedder.Embed(callCtx, question)
		if err != nil {
			return err
		}
		vector = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingUnavailable, err)
	}
	return vector, nil
}

func (p *Pipeline) search(ctx context.Context, vector []float32) ([]corpus.Match, error) {
	var matches []corpus.Match
	err := p.withRetry(ctx, func(callCtx context.Context) error {
		m, err := p.searcher.TopKSimilar(callCtx, vector, p.opts.TopK)
		if err != nil {
			return err
		}
		matches = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (p *Pipeline) generate(ctx context.Context, prompt string) (string, error) {
	var text string
	err := p.withRetry(ctx, func(callCtx context.Context) error {
		t, err := p.gen.Generate(callCtx, model.GenerateRequest{
			System: systemPrompt,
			Prompt: prompt,
		})
		if err != nil {
			return err
		}
		text = t
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGenerationUnavailable, err)
	}
	return text, nil
}

// withRetry runs one external call with the per-attempt timeout and
// bounded exponential backoff on failure. A dead request context is
// permanent; everything else from a hosted service is treated as
// transient up to the attempt cap.
func (p *Pipeline) withRetry(ctx context.Context, call func(context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = p.opts.InitialBackoff

	attempt := func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.opts.CallTimeout)
		defer cancel()

		if err := call(callCtx); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	return backoff.Retry(attempt, backoff.WithContext(
		backoff.WithMaxRetries(policy, uint64(p.opts.MaxAttempts-1)), ctx))
}

// History returns the patient's past turns, oldest first.
func (p *Pipeline) History(ctx context.Context, lookupKey string) ([]patient.Turn, error) {
	exists, err := p.turns.LookupKeyExists(ctx, lookupKey)
	if err != nil {
		return nil, fmt.Errorf("checking patient: %w", err)
	}
	if !exists {
		return nil, ErrUnknownPatient
	}
	return p.turns.History(ctx, lookupKey)
}

func (p *Pipeline) fail(err error) (Answer, error) {
	return Answer{State: StateFailed}, err
}
