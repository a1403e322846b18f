package patient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/carebridge/internal/cryptobox"
	"github.com/carebridge/carebridge/internal/identity"
	"github.com/carebridge/carebridge/internal/scrub"
)

var (
	// ErrNotFound indicates no record for the given lookup key.
	ErrNotFound = errors.New("patient record not found")

	// ErrAlreadyRegistered indicates a profile already exists under
	// the lookup key.
	ErrAlreadyRegistered = errors.New("patient already registered")
)

// Store persists patient-linked records as encrypted blobs keyed by
// lookup key. Encryption happens inside the store so no caller can
// accidentally write plaintext; decryption failures propagate
// cryptobox.ErrTamperedOrWrongKey unmasked.
//
// Store is safe for concurrent use.
type Store struct {
	pool     *pgxpool.Pool
	box      *cryptobox.Box
	scrubber *scrub.Scrubber
	logger   *slog.Logger
}

// NewStore creates a Store. A nil logger selects slog.Default().
func NewStore(pool *pgxpool.Pool, box *cryptobox.Box, scrubber *scrub.Scrubber, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, box: box, scrubber: scrubber, logger: logger}
}

// LookupKeyExists reports whether a profile exists for the key. Also
// satisfies identity.KeyChecker for registration collision checks.
func (s *Store) LookupKeyExists(ctx context.Context, lookupKey string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM patients WHERE lookup_key = $1)`, lookupKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking lookup key: %w", err)
	}
	return exists, nil
}

// CreateProfile encrypts and stores a new patient profile.
func (s *Store) CreateProfile(ctx context.Context, lookupKey string, profile Profile) error {
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = time.Now().UTC()
	}

	encrypted, err := s.seal(profile)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO patients (lookup_key, encrypted_profile)
		VALUES ($1, $2)
		ON CONFLICT (lookup_key) DO NOTHING`,
		lookupKey, encrypted,
	)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyRegistered
	}

	s.logger.Info("patient registered", "key_prefix", identity.KeyPrefix(lookupKey))
	return nil
}

// GetProfile fetches and decrypts a profile. Returns ErrNotFound for
// unknown keys.
func (s *Store) GetProfile(ctx context.Context, lookupKey string) (Profile, error) {
	var encrypted string
	err := s.pool.QueryRow(ctx,
		`SELECT encrypted_profile FROM patients WHERE lookup_key = $1`, lookupKey,
	).Scan(&encrypted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("fetching profile: %w", err)
	}

	var profile Profile
	if err := s.open(encrypted, &profile); err != nil {
		return Profile{}, err
	}
	return profile, nil
}

// AddMedication encrypts and stores a medication entry.
func (s *Store) AddMedication(ctx context.Context, lookupKey string, med Medication) error {
	if med.CreatedAt.IsZero() {
		med.CreatedAt = time.Now().UTC()
	}

	encrypted, err := s.seal(med)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO medications (lookup_key, encrypted_data, active)
		VALUES ($1, $2, TRUE)`,
		lookupKey, encrypted,
	); err != nil {
		return fmt.Errorf("adding medication: %w", err)
	}
	return nil
}

// ListMedications fetches and decrypts all active medication entries,
// oldest first.
func (s *Store) ListMedications(ctx context.Context, lookupKey string) ([]Medication, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT encrypted_data FROM medications
		WHERE lookup_key = $1 AND active
		ORDER BY created_at ASC, id ASC`, lookupKey,
	)
	if err != nil {
		return nil, fmt.Errorf("listing medications: %w", err)
	}
	defer rows.Close()

	meds := []Medication{}
	for rows.Next() {
		var encrypted string
		if err := rows.Scan(&encrypted); err != nil {
			return nil, fmt.Errorf("scanning medication: %w", err)
		}
		var med Medication
		if err := s.open(encrypted, &med); err != nil {
			return nil, err
		}
		meds = append(meds, med)
	}
	return meds, rows.Err()
}

// AddHealthRecord scrubs, encrypts and stores a health-record entry.
// The scrub pass runs here, before encryption, so text extracted from
// a scanned document can never be persisted with identifiers intact
// even if the caller forgot to scrub.
func (s *Store) AddHealthRecord(ctx context.Context, lookupKey string, rec HealthRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	rec.Summary = s.scrubber.Scrub(rec.Summary)

	encrypted, err := s.seal(rec)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO health_records (lookup_key, record_type, encrypted_data, record_date)
		VALUES ($1, $2, $3, $4)`,
		lookupKey, rec.RecordType, encrypted, rec.RecordDate,
	); err != nil {
		return fmt.Errorf("adding health record: %w", err)
	}
	return nil
}

// ListHealthRecords fetches and decrypts health records, newest first.
func (s *Store) ListHealthRecords(ctx context.Context, lookupKey string) ([]HealthRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT encrypted_data FROM health_records
		WHERE lookup_key = $1
		ORDER BY created_at DESC, id DESC`, lookupKey,
	)
	if err != nil {
		return nil, fmt.Errorf("listing health records: %w", err)
	}
	defer rows.Close()

	recs := []HealthRecord{}
	for rows.Next() {
		var encrypted string
		if err := rows.Scan(&encrypted); err != nil {
			return nil, fmt.Errorf("scanning health record: %w", err)
		}
		var rec HealthRecord
		if err := s.open(encrypted, &rec); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveTurn encrypts and stores one conversation turn. The turn nonce
// is unique, so a retried persistence of the same query cannot
// double-write: the second insert is a no-op.
func (s *Store) SaveTurn(ctx context.Context, lookupKey string, turn Turn) error {
	if turn.AskedAt.IsZero() {
		turn.AskedAt = time.Now().UTC()
	}

	encrypted, err := s.seal(turn)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (lookup_key, nonce, encrypted_turn)
		VALUES ($1, $2, $3)
		ON CONFLICT (nonce) DO NOTHING`,
		lookupKey, turn.Nonce, encrypted,
	); err != nil {
		return fmt.Errorf("saving conversation turn: %w", err)
	}

	s.logger.Debug("turn persisted", "key_prefix", identity.KeyPrefix(lookupKey))
	return nil
}

// History fetches and decrypts all turns for a key, oldest first. A
// key with no history returns an empty slice, not an error.
func (s *Store) History(ctx context.Context, lookupKey string) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT encrypted_turn FROM conversations
		WHERE lookup_key = $1
		ORDER BY created_at ASC, id ASC`, lookupKey,
	)
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var encrypted string
		if err := rows.Scan(&encrypted); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		var turn Turn
		if err := s.open(encrypted, &turn); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

// seal marshals v to JSON and encrypts it for storage.
func (s *Store) seal(v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling payload: %w", err)
	}
	blob, err := s.box.Encrypt(payload)
	if err != nil {
		return "", fmt.Errorf("encrypting payload: %w", err)
	}
	return blob.Encode(), nil
}

// open decrypts a stored blob and unmarshals it into v. Tampering or
// a wrong key surfaces as cryptobox.ErrTamperedOrWrongKey.
func (s *Store) open(encrypted string, v any) error {
	blob, err := cryptobox.Decode(encrypted)
	if err != nil {
		return err
	}
	payload, err := s.box.Decrypt(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("unmarshaling payload: %w", err)
	}
	return nil
}
