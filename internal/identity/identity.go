// Package identity implements anonymous patient codes and the one-way
// lookup key derived from them.
//
// A patient code is the only credential a caregiver ever holds. It is
// shown exactly once at registration and never stored in plaintext;
// every table joins on the SHA-256 lookup key instead. The mapping
// lookup key -> code is not invertible.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidCodeFormat indicates a code that fails the
	// alphabet/length/checksum policy. Checked with errors.Is.
	ErrInvalidCodeFormat = errors.New("invalid patient code format")

	// ErrCodeExhausted indicates the collision retry budget ran out
	// during registration. In practice this never fires; it guards
	// against a broken random source.
	ErrCodeExhausted = errors.New("could not generate a unique patient code")
)

// codeAlphabet is the transcription-safe alphabet for patient codes.
// Uppercase letters and digits only, matching what caregivers can read
// back over the phone.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// codeRandomLen is the number of random characters in a code.
	codeRandomLen = 16

	// codeLen includes the trailing checksum character.
	codeLen = codeRandomLen + 1

	// DefaultRetryBudget bounds collision regeneration in Registrar.
	DefaultRetryBudget = 5
)

// Generate produces a fresh patient code from crypto/rand, formatted
// as XXXX-XXXX-XXXX-XXXX-X. The final character is a mod-36 checksum
// over the first sixteen, so a single transcription typo is caught
// before it silently hashes to a different lookup key.
func Generate() (string, error) {
	raw, err := randomChars(codeRandomLen)
	if err != nil {
		return "", err
	}
	raw = append(raw, checksum(raw))

	return format(string(raw)), nil
}

// randomChars draws n uniform characters from the code alphabet.
// Rejection sampling: 252 is the largest multiple of 36 below 256, so
// bytes at or above it are discarded instead of folding unevenly onto
// the alphabet.
func randomChars(n int) ([]byte, error) {
	const limit = 252

	out := make([]byte, 0, n)
	buf := make([]byte, 2*n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return nil, fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return out, nil
}

// LookupKey derives the deterministic one-way storage key for a code.
// Same code in, same key out, always. Returns ErrInvalidCodeFormat if
// the code fails normalization or its checksum.
func LookupKey(code string) (string, error) {
	normalized, err := Normalize(code)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// Normalize strips grouping dashes and whitespace, uppercases, and
// validates length, alphabet and checksum. Returns the bare 17
// character code.
func Normalize(code string) (string, error) {
	cleaned := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(code))

	if len(cleaned) != codeLen {
		return "", fmt.Errorf("%w: expected %d characters, got %d", ErrInvalidCodeFormat, codeLen, len(cleaned))
	}
	for _, r := range cleaned {
		if !strings.ContainsRune(codeAlphabet, r) {
			return "", fmt.Errorf("%w: character %q not in code alphabet", ErrInvalidCodeFormat, r)
		}
	}
	if cleaned[codeRandomLen] != checksum([]byte(cleaned[:codeRandomLen])) {
		return "", fmt.Errorf("%w: checksum mismatch", ErrInvalidCodeFormat)
	}

	return cleaned, nil
}

// KeyPrefix returns the loggable prefix of a lookup key. Full keys stay
// out of logs so a leaked log line cannot be replayed as a join key.
func KeyPrefix(lookupKey string) string {
	if len(lookupKey) <= 8 {
		return lookupKey
	}
	return lookupKey[:8]
}

// checksum computes the mod-36 check character over the given code
// characters.
func checksum(chars []byte) byte {
	sum := 0
	for _, c := range chars {
		sum += strings.IndexByte(codeAlphabet, c)
	}
	return codeAlphabet[sum%len(codeAlphabet)]
}

// format inserts grouping dashes: XXXX-XXXX-XXXX-XXXX-X.
func format(raw string) string {
	return fmt.Sprintf("%s-%s-%s-%s-%s", raw[0:4], raw[4:8], raw[8:12], raw[12:16], raw[16:])
}
