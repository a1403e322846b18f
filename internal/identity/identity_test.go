package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestGenerateFormat(t *testing.T) {
	code, err := Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	if len(code) != 21 { // 17 chars + 4 dashes
		t.Errorf("expected 21 characters with dashes, got %d: %q", len(code), code)
	}

	parts := strings.Split(code, "-")
	if len(parts) != 5 {
		t.Fatalf("expected 5 dash-separated groups, got %d: %q", len(parts), code)
	}
	for i, part := range parts[:4] {
		if len(part) != 4 {
			t.Errorf("group %d: expected 4 characters, got %q", i, part)
		}
	}
	if len(parts[4]) != 1 {
		t.Errorf("checksum group: expected 1 character, got %q", parts[4])
	}

	for _, r := range strings.ReplaceAll(code, "-", "") {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Errorf("character %q outside the code alphabet", r)
		}
	}
}

func TestRandomCharsUniform(t *testing.T) {
	const draws = 360000
	chars, err := randomChars(draws)
	if err != nil {
		t.Fatalf("randomChars() failed: %v", err)
	}

	counts := make(map[byte]int)
	for _, c := range chars {
		counts[c]++
	}

	// Expected 10000 per character, sigma roughly 100. Folding bytes
	// onto the alphabet with a plain modulo would push A-D to about
	// 11250 each; the 5% band catches that while sitting five sigmas
	// from honest noise.
	expected := draws / len(codeAlphabet)
	for i := 0; i < len(codeAlphabet); i++ {
		c := codeAlphabet[i]
		if counts[c] < expected*95/100 || counts[c] > expected*105/100 {
			t.Errorf("character %q drawn %d times, want close to %d", c, counts[c], expected)
		}
	}
}

func TestGenerateUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		code, err := Generate()
		if err != nil {
			t.Fatalf("Generate() failed: %v", err)
		}
		if seen[code] {
			t.Fatalf("duplicate code after %d generations: %q", i, code)
		}
		seen[code] = true
	}
}

func TestGeneratedCodeRoundTrips(t *testing.T) {
	code, err := Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if _, err := LookupKey(code); err != nil {
		t.Errorf("LookupKey rejected a generated code %q: %v", code, err)
	}
}

func TestLookupKeyDeterministic(t *testing.T) {
	code, err := Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	key1, err := LookupKey(code)
	if err != nil {
		t.Fatalf("LookupKey failed: %v", err)
	}
	key2, err := LookupKey(code)
	if err != nil {
		t.Fatalf("LookupKey failed: %v", err)
	}
	if key1 != key2 {
		t.Errorf("same code produced different keys: %q vs %q", key1, key2)
	}
	if len(key1) != 64 {
		t.Errorf("expected 64 hex characters, got %d", len(key1))
	}
}

func TestLookupKeyNormalization(t *testing.T) {
	code, err := Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}

	canonical, err := LookupKey(code)
	if err != nil {
		t.Fatalf("LookupKey failed: %v", err)
	}

	variants := []string{
		strings.ToLower(code),
		strings.ReplaceAll(code, "-", ""),
		strings.ReplaceAll(code, "-", " "),
		"  " + code + "  ",
	}
	for _, variant := range variants {
		key, err := LookupKey(variant)
		if err != nil {
			t.Errorf("LookupKey(%q) failed: %v", variant, err)
			continue
		}
		if key != canonical {
			t.Errorf("LookupKey(%q) = %q, want canonical %q", variant, key, canonical)
		}
	}
}

func TestLookupKeyRejectsBadCodes(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"empty", ""},
		{"too short", "ABCD-EFGH-IJKL-M"},
		{"too long", "ABCD-EFGH-IJKL-MNOP-QR-ST"},
		{"bad character", "ABCD-EFGH-IJKL-MNO!-A"},
		{"wrong checksum", wrongChecksum(t)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LookupKey(tt.code); !errors.Is(err, ErrInvalidCodeFormat) {
				t.Errorf("LookupKey(%q) error = %v, want ErrInvalidCodeFormat", tt.code, err)
			}
		})
	}
}

// wrongChecksum returns a valid code with its checksum character
// swapped for a different alphabet character.
func wrongChecksum(t *testing.T) string {
	t.Helper()
	code, err := Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	last := code[len(code)-1]
	replacement := byte('A')
	if last == 'A' {
		replacement = 'B'
	}
	return code[:len(code)-1] + string(replacement)
}

func TestKeyPrefix(t *testing.T) {
	if got := KeyPrefix("abcdef0123456789"); got != "abcdef01" {
		t.Errorf("KeyPrefix() = %q, want %q", got, "abcdef01")
	}
	if got := KeyPrefix("abc"); got != "abc" {
		t.Errorf("KeyPrefix() on short input = %q, want %q", got, "abc")
	}
}

// fakeChecker reports collisions for a fixed number of calls.
type fakeChecker struct {
	collisions int
	calls      int
	err        error
}

func (f *fakeChecker) LookupKeyExists(ctx context.Context, lookupKey string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.calls <= f.collisions, nil
}

func TestRegistrarNewCode(t *testing.T) {
	checker := &fakeChecker{}
	r := NewRegistrar(checker, DefaultRetryBudget, nil)

	code, lookupKey, err := r.NewCode(context.Background())
	if err != nil {
		t.Fatalf("NewCode() failed: %v", err)
	}

	derived, err := LookupKey(code)
	if err != nil {
		t.Fatalf("returned code is invalid: %v", err)
	}
	if derived != lookupKey {
		t.Errorf("returned lookup key %q does not match code-derived %q", lookupKey, derived)
	}
}

func TestRegistrarRetriesCollisions(t *testing.T) {
	checker := &fakeChecker{collisions: 3}
	r := NewRegistrar(checker, 5, nil)

	if _, _, err := r.NewCode(context.Background()); err != nil {
		t.Fatalf("NewCode() failed after retryable collisions: %v", err)
	}
	if checker.calls != 4 {
		t.Errorf("expected 4 existence checks, got %d", checker.calls)
	}
}

func TestRegistrarExhaustsBudget(t *testing.T) {
	checker := &fakeChecker{collisions: 100}
	r := NewRegistrar(checker, 3, nil)

	_, _, err := r.NewCode(context.Background())
	if !errors.Is(err, ErrCodeExhausted) {
		t.Errorf("NewCode() error = %v, want ErrCodeExhausted", err)
	}
}

func TestRegistrarPropagatesCheckerError(t *testing.T) {
	boom := errors.New("db down")
	checker := &fakeChecker{err: boom}
	r := NewRegistrar(checker, 3, nil)

	_, _, err := r.NewCode(context.Background())
	if !errors.Is(err, boom) {
		t.Errorf("NewCode() error = %v, want wrapped %v", err, boom)
	}
}
