package corpus

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// numberedText builds "t0 t1 t2 ..." so token positions are visible
// in failure output.
func numberedText(n int) string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("t%d", i)
	}
	return strings.Join(tokens, " ")
}

func TestSplitShortTextSingleSegment(t *testing.T) {
	segments, err := Split(numberedText(10), 50, 10)
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segments))
	}
	if segments[0].Ordinal != 0 {
		t.Errorf("expected ordinal 0, got %d", segments[0].Ordinal)
	}
	if TokenCount(segments[0].Text) != 10 {
		t.Errorf("expected 10 tokens, got %d", TokenCount(segments[0].Text))
	}
}

func TestSplitEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		segments, err := Split(text, 50, 10)
		if err != nil {
			t.Errorf("Split(%q) failed: %v", text, err)
		}
		if segments != nil {
			t.Errorf("Split(%q) = %v, want nil", text, segments)
		}
	}
}

func TestSplitExactOverlap(t *testing.T) {
	const maxTokens, overlap = 20, 5
	segments, err := Split(numberedText(100), maxTokens, overlap)
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}
	if len(segments) < 2 {
		t.Fatalf("expected multiple segments, got %d", len(segments))
	}

	for i := 1; i < len(segments); i++ {
		prev := strings.Fields(segments[i-1].Text)
		curr := strings.Fields(segments[i].Text)

		if len(prev) != maxTokens {
			t.Errorf("segment %d: expected %d tokens, got %d", i-1, maxTokens, len(prev))
		}

		tail := prev[len(prev)-overlap:]
		head := curr[:overlap]
		for j := range tail {
			if tail[j] != head[j] {
				t.Errorf("segments %d/%d: overlap token %d mismatch: %q vs %q",
					i-1, i, j, tail[j], head[j])
			}
		}
	}
}

func TestSplitOrdinalsSequential(t *testing.T) {
	segments, err := Split(numberedText(100), 20, 5)
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}
	for i, seg := range segments {
		if seg.Ordinal != i {
			t.Errorf("segment %d has ordinal %d", i, seg.Ordinal)
		}
	}
}

func TestSplitCoversEveryToken(t *testing.T) {
	const n = 137
	segments, err := Split(numberedText(n), 20, 5)
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}

	seen := make(map[string]bool)
	for _, seg := range segments {
		for _, tok := range strings.Fields(seg.Text) {
			seen[tok] = true
		}
	}
	for i := 0; i < n; i++ {
		if !seen[fmt.Sprintf("t%d", i)] {
			t.Errorf("token t%d missing from every segment", i)
		}
	}
}

func TestSplitZeroOverlap(t *testing.T) {
	segments, err := Split(numberedText(60), 20, 0)
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segments))
	}
	if first := strings.Fields(segments[1].Text)[0]; first != "t20" {
		t.Errorf("segment 1 should start at t20, got %q", first)
	}
}

func TestSplitRejectsBadParameters(t *testing.T) {
	tests := []struct {
		name      string
		maxTokens int
		overlap   int
	}{
		{"zero max", 0, 0},
		{"negative max", -1, 0},
		{"negative overlap", 10, -1},
		{"overlap equals max", 10, 10},
		{"overlap exceeds max", 10, 15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Split("some text here", tt.maxTokens, tt.overlap); !errors.Is(err, ErrInvalidChunking) {
				t.Errorf("Split(max=%d, overlap=%d) error = %v, want ErrInvalidChunking",
					tt.maxTokens, tt.overlap, err)
			}
		})
	}
}

func TestSplitNormalizesWhitespace(t *testing.T) {
	segments, err := Split("one\t two\n\nthree   four", 50, 0)
	if err != nil {
		t.Fatalf("Split() failed: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "one two three four" {
		t.Errorf("whitespace not normalized: %+v", segments)
	}
}

func TestTokenCount(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"one", 1},
		{"one two\tthree\nfour", 4},
	}
	for _, tt := range tests {
		if got := TokenCount(tt.in); got != tt.want {
			t.Errorf("TokenCount(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
