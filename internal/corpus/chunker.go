package corpus

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChunking indicates maxTokens/overlapTokens values that
// cannot produce a finite chunk sequence.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

// Segment is one chunk of text produced by Split, before embedding.
type Segment struct {
	Ordinal int
	Text    string
}

// Split divides text into overlapping segments of at most maxTokens
// whitespace-delimited tokens. Consecutive segments share exactly
// overlapTokens tokens, so a fact spanning a boundary appears intact
// in at least one segment.
//
// A text shorter than maxTokens yields exactly one segment. Requires
// 0 <= overlapTokens < maxTokens. Ordinals start at zero and are
// stable across calls for the same input.
func Split(text string, maxTokens, overlapTokens int) ([]Segment, error) {
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: maxTokens must be positive, got %d", ErrInvalidChunking, maxTokens)
	}
	if overlapTokens < 0 || overlapTokens >= maxTokens {
		return nil, fmt.Errorf("%w: overlapTokens %d must be in [0, maxTokens)", ErrInvalidChunking, overlapTokens)
	}

	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil, nil
	}
	if len(tokens) <= maxTokens {
		return []Segment{{Ordinal: 0, Text: strings.Join(tokens, " ")}}, nil
	}

	step := maxTokens - overlapTokens
	segments := make([]Segment, 0, (len(tokens)+step-1)/step)

	for start, ordinal := 0, 0; start < len(tokens); start, ordinal = start+step, ordinal+1 {
		end := min(start+maxTokens, len(tokens))
		segments = append(segments, Segment{
			Ordinal: ordinal,
			Text:    strings.Join(tokens[start:end], " "),
		})
		if end == len(tokens) {
			break
		}
	}

	return segments, nil
}

// TokenCount reports the whitespace-token length of text, the same
// measure Split and the prompt budget use.
func TokenCount(text string) int {
	return len(strings.Fields(text))
}
