package retrieval

import (
	"regexp"
	"strconv"

	"github.com/carebridge/carebridge/internal/corpus"
	"github.com/carebridge/carebridge/internal/patient"
)

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// extractCitations maps the [n] markers in the answer back to the
// sources that were actually in the prompt. Markers pointing outside
// the source list are dropped, duplicates collapse to one citation,
// and order follows first appearance in the answer.
func extractCitations(answer string, sources []corpus.Match) []patient.Citation {
	seen := make(map[int]bool)
	var citations []patient.Citation

	for _, m := range citationMarker.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(sources) || seen[n] {
			continue
		}
		seen[n] = true
		src := sources[n-1]
		citations = append(citations, patient.Citation{
			DocumentID: src.DocumentID,
			Title:      src.Title,
			Authors:    src.Authors,
			Journal:    src.Journal,
			Year:       src.Year,
			DOI:        src.DOI,
		})
	}
	return citations
}
