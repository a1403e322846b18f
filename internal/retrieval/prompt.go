package retrieval

import (
	"fmt"
	"strings"

	"github.com/carebridge/carebridge/internal/corpus"
)

// systemPrompt frames the model as a supportive coach for dementia
// caregivers. The grounding rules are strict: cite sources by number,
// never diagnose, and say so when the evidence base has nothing to
// offer.
const systemPrompt = `You are a warm, evidence-informed support coach for people caring for a family member living with dementia. You draw on cognitive behavioural techniques: acknowledge the caregiver's feelings first, then offer practical, concrete guidance.

Rules you must follow:
- Base every factual claim on the numbered research excerpts provided. Cite them inline with their number in square brackets, for example [1] or [2].
- If the excerpts do not cover the question, say clearly that the research library does not address it, and offer general emotional support instead. Do not invent findings.
- Never diagnose any condition, interpret test results, or recommend starting, stopping or changing medication. Direct those questions to the person's clinical team.
- Keep answers compassionate and plain-spoken. Avoid clinical jargon unless you explain it.`

// corpusGapNotice is appended to the user prompt when retrieval found
// nothing relevant, so the model acknowledges the gap instead of
// improvising.
const corpusGapNotice = "No research excerpts matched this question. Say so honestly and respond with emotional support and general caregiving guidance only, without citations."

// buildPrompt assembles the user prompt from the question and the
// retrieved matches, dropping the lowest-similarity matches until the
// excerpt block fits maxContextTokens. The matches actually included
// are returned, in their original rank order, for citation mapping.
func buildPrompt(question string, matches []corpus.Match, maxContextTokens int) (string, []corpus.Match) {
	used := fitContext(matches, maxContextTokens)

	var b strings.Builder
	if len(used) == 0 {
		b.WriteString(corpusGapNotice)
		b.WriteString("\n\n")
	} else {
		b.WriteString("Research excerpts:\n\n")
		for i, m := range used {
			fmt.Fprintf(&b, "[%d] %s (%s, %d)\n%s\n\n", i+1, m.Title, m.Journal, m.Year, m.Text)
		}
	}
	b.WriteString("Caregiver's question: ")
	b.WriteString(question)
	return b.String(), used
}

// fitContext trims matches to the token budget. Matches arrive ranked
// by similarity, so trimming from the tail always removes the weakest
// evidence first.
func fitContext(matches []corpus.Match, maxContextTokens int) []corpus.Match {
	used := matches
	for len(used) > 0 {
		total := 0
		for _, m := range used {
			total += corpus.TokenCount(m.Text)
		}
		if total <= maxContextTokens {
			break
		}
		used = used[:len(used)-1]
	}
	return used
}
