// Package scrub removes direct identifiers from free text extracted
// from scanned documents before it is persisted or forwarded to a
// hosted model.
//
// Policy: over-redaction beats under-redaction. A missed identifier is
// a privacy breach; a masked harmless token is a cosmetic flaw. The
// replacement masks are all-caps bracketed tokens that none of the
// patterns can re-match, so scrubbing is idempotent and Scrub is a
// pure function.
package scrub

import "regexp"

// Mask tokens. Uppercase-only so the name patterns (which require
// lowercase letters) can never re-match a mask.
const (
	MaskPhone   = "[PHONE]"
	MaskEmail   = "[EMAIL]"
	MaskDOB     = "[DOB]"
	MaskSSN     = "[SSN]"
	MaskID      = "[RECORD-ID]"
	MaskAddress = "[ADDRESS]"
	MaskPostal  = "[POSTCODE]"
	MaskName    = "[NAME]"
)

type rule struct {
	re          *regexp.Regexp
	replacement string
}

// Scrubber applies the PII rules in a fixed order. Construct once with
// New and share freely; it is immutable after construction.
type Scrubber struct {
	rules []rule
}

// New compiles the scrubbing rules.
//
// Ordering matters: labeled identifiers (DOB, MRN) are matched before
// the generic date and number patterns so the specific mask wins, and
// addresses are matched before bare postal codes.
func New() *Scrubber {
	return &Scrubber{rules: []rule{
		// Phone numbers, plain and parenthesized area code.
		{regexp.MustCompile(`\(\d{3}\)\s?\d{3}[-.\s]?\d{4}`), MaskPhone},
		{regexp.MustCompile(`\b(?:\+?44\s?|0)?\d{3,4}[-.\s]?\d{3}[-.\s]?\d{4}\b`), MaskPhone},

		// Email addresses.
		{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), MaskEmail},

		// Dates of birth, labeled and bare date forms.
		{regexp.MustCompile(`(?i)\b(?:DOB|date of birth|born)[:\s]+\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`), MaskDOB},
		{regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}\b`), MaskDOB},

		// US social security numbers.
		{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), MaskSSN},

		// Medical record / patient identifiers with a label.
		{regexp.MustCompile(`(?i)\b(?:MRN|NHS number|patient id|medical record(?: number)?)[:\s#]+[A-Za-z0-9\-]+\b`), MaskID},

		// Street addresses.
		{regexp.MustCompile(`(?i)\b\d+\s+[A-Za-z][A-Za-z\s]*(?:street|st|avenue|ave|road|rd|boulevard|blvd|lane|ln|drive|dr|court|ct|close|crescent|way)\b\.?`), MaskAddress},

		// UK postcodes and US zip codes.
		{regexp.MustCompile(`\b[A-Z]{1,2}\d[A-Z0-9]?\s?\d[A-Z]{2}\b`), MaskPostal},
		{regexp.MustCompile(`\b\d{5}(?:-\d{4})?\b`), MaskPostal},

		// Names behind an explicit label.
		{regexp.MustCompile(`\b(?:Patient Name|Patient|Name|Carer|Caregiver)[:\s]+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*`), MaskName},

		// Full names adjacent to honorifics or clinical phrasing.
		// RE2 has no lookarounds, so the anchor word is kept via the
		// capture group and only the name is replaced.
		{regexp.MustCompile(`\b((?:Mr|Mrs|Ms|Miss|Dr|Prof)\.?\s+)[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`), "${1}" + MaskName},
		{regexp.MustCompile(`\b((?:diagnosed|prescribed|examined|assessed|admitted|caring for|treated)\s+(?:for\s+)?)[A-Z][a-z]+\s+[A-Z][a-z]+\b`), "${1}" + MaskName},
	}}
}

// Scrub returns text with all recognized identifiers masked. Pure and
// idempotent: Scrub(Scrub(t)) == Scrub(t).
func (s *Scrubber) Scrub(text string) string {
	for _, r := range s.rules {
		text = r.re.ReplaceAllString(text, r.replacement)
	}
	return text
}
