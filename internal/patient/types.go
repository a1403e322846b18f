// Package patient persists everything linked to an anonymous patient:
// profile, medications, health records and conversation turns.
//
// Every payload in this package is stored as an authenticated
// encrypted blob keyed by the one-way lookup key. No plaintext
// patient-linked field ever reaches a durable column, and citations
// ride inside the conversation blob because what a caregiver asked
// about is itself sensitive.
package patient

import "time"

// Profile holds the registration fields a caregiver supplies. It is
// serialized to JSON and encrypted before storage.
type Profile struct {
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Age       int       `json:"age"`
	Gender    string    `json:"gender"`
	CreatedAt time.Time `json:"created_at"`
}

// Medication is one medication entry. Reminder scheduling is out of
// scope; this is the record the caregiver keeps.
type Medication struct {
	Name      string    `json:"name"`
	Dosage    string    `json:"dosage"`
	Schedule  string    `json:"schedule"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// HealthRecord is one health-record entry, typically text extracted
// from a scanned document. The text is PII-scrubbed before encryption.
type HealthRecord struct {
	RecordType string    `json:"record_type"`
	Summary    string    `json:"summary"`
	RecordDate time.Time `json:"record_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// Citation identifies one research document an answer actually
// referenced.
type Citation struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title"`
	Authors    string `json:"authors"`
	Journal    string `json:"journal"`
	Year       int    `json:"year"`
	DOI        string `json:"doi,omitempty"`
}

// Turn is one query/answer exchange. Stored only as an encrypted
// blob; the nonce makes persistence idempotent per query.
type Turn struct {
	Nonce     string     `json:"nonce"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Citations []Citation `json:"citations"`
	AskedAt   time.Time  `json:"asked_at"`
}
