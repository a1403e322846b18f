package patient_test

import (
	"context"
	"crypto/rand"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/carebridge/carebridge/internal/cryptobox"
	"github.com/carebridge/carebridge/internal/identity"
	"github.com/carebridge/carebridge/internal/log"
	"github.com/carebridge/carebridge/internal/patient"
	"github.com/carebridge/carebridge/internal/scrub"
	"github.com/carebridge/carebridge/internal/testutil"
)

func newTestStore(t *testing.T) (*patient.Store, *testutil.TestDB, func()) {
	t.Helper()

	testDB, cleanup := testutil.SetupTestDB(t)

	masterKey := make([]byte, cryptobox.KeySize)
	if _, err := rand.Read(masterKey); err != nil {
		cleanup()
		t.Fatalf("generating master key: %v", err)
	}
	box, err := cryptobox.New(masterKey, 1)
	if err != nil {
		cleanup()
		t.Fatalf("creating crypto box: %v", err)
	}

	return patient.NewStore(testDB.Pool, box, scrub.New(), log.NewNop()), testDB, cleanup
}

func newLookupKey(t *testing.T) string {
	t.Helper()
	code, err := identity.Generate()
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	key, err := identity.LookupKey(code)
	if err != nil {
		t.Fatalf("LookupKey() failed: %v", err)
	}
	return key
}

func TestPatientStoreIntegration(t *testing.T) {
	store, testDB, cleanup := newTestStore(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("profile round trip", func(t *testing.T) {
		key := newLookupKey(t)
		profile := patient.Profile{FirstName: "Edith", LastName: "B", Age: 84, Gender: "female", CreatedAt: time.Now().UTC()}

		if err := store.CreateProfile(ctx, key, profile); err != nil {
			t.Fatalf("CreateProfile() failed: %v", err)
		}

		got, err := store.GetProfile(ctx, key)
		if err != nil {
			t.Fatalf("GetProfile() failed: %v", err)
		}
		if got.FirstName != "Edith" || got.Age != 84 {
			t.Errorf("profile mismatch: %+v", got)
		}

		exists, err := store.LookupKeyExists(ctx, key)
		if err != nil || !exists {
			t.Errorf("LookupKeyExists() = %v, %v, want true", exists, err)
		}
	})

	t.Run("duplicate registration rejected", func(t *testing.T) {
		key := newLookupKey(t)
		profile := patient.Profile{FirstName: "A"}

		if err := store.CreateProfile(ctx, key, profile); err != nil {
			t.Fatalf("CreateProfile() failed: %v", err)
		}
		if err := store.CreateProfile(ctx, key, profile); !errors.Is(err, patient.ErrAlreadyRegistered) {
			t.Errorf("second CreateProfile() = %v, want ErrAlreadyRegistered", err)
		}
	})

	t.Run("unknown key", func(t *testing.T) {
		if _, err := store.GetProfile(ctx, newLookupKey(t)); !errors.Is(err, patient.ErrNotFound) {
			t.Errorf("GetProfile() = %v, want ErrNotFound", err)
		}
	})

	t.Run("no plaintext in storage", func(t *testing.T) {
		key := newLookupKey(t)
		profile := patient.Profile{FirstName: "Margaret", LastName: "Thistlewood"}
		if err := store.CreateProfile(ctx, key, profile); err != nil {
			t.Fatalf("CreateProfile() failed: %v", err)
		}

		var stored string
		err := testDB.Pool.QueryRow(ctx,
			`SELECT encrypted_profile FROM patients WHERE lookup_key = $1`, key,
		).Scan(&stored)
		if err != nil {
			t.Fatalf("reading raw row: %v", err)
		}
		for _, plaintext := range []string{"Margaret", "Thistlewood", "first_name"} {
			if contains(stored, plaintext) {
				t.Errorf("plaintext %q visible in stored blob", plaintext)
			}
		}
	})

	t.Run("medications", func(t *testing.T) {
		key := newLookupKey(t)
		if err := store.CreateProfile(ctx, key, patient.Profile{}); err != nil {
			t.Fatalf("CreateProfile() failed: %v", err)
		}

		meds := []patient.Medication{
			{Name: "donepezil", Dosage: "10mg", Schedule: "morning", CreatedAt: time.Now().UTC()},
			{Name: "memantine", Dosage: "20mg", Schedule: "evening", CreatedAt: time.Now().UTC()},
		}
		for _, med := range meds {
			if err := store.AddMedication(ctx, key, med); err != nil {
				t.Fatalf("AddMedication(%s) failed: %v", med.Name, err)
			}
		}

		got, err := store.ListMedications(ctx, key)
		if err != nil {
			t.Fatalf("ListMedications() failed: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 medications, got %d", len(got))
		}
		if got[0].Name != "donepezil" {
			t.Errorf("expected oldest first, got %q", got[0].Name)
		}
	})

	t.Run("health records scrub before encryption", func(t *testing.T) {
		key := newLookupKey(t)
		if err := store.CreateProfile(ctx, key, patient.Profile{}); err != nil {
			t.Fatalf("CreateProfile() failed: %v", err)
		}

		rec := patient.HealthRecord{
			RecordType: "clinic letter",
			Summary:    "Patient Name: Edith Bramwell. DOB: 01/02/1939. Memory decline noted.",
			RecordDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			CreatedAt:  time.Now().UTC(),
		}
		if err := store.AddHealthRecord(ctx, key, rec); err != nil {
			t.Fatalf("AddHealthRecord() failed: %v", err)
		}

		records, err := store.ListHealthRecords(ctx, key)
		if err != nil {
			t.Fatalf("ListHealthRecords() failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
		summary := records[0].Summary
		if contains(summary, "Bramwell") || contains(summary, "01/02/1939") {
			t.Errorf("identifiers survived into the stored record: %q", summary)
		}
		if !contains(summary, "Memory decline noted.") {
			t.Errorf("clinical content lost: %q", summary)
		}
	})

	t.Run("turns idempotent by nonce", func(t *testing.T) {
		key := newLookupKey(t)
		if err := store.CreateProfile(ctx, key, patient.Profile{}); err != nil {
			t.Fatalf("CreateProfile() failed: %v", err)
		}

		turn := patient.Turn{
			Nonce:    "3b241101-e2bb-4255-8caf-4136c566a962",
			Question: "how do I handle sundowning?",
			Answer:   "keep evenings calm [1]",
			Citations: []patient.Citation{
				{DocumentID: "d1", Title: "Sundowning study", Year: 2020},
			},
			AskedAt: time.Now().UTC(),
		}
		if err := store.SaveTurn(ctx, key, turn); err != nil {
			t.Fatalf("SaveTurn() failed: %v", err)
		}
		// A retried save with the same nonce must not duplicate.
		if err := store.SaveTurn(ctx, key, turn); err != nil {
			t.Fatalf("retried SaveTurn() failed: %v", err)
		}

		turns, err := store.History(ctx, key)
		if err != nil {
			t.Fatalf("History() failed: %v", err)
		}
		if len(turns) != 1 {
			t.Fatalf("expected 1 turn after idempotent retry, got %d", len(turns))
		}
		if turns[0].Question != turn.Question || len(turns[0].Citations) != 1 {
			t.Errorf("turn round trip mismatch: %+v", turns[0])
		}
	})

	t.Run("history ordered oldest first", func(t *testing.T) {
		key := newLookupKey(t)
		if err := store.CreateProfile(ctx, key, patient.Profile{}); err != nil {
			t.Fatalf("CreateProfile() failed: %v", err)
		}

		for i, nonce := range []string{
			"11111111-1111-1111-1111-111111111111",
			"22222222-2222-2222-2222-222222222222",
			"33333333-3333-3333-3333-333333333333",
		} {
			turn := patient.Turn{Nonce: nonce, Question: string(rune('a' + i)), AskedAt: time.Now().UTC()}
			if err := store.SaveTurn(ctx, key, turn); err != nil {
				t.Fatalf("SaveTurn() failed: %v", err)
			}
		}

		turns, err := store.History(ctx, key)
		if err != nil {
			t.Fatalf("History() failed: %v", err)
		}
		if len(turns) != 3 {
			t.Fatalf("expected 3 turns, got %d", len(turns))
		}
		if turns[0].Question != "a" || turns[2].Question != "c" {
			t.Errorf("history not oldest first: %+v", turns)
		}

		empty, err := store.History(ctx, newLookupKey(t))
		if err != nil {
			t.Fatalf("History() on empty patient failed: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("expected empty history, got %d turns", len(empty))
		}
	})
}

func contains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
