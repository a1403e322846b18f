package corpus_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/carebridge/carebridge/internal/corpus"
	"github.com/carebridge/carebridge/internal/log"
	"github.com/carebridge/carebridge/internal/testutil"
)

const dim = 768

// vec builds a unit vector at an angle from the reference axis, so
// cosine similarity against axisVec is exactly cos(angle).
func vec(angle float64) []float32 {
	v := make([]float32, dim)
	v[0] = float32(math.Cos(angle))
	v[1] = float32(math.Sin(angle))
	return v
}

func axisVec() []float32 { return vec(0) }

func seedDoc(t *testing.T, store *corpus.Store, id string, year int, chunks []corpus.Chunk) {
	t.Helper()
	ctx := context.Background()

	doc := corpus.Document{
		ID:      id,
		Title:   "Title " + id,
		Authors: "Someone et al.",
		Journal: "J Test",
		Year:    year,
		DOI:     "10.1/" + id,
	}
	if err := store.UpsertDocument(ctx, doc); err != nil {
		t.Fatalf("UpsertDocument(%s) failed: %v", id, err)
	}
	if err := store.ReplaceChunks(ctx, id, chunks); err != nil {
		t.Fatalf("ReplaceChunks(%s) failed: %v", id, err)
	}
}

func TestStoreIntegration(t *testing.T) {
	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := corpus.NewStore(testDB.Pool, log.NewNop())

	t.Run("top k ordering by similarity", func(t *testing.T) {
		seedDoc(t, store, "near", 2020, []corpus.Chunk{
			{DocumentID: "near", Ordinal: 0, Text: "closest", Embedding: vec(0.1)},
		})
		seedDoc(t, store, "mid", 2020, []corpus.Chunk{
			{DocumentID: "mid", Ordinal: 0, Text: "middle", Embedding: vec(0.5)},
		})
		seedDoc(t, store, "far", 2020, []corpus.Chunk{
			{DocumentID: "far", Ordinal: 0, Text: "farthest", Embedding: vec(1.2)},
		})

		matches, err := store.TopKSimilar(ctx, axisVec(), 2)
		if err != nil {
			t.Fatalf("TopKSimilar() failed: %v", err)
		}
		if len(matches) != 2 {
			t.Fatalf("expected 2 matches, got %d", len(matches))
		}
		if matches[0].DocumentID != "near" || matches[1].DocumentID != "mid" {
			t.Errorf("wrong order: %s, %s", matches[0].DocumentID, matches[1].DocumentID)
		}
		if matches[0].Similarity <= matches[1].Similarity {
			t.Errorf("similarities not descending: %f, %f", matches[0].Similarity, matches[1].Similarity)
		}
		if matches[0].Title != "Title near" || matches[0].Year != 2020 {
			t.Errorf("document metadata not joined: %+v", matches[0])
		}
	})

	t.Run("tie breaks prefer newer documents", func(t *testing.T) {
		seedDoc(t, store, "tie-old", 2010, []corpus.Chunk{
			{DocumentID: "tie-old", Ordinal: 0, Text: "old evidence", Embedding: vec(0.3)},
		})
		seedDoc(t, store, "tie-new", 2023, []corpus.Chunk{
			{DocumentID: "tie-new", Ordinal: 0, Text: "new evidence", Embedding: vec(0.3)},
		})

		matches, err := store.TopKSimilar(ctx, axisVec(), 10)
		if err != nil {
			t.Fatalf("TopKSimilar() failed: %v", err)
		}

		var oldIdx, newIdx int = -1, -1
		for i, m := range matches {
			switch m.DocumentID {
			case "tie-old":
				oldIdx = i
			case "tie-new":
				newIdx = i
			}
		}
		if oldIdx == -1 || newIdx == -1 {
			t.Fatal("tie documents missing from results")
		}
		if newIdx > oldIdx {
			t.Errorf("newer document should rank first on equal similarity: new at %d, old at %d", newIdx, oldIdx)
		}
	})

	t.Run("reingest replaces chunks", func(t *testing.T) {
		chunks := make([]corpus.Chunk, 4)
		for i := range chunks {
			chunks[i] = corpus.Chunk{DocumentID: "replace-me", Ordinal: i, Text: fmt.Sprintf("chunk %d", i), Embedding: vec(0.9)}
		}
		seedDoc(t, store, "replace-me", 2021, chunks)

		count, err := store.CountChunks(ctx, "replace-me")
		if err != nil {
			t.Fatalf("CountChunks() failed: %v", err)
		}
		if count != 4 {
			t.Fatalf("expected 4 chunks, got %d", count)
		}

		if err := store.ReplaceChunks(ctx, "replace-me", chunks[:2]); err != nil {
			t.Fatalf("ReplaceChunks() failed: %v", err)
		}
		count, err = store.CountChunks(ctx, "replace-me")
		if err != nil {
			t.Fatalf("CountChunks() failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 chunks after replace, got %d", count)
		}
	})

	t.Run("delete cascades to chunks", func(t *testing.T) {
		seedDoc(t, store, "doomed", 2021, []corpus.Chunk{
			{DocumentID: "doomed", Ordinal: 0, Text: "bye", Embedding: vec(1.0)},
		})

		if err := store.DeleteDocument(ctx, "doomed"); err != nil {
			t.Fatalf("DeleteDocument() failed: %v", err)
		}
		count, err := store.CountChunks(ctx, "doomed")
		if err != nil {
			t.Fatalf("CountChunks() failed: %v", err)
		}
		if count != 0 {
			t.Errorf("chunks survived document deletion: %d", count)
		}
		if _, err := store.GetDocument(ctx, "doomed"); !errors.Is(err, corpus.ErrDocumentNotFound) {
			t.Errorf("GetDocument() after delete = %v, want ErrDocumentNotFound", err)
		}
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := store.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats() failed: %v", err)
		}
		if stats.Documents < 1 || stats.Chunks < 1 {
			t.Errorf("stats look empty: %+v", stats)
		}
	})
}
