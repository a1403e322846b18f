package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/carebridge/carebridge/internal/corpus"
)

var ingestBatchSize int

var ingestCmd = &cobra.Command{
	Use:   "ingest [file.jsonl]",
	Short: "Ingest research papers into the retrieval corpus",
	Long: `Ingest reads research papers from a JSON Lines file, one document
per line, chunks and embeds them, and writes them to the corpus.

Re-ingesting a document replaces its chunks, so the file can be fed
again after corrections without creating duplicates.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "chunk texts per embedding call (0 = embedder limit)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	docs, err := readDocuments(args[0])
	if err != nil {
		return err
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.Ingestor.Ingest(ctx, docs, ingestBatchSize)
	if err != nil {
		return fmt.Errorf("ingesting documents: %w", err)
	}

	fmt.Printf("Ingested %d of %d documents (%d chunks) in %s.\n",
		report.Accepted, len(docs), report.Chunks, report.Elapsed.Round(time.Millisecond))
	for _, docErr := range report.Errors {
		fmt.Fprintf(os.Stderr, "  failed %s: %v\n", docErr.DocumentID, docErr.Err)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d documents failed", report.Failed)
	}
	return nil
}

// readDocuments parses a JSONL file into documents. A bad line aborts
// with its line number so the file can be fixed.
func readDocuments(path string) ([]corpus.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var docs []corpus.Document
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var doc corpus.Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if doc.ID == "" {
			return nil, fmt.Errorf("%s line %d: document id is empty", path, line)
		}
		docs = append(docs, doc)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return docs, nil
}
