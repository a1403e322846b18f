package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusShowConfig bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show corpus size and service configuration",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusShowConfig, "config", false, "also print the effective configuration")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	stats, err := a.Corpus.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("reading corpus stats: %w", err)
	}

	fmt.Printf("Research corpus: %d documents, %d chunks\n", stats.Documents, stats.Chunks)

	if statusShowConfig {
		// Secrets are masked by the config's own MarshalJSON.
		out, err := json.MarshalIndent(a.Config, "", "  ")
		if err != nil {
			return fmt.Errorf("rendering configuration: %w", err)
		}
		fmt.Println(string(out))
	}
	return nil
}
