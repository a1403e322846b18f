package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var historyCode string

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past questions and answers for a patient",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyCode, "code", "", "patient code (required)")
	_ = historyCmd.MarkFlagRequired("code")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	lookupKey, err := resolveKey(historyCode)
	if err != nil {
		return err
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	turns, err := a.Answerer.History(ctx, lookupKey)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	if len(turns) == 0 {
		fmt.Println("No questions asked yet.")
		return nil
	}

	for _, turn := range turns {
		fmt.Printf("[%s]\n", turn.AskedAt.Local().Format("2006-01-02 15:04"))
		fmt.Printf("Q: %s\n", turn.Question)
		fmt.Printf("A: %s\n", turn.Answer)
		if len(turn.Citations) > 0 {
			fmt.Print("Sources: ")
			for i, c := range turn.Citations {
				if i > 0 {
					fmt.Print("; ")
				}
				fmt.Print(c.Title)
			}
			fmt.Println()
		}
		fmt.Println()
	}
	return nil
}
