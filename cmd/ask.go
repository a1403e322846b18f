package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCode string

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a caregiving question grounded in the research library",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askCode, "code", "", "patient code (required)")
	_ = askCmd.MarkFlagRequired("code")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	lookupKey, err := resolveKey(askCode)
	if err != nil {
		return err
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(args, " ")
	answer, err := a.Answerer.Ask(ctx, lookupKey, question)
	if err != nil {
		return fmt.Errorf("answering question: %w", err)
	}

	fmt.Println(answer.Text)

	if len(answer.Citations) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for i, c := range answer.Citations {
			line := fmt.Sprintf("  [%d] %s", i+1, c.Title)
			if c.Journal != "" {
				line += fmt.Sprintf(", %s", c.Journal)
			}
			if c.Year > 0 {
				line += fmt.Sprintf(" (%d)", c.Year)
			}
			if c.DOI != "" {
				line += " doi:" + c.DOI
			}
			fmt.Println(line)
		}
	}
	return nil
}
