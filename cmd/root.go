// Package cmd holds the carebridge CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/carebridge/carebridge/internal/app"
	"github.com/carebridge/carebridge/internal/config"
	"github.com/carebridge/carebridge/internal/identity"
	"github.com/carebridge/carebridge/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "carebridge",
	Short: "CareBridge - research-grounded answers for dementia caregivers",
	Long: `CareBridge answers caregivers' questions from a curated dementia
research library, with inline citations to the papers it drew on.

Patients are identified only by an anonymous code. Everything stored
about a patient is encrypted; the service never learns who they are.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the CLI logger. Debug level when --verbose is set.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// setupApp loads configuration and wires the full application. The
// caller must Close the returned app.
func setupApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return app.Setup(ctx, cfg, newLogger())
}

// resolveKey normalizes and validates a patient code and derives the
// lookup key. The code itself goes no further than this function.
func resolveKey(code string) (string, error) {
	lookupKey, err := identity.LookupKey(code)
	if err != nil {
		return "", fmt.Errorf("invalid patient code: %w", err)
	}
	return lookupKey, nil
}
