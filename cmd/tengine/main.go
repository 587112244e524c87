package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "tengine",
	Short: "Turn meeting transcripts into validated insights with full lineage",
	Long: `tengine runs transcripts through five stages (normalize, extract,
contextualize, insight, validate). Every stage output is stored as an
immutable, versioned artifact that can be traced back to its input and
replayed on its own.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if os.Getenv("NO_COLOR") != "" {
			noColor = true
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.AddCommand(ingestCmd, lineageCmd, replayCmd, serveCmd, statusCmd, contextCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
