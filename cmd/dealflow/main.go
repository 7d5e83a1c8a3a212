package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/dealflow/cmd/dealflow/commands"
	"github.com/teranos/dealflow/logger"
)

var rootCmd = &cobra.Command{
	Use:   "dealflow",
	Short: "dealflow - deal-flow case analysis pipeline",
	Long: `dealflow - multi-stage analysis of startup pitch decks.

Each case moves through extraction, enrichment, analysis, scoring, the
investment memo and founder-call insights. Cases run synchronously from the
CLI or in the background through the Pulse worker pool.

Available commands:
  am     - Manage dealflow configuration ("I am")
  db     - Manage the dealflow database
  run    - Analyze one deck in the foreground
  pulse  - Run the background worker pool (and inbox watcher)
  server - Start the HTTP + WebSocket API
  runs   - Inspect recorded pipeline runs
  jobs   - Inspect queued and finished jobs

Examples:
  dealflow am show                   # Show current configuration
  dealflow run ./deck.pdf            # Analyze a deck now
  dealflow pulse start --workers 2   # Process queued cases
  dealflow server                    # Serve the API`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 'am show' and 'version' print to stdout and stay quiet
		if cmd.Name() == "show" && cmd.Parent() != nil && cmd.Parent().Name() == "am" {
			return nil
		}
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.PulseCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.RunsCmd)
	rootCmd.AddCommand(commands.JobsCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
