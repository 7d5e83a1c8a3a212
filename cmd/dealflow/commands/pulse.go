package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teranos/dealflow/intake"
	"github.com/teranos/dealflow/logger"
	"github.com/teranos/dealflow/sym"
)

// PulseCmd represents the pulse command - the background case processor
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: sym.Pulse + " Run the Pulse worker pool",
	Long: sym.Pulse + ` Pulse - background case processing.

Pulse pulls queued analysis jobs and runs each case through the pipeline.
With an inbox directory configured (intake.inbox_dir or --inbox), decks
dropped into it are queued automatically.

Example:
  dealflow pulse start                       # Start workers in foreground
  dealflow pulse start --workers 3           # Three concurrent cases
  dealflow pulse start --inbox ~/deals/inbox # Also watch a drop folder`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the worker pool
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Pulse workers",
	Long: `Start the worker pool in foreground mode. Runs until interrupted
(Ctrl+C); running cases are requeued on shutdown.`,
	RunE: runPulseStart,
}

func init() {
	PulseStartCmd.Flags().Int("workers", 0, "Number of concurrent workers (default from config)")
	PulseStartCmd.Flags().String("inbox", "", "Directory to watch for new decks (default from config)")
	PulseStartCmd.Flags().String("db-path", "", "Custom database path (overrides config)")
	PulseCmd.AddCommand(PulseStartCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.Pulse.Workers
	}
	if workers <= 0 {
		return fmt.Errorf("pulse.workers is 0; nothing to start")
	}
	inboxDir, _ := cmd.Flags().GetString("inbox")
	if inboxDir == "" {
		inboxDir = cfg.Intake.InboxDir
	}
	dbPath, _ := cmd.Flags().GetString("db-path")

	database, err := openDatabase(cfg, dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	svc, err := newServices(cfg, database)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := newWorkerPool(ctx, cfg, database, svc, workers)

	fmt.Printf("%s Starting Pulse with %d worker(s)...\n", sym.Pulse, workers)
	pool.Start()

	var inbox *intake.Inbox
	if inboxDir != "" {
		inbox, err = intake.NewInbox(inboxDir, cfg.Intake.SpoolDir, pool.Queue(), logger.Logger)
		if err != nil {
			pool.Stop()
			return err
		}
		inbox.Start()
	}

	fmt.Printf("%s Pulse started\n", sym.Pulse)
	fmt.Printf("  Workers: %d\n", workers)
	if inbox != nil {
		fmt.Printf("  %s Inbox: %s\n", sym.IX, inboxDir)
	}
	fmt.Printf("\n%s Press Ctrl+C for graceful shutdown\n\n", sym.Pulse)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\n%s Shutting down...\n", sym.PulseClose)

	// Stop intake first so nothing new is queued while workers drain
	if inbox != nil {
		if err := inbox.Stop(); err != nil {
			logger.Warnw("Inbox did not stop cleanly", "error", err)
		}
	}
	pool.Stop()
	cancel()

	fmt.Printf("%s Pulse stopped\n", sym.Pulse)
	return nil
}
