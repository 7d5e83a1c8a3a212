package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/intake"
	"github.com/teranos/dealflow/logger"
	"github.com/teranos/dealflow/pulse/async"
	"github.com/teranos/dealflow/server"
	"github.com/teranos/dealflow/version"
)

// ServerCmd starts the dealflow API server
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the HTTP + WebSocket API",
	Long: `Serve the dealflow API. Decks posted to /api/cases are queued and
analyzed by the embedded Pulse workers; /ws streams job progress.`,
	RunE: runServer,
}

var (
	serverPort      int
	serverDBPath    string
	serverNoWorkers bool
)

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Port to listen on (default from config)")
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Custom database path (overrides config)")
	ServerCmd.Flags().BoolVar(&serverNoWorkers, "no-workers", false, "Only accept cases; leave processing to 'dealflow pulse start'")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	port := serverPort
	if port == 0 {
		port = cfg.GetServerPort()
	}

	database, err := openDatabase(cfg, serverDBPath)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := async.NewQueue(database)
	var daemon *async.WorkerPool
	recorder := statusRecorder(database)
	var inbox *intake.Inbox
	if !serverNoWorkers && cfg.Pulse.Workers > 0 {
		svc, err := newServices(cfg, database)
		if err != nil {
			return err
		}
		daemon = newWorkerPool(ctx, cfg, database, svc, cfg.Pulse.Workers)
		queue = daemon.Queue()
		recorder = svc.status

		if cfg.Intake.InboxDir != "" {
			inbox, err = intake.NewInbox(cfg.Intake.InboxDir, cfg.Intake.SpoolDir, queue, logger.Logger)
			if err != nil {
				return err
			}
		}
	}

	srv, err := server.New(server.Config{
		Queue:          queue,
		Status:         recorder,
		Daemon:         daemon,
		SpoolDir:       cfg.Intake.SpoolDir,
		MaxUploadBytes: cfg.GetMaxUploadBytes(),
		AllowedOrigins: cfg.GetServerAllowedOrigins(),
		Logger:         logger.Logger,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create server")
	}

	pterm.DefaultHeader.WithFullWidth().Println(version.Get().String())
	pterm.Info.Printf("Listening on http://localhost:%d\n", port)
	pterm.Info.Printf("Database: %s\n", cfg.GetDatabasePath())
	if daemon == nil {
		pterm.Warning.Println("No workers: cases stay queued until 'dealflow pulse start' runs")
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()
	if inbox != nil {
		inbox.Start()
		pterm.Info.Printf("Watching %s for decks\n", cfg.Intake.InboxDir)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if inbox != nil {
			_ = inbox.Stop()
		}
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			if inbox != nil {
				if err := inbox.Stop(); err != nil {
					logger.Warnw("Inbox did not stop cleanly", "error", err)
				}
			}
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}
