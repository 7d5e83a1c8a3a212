package commands

import (
	"database/sql"
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/pulse/async"
	"github.com/teranos/dealflow/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the dealflow database",
	Long: sym.DB + ` db - Manage dealflow database operations

Examples:
  dealflow db migrate      # Apply pending migrations
  dealflow db stats        # Show case, run and job counts`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show database statistics",
	RunE:  runDbStats,
}

var dbPathFlag string

func init() {
	DbCmd.PersistentFlags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, dbPathFlag)
	if err != nil {
		return err
	}
	defer database.Close()

	pterm.Success.Println("Database is up to date")
	return nil
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := dbPathFlag
	if path == "" {
		path = cfg.GetDatabasePath()
	}
	database, err := openDatabase(cfg, path)
	if err != nil {
		return err
	}
	defer database.Close()

	cases, err := countRows(database, "SELECT COUNT(*) FROM case_status")
	if err != nil {
		return err
	}
	runs, err := countRows(database, "SELECT COUNT(*) FROM pipeline_runs")
	if err != nil {
		return err
	}
	completed, err := countRows(database, "SELECT COUNT(*) FROM pipeline_runs WHERE state = 'completed'")
	if err != nil {
		return err
	}
	stats, err := async.NewQueue(database).GetStats()
	if err != nil {
		return errors.Wrap(err, "failed to read queue stats")
	}

	fmt.Printf("%s Database Statistics\n", sym.DB)
	fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Printf("Database Path:   %s\n", path)
	fmt.Printf("Cases:           %d\n", cases)
	fmt.Printf("Runs:            %d (%d completed)\n", runs, completed)
	fmt.Printf("Jobs:            %d queued, %d running, %d completed, %d failed, %d cancelled\n",
		stats.Queued, stats.Running, stats.Completed, stats.Failed, stats.Cancelled)
	return nil
}

func countRows(database *sql.DB, query string) (int, error) {
	var n int
	if err := database.QueryRow(query).Scan(&n); err != nil {
		return 0, errors.Wrapf(err, "failed to count: %s", query)
	}
	return n, nil
}
