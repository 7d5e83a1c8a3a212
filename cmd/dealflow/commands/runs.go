package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/status"
	"github.com/teranos/dealflow/sym"
)

// RunsCmd inspects recorded pipeline runs
var RunsCmd = &cobra.Command{
	Use:   "runs",
	Short: sym.Run + " Inspect recorded pipeline runs",
	Long: sym.Run + ` runs - Inspect recorded pipeline runs.

Examples:
  dealflow runs ls                 # Most recent runs across cases
  dealflow runs ls acme-1a2b3c4d   # Runs of one case
  dealflow runs show <run-id>      # Stages and task outcomes
  dealflow runs report <run-id>    # Print the memo as Markdown`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var runsLsCmd = &cobra.Command{
	Use:   "ls [case-id]",
	Short: "List runs, newest first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRunsLs,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run's stages and task outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsReportCmd = &cobra.Command{
	Use:   "report <run-id>",
	Short: "Print a run's investment memo",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsReport,
}

var runsLimit int

func init() {
	runsLsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum number of runs to display")

	RunsCmd.AddCommand(runsLsCmd)
	RunsCmd.AddCommand(runsShowCmd)
	RunsCmd.AddCommand(runsReportCmd)
}

// withRecorder opens the configured database for a read-only command.
func withRecorder(fn func(ctx context.Context, r *status.Recorder) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openDatabase(cfg, "")
	if err != nil {
		return err
	}
	defer database.Close()
	return fn(context.Background(), statusRecorder(database))
}

func runRunsLs(cmd *cobra.Command, args []string) error {
	caseID := ""
	if len(args) == 1 {
		caseID = args[0]
	}
	return withRecorder(func(ctx context.Context, r *status.Recorder) error {
		runs, err := r.ListRuns(ctx, caseID, runsLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			pterm.Info.Println("No runs recorded")
			return nil
		}
		data := pterm.TableData{{"Run", "Case", "State", "Started", "Took", "Error"}}
		for _, run := range runs {
			took := "-"
			if run.EndedAt != nil {
				took = run.EndedAt.Sub(run.StartedAt).Round(time.Second).String()
			}
			data = append(data, []string{
				run.ID,
				run.CaseID,
				sym.ForState(string(run.State)) + " " + string(run.State),
				run.StartedAt.Local().Format("2006-01-02 15:04:05"),
				took,
				errors.Summary(errors.New(run.Error), 60),
			})
		}
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	})
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	return withRecorder(func(ctx context.Context, r *status.Recorder) error {
		run, err := r.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		pterm.DefaultSection.Printf("Run %s (case %s)", run.ID, run.CaseID)
		pterm.Info.Printf("State: %s %s\n", sym.ForState(string(run.State)), run.State)
		if run.Error != "" {
			pterm.Error.Println(run.Error)
		}
		printStages(run.Stages)

		records, err := r.TaskResults(ctx, run.ID)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		data := pterm.TableData{{"Stage", "Task", "Outcome", "ms", "Reason"}}
		for _, rec := range records {
			data = append(data, []string{
				rec.Stage, rec.Task, rec.Outcome, fmt.Sprint(rec.DurationMS), rec.Reason,
			})
		}
		pterm.Println()
		return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	})
}

func runRunsReport(cmd *cobra.Command, args []string) error {
	return withRecorder(func(ctx context.Context, r *status.Recorder) error {
		rec, err := r.TaskResult(ctx, args[0], deal.StageReport, deal.TaskComposeReport)
		if err != nil {
			return err
		}
		if rec.Outcome != "success" {
			return errors.Newf("memo not available for run %s: %s", args[0], rec.Reason)
		}
		var report deal.Report
		if err := json.Unmarshal(rec.Payload, &report); err != nil {
			return errors.Wrap(err, "failed to decode memo")
		}
		fmt.Fprintln(cmd.OutOrStdout(), report.Markdown)
		return nil
	})
}
