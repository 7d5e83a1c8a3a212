package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/dealflow/deal"
	"github.com/teranos/dealflow/pulse/async"
	"github.com/teranos/dealflow/sym"
)

// JobsCmd manages queued analysis jobs
var JobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: sym.Pulse + " Inspect analysis jobs",
	Long: sym.Pulse + ` jobs - queued and finished analysis jobs.

Examples:
  dealflow jobs ls                   # List recent jobs
  dealflow jobs ls --status failed   # Only failed jobs
  dealflow jobs show <job-id>        # Job details
  dealflow jobs cancel <job-id>      # Cancel a job that has not finished`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var jobsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List jobs",
	Long: `List jobs, optionally filtered by status.

Status filters: queued, running, completed, failed, cancelled`,
	RunE: runJobsLs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job that has not finished",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsCancel,
}

var (
	jobsStatus string
	jobsLimit  int
)

func init() {
	jobsLsCmd.Flags().StringVar(&jobsStatus, "status", "", "Filter by status (queued, running, completed, failed, cancelled)")
	jobsLsCmd.Flags().IntVar(&jobsLimit, "limit", 20, "Maximum number of jobs to display")

	JobsCmd.AddCommand(jobsLsCmd)
	JobsCmd.AddCommand(jobsShowCmd)
	JobsCmd.AddCommand(jobsCancelCmd)
}

func openQueue() (*async.Queue, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	database, err := openDatabase(cfg, "")
	if err != nil {
		return nil, nil, err
	}
	return async.NewQueue(database), func() { database.Close() }, nil
}

func runJobsLs(cmd *cobra.Command, args []string) error {
	var status *async.JobStatus
	if jobsStatus != "" {
		if !async.IsValidStatus(jobsStatus) {
			return fmt.Errorf("unknown status %q", jobsStatus)
		}
		s := async.JobStatus(jobsStatus)
		status = &s
	}

	queue, closeDB, err := openQueue()
	if err != nil {
		return err
	}
	defer closeDB()

	jobs, err := queue.ListJobs(status, jobsLimit)
	if err != nil {
		return fmt.Errorf("failed to list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Printf("%s No jobs found\n", sym.Pulse)
		return nil
	}

	fmt.Printf("%-36s %-10s %-20s %-14s %s\n", "JOB ID", "STATUS", "STAGE", "PROGRESS", "CREATED")
	fmt.Printf("%-36s %-10s %-20s %-14s %s\n", "------", "------", "-----", "--------", "-------")
	for _, job := range jobs {
		progress := fmt.Sprintf("%d/%d (%.0f%%)",
			job.Progress.Current, job.Progress.Total, job.Progress.Percentage())
		fmt.Printf("%-36s %-10s %-20s %-14s %s\n",
			job.ID,
			job.Status,
			truncate(job.Stage, 20),
			progress,
			job.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Printf("\nTotal: %d job(s)\n", len(jobs))
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	queue, closeDB, err := openQueue()
	if err != nil {
		return err
	}
	defer closeDB()

	job, err := queue.GetJob(args[0])
	if err != nil {
		return fmt.Errorf("failed to get job: %w", err)
	}

	fmt.Printf("%s Job ID: %s\n", sym.Pulse, job.ID)
	fmt.Printf("  Handler: %s\n", job.HandlerName)
	fmt.Printf("  Source:  %s\n", job.Source)
	fmt.Printf("  Status:  %s\n", job.Status)
	if job.HandlerName == deal.HandlerName {
		var in deal.Input
		if err := json.Unmarshal(job.Payload, &in); err == nil {
			fmt.Printf("  Case:    %s (%s)\n", in.CaseID, in.Source)
		}
	}
	fmt.Printf("\nProgress: %d/%d (%.1f%%) %s\n",
		job.Progress.Current, job.Progress.Total, job.Progress.Percentage(), job.Stage)
	if job.Error != "" {
		fmt.Printf("Error: %s\n", job.Error)
	}
	if job.RetryCount > 0 {
		fmt.Printf("Retries: %d\n", job.RetryCount)
	}

	fmt.Printf("\nCreated: %s\n", job.CreatedAt.Format("2006-01-02 15:04:05"))
	if job.StartedAt != nil {
		fmt.Printf("Started: %s\n", job.StartedAt.Format("2006-01-02 15:04:05"))
	}
	if job.CompletedAt != nil {
		fmt.Printf("Completed: %s\n", job.CompletedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	queue, closeDB, err := openQueue()
	if err != nil {
		return err
	}
	defer closeDB()

	if err := deal.Cancel(queue, args[0], "cancelled from CLI"); err != nil {
		return err
	}
	fmt.Printf("%s Job %s cancelled\n", sym.Pulse, args[0])
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
