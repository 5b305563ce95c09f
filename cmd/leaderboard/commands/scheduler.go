package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sty1228/hyperliquid-sentiment-trader/internal/scheduler"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage refresh jobs",
	Long: `Runs or inspects the refresh jobs without the HTTP API.

Subcommands:
  start   - run the jobs until interrupted
  list    - registered jobs and their schedules
  run     - run one job now and wait for it
  status  - per-job run statistics of this process

Example:
  go run ./cmd/leaderboard scheduler start
  go run ./cmd/leaderboard scheduler list
  go run ./cmd/leaderboard scheduler run leaderboard_ttl_sweep`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Run the jobs until interrupted",
		Long: `Warms every configured key and runs:
- leaderboard_ttl_sweep: every 15s (refresh expired keys)
- signal_cursor_watch: every 5s (ingest new signals, refresh keys a batch behind)
- snapshot_persist: every minute when SNAPSHOT_BACKEND is set`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job now",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show job statistics",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cache.Warm(context.Background(), a.keys); err != nil {
		a.log.WithError(err).Warn("Warm-up incomplete")
	}

	sched.Start()

	PrintSuccess("Scheduler started")
	PrintList(sched.GetAllJobs())
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	stats := sched.GetJobStats()
	widths := []int{24, 18}
	PrintTableHeader([]string{"JOB", "SCHEDULE"}, widths)
	for _, name := range sched.GetAllJobs() {
		PrintTableRow([]string{name, stats[name].Schedule}, widths)
	}

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	a, sched, err := initScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	fmt.Printf("Running job: %s\n", jobName)

	res, err := sched.RunJob(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !res.Success {
		PrintError(fmt.Sprintf("%s failed after %s: %s", jobName, res.Duration, res.Error))
		return fmt.Errorf("job %s failed", jobName)
	}

	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, res.Duration))
	return nil
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	stats := sched.GetJobStats()

	fmt.Println("Job Statistics:")
	fmt.Println()

	for _, jobName := range sched.GetAllJobs() {
		stat := stats[jobName]
		fmt.Printf("📊 %s\n", jobName)
		PrintKeyValue("Schedule", stat.Schedule, 12)
		PrintKeyValue("Total Runs", fmt.Sprintf("%d", stat.TotalRuns), 12)
		PrintKeyValue("Success", fmt.Sprintf("%d (%.1f%%)", stat.SuccessCount, stat.SuccessRate*100), 12)
		PrintKeyValue("Failures", fmt.Sprintf("%d", stat.FailureCount), 12)

		if stat.LastRun != nil {
			PrintKeyValue("Last Run", stat.LastRun.Format("2006-01-02 15:04:05"), 12)
		}
		fmt.Println()
	}

	return nil
}

// initScheduler wires the app and registers the jobs, with the cursor watch
// starting at the current head.
func initScheduler(ctx context.Context) (*app, *scheduler.Scheduler, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx)
	if err != nil {
		return nil, nil, err
	}

	head, err := a.signals.Head(ctx)
	if err != nil {
		a.Close()
		return nil, nil, fmt.Errorf("read signal head: %w", err)
	}

	sched := scheduler.New(a.log)
	if err := registerJobs(sched, a, head); err != nil {
		a.Close()
		return nil, nil, fmt.Errorf("register jobs: %w", err)
	}

	return a, sched, nil
}
