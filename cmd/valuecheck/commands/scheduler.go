package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/scheduler"
	"github.com/wonny/valuecheck/internal/scheduler/jobs"
	"github.com/wonny/valuecheck/pkg/config"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Scheduled store maintenance",
	Long: `Runs the nightly store warm-up.

Subcommands:
  start   - start the scheduler daemon
  list    - registered jobs and their next run
  run     - run a job once, now

Example:
  DATA_SOURCE=postgres go run ./cmd/valuecheck scheduler start
  DATA_SOURCE=postgres go run ./cmd/valuecheck scheduler run store_warm`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler",
		Long: `Starts the scheduler and blocks until Ctrl+C.

Registered jobs:
- store_warm: daily at 02:30 (--schedule), refreshes statements and prices for today's evaluation window`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run a job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	warmSchedule string
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)

	schedulerCmd.PersistentFlags().StringVar(&warmSchedule, "schedule", jobs.DefaultWarmSchedule, "store_warm cron expression (with seconds)")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== valuecheck Scheduler ===")

	d, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	printJobs(sched)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	for name, stat := range sched.GetJobStats() {
		d.log.WithFields(map[string]interface{}{
			"job":          name,
			"total_runs":   stat.TotalRuns,
			"success_rate": stat.SuccessRate,
		}).Info("Job statistics")
	}
	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	d, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	// next-run times are only known once cron is running
	sched.Start()
	defer sched.Stop()
	printJobs(sched)
	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	d, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	sched, err := initScheduler(d)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}

	fmt.Printf("Running job: %s\n", jobName)
	result, err := sched.RunJob(cmd.Context(), jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %.2fs: %s", jobName, result.Duration.Seconds(), result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}
	PrintSuccess(fmt.Sprintf("%s completed in %.2fs", jobName, result.Duration.Seconds()))
	return nil
}

func printJobs(sched *scheduler.Scheduler) {
	fmt.Println("\nRegistered jobs:")
	for _, name := range sched.GetAllJobs() {
		next, err := sched.NextRun(name)
		if err != nil || next.IsZero() {
			fmt.Printf("  - %s\n", name)
			continue
		}
		fmt.Printf("  - %s (next: %s)\n", name, next.Format("2006-01-02 15:04:05"))
	}
}

func initScheduler(d *deps) (*scheduler.Scheduler, error) {
	if d.store == nil || d.fmp == nil {
		return nil, fmt.Errorf("store_warm needs DATA_SOURCE=%s and FMP_API_KEY", config.SourcePostgres)
	}

	pipeline, err := evaluation.NewPipeline(evaluation.DefaultConfig())
	if err != nil {
		return nil, err
	}

	var universe contracts.Universe = d.fmp
	sched := scheduler.New(d.log)
	if err := sched.AddJob(jobs.NewWarmJob(d.store, universe, nil, pipeline, warmSchedule, d.cfg.Workers, d.log)); err != nil {
		return nil, err
	}
	return sched, nil
}
