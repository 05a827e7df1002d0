package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/valuecheck/internal/contracts"
	"github.com/wonny/valuecheck/internal/evaluation"
	"github.com/wonny/valuecheck/internal/scheduler/jobs"
	"github.com/wonny/valuecheck/pkg/config"
)

// fetcherCmd represents the fetcher command
var fetcherCmd = &cobra.Command{
	Use:   "fetcher",
	Short: "Data source utilities",
	Long: `Inspects the configured data source and fills the local store.

Subcommands:
  warm       copy statements and prices from FMP into postgres
  companies  list the tickers the source knows
  check      report database and redis health

Example:
  DATA_SOURCE=postgres go run ./cmd/valuecheck fetcher warm --date 2019-06-03
  go run ./cmd/valuecheck fetcher companies`,
}

var (
	fetcherWarmCmd = &cobra.Command{
		Use:   "warm [SYMBOL...]",
		Short: "Fill the postgres store from FMP",
		Long: `Fetches every table an evaluation at --date needs and stores it.
Without symbols, warms --companies or the whole FMP company list.`,
		RunE: runFetcherWarm,
	}

	fetcherCompaniesCmd = &cobra.Command{
		Use:   "companies",
		Short: "List the tickers the source knows",
		RunE:  runFetcherCompanies,
	}

	fetcherCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Report database and redis health",
		RunE:  runFetcherCheck,
	}

	warmDate      string
	warmCompanies string
)

func init() {
	rootCmd.AddCommand(fetcherCmd)
	fetcherCmd.AddCommand(fetcherWarmCmd)
	fetcherCmd.AddCommand(fetcherCompaniesCmd)
	fetcherCmd.AddCommand(fetcherCheckCmd)

	fetcherWarmCmd.Flags().StringVar(&warmDate, "date", "", "evaluation date to warm for (YYYY-MM-DD, default: today)")
	fetcherWarmCmd.Flags().StringVar(&warmCompanies, "companies", "", "ticker file, one per line")
}

func runFetcherWarm(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := setup(ctx)
	if err != nil {
		return err
	}
	defer d.Close()

	if d.store == nil {
		return fmt.Errorf("warm needs DATA_SOURCE=%s (current: %s)", config.SourcePostgres, d.cfg.DataSource)
	}

	asOf := time.Now()
	if warmDate != "" {
		if asOf, err = contracts.ParseDay(warmDate); err != nil {
			return fmt.Errorf("invalid --date: %w", err)
		}
	}

	symbols := make([]string, 0, len(args))
	for _, a := range args {
		symbols = append(symbols, strings.ToUpper(a))
	}
	if len(symbols) == 0 && warmCompanies != "" {
		if symbols, err = readCompanies(warmCompanies); err != nil {
			return err
		}
	}

	// the store's own list would only repeat what is already stored
	var universe contracts.Universe
	if d.fmp != nil {
		universe = d.fmp
	}

	pipeline, err := evaluation.NewPipeline(evaluation.DefaultConfig())
	if err != nil {
		return err
	}

	job := jobs.NewWarmJob(d.store, universe, symbols, pipeline, "", d.cfg.Workers, d.log)
	stats, err := job.WarmAt(ctx, asOf)
	if err != nil {
		return fmt.Errorf("warm: %w", err)
	}

	out := cmd.OutOrStdout()
	PrintHeader(out, "Store Warm-up", [][2]string{
		{"As of", contracts.Day(asOf).Format(contracts.DateLayout)},
		{"Requested", fmt.Sprintf("%d", stats.Requested)},
		{"Warmed", fmt.Sprintf("%d", stats.Warmed)},
		{"Failed", fmt.Sprintf("%d", stats.Failed)},
		{"Duration", stats.Duration.Round(time.Millisecond).String()},
	})
	if stats.Failed > 0 {
		PrintWarning(fmt.Sprintf("%d symbols failed, see the log for details", stats.Failed))
	}
	return nil
}

func runFetcherCompanies(cmd *cobra.Command, args []string) error {
	d, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	symbols, err := d.universe.Companies(cmd.Context())
	if err != nil {
		return fmt.Errorf("list companies: %w", err)
	}

	out := cmd.OutOrStdout()
	for _, s := range symbols {
		fmt.Fprintln(out, s)
	}
	d.log.WithField("count", len(symbols)).Info("Listed companies")
	return nil
}

func runFetcherCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := setup(ctx)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	defer d.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Source : %s\n", d.cfg.DataSource)

	if d.db == nil {
		fmt.Fprintln(out, "Postgres: disabled")
	} else {
		status, err := d.db.HealthCheck(ctx)
		if err != nil {
			PrintError(fmt.Sprintf("Postgres: %v", err))
			return err
		}
		PrintSuccess(fmt.Sprintf("Postgres: %s (%d/%d conns)", status.ResponseTime.Round(time.Microsecond), status.TotalConns, status.MaxConns))
	}

	if d.redis.Enabled() {
		PrintSuccess("Redis   : connected")
	} else {
		fmt.Fprintln(out, "Redis   : disabled")
	}
	return nil
}
