package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/starload/starload/internal/engine"
	"github.com/starload/starload/internal/tui"
	"github.com/starload/starload/internal/warehouse"
)

var (
	loadTUI          bool
	loadDryRun       bool
	loadBatchSize    int
	loadOnBatchError string
	loadAppend       bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Extract, clean and load the dataset into the warehouse",
	Long: `Read the configured dataset, clean it, build the dimension tables and
load the sales facts in batches. A JSON and text report is written after
every run, and uploaded to S3 when report.upload is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, flush, err := newEngine(loadTUI)
		if err != nil {
			return err
		}
		defer flush()

		if cmd.Flags().Changed("batch-size") {
			eng.Config.Load.BatchSize = loadBatchSize
		}
		if cmd.Flags().Changed("on-batch-error") {
			switch warehouse.BatchErrorPolicy(loadOnBatchError) {
			case warehouse.ContinueOnBatchError, warehouse.AbortOnBatchError:
				eng.Config.Load.OnBatchError = loadOnBatchError
			default:
				return fmt.Errorf("--on-batch-error must be continue or abort, got %q", loadOnBatchError)
			}
		}
		if loadAppend {
			replace := false
			eng.Config.Load.ReplaceFacts = &replace
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if loadDryRun {
			return runDryRun(ctx, eng)
		}

		var res *engine.LoadResult
		if loadTUI {
			res, err = tui.RunLoad(ctx, eng)
		} else {
			res, err = eng.Load(ctx, engine.LoadOptions{Progress: printProgress()})
		}
		if res != nil && res.Summary != nil {
			fmt.Println()
			fmt.Print(res.Summary.String())
		}
		if res != nil && res.Report != nil {
			fmt.Printf("\nStatus: %s\n", res.Report.Status)
			for _, step := range res.Report.NextSteps {
				fmt.Printf("  - %s\n", step)
			}
			fmt.Printf("Report: %s\n", res.JSONPath)
			if res.Upload != nil {
				fmt.Printf("Uploaded: %s\n", res.Upload.JSONS3URI)
			}
		}
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("load cancelled")
		}
		return err
	},
}

// printProgress returns a progress callback that prints phase changes and
// rewrites a single batch progress line.
func printProgress() warehouse.ProgressFunc {
	last := ""
	return func(p warehouse.Progress) {
		if p.Phase != last {
			if last == warehouse.PhaseFacts {
				fmt.Println()
			}
			fmt.Printf("Phase: %s\n", p.Phase)
			last = p.Phase
		}
		if p.Phase == warehouse.PhaseFacts && p.BatchesTotal > 0 {
			fmt.Printf("\rProgress: %.1f%% (%d/%d batches, %d facts)",
				p.Percent(), p.BatchesDone, p.BatchesTotal, p.FactsInserted)
		}
	}
}

func runDryRun(ctx context.Context, eng *engine.Engine) error {
	res, err := eng.Load(ctx, engine.LoadOptions{DryRun: true})
	if err != nil {
		return err
	}
	plan := res.Plan

	fmt.Println("Dry run: nothing was written.")
	fmt.Println()
	fmt.Printf("Dataset:    %s\n", eng.Config.Dataset.Location)
	fmt.Printf("Warehouse:  %s (schema %s)\n", eng.Config.Warehouse.Type, eng.Config.Warehouse.Schema)
	fmt.Printf("Rows:       %d\n", plan.InputRows)

	tables := make([]string, 0, len(plan.Dimensions))
	for t := range plan.Dimensions {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Printf("  %-14s %d rows\n", t, plan.Dimensions[t])
	}
	fmt.Printf("Facts:      %d in %d batches of %d\n", plan.FactsResolved, plan.Batches, plan.BatchSize)
	if plan.RowsDropped > 0 {
		fmt.Printf("Dropped:    %d rows\n", plan.RowsDropped)
		reasons := make([]string, 0, len(plan.DropsByReason))
		for r := range plan.DropsByReason {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Printf("  missing %-10s %d\n", r, plan.DropsByReason[r])
		}
	}
	return nil
}

func init() {
	loadCmd.Flags().BoolVar(&loadTUI, "tui", false, "show a live progress view")
	loadCmd.Flags().BoolVar(&loadDryRun, "dry-run", false, "plan the load without writing to the warehouse")
	loadCmd.Flags().IntVar(&loadBatchSize, "batch-size", 0, "facts per committed batch (overrides load.batch_size)")
	loadCmd.Flags().StringVar(&loadOnBatchError, "on-batch-error", "", "continue or abort when a fact batch fails")
	loadCmd.Flags().BoolVar(&loadAppend, "append", false, "keep existing facts instead of replacing them")
	rootCmd.AddCommand(loadCmd)
}
