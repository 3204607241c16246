package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var validateWithDataset bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check warehouse row counts and referential integrity",
	Long: `Check that every fact references existing dimension rows. With
--dataset, the dataset is re-read and planned so stored row counts can be
compared against it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, flush, err := newEngine(false)
		if err != nil {
			return err
		}
		defer flush()

		callback := func(table, checkType string, passed bool) {
			status := "PASS"
			if !passed {
				status = "FAIL"
			}
			fmt.Printf("  [%s] %s: %s\n", status, table, checkType)
		}

		fmt.Println("Validating warehouse...")
		result, err := eng.Validate(context.Background(), validateWithDataset, callback)
		if err != nil {
			return fmt.Errorf("validation: %w", err)
		}

		fmt.Printf("\nOverall: %s\n", result.Status)
		for _, t := range result.Tables {
			if rc := t.RowCountCheck; rc != nil && !rc.Match {
				fmt.Printf("  %s: %s\n", t.Name, rc.Message)
			}
			if ic := t.IntegrityCheck; ic != nil && ic.Orphans > 0 {
				fmt.Printf("  %s: %s\n", t.Name, ic.Message)
			}
		}
		if result.Status != "PASS" {
			return fmt.Errorf("validation %s", result.Status)
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().BoolVar(&validateWithDataset, "dataset", false, "compare row counts against the configured dataset")
	rootCmd.AddCommand(validateCmd)
}
