package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/starload/starload/internal/report"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show warehouse row counts, data quality and sales insights",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, flush, err := newEngine(false)
		if err != nil {
			return err
		}
		defer flush()

		st, err := eng.Stats(context.Background())
		if err != nil {
			return fmt.Errorf("reading warehouse stats: %w", err)
		}
		counts, orphans := st.Counts, st.Orphans

		fmt.Printf("Warehouse: %s (schema %s)\n\n", eng.Config.Warehouse.Type, eng.Config.Warehouse.Schema)
		tables := make([]string, 0, len(counts.Dimensions))
		for t := range counts.Dimensions {
			tables = append(tables, t)
		}
		sort.Strings(tables)
		for _, t := range tables {
			fmt.Printf("  %-14s %d\n", t, counts.Dimensions[t])
		}
		fmt.Printf("  %-14s %d (valid %d, invalid %d)\n", "fact_sales", counts.Facts, counts.ValidFacts, counts.InvalidFacts)

		fks := make([]string, 0, len(orphans))
		for fk := range orphans {
			fks = append(fks, fk)
		}
		sort.Strings(fks)
		fmt.Println()
		fmt.Println("Orphaned fact references:")
		for _, fk := range fks {
			fmt.Printf("  %-20s %d\n", fk, orphans[fk])
		}

		c := st.Consistency
		fmt.Println()
		fmt.Println("Data consistency:")
		fmt.Printf("  %-20s %d (%.2f%%)\n", "negative amounts", c.NegativeAmounts, c.NegativeAmountsPct)
		fmt.Printf("  %-20s %d (%.2f%%)\n", "negative prices", c.NegativePrices, c.NegativePricesPct)
		fmt.Printf("  %-20s %d (%.2f%%)\n", "negative quantities", c.NegativeQuantities, c.NegativeQuantitiesPct)

		fmt.Println()
		fmt.Print(report.FormatInsights(st.Insights))

		if len(st.Recommendations) > 0 {
			fmt.Println()
			fmt.Println("Recommendations:")
			for _, r := range st.Recommendations {
				fmt.Printf("  - %s\n", r)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
