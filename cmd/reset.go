package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var resetConfirm bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every warehouse table",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, flush, err := newEngine(false)
		if err != nil {
			return err
		}
		defer flush()

		if !resetConfirm {
			fmt.Printf("This drops all star schema tables in %s (schema %s).\n",
				eng.Config.Warehouse.Type, eng.Config.Warehouse.Schema)
			fmt.Println("Re-run with --confirm to proceed.")
			return nil
		}
		if err := eng.Reset(context.Background()); err != nil {
			return err
		}
		fmt.Println("Warehouse tables dropped.")
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetConfirm, "confirm", false, "confirm dropping the warehouse tables")
	rootCmd.AddCommand(resetCmd)
}
