package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/starload/starload/internal/aws"
)

var preflightCmd = &cobra.Command{
	Use:   "preflight",
	Short: "Check warehouse connectivity and AWS access before a load",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, flush, err := newEngine(false)
		if err != nil {
			return err
		}
		defer flush()
		ctx := context.Background()
		cfg := eng.Config

		failed := 0
		fmt.Printf("Warehouse (%s)... ", cfg.Warehouse.Type)
		if err := eng.TestConnection(ctx); err != nil {
			failed++
			fmt.Printf("FAIL: %v\n", err)
		} else {
			fmt.Println("OK")
		}

		if aws.IsS3URI(cfg.Dataset.Location) || cfg.Report.Upload {
			client, err := aws.NewRealClient(ctx, cfg.AWS.Profile, cfg.AWS.Region)
			if err != nil {
				return fmt.Errorf("creating AWS client: %w", err)
			}
			result, err := aws.RunPreflight(ctx, client, cfg.Dataset.Location)
			if err != nil {
				return err
			}
			if result.Identity != nil {
				fmt.Printf("AWS identity: %s\n", result.Identity.ARN)
			}
			for _, e := range result.Errors {
				failed++
				fmt.Printf("AWS: FAIL: %s\n", e)
			}
			if result.OK() {
				fmt.Println("AWS... OK")
			}
		}

		if failed > 0 {
			return fmt.Errorf("%d preflight check(s) failed", failed)
		}
		fmt.Println("\nReady to load.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(preflightCmd)
}
