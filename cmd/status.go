package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/starload/starload/internal/engine"
	"github.com/starload/starload/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the last load run and whether one is in progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		s, err := engine.New(cfg, nil).Status()
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		if s.Running {
			fmt.Printf("A %s is running (pid %d, started %s)\n\n",
				s.Owner.Command, s.Owner.PID, s.Owner.StartedAt.Format("2006-01-02 15:04:05"))
		}

		st := s.State
		if st.RunID == "" {
			fmt.Println("No load has been run yet. Run `starload load` to start one.")
			return nil
		}

		fmt.Printf("Run:     %s (%s)\n", st.RunID, st.StartedAt.Format("2006-01-02 15:04:05"))
		fmt.Printf("Status:  %s\n\n", st.Status)

		labels := map[state.Step]string{
			state.StepExtract:    "1. Extract",
			state.StepProcess:    "2. Process",
			state.StepSchema:     "3. Schema",
			state.StepDimensions: "4. Dimensions",
			state.StepFacts:      "5. Facts",
			state.StepReport:     "6. Report",
		}
		for _, step := range state.Steps {
			mark := "  "
			switch {
			case st.IsStepComplete(step):
				mark = "OK"
			case st.Steps[step].Status == "failed":
				mark = "XX"
			case st.CurrentStep == step:
				mark = ">>"
			}
			fmt.Printf("  [%s] %s\n", mark, labels[step])
		}

		fmt.Println()
		fmt.Printf("Dataset:   %s\n", st.Dataset)
		fmt.Printf("Warehouse: %s\n", st.WarehouseType)
		fmt.Printf("Rows read: %d, facts inserted: %d, rows dropped: %d\n", st.RowsRead, st.FactsInserted, st.RowsDropped)
		if st.Error != "" {
			fmt.Printf("Error:     %s\n", st.Error)
		}
		if st.ReportPath != "" {
			fmt.Printf("Report:    %s\n", st.ReportPath)
		}
		if st.ReportS3URI != "" {
			fmt.Printf("Report S3: %s\n", st.ReportS3URI)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
