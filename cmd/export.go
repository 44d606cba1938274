package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parkworks/equity-cli/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a run's park scores to XLSX",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runID := args[0]
		scores, err := st.GetScores(ctx, runID)
		if err != nil {
			return err
		}
		if len(scores) == 0 {
			return eris.Errorf("no scores found for run %s", runID)
		}

		if err := export.WriteXLSX(exportOut, scores); err != nil {
			return err
		}
		zap.L().Info("exported scores",
			zap.String("run", runID),
			zap.Int("parks", len(scores)),
			zap.String("output", exportOut))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "scores.xlsx", "output .xlsx path")
	rootCmd.AddCommand(exportCmd)
}
