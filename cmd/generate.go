package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newGenerateCmd() *cobra.Command {
	var printJSON bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Runs the pipeline once and stores the spreadsheet",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			res, err := a.Runner.Run(ctx)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			a.Logger.Info("report generated",
				zap.String("run_id", res.Summary.ID),
				zap.String("artifact", res.Summary.ArtifactURI),
				zap.Int("rows", res.Summary.Rows),
				zap.Int("not_found", res.Summary.NotFound),
			)
			if printJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(res.Summary); err != nil {
					return fmt.Errorf("print summary: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&printJSON, "json", false, "print the run summary as JSON")
	return cmd
}
