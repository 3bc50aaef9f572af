package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"certledger/pkg/requestcontext"
)

func exportCommand() *cobra.Command {
	var compact bool
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Print every certificate CREATE committed to the ledger as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			log := commonRun(cfg)

			a, err := buildApp(cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Error("failed to release resources", "error", err)
				}
			}()

			ctx := requestcontext.WithOperator(cmd.Context(), programName+"-cli")
			report, err := a.service.Export(ctx)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVar(&compact, "compact", false, "print single-line JSON")
	return cmd
}
