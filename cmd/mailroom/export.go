package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/phrazzld/mailroom/internal/render"
	"github.com/spf13/cobra"
)

func newExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export <report.json>",
		Short: "Render the accepted drafts of a process report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open report: %w", err)
			}
			defer f.Close()

			report, err := render.ReadReport(f)
			if err != nil {
				return err
			}
			drafts, err := render.AcceptedDrafts(report.Items)
			if err != nil {
				return err
			}

			switch format {
			case "markdown":
				return render.WriteMarkdown(cmd.OutOrStdout(), drafts)
			case "json":
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(drafts)
			default:
				return fmt.Errorf("unknown format %q, want markdown or json", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "Output format: markdown or json")
	return cmd
}
