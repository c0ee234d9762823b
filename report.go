package main

import (
	"fmt"
	"os"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"efd-cmms-bridge/internal/report"
)

func newReportCmd(opts *rootOptions) *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export the current registry value of every channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := report.Format(format)
			if f != report.FormatPDF && f != report.FormatXLSX {
				return fmt.Errorf("unknown format %q (pdf or xlsx)", format)
			}
			c, err := buildComponents(cmd.Context(), opts.cfg, opts.logger, needs{registry: true, store: true, channels: true})
			if err != nil {
				return err
			}
			defer c.Close()

			snap, err := c.reports.Build(cmd.Context(), c.channels.All())
			if err != nil {
				return err
			}
			data, err := report.Render(snap, f)
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := renameio.WriteFile(out, data, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "report written to %s (%d channels)\n", out, len(snap.Rows))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "xlsx", "output format (pdf, xlsx)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "output file (default: stdout)")
	return cmd
}
