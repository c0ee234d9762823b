package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newCheckpointsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoints",
		Short: "Inspect persisted edge-count checkpoints",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List the checkpoint of every asset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := buildComponents(cmd.Context(), opts.cfg, opts.logger, needs{store: true})
			if err != nil {
				return err
			}
			defer c.Close()

			records, err := c.reconciler.Checkpoints(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ASSET\tEDGE COUNT\tLAST UPDATE")
			for _, rec := range records {
				updated := "-"
				if !rec.LastUpdate.IsZero() {
					updated = rec.LastUpdate.In(c.location).Format(time.RFC3339)
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", rec.AssetID, rec.LastSeenEdgeCount, updated)
			}
			return tw.Flush()
		},
	})
	return cmd
}
