package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	masterdata "efd-cmms-bridge/internal/masterdata/domain"
)

func newPollCmd(opts *rootOptions) *cobra.Command {
	var only []string
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll every channel once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := buildComponents(ctx, opts.cfg, opts.logger, needs{telemetry: true, registry: true, store: true, channels: true})
			if err != nil {
				return err
			}
			defer c.Close()

			channels, err := selectChannels(c.channels, only)
			if err != nil {
				return err
			}
			results, pollErr := c.monitor.PollAll(ctx, channels)
			if err := writeJSON(cmd.OutOrStdout(), results); err != nil {
				return err
			}
			return pollErr
		},
	}
	cmd.Flags().StringSliceVar(&only, "channel", nil, "poll only the named channels")
	return cmd
}

func newSweepCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one PM sweep over the registry trigger configurations and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			c, err := buildComponents(ctx, opts.cfg, opts.logger, needs{registry: true, channels: true})
			if err != nil {
				return err
			}
			defer c.Close()

			report, sweepErr := c.controller.Sweep(ctx)
			if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			return sweepErr
		},
	}
}

func selectChannels(set *masterdata.ChannelSet, names []string) ([]masterdata.MonitorChannel, error) {
	if len(names) == 0 {
		return set.All(), nil
	}
	out := make([]masterdata.MonitorChannel, 0, len(names))
	for _, name := range names {
		ch, ok := set.ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown channel %q", name)
		}
		out = append(out, ch)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
