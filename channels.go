package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	masterdata "efd-cmms-bridge/internal/masterdata/domain"
	"efd-cmms-bridge/internal/masterdata/infrastructure/xlsx"
	"efd-cmms-bridge/internal/masterdata/infrastructure/yamlfile"
)

func newChannelsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channels",
		Short: "Manage the monitored channel list",
	}
	cmd.AddCommand(newChannelsValidateCmd(opts), newChannelsImportCmd(opts), newChannelsExportCmd(opts))
	return cmd
}

func newChannelsValidateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the channel list and print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			set, err := yamlfile.Load(opts.cfg.Channels.File)
			if err != nil {
				return err
			}
			return printChannels(cmd.OutOrStdout(), set.All())
		},
	}
}

func newChannelsImportCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "import <workbook.xlsx>",
		Short: "Append the rows of an Excel workbook to the channel list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfg.Channels.File
			existing, err := yamlfile.Read(path)
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			result, err := xlsx.Import(f, existing)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d new channels imported\n", len(result.Added))
			for _, name := range result.Skipped {
				fmt.Fprintf(out, "skipped (already exists): %s\n", name)
			}
			for _, rowErr := range result.Invalid {
				fmt.Fprintf(out, "invalid: %s\n", rowErr.Error())
			}
			if _, err := masterdata.NewChannelSet(result.Channels); err != nil {
				return fmt.Errorf("imported list is invalid, %s left unchanged: %w", path, err)
			}
			if dryRun || len(result.Added) == 0 {
				return nil
			}
			if err := yamlfile.Write(path, result.Channels); err != nil {
				return err
			}
			opts.logger.Info("channel list updated", "file", path, "added", len(result.Added))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report what would be imported without writing")
	return cmd
}

func newChannelsExportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <workbook.xlsx>",
		Short: "Write the channel list as an Excel workbook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			channels, err := yamlfile.Read(opts.cfg.Channels.File)
			if err != nil {
				return err
			}
			pending, err := renameio.NewPendingFile(args[0])
			if err != nil {
				return err
			}
			defer pending.Cleanup()
			if err := xlsx.Export(pending, channels); err != nil {
				return err
			}
			return pending.CloseAtomicallyReplace()
		},
	}
}

func printChannels(w io.Writer, channels []masterdata.MonitorChannel) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tMEASUREMENT\tASSET\tATTRIBUTE\tINTERVAL\tSAL INDEX\tPERIOD")
	for _, ch := range channels {
		kind := "value"
		if ch.IsCounter() {
			kind = "counter"
		}
		sal := "-"
		if ch.SalIndex != nil {
			sal = strconv.Itoa(*ch.SalIndex)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			ch.Name, kind, ch.Measurement, ch.AssetID, ch.Attribute, ch.Interval, sal, ch.Period)
	}
	return tw.Flush()
}
