package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootOptions carries the flags and the loaded configuration to subcommands.
type rootOptions struct {
	v       *viper.Viper
	cfgFile string
	envFile string

	cfg    config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}
	cmd := &cobra.Command{
		Use:   "efd-bridge",
		Short: "Forward EFD telemetry to the CMMS and open preventive maintenance",
		Long: `efd-bridge polls the Engineering Facilities Database on a fixed cadence,
publishes derived values to CMMS asset attributes and opens preventive
maintenance work orders when registry trigger configurations fire.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.v, opts.cfgFile, opts.envFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = newLogger(cfg.Log)
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default: ./efd-bridge.yaml)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "dotenv file exported before reading the environment")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "auto", "log format (auto, text, json)")
	flags.String("channels", "channels.yaml", "channel list file")
	_ = opts.v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = opts.v.BindPFlag("log.format", flags.Lookup("log-format"))
	_ = opts.v.BindPFlag("channels.file", flags.Lookup("channels"))

	cmd.AddCommand(
		newServeCmd(opts),
		newPollCmd(opts),
		newSweepCmd(opts),
		newChannelsCmd(opts),
		newCheckpointsCmd(opts),
		newReportCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}
