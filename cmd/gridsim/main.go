package main

import (
	"fmt"
	"os"

	"github.com/ohowland/interconnect/internal/pkg/config"
	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	var settingsFile string

	rootCmd := &cobra.Command{
		Use:   "gridsim",
		Short: "Interconnection frequency and intertie flow simulator",
		Long: `gridsim steps an interconnection of control areas joined by interties,
integrating system frequency and solving the flow on every tie.

Settings are read from --config, then GRIDSIM_* environment variables,
then command line flags.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&settingsFile, "config", "", "Settings file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "console", "Log encoding: console or json")
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	settings := func() (config.Settings, error) {
		return config.LoadSettings(v, settingsFile)
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newValidateCmd(settings),
		newRunCmd(v, settings),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gridsim version %s\n", version)
		},
	}
}
