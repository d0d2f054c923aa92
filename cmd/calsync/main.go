package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	rootCmd := &cobra.Command{
		Use:           "calsync",
		Short:         "Turn calendar meetings and tracked work into Clockify time entries",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfig, "Path to config.yaml")

	rootCmd.AddCommand(eventsCmd(opts))
	rootCmd.AddCommand(meetingsCmd(opts))
	rootCmd.AddCommand(productiveCmd(opts))
	rootCmd.AddCommand(recurringCmd(opts))
	rootCmd.AddCommand(ticketsCmd(opts))

	return rootCmd
}
