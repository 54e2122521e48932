package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// defaultConfigPath is used when neither --config nor CLIMATEIP_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "climateip",
		Short:         "Bridge IP air conditioners to MQTT and HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, date),
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", getConfigPath(),
		"configuration file (env CLIMATEIP_CONFIG)")

	cmd.AddCommand(
		newServeCmd(opts),
		newProbeCmd(opts),
		newSetCmd(opts),
		newMigrateCmd(opts),
	)
	return cmd
}

// getConfigPath returns CLIMATEIP_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv("CLIMATEIP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
