package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"
)

func newSetCmd(root *rootOptions) *cobra.Command {
	opts := &cliOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "set <device-id> <operation> <value>",
		Short: "Write one operation on a device and print the resulting snapshot",
		Example: `  climateip set living-ac target_temp 22.5
  climateip set living-ac mode cool
  climateip set living-ac power off`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.loadCLI()
			if err != nil {
				return err
			}
			devices, err := selectDevices(cfg, args[:1])
			if err != nil {
				return err
			}
			cfg.Devices = devices

			ctx, cancel := contextWithTimeout(cmd, probeTimeout)
			defer cancel()

			c := buildControllers(cfg, log)[0]
			defer c.Close() //nolint:errcheck // one-shot command

			if err := openOnce(ctx, c); err != nil {
				return err
			}
			if err := c.SetProperty(ctx, args[1], parseValue(args[2])); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c.Snapshot())
		},
	}
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	return cmd
}

// parseValue reads a command-line value as a JSON number or boolean,
// falling back to the raw string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case float64, bool:
			return v
		}
	}
	return raw
}

func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, d)
}
