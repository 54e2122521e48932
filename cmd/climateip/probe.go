package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/climate-ip/internal/climateip/controller"
	"github.com/nerrad567/climate-ip/internal/infrastructure/config"
	"github.com/nerrad567/climate-ip/internal/infrastructure/logging"
)

// probeTimeout bounds a one-shot command against real devices.
const probeTimeout = 30 * time.Second

type cliOptions struct {
	*rootOptions
	verbose bool
}

// loadCLI loads configuration and a logger for one-shot commands. Logs go to
// stderr only with --verbose so stdout stays machine readable.
func (o *cliOptions) loadCLI() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if !o.verbose {
		return cfg, logging.Discard(), nil
	}
	cfg.Logging.Output = "stderr"
	cfg.Logging.Format = "text"
	cfg.Logging.Level = "debug"
	return cfg, logging.New(cfg.Logging, version), nil
}

func newProbeCmd(root *rootOptions) *cobra.Command {
	opts := &cliOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "probe [device-id...]",
		Short: "Initialise devices, poll them once and print their snapshots as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.loadCLI()
			if err != nil {
				return err
			}
			devices, err := selectDevices(cfg, args)
			if err != nil {
				return err
			}
			cfg.Devices = devices

			ctx, cancel := contextWithTimeout(cmd, probeTimeout)
			defer cancel()

			snapshots := make([]controller.Snapshot, 0, len(devices))
			for _, c := range buildControllers(cfg, log) {
				err := openOnce(ctx, c)
				snapshots = append(snapshots, c.Snapshot())
				//nolint:errcheck // one-shot command; close errors are not actionable
				c.Close()
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
				}
			}
			return printJSON(cmd.OutOrStdout(), snapshots)
		},
	}
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	return cmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
