package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/climate-ip/internal/bridge"
	"github.com/nerrad567/climate-ip/internal/climateip/connection"
	"github.com/nerrad567/climate-ip/internal/climateip/controller"
	"github.com/nerrad567/climate-ip/internal/climateip/property"
	"github.com/nerrad567/climate-ip/internal/climateip/render"
	"github.com/nerrad567/climate-ip/internal/infrastructure/config"
	"github.com/nerrad567/climate-ip/internal/infrastructure/logging"
)

// buildControllers creates one uninitialised controller per configured
// device. The registries and template engine are shared.
func buildControllers(cfg *config.Config, log *logging.Logger) []*controller.YamlController {
	opts := controller.Options{
		Connections: connection.DefaultRegistry(),
		Properties:  property.DefaultRegistry(),
		Engine:      render.NewEngine(),
	}

	out := make([]*controller.YamlController, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		o := opts
		o.Logger = log.With("device", d.ID)
		out = append(out, controller.New(controller.Config{
			ID:              d.ID,
			Name:            d.Name,
			Descriptor:      cfg.DescriptorPath(d),
			Host:            d.Host,
			Token:           d.Token,
			MAC:             d.MAC,
			Poll:            d.Poll,
			Debug:           d.Debug,
			TemperatureUnit: d.TemperatureUnit,
		}, o))
	}
	return out
}

// selectDevices returns the configured devices named by ids, or all of them
// when ids is empty.
func selectDevices(cfg *config.Config, ids []string) ([]config.DeviceConfig, error) {
	if len(ids) == 0 {
		if len(cfg.Devices) == 0 {
			return nil, bridge.ErrNoDevices
		}
		return cfg.Devices, nil
	}

	byID := make(map[string]config.DeviceConfig, len(cfg.Devices))
	for _, d := range cfg.Devices {
		byID[d.ID] = d
	}
	out := make([]config.DeviceConfig, 0, len(ids))
	for _, id := range ids {
		d, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", bridge.ErrUnknownDevice, id)
		}
		out = append(out, d)
	}
	return out, nil
}

// openOnce initialises a controller and polls it once.
func openOnce(ctx context.Context, c *controller.YamlController) error {
	if err := c.Initialize(ctx); err != nil {
		return fmt.Errorf("initialising %s: %w", c.ID(), err)
	}
	if err := c.UpdateState(ctx); err != nil {
		return fmt.Errorf("polling %s: %w", c.ID(), err)
	}
	return nil
}
