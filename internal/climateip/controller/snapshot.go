package controller

import (
	"maps"
	"time"

	"github.com/nerrad567/climate-ip/internal/climateip/property"
)

// OperationInfo describes one writable operation.
type OperationInfo struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Value  any      `json:"value"`
	Values []string `json:"values,omitempty"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
}

// Snapshot is a point-in-time view of a device, safe to serialise.
type Snapshot struct {
	ID              string          `json:"id"`
	UniqueID        string          `json:"unique_id"`
	Name            string          `json:"name"`
	Available       bool            `json:"available"`
	TemperatureUnit string          `json:"temperature_unit"`
	Operations      []OperationInfo `json:"operations"`
	Attributes      map[string]any  `json:"attributes"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// Snapshot captures the current state of the device.
func (c *YamlController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		ID:              c.cfg.ID,
		UniqueID:        c.UniqueID(),
		Name:            c.name,
		Available:       c.initialized && c.deviceState != nil,
		TemperatureUnit: c.cfg.TemperatureUnit,
		Operations:      make([]OperationInfo, 0, len(c.operations)),
		Attributes:      maps.Clone(c.attributes),
		UpdatedAt:       c.updatedAt,
	}
	if s.Name == "" {
		s.Name = c.cfg.ID
	}

	for _, op := range c.operations {
		info := OperationInfo{Name: op.ID(), Type: op.Type(), Value: op.Value()}
		if e, ok := op.(property.Enumerated); ok {
			info.Values = e.Values()
		}
		if r, ok := op.(property.Ranged); ok {
			if lo, hi, ok := r.Range(); ok {
				info.Min, info.Max = &lo, &hi
			}
		}
		s.Operations = append(s.Operations, info)
	}
	return s
}
