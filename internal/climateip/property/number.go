package property

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/climate-ip/internal/climateip/connection"
	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
	"github.com/nerrad567/climate-ip/internal/climateip/render"
)

// Numeric descriptor types.
const (
	TypeNumber      = "number"
	TypeTemperature = "temperature"
)

// Temperature units.
const (
	UnitCelsius    = "celsius"
	UnitFahrenheit = "fahrenheit"
)

// NumberOperation is a float clamped to [min, max]. Either bound may be
// omitted.
type NumberOperation struct {
	*base
	lo, hi       float64
	hasLo, hasHi bool
}

// NewNumberFromNode is the Factory for the number type.
func NewNumberFromNode(id string, node *descriptor.Node, conn connection.Connection, opts Options) (Property, error) {
	return newNumber(TypeNumber, id, node, conn, opts)
}

func newNumber(typ, id string, node *descriptor.Node, conn connection.Connection, opts Options) (*NumberOperation, error) {
	b, err := newBase(typ, id, node, conn, opts)
	if err != nil {
		return nil, err
	}
	n := &NumberOperation{base: b}
	n.lo, n.hasLo = node.Float(KeyMin)
	n.hi, n.hasHi = node.Float(KeyMax)
	if n.hasLo && n.hasHi && n.lo > n.hi {
		return nil, fmt.Errorf("%s %v is greater than %s %v", KeyMin, n.lo, KeyMax, n.hi)
	}
	return n, nil
}

func (n *NumberOperation) clamp(f float64) float64 {
	return clamp(f, n.lo, n.hi, n.hasLo, n.hasHi)
}

// Range implements Ranged.
func (n *NumberOperation) Range() (lo, hi float64, ok bool) {
	return n.lo, n.hi, n.hasLo && n.hasHi
}

// UpdateState implements Property.
func (n *NumberOperation) UpdateState(_ context.Context, deviceState any, _ bool) error {
	return n.refresh(deviceState, func(s string) (any, error) { return n.ConvertDevToHass(s) })
}

// MatchValue implements Operation.
func (n *NumberOperation) MatchValue(v any) bool {
	_, err := toFloat(v)
	return err == nil
}

// ConvertHassToDev implements Operation. Out of range values are clamped,
// so the conversion is idempotent.
func (n *NumberOperation) ConvertHassToDev(v any) (any, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	return n.clamp(f), nil
}

// ConvertDevToHass implements Operation.
func (n *NumberOperation) ConvertDevToHass(v any) (any, error) {
	return toFloat(v)
}

// SetValue implements Operation.
func (n *NumberOperation) SetValue(ctx context.Context, v any) error {
	dev, err := n.ConvertHassToDev(v)
	if err != nil {
		return err
	}
	if err := n.send(ctx, nil, nil, dev); err != nil {
		return err
	}
	n.value = dev
	return nil
}

// TemperatureOperation is a number whose device unit may differ from the
// unit values are shown in. min and max are limits in the device unit.
type TemperatureOperation struct {
	*NumberOperation
	haUnit  string
	devUnit string
	unitTpl *render.Template
}

// NewTemperatureFromNode is the Factory for the temperature type.
func NewTemperatureFromNode(id string, node *descriptor.Node, conn connection.Connection, opts Options) (Property, error) {
	n, err := newNumber(TypeTemperature, id, node, conn, opts)
	if err != nil {
		return nil, err
	}

	t := &TemperatureOperation{
		NumberOperation: n,
		haUnit:          normaliseUnit(opts.TemperatureUnit),
		devUnit:         UnitCelsius,
	}
	if t.haUnit == "" {
		return nil, fmt.Errorf("unsupported temperature unit %q", opts.TemperatureUnit)
	}
	if u := node.String(KeyUnit); u != "" {
		if t.devUnit = normaliseUnit(u); t.devUnit == "" {
			return nil, fmt.Errorf("%s: unsupported unit %q", KeyUnit, u)
		}
	}
	if t.unitTpl, err = compileOptional(opts.Engine, node, KeyUnitTemplate); err != nil {
		return nil, err
	}
	return t, nil
}

// normaliseUnit accepts C, F, Celsius, Fahrenheit and °C/°F spellings.
func normaliseUnit(s string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), "°")) {
	case "c", "celsius":
		return UnitCelsius
	case "f", "fahrenheit":
		return UnitFahrenheit
	default:
		return ""
	}
}

func convertUnit(f float64, from, to string) float64 {
	switch {
	case from == to:
		return f
	case from == UnitCelsius && to == UnitFahrenheit:
		return f*9/5 + 32
	default:
		return (f - 32) * 5 / 9
	}
}

// DeviceUnit returns the unit the device currently reports in.
func (t *TemperatureOperation) DeviceUnit() string { return t.devUnit }

// Range implements Ranged, in the display unit.
func (t *TemperatureOperation) Range() (lo, hi float64, ok bool) {
	lo, hi, ok = t.NumberOperation.Range()
	return convertUnit(lo, t.devUnit, t.haUnit), convertUnit(hi, t.devUnit, t.haUnit), ok
}

// UpdateState implements Property. The device unit is rediscovered from
// unit_template first so the value is converted with the current unit.
func (t *TemperatureOperation) UpdateState(_ context.Context, deviceState any, _ bool) error {
	if t.unitTpl != nil && deviceState != nil {
		out, err := t.unitTpl.Render(render.Vars{DeviceState: deviceState})
		if u := normaliseUnit(render.Keep("", out, err)); u != "" {
			t.devUnit = u
		} else {
			t.logger.Debug("unit template gave no usable unit", "property", t.id, "output", out, "error", err)
		}
	}
	return t.refresh(deviceState, func(s string) (any, error) { return t.ConvertDevToHass(s) })
}

// ConvertHassToDev implements Operation: display unit to device unit, then
// clamped to the device limits.
func (t *TemperatureOperation) ConvertHassToDev(v any) (any, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	return t.clamp(convertUnit(f, t.haUnit, t.devUnit)), nil
}

// ConvertDevToHass implements Operation.
func (t *TemperatureOperation) ConvertDevToHass(v any) (any, error) {
	f, err := toFloat(v)
	if err != nil {
		return nil, err
	}
	return convertUnit(f, t.devUnit, t.haUnit), nil
}

// SetValue implements Operation.
func (t *TemperatureOperation) SetValue(ctx context.Context, v any) error {
	dev, err := t.ConvertHassToDev(v)
	if err != nil {
		return err
	}
	if err := t.send(ctx, nil, nil, dev); err != nil {
		return err
	}
	t.value, _ = t.ConvertDevToHass(dev)
	return nil
}
