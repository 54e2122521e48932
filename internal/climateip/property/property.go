package property

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/climate-ip/internal/climateip/connection"
	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
	"github.com/nerrad567/climate-ip/internal/climateip/render"
)

// StateUnknown is the value of a property that has never rendered.
const StateUnknown = "unknown"

// Descriptor keys understood by every property.
const (
	KeyType               = "type"
	KeyName               = "name"
	KeyStatusTemplate     = "status_template"
	KeyConnectionTemplate = "connection_template"
	KeyValidationTemplate = "validation_template"
	KeyConnectionParams   = "connection_params"
	KeyConnection         = "connection"
	KeyValues             = "values"
	KeyValue              = "value"
	KeyMin                = "min"
	KeyMax                = "max"
	KeyUnit               = "unit"
	KeyUnitTemplate       = "unit_template"
)

// Property is a read-only device value computed from the device state.
type Property interface {
	// ID is the descriptor key of the property.
	ID() string

	// Name is the display name, defaulting to the ID.
	Name() string

	// Type is the descriptor type the property was created from.
	Type() string

	// UpdateState recomputes the value from deviceState. A failed render
	// keeps the previous value; the returned error is informational.
	UpdateState(ctx context.Context, deviceState any, debug bool) error

	// Value returns the last successfully rendered value.
	Value() any

	// StateAttributes returns the attributes this property contributes to
	// the device's flat attribute map.
	StateAttributes() map[string]any

	// IsValid reports whether the device described by deviceState supports
	// this property.
	IsValid(deviceState any) bool
}

// Operation is a writable property.
type Operation interface {
	Property

	// SetValue converts v to the device vocabulary and sends it.
	SetValue(ctx context.Context, v any) error

	// MatchValue reports whether v is accepted by SetValue.
	MatchValue(v any) bool

	// ConvertHassToDev maps a user-facing value to the device value.
	ConvertHassToDev(v any) (any, error)

	// ConvertDevToHass maps a device value to the user-facing value.
	ConvertDevToHass(v any) (any, error)
}

// StatusGetter fetches the device state blob every poll.
type StatusGetter interface {
	Property

	// Status returns the blob fetched by the last successful UpdateState.
	Status() any
}

// Enumerated is implemented by operations with a fixed set of values.
type Enumerated interface {
	Values() []string
}

// Ranged is implemented by operations with numeric limits.
type Ranged interface {
	Range() (lo, hi float64, ok bool)
}

// Logger defines the logging interface used by properties.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options carry the dependencies handed to every factory.
type Options struct {
	Engine *render.Engine
	Logger Logger

	// TemperatureUnit is the unit values are shown in: "celsius" or "fahrenheit".
	TemperatureUnit string
}

func (o Options) withDefaults() Options {
	if o.Engine == nil {
		o.Engine = render.NewEngine()
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.TemperatureUnit == "" {
		o.TemperatureUnit = UnitCelsius
	}
	return o
}

// base holds what every property type shares.
type base struct {
	id   string
	name string
	typ  string

	statusTpl     *render.Template
	connTpl       *render.Template
	validationTpl *render.Template
	conn          connection.Connection
	logger        Logger

	value       any
	deviceState any
}

func newBase(typ, id string, node *descriptor.Node, conn connection.Connection, opts Options) (*base, error) {
	b := &base{
		id:     id,
		name:   node.StringOr(KeyName, id),
		typ:    typ,
		logger: opts.Logger,
		value:  StateUnknown,
		conn:   conn,
	}

	var err error
	if b.statusTpl, err = compileOptional(opts.Engine, node, KeyStatusTemplate); err != nil {
		return nil, err
	}
	if b.connTpl, err = compileOptional(opts.Engine, node, KeyConnectionTemplate); err != nil {
		return nil, err
	}
	if b.validationTpl, err = compileOptional(opts.Engine, node, KeyValidationTemplate); err != nil {
		return nil, err
	}
	if b.conn, err = bindConnection(conn, node); err != nil {
		return nil, err
	}
	return b, nil
}

// compileOptional compiles the template under key, if present.
func compileOptional(e *render.Engine, node *descriptor.Node, key string) (*render.Template, error) {
	src := node.String(key)
	if src == "" {
		return nil, nil
	}
	tpl, err := e.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("%s (line %d): %w", key, node.Get(key).Line(), err)
	}
	return tpl, nil
}

// bindConnection returns conn, or a copy overlaid with the node's
// connection_params (or connection.params).
func bindConnection(conn connection.Connection, node *descriptor.Node) (connection.Connection, error) {
	params := node.Get(KeyConnectionParams)
	if params == nil {
		params = node.Get(KeyConnection).Get(connection.KeyParams)
	}
	if params == nil || conn == nil {
		return conn, nil
	}
	updated, err := conn.CreateUpdated(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyConnectionParams, err)
	}
	return updated, nil
}

func (b *base) ID() string   { return b.id }
func (b *base) Name() string { return b.name }
func (b *base) Type() string { return b.typ }
func (b *base) Value() any   { return b.value }

func (b *base) StateAttributes() map[string]any {
	return map[string]any{b.id: b.value}
}

// IsValid uses validation_template when present. Without one, a property
// is valid when its status template renders something for deviceState.
func (b *base) IsValid(deviceState any) bool {
	vars := render.Vars{DeviceState: deviceState}
	if b.validationTpl != nil {
		return b.validationTpl.Truthy(vars)
	}
	if b.statusTpl == nil {
		return true
	}
	out, err := b.statusTpl.Render(vars)
	return err == nil && strings.TrimSpace(out) != ""
}

// refresh renders the status template and stores convert's result.
// The previous value is kept when rendering or conversion fails.
func (b *base) refresh(deviceState any, convert func(string) (any, error)) error {
	b.deviceState = deviceState
	if b.statusTpl == nil || deviceState == nil {
		return nil
	}

	out, err := b.statusTpl.Render(render.Vars{DeviceState: deviceState})
	s := render.Keep("", out, err)
	if s == "" {
		if err == nil {
			err = fmt.Errorf("%w: empty render", ErrInvalidValue)
		}
		b.logger.Debug("status render kept previous value", "property", b.id, "error", err)
		return err
	}

	v, err := convert(s)
	if err != nil {
		b.logger.Debug("status value not converted, keeping previous", "property", b.id, "raw", s, "error", err)
		return err
	}
	b.value = v
	return nil
}

// send executes tpl (or the property's connection template) with dev.
func (b *base) send(ctx context.Context, conn connection.Connection, tpl *render.Template, dev any) error {
	if tpl == nil {
		tpl = b.connTpl
	}
	if conn == nil {
		conn = b.conn
	}
	if tpl == nil || conn == nil {
		return fmt.Errorf("%w: %s", ErrReadOnly, b.id)
	}
	if _, err := conn.Execute(ctx, tpl, formatValue(dev), b.deviceState); err != nil {
		return fmt.Errorf("setting %s: %w", b.id, err)
	}
	return nil
}
