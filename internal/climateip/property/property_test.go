package property

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/nerrad567/climate-ip/internal/climateip/connection"
	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
	"github.com/nerrad567/climate-ip/internal/climateip/render"
)

// recordingConn is a connection.Connection that records rendered commands.
type recordingConn struct {
	rendered []string
	values   []any
	reply    any
	err      error
	params   map[string]any
}

func (c *recordingConn) Type() string { return "recording" }

func (c *recordingConn) Execute(_ context.Context, tpl *render.Template, value any, deviceState any) (any, error) {
	if tpl != nil {
		out, err := tpl.Render(render.Vars{DeviceState: deviceState, Value: value})
		if err != nil {
			return nil, err
		}
		c.rendered = append(c.rendered, out)
	}
	c.values = append(c.values, value)
	return c.reply, c.err
}

func (c *recordingConn) CreateUpdated(params *descriptor.Node) (connection.Connection, error) {
	cp := *c
	cp.params = params.Map()
	return &cp, nil
}

func (c *recordingConn) Params() map[string]any { return c.params }
func (c *recordingConn) Close() error           { return nil }

func mustNode(t *testing.T, src string) *descriptor.Node {
	t.Helper()
	n, err := descriptor.Parse(src)
	if err != nil {
		t.Fatalf("descriptor.Parse() error = %v", err)
	}
	return n
}

func mustOperation(t *testing.T, id, src string, conn connection.Connection, opts Options) Operation {
	t.Helper()
	p, err := DefaultRegistry().CreateProperty(id, mustNode(t, src), conn, opts)
	if err != nil {
		t.Fatalf("CreateProperty() error = %v", err)
	}
	op, ok := p.(Operation)
	if !ok {
		t.Fatalf("%T does not implement Operation", p)
	}
	return op
}

func TestDefaultRegistry_Types(t *testing.T) {
	r := DefaultRegistry()

	wantProps := []string{TypeModes, TypeNumber, TypeSwitch, TypeTemperature, TypeValue}
	if got := r.PropertyTypes(); !slices.Equal(got, wantProps) {
		t.Errorf("PropertyTypes() = %v, want %v", got, wantProps)
	}
	if got := r.StatusGetterTypes(); !slices.Equal(got, []string{TypeJSONStatus}) {
		t.Errorf("StatusGetterTypes() = %v, want [json_status]", got)
	}
}

func TestRegistry_CreateErrors(t *testing.T) {
	r := DefaultRegistry()

	tests := []struct {
		name string
		src  string
		want error
	}{
		{"unknown type", "type: dimmer\n", ErrUnknownType},
		{"modes without values", "type: modes\n", ErrLoad},
		{"switch without off", "type: switch\nvalues:\n  on: \"1\"\n", ErrLoad},
		{"inverted range", "type: number\nmin: 30\nmax: 16\n", ErrLoad},
		{"bad status template", "type: value\nstatus_template: \"{{ device_state.x \"\n", ErrLoad},
		{"bad unit", "type: temperature\nunit: kelvin\n", ErrLoad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.CreateProperty("p", mustNode(t, tt.src), nil, Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("CreateProperty() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := r.CreateStatusGetter("s", mustNode(t, "type: value\n"), nil, Options{}); !errors.Is(err, ErrUnknownType) {
		t.Errorf("CreateStatusGetter(value) error = %v, want ErrUnknownType", err)
	}
	if _, err := r.CreateStatusGetter("s", mustNode(t, "type: json_status\n"), nil, Options{}); !errors.Is(err, ErrLoad) {
		t.Errorf("CreateStatusGetter without connection error = %v, want ErrLoad", err)
	}
}

func TestValueProperty_KeepsPreviousOnFailure(t *testing.T) {
	p, err := DefaultRegistry().CreateProperty("name", mustNode(t, `
type: value
status_template: '{{ device_state.Devices.0.name }}'
`), nil, Options{})
	if err != nil {
		t.Fatalf("CreateProperty() error = %v", err)
	}
	ctx := context.Background()

	if p.Value() != StateUnknown {
		t.Fatalf("initial Value() = %v, want %q", p.Value(), StateUnknown)
	}

	state := map[string]any{"Devices": []any{map[string]any{"name": "RAC"}}}
	if err := p.UpdateState(ctx, state, false); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if p.Value() != "RAC" {
		t.Fatalf("Value() = %v, want RAC", p.Value())
	}

	if err := p.UpdateState(ctx, map[string]any{}, false); err == nil {
		t.Error("UpdateState() with empty render returned nil error")
	}
	if p.Value() != "RAC" {
		t.Errorf("Value() after failed render = %v, want previous RAC", p.Value())
	}

	if err := p.UpdateState(ctx, nil, false); err != nil {
		t.Errorf("UpdateState(nil) error = %v", err)
	}
	if p.Value() != "RAC" {
		t.Errorf("Value() after nil state = %v, want previous RAC", p.Value())
	}

	attrs := p.StateAttributes()
	if attrs["name"] != "RAC" {
		t.Errorf("StateAttributes() = %v", attrs)
	}
}

func TestIsValid(t *testing.T) {
	state := map[string]any{"AC_FUN_POWER": "On"}

	tests := []struct {
		name string
		src  string
		want bool
	}{
		{"no templates", "type: value\n", true},
		{"status renders", "type: value\nstatus_template: '{{ device_state.AC_FUN_POWER }}'\n", true},
		{"status renders nothing", "type: value\nstatus_template: '{{ device_state.AC_FUN_WIND }}'\n", false},
		{"validation true", "type: value\nvalidation_template: '{% if device_state.AC_FUN_POWER %}1{% endif %}'\n", true},
		{"validation false", "type: value\nvalidation_template: '{% if device_state.AC_FUN_WIND %}1{% else %}0{% endif %}'\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := DefaultRegistry().CreateProperty("p", mustNode(t, tt.src), nil, Options{})
			if err != nil {
				t.Fatalf("CreateProperty() error = %v", err)
			}
			if got := p.IsValid(state); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSwitch_MapsBooleans(t *testing.T) {
	op := mustOperation(t, "power", `
type: switch
values:
  on:
    value: "1"
  off:
    value: "0"
`, nil, Options{})

	tests := []struct {
		in   any
		want any
	}{
		{true, "1"},
		{false, "0"},
		{"on", "1"},
		{"off", "0"},
		{"True", "1"},
	}
	for _, tt := range tests {
		got, err := op.ConvertHassToDev(tt.in)
		if err != nil {
			t.Fatalf("ConvertHassToDev(%v) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ConvertHassToDev(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	if got, _ := op.ConvertDevToHass("1"); got != SwitchOn {
		t.Errorf("ConvertDevToHass(1) = %v, want on", got)
	}
	if op.MatchValue("dim") {
		t.Error("MatchValue(dim) = true, want false")
	}
}

func TestModes_OrderAndFirstMatchWins(t *testing.T) {
	op := mustOperation(t, "mode", `
type: modes
status_template: '{{ device_state.mode }}'
values:
  auto: { value: "Auto" }
  smart: { value: "Auto" }
  cool: "Opmode_Cool"
  heat: { value: "Opmode_Heat" }
`, nil, Options{})

	if got := op.(Enumerated).Values(); !slices.Equal(got, []string{"auto", "smart", "cool", "heat"}) {
		t.Errorf("Values() = %v, want descriptor order", got)
	}

	if got, _ := op.ConvertDevToHass("Auto"); got != "auto" {
		t.Errorf("ConvertDevToHass(Auto) = %v, want first match auto", got)
	}
	if got, _ := op.ConvertHassToDev("smart"); got != "Auto" {
		t.Errorf("ConvertHassToDev(smart) = %v, want Auto", got)
	}
	if got, _ := op.ConvertHassToDev("cool"); got != "Opmode_Cool" {
		t.Errorf("ConvertHassToDev(cool) = %v, want scalar shorthand value", got)
	}
	if _, err := op.ConvertHassToDev(true); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("ConvertHassToDev(true) on modes error = %v, want ErrInvalidValue", err)
	}

	ctx := context.Background()
	if err := op.UpdateState(ctx, map[string]any{"mode": "Opmode_Heat"}, false); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if op.Value() != "heat" {
		t.Fatalf("Value() = %v, want heat", op.Value())
	}

	_ = op.UpdateState(ctx, map[string]any{"mode": "Opmode_Turbo"}, false)
	if op.Value() != "heat" {
		t.Errorf("Value() after unmapped device value = %v, want previous heat", op.Value())
	}
}

func TestModes_SetValue(t *testing.T) {
	conn := &recordingConn{reply: map[string]any{}}
	op := mustOperation(t, "mode", `
type: modes
connection_template: '{"json": {"modes": ["{{ value }}"]}}'
values:
  cool: { value: "Opmode_Cool" }
  wind:
    value: "Opmode_Wind"
    connection_template: '{"json": {"wind": "{{ value }}"}}'
`, conn, Options{})

	ctx := context.Background()
	if err := op.SetValue(ctx, "cool"); err != nil {
		t.Fatalf("SetValue(cool) error = %v", err)
	}
	if err := op.SetValue(ctx, "wind"); err != nil {
		t.Fatalf("SetValue(wind) error = %v", err)
	}
	if err := op.SetValue(ctx, "dry"); !errors.Is(err, ErrInvalidValue) {
		t.Errorf("SetValue(dry) error = %v, want ErrInvalidValue", err)
	}

	want := []string{
		`{"json": {"modes": ["Opmode_Cool"]}}`,
		`{"json": {"wind": "Opmode_Wind"}}`,
	}
	if !slices.Equal(conn.rendered, want) {
		t.Errorf("rendered = %q, want %q", conn.rendered, want)
	}
	if op.Value() != "wind" {
		t.Errorf("Value() after SetValue = %v, want wind", op.Value())
	}
}

func TestSetValue_ReadOnly(t *testing.T) {
	op := mustOperation(t, "power", "type: switch\nvalues:\n  on: \"1\"\n  off: \"0\"\n", &recordingConn{}, Options{})

	if err := op.SetValue(context.Background(), true); !errors.Is(err, ErrReadOnly) {
		t.Errorf("SetValue() error = %v, want ErrReadOnly", err)
	}
}

func TestSetValue_ConnectionParams(t *testing.T) {
	shared := &recordingConn{reply: map[string]any{}}
	p, err := DefaultRegistry().CreateProperty("temp", mustNode(t, `
type: number
connection_template: '{"json": {"desired": {{ value }}}}'
connection_params:
  method: PUT
  url: https://ac/devices/0/temperatures/0
`), shared, Options{})
	if err != nil {
		t.Fatalf("CreateProperty() error = %v", err)
	}

	if err := p.(Operation).SetValue(context.Background(), 21.5); err != nil {
		t.Fatalf("SetValue() error = %v", err)
	}
	if len(shared.rendered) != 0 {
		t.Error("command went to the shared connection instead of the updated copy")
	}
}

func TestNumber_ClampIsIdempotent(t *testing.T) {
	op := mustOperation(t, "fan", "type: number\nmin: 0\nmax: 4\n", nil, Options{})

	for _, in := range []any{-3.0, 0, 2.5, "3", 4.0, 99} {
		once, err := op.ConvertHassToDev(in)
		if err != nil {
			t.Fatalf("ConvertHassToDev(%v) error = %v", in, err)
		}
		twice, err := op.ConvertHassToDev(once)
		if err != nil {
			t.Fatalf("ConvertHassToDev(%v) error = %v", once, err)
		}
		if once != twice {
			t.Errorf("ConvertHassToDev not idempotent for %v: %v then %v", in, once, twice)
		}
		if f := once.(float64); f < 0 || f > 4 {
			t.Errorf("ConvertHassToDev(%v) = %v, outside [0, 4]", in, f)
		}
	}

	if op.MatchValue("warm") {
		t.Error("MatchValue(warm) = true, want false")
	}
}

func TestNumber_RejectsNonFinite(t *testing.T) {
	number := mustOperation(t, "temp", "type: number\nmin: 16\nmax: 30\n", nil, Options{})
	temp := mustOperation(t, "target", "type: temperature\nmin: 16\nmax: 30\n", nil, Options{})

	tests := []struct {
		name string
		in   any
	}{
		{"NaN string", "NaN"},
		{"Inf string", "Inf"},
		{"negative infinity string", "-Infinity"},
		{"NaN float", math.NaN()},
		{"Inf float", math.Inf(1)},
		{"negative Inf float", math.Inf(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, op := range []Operation{number, temp} {
				if op.MatchValue(tt.in) {
					t.Errorf("%s MatchValue(%v) = true, want false", op.ID(), tt.in)
				}
				if _, err := op.ConvertHassToDev(tt.in); !errors.Is(err, ErrInvalidValue) {
					t.Errorf("%s ConvertHassToDev(%v) error = %v, want ErrInvalidValue", op.ID(), tt.in, err)
				}
			}
		})
	}
}

func TestSwitch_UpdateState(t *testing.T) {
	op := mustOperation(t, "power", `
type: switch
status_template: '{{ device_state.AC_FUN_POWER }}'
values:
  on: "On"
  off: "Off"
`, nil, Options{})
	ctx := context.Background()

	if err := op.UpdateState(ctx, map[string]any{"AC_FUN_POWER": "On"}, false); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if op.Value() != SwitchOn {
		t.Fatalf("Value() = %v, want %q", op.Value(), SwitchOn)
	}

	_ = op.UpdateState(ctx, map[string]any{"AC_FUN_POWER": "Standby"}, false)
	if op.Value() != SwitchOn {
		t.Errorf("Value() after unmapped device value = %v, want previous %q", op.Value(), SwitchOn)
	}

	if err := op.UpdateState(ctx, map[string]any{"AC_FUN_POWER": "Off"}, false); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if op.Value() != SwitchOff {
		t.Errorf("Value() = %v, want %q", op.Value(), SwitchOff)
	}
}

func TestTemperature_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		haUnit string
		inputs []float64
	}{
		{"same unit", "type: temperature\nmin: 16\nmax: 30\n", UnitCelsius, []float64{16, 21.5, 30}},
		{"device in fahrenheit", "type: temperature\nunit: F\nmin: 60\nmax: 86\n", UnitCelsius, []float64{16, 22.5, 30}},
		{"display in fahrenheit", "type: temperature\nunit: celsius\nmin: 16\nmax: 30\n", UnitFahrenheit, []float64{61, 72, 86}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := mustOperation(t, "target_temp", tt.src, nil, Options{TemperatureUnit: tt.haUnit})
			for _, x := range tt.inputs {
				dev, err := op.ConvertHassToDev(x)
				if err != nil {
					t.Fatalf("ConvertHassToDev(%v) error = %v", x, err)
				}
				back, err := op.ConvertDevToHass(dev)
				if err != nil {
					t.Fatalf("ConvertDevToHass(%v) error = %v", dev, err)
				}
				if math.Abs(back.(float64)-x) > 1e-9 {
					t.Errorf("round trip %v -> %v -> %v", x, dev, back)
				}
			}
		})
	}
}

func TestTemperature_ClampsInDeviceUnit(t *testing.T) {
	op := mustOperation(t, "target_temp", "type: temperature\nunit: F\nmin: 60\nmax: 86\n", nil, Options{})

	dev, err := op.ConvertHassToDev(40.0)
	if err != nil {
		t.Fatalf("ConvertHassToDev() error = %v", err)
	}
	if dev != 86.0 {
		t.Errorf("ConvertHassToDev(40C) = %v, want 86F", dev)
	}

	lo, hi, ok := op.(Ranged).Range()
	if !ok || math.Abs(lo-15.5555555) > 1e-3 || math.Abs(hi-30) > 1e-9 {
		t.Errorf("Range() = %v, %v, %v; want celsius limits", lo, hi, ok)
	}
}

func TestTemperature_UnitTemplate(t *testing.T) {
	op := mustOperation(t, "current_temp", `
type: temperature
status_template: '{{ device_state.Temperatures.0.current }}'
unit_template: '{{ device_state.Temperatures.0.unit }}'
`, nil, Options{TemperatureUnit: UnitCelsius})

	ctx := context.Background()
	state := func(current float64, unit string) map[string]any {
		return map[string]any{"Temperatures": []any{map[string]any{"current": current, "unit": unit}}}
	}

	if err := op.UpdateState(ctx, state(22, "Celsius"), false); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if op.Value() != 22.0 {
		t.Errorf("Value() = %v, want 22", op.Value())
	}

	if err := op.UpdateState(ctx, state(212, "Fahrenheit"), false); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if op.Value() != 100.0 {
		t.Errorf("Value() = %v, want 100 after unit switch", op.Value())
	}
	if got := op.(*TemperatureOperation).DeviceUnit(); got != UnitFahrenheit {
		t.Errorf("DeviceUnit() = %q, want fahrenheit", got)
	}
}

func TestJSONStatus(t *testing.T) {
	blob := map[string]any{"AC_FUN_POWER": "On"}
	conn := &recordingConn{reply: blob}

	g, err := DefaultRegistry().CreateStatusGetter("state", mustNode(t, "type: json_status\n"), conn, Options{})
	if err != nil {
		t.Fatalf("CreateStatusGetter() error = %v", err)
	}
	ctx := context.Background()

	if g.Status() != nil {
		t.Fatal("Status() before first update should be nil")
	}

	if err := g.UpdateState(ctx, nil, false); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if got := g.Status().(map[string]any); got["AC_FUN_POWER"] != "On" {
		t.Errorf("Status() = %v", got)
	}
	if len(g.StateAttributes()) != 0 {
		t.Errorf("StateAttributes() without debug = %v, want empty", g.StateAttributes())
	}

	if err := g.UpdateState(ctx, blob, true); err != nil {
		t.Fatalf("UpdateState() error = %v", err)
	}
	if _, ok := g.StateAttributes()["state"]; !ok {
		t.Error("StateAttributes() with debug does not expose the blob")
	}

	conn.err = errors.New("socket closed")
	if err := g.UpdateState(ctx, blob, false); err == nil {
		t.Error("UpdateState() with failing connection returned nil error")
	}
	if g.Status() == nil {
		t.Error("failed fetch cleared the cached status")
	}
}
