package render

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEngine_CompileError(t *testing.T) {
	e := NewEngine()

	_, err := e.Compile("{{ device_state.power ")
	if !errors.Is(err, ErrCompile) {
		t.Fatalf("Compile() error = %v, want ErrCompile", err)
	}
}

func TestTemplate_Render(t *testing.T) {
	e := NewEngine()

	state := map[string]any{
		"power": "On",
		"Devices": []any{
			map[string]any{"Mode": map[string]any{"modes": []any{"Cool"}}},
		},
	}

	tests := []struct {
		name string
		src  string
		vars Vars
		want string
	}{
		{
			name: "plain attribute",
			src:  "{{ device_state.power }}",
			vars: Vars{DeviceState: state},
			want: "On",
		},
		{
			name: "nested list index",
			src:  "{{ device_state.Devices.0.Mode.modes.0 }}",
			vars: Vars{DeviceState: state},
			want: "Cool",
		},
		{
			name: "conditional",
			src:  `{% if device_state.power == "On" %}1{% else %}0{% endif %}`,
			vars: Vars{DeviceState: state},
			want: "1",
		},
		{
			name: "json body is not escaped",
			src:  `{"Attr": "AC_FUN_POWER", "Value": "{{ value }}"}`,
			vars: Vars{Value: "a<b"},
			want: `{"Attr": "AC_FUN_POWER", "Value": "a<b"}`,
		},
		{
			name: "missing key renders empty",
			src:  "{{ device_state.nothing }}",
			vars: Vars{DeviceState: state},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, err := e.Compile(tt.src)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := tpl.Render(tt.vars)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTemplate_RenderJSONNumber(t *testing.T) {
	e := NewEngine()

	dec := json.NewDecoder(strings.NewReader(`{"desired": 24}`))
	dec.UseNumber()
	var state map[string]any
	if err := dec.Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}

	got, err := e.MustCompile("{{ device_state.desired }}").Render(Vars{DeviceState: state})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "24" {
		t.Errorf("Render() = %q, want %q", got, "24")
	}
}

func TestTemplate_RenderNil(t *testing.T) {
	var tpl *Template
	if _, err := tpl.Render(Vars{}); !errors.Is(err, ErrRender) {
		t.Errorf("Render() on nil template error = %v, want ErrRender", err)
	}
	if tpl.Source() != "" {
		t.Errorf("Source() on nil template = %q, want empty", tpl.Source())
	}
}

func TestKeep(t *testing.T) {
	renderErr := errors.New("boom")

	tests := []struct {
		name     string
		previous string
		out      string
		err      error
		want     string
	}{
		{"success replaces", "Off", "On", nil, "On"},
		{"output is trimmed", "Off", "  On\n", nil, "On"},
		{"error keeps previous", "Off", "On", renderErr, "Off"},
		{"empty keeps previous", "Off", "", nil, "Off"},
		{"whitespace keeps previous", "Off", " \n", nil, "Off"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Keep(tt.previous, tt.out, tt.err); got != tt.want {
				t.Errorf("Keep() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTemplate_Decide(t *testing.T) {
	e := NewEngine()
	cond := e.MustCompile(`{% if device_state.power == "On" %}1{% else %}0{% endif %}`)

	tests := []struct {
		name  string
		tpl   *Template
		state any
		want  Decision
		exec  bool
	}{
		{"condition met", cond, map[string]any{"power": "On"}, DecisionExecute, true},
		{"condition not met", cond, map[string]any{"power": "Off"}, DecisionSkip, false},
		{"no condition", nil, nil, DecisionExecute, true},
		{"broken condition fails open", &Template{}, nil, DecisionUnknown, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.tpl.Decide(Vars{DeviceState: tt.state})
			if got != tt.want {
				t.Errorf("Decide() = %v, want %v", got, tt.want)
			}
			if got.ShouldExecute() != tt.exec {
				t.Errorf("ShouldExecute() = %v, want %v", got.ShouldExecute(), tt.exec)
			}
		})
	}
}

func TestTemplate_Truthy(t *testing.T) {
	e := NewEngine()

	tests := []struct {
		src  string
		want bool
	}{
		{"1", true},
		{"True", true},
		{"true", true},
		{"0", false},
		{"False", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := e.MustCompile(tt.src).Truthy(Vars{}); got != tt.want {
				t.Errorf("Truthy(%q) = %v, want %v", tt.src, got, tt.want)
			}
		})
	}

	if (&Template{}).Truthy(Vars{}) {
		t.Error("Truthy() on broken template = true, want false")
	}
}
