package descriptor

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDescriptor = `
device:
  name: Samsung AC
  poll: true
  connection:
    type: samsung_2878
    params:
      host: __CLIMATE_IP_HOST__
      token: __CLIMATE_IP_TOKEN__
      port: 2878
  operations:
    power:
      type: switch
      values:
        "on": { value: "On" }
        "off": { value: "Off" }
    mode:
      type: modes
      min: 16
`

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no placeholders", "a: b\n", "a: b\n"},
		{"both on one line", "x: __CLIMATE_IP_HOST__/__CLIMATE_IP_TOKEN__\n", "x: 10.0.0.2/secret\n"},
		{"repeated", "__CLIMATE_IP_TOKEN__ __CLIMATE_IP_TOKEN__", "secret secret"},
		{"no trailing newline", "h: __CLIMATE_IP_HOST__", "h: 10.0.0.2"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := io.ReadAll(Substitute(strings.NewReader(tt.in), "10.0.0.2", "secret"))
			if err != nil {
				t.Fatalf("ReadAll() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Substitute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSubstitute_SmallReads(t *testing.T) {
	r := Substitute(strings.NewReader("t: __CLIMATE_IP_TOKEN__\nh: __CLIMATE_IP_HOST__\n"), "host", "tok")

	var sb strings.Builder
	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		sb.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
	}

	if want := "t: tok\nh: host\n"; sb.String() != want {
		t.Errorf("got %q, want %q", sb.String(), want)
	}
}

func TestLoad(t *testing.T) {
	root, err := Load(strings.NewReader(sampleDescriptor), Substitutions{Host: "192.168.1.40", Token: "abc"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	dev := root.Get("device")
	if dev == nil {
		t.Fatal("device node missing")
	}
	if got := dev.String("name"); got != "Samsung AC" {
		t.Errorf("name = %q, want %q", got, "Samsung AC")
	}
	if !dev.Bool("poll", false) {
		t.Error("poll = false, want true")
	}

	params := dev.Get("connection").Get("params")
	if got := params.String("host"); got != "192.168.1.40" {
		t.Errorf("host = %q, want substituted host", got)
	}
	if got := params.String("token"); got != "abc" {
		t.Errorf("token = %q, want substituted token", got)
	}
	if port, ok := params.Float("port"); !ok || port != 2878 {
		t.Errorf("port = %v, %v; want 2878, true", port, ok)
	}

	m := params.Map()
	if m["port"] != 2878 {
		t.Errorf("Map()[port] = %v (%T), want int 2878", m["port"], m["port"])
	}
}

func TestNode_KeyOrder(t *testing.T) {
	root, err := Parse(sampleDescriptor)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	ops := root.Get("device").Get("operations")
	keys := ops.Keys()
	if len(keys) != 2 || keys[0] != "power" || keys[1] != "mode" {
		t.Errorf("Keys() = %v, want [power mode]", keys)
	}

	values := ops.Get("power").Get("values").Entries()
	if len(values) != 2 || values[0].Key != "on" || values[1].Key != "off" {
		t.Fatalf("Entries() keys = %v, want on, off", values)
	}
	if got := values[0].Value.String("value"); got != "On" {
		t.Errorf("on.value = %q, want %q", got, "On")
	}
}

func TestNode_NilSafe(t *testing.T) {
	var n *Node

	if n.Get("a").Get("b") != nil {
		t.Error("Get on nil node returned non-nil")
	}
	if n.Has("a") || n.String("a") != "" || n.Map() != nil || n.Items() != nil {
		t.Error("nil node accessors returned non-zero values")
	}
	if n.Bool("a", true) != true {
		t.Error("Bool on nil node should return default")
	}
	if err := n.Decode(&struct{}{}); err != nil {
		t.Errorf("Decode on nil node error = %v", err)
	}
}

func TestNode_Aliases(t *testing.T) {
	root, err := Parse(`
common: &c
  method: POST
one:
  params: *c
`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := root.Get("one").Get("params").String("method"); got != "POST" {
		t.Errorf("aliased method = %q, want POST", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Parse(""); !errors.Is(err, ErrEmpty) {
		t.Errorf("Parse(empty) error = %v, want ErrEmpty", err)
	}
	if _, err := Parse("a: [b"); !errors.Is(err, ErrParse) {
		t.Errorf("Parse(invalid) error = %v, want ErrParse", err)
	}
	if _, err := LoadFile("/nonexistent/device.yaml", Substitutions{}); !errors.Is(err, ErrRead) {
		t.Errorf("LoadFile(missing) error = %v, want ErrRead", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.yaml")
	if err := os.WriteFile(path, []byte(sampleDescriptor), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	root, err := LoadFile(path, Substitutions{Host: "h", Token: "t"})
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := root.Get("device").Get("connection").String("type"); got != "samsung_2878" {
		t.Errorf("connection type = %q, want samsung_2878", got)
	}
}
