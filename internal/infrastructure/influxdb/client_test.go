package influxdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/climate-ip/internal/infrastructure/config"
)

func testConfig(url string) config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           url,
		Token:         "climateip-dev-token",
		Org:           "climateip",
		Bucket:        "climate",
		BatchSize:     10,
		FlushInterval: 1,
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:8086")
	cfg.Enabled = false

	if _, err := Connect(context.Background(), cfg); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	if _, err := Connect(context.Background(), testConfig(srv.URL)); !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := Connect(context.Background(), testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if !c.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := c.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if c.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() after Close = %v, want ErrNotConnected", err)
	}

	// No-ops once closed.
	c.Flush()
	c.WriteSnapshot("ac", map[string]any{"t": 1.0}, time.Now())
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestSnapshotPoint(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		attrs map[string]any
		want  string
	}{
		{
			name:  "numeric and bool fields",
			attrs: map[string]any{"target_temp": 22.5, "fan_speed": 3, "power": "on", "online": true},
			want:  "climate,device_id=living-ac fan_speed=3,online=true,target_temp=22.5 1772366400000000000\n",
		},
		{
			name:  "json numbers",
			attrs: map[string]any{"current_temp": json.Number("21")},
			want:  "climate,device_id=living-ac current_temp=21 1772366400000000000\n",
		},
		{
			name:  "nothing numeric",
			attrs: map[string]any{"mode": "cool", "name": "Living"},
		},
		{
			name:  "bad json number skipped",
			attrs: map[string]any{"x": json.Number("abc")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := SnapshotPoint("living-ac", tt.attrs, ts)
			if tt.want == "" {
				if p != nil {
					t.Errorf("SnapshotPoint() = %s, want nil", write.PointToLineProtocol(p, time.Nanosecond))
				}
				return
			}
			if p == nil {
				t.Fatal("SnapshotPoint() = nil")
			}
			if got := write.PointToLineProtocol(p, time.Nanosecond); got != tt.want {
				t.Errorf("line protocol = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFieldValue_NormalisesInts(t *testing.T) {
	v, ok := fieldValue(int64(7))
	if !ok {
		t.Fatal("int64 not accepted")
	}
	if _, isFloat := v.(float64); !isFloat {
		t.Errorf("fieldValue(int64) = %T, want float64", v)
	}
	if _, ok := fieldValue("22"); ok {
		t.Error("strings must not become fields")
	}
	if !strings.HasPrefix(MeasurementClimate, "climate") {
		t.Error("measurement renamed")
	}
}
