package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/climate-ip/internal/climateip/controller"
	"github.com/nerrad567/climate-ip/internal/climateip/property"
	"github.com/nerrad567/climate-ip/internal/history"
	"github.com/nerrad567/climate-ip/internal/infrastructure/mqtt"
)

// fakeDevice stands in for a YAML controller.
type fakeDevice struct {
	mu sync.Mutex

	id        string
	poll      bool
	initErr   error
	updateErr error
	setErr    error

	attrs     map[string]any
	available bool

	inits   int
	updates int
	sets    []string
	closed  bool
	updated chan struct{}
}

func newFakeDevice(id string) *fakeDevice {
	return &fakeDevice{
		id:        id,
		poll:      true,
		attrs:     map[string]any{"name": id, "power": "off"},
		available: true,
	}
}

func (d *fakeDevice) ID() string { return d.id }

func (d *fakeDevice) Initialize(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inits++
	return d.initErr
}

func (d *fakeDevice) UpdateState(context.Context) error {
	d.mu.Lock()
	d.updates++
	err := d.updateErr
	ch := d.updated
	d.mu.Unlock()
	if ch != nil {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	return err
}

func (d *fakeDevice) SetProperty(_ context.Context, name string, v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.setErr != nil {
		return d.setErr
	}
	d.sets = append(d.sets, fmt.Sprintf("%s=%v", name, v))
	d.attrs[name] = v
	return nil
}

func (d *fakeDevice) Poll() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.poll
}

func (d *fakeDevice) Snapshot() controller.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return controller.Snapshot{
		ID:         d.id,
		Name:       d.id,
		Available:  d.available,
		Attributes: maps.Clone(d.attrs),
		UpdatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) set(f func(d *fakeDevice)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f(d)
}

type published struct {
	topic    string
	payload  []byte
	retained bool
}

// mockMQTT records publishes and subscriptions.
type mockMQTT struct {
	mu         sync.Mutex
	messages   []published
	subscribed map[string]mqtt.MessageHandler
	connected  bool
}

func newMockMQTT() *mockMQTT {
	return &mockMQTT{subscribed: map[string]mqtt.MessageHandler{}, connected: true}
}

func (m *mockMQTT) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, published{topic, payload, retained})
	return nil
}

func (m *mockMQTT) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribed[topic] = handler
	return nil
}

func (m *mockMQTT) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockMQTT) on(topic string) []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []published
	for _, p := range m.messages {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// memoryHistory is an in-memory history.Store.
type memoryHistory struct {
	mu      sync.Mutex
	entries []history.Entry
}

func (h *memoryHistory) Record(_ context.Context, deviceID string, state map[string]any, source string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, history.Entry{DeviceID: deviceID, State: state, Source: source})
	return nil
}

func (h *memoryHistory) Get(_ context.Context, deviceID string, _ int) ([]history.Entry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []history.Entry
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].DeviceID == deviceID {
			out = append(out, h.entries[i])
		}
	}
	return out, nil
}

func (h *memoryHistory) Prune(context.Context, time.Duration) (int64, error) { return 0, nil }

func (h *memoryHistory) sources() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.entries))
	for _, e := range h.entries {
		out = append(out, e.Source)
	}
	return out
}

type recordingTelemetry struct {
	mu        sync.Mutex
	snapshots int
	avail     []bool
}

func (r *recordingTelemetry) WriteSnapshot(string, map[string]any, time.Time) {
	r.mu.Lock()
	r.snapshots++
	r.mu.Unlock()
}

func (r *recordingTelemetry) WriteAvailability(_ string, available bool, _ time.Time) {
	r.mu.Lock()
	r.avail = append(r.avail, available)
	r.mu.Unlock()
}

type fixture struct {
	bridge    *Bridge
	dev       *fakeDevice
	mqtt      *mockMQTT
	history   *memoryHistory
	telemetry *recordingTelemetry
	registry  *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dev:       newFakeDevice("living-ac"),
		mqtt:      newMockMQTT(),
		history:   &memoryHistory{},
		telemetry: &recordingTelemetry{},
		registry:  prometheus.NewRegistry(),
	}
	b, err := New(Options{
		BridgeID:  "test-bridge",
		Version:   "test",
		Devices:   []DeviceEntry{{Device: f.dev, PollInterval: time.Hour}},
		MQTT:      f.mqtt,
		QoS:       1,
		History:   f.history,
		Telemetry: f.telemetry,
		Metrics:   NewMetrics(f.registry),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.bridge = b
	return f
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoDevices) {
		t.Errorf("New() without devices = %v, want ErrNoDevices", err)
	}

	_, err := New(Options{Devices: []DeviceEntry{
		{Device: newFakeDevice("ac")},
		{Device: newFakeDevice("ac")},
	}})
	if !errors.Is(err, ErrDuplicateDevice) {
		t.Errorf("New() with duplicates = %v, want ErrDuplicateDevice", err)
	}

	b, err := New(Options{Devices: []DeviceEntry{
		{Device: newFakeDevice("b")},
		{Device: newFakeDevice("a")},
	}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if ids := b.DeviceIDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("DeviceIDs() = %v, want [a b]", ids)
	}
	if b.devices["a"].interval != defaultPollInterval {
		t.Errorf("interval = %v, want default", b.devices["a"].interval)
	}
}

func TestRefresh_PublishesOnChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var events []Event
	unsubscribe := f.bridge.Subscribe(func(ev Event) { events = append(events, ev) })

	for n := 0; n < 2; n++ {
		if err := f.bridge.Refresh(ctx, "living-ac"); err != nil {
			t.Fatalf("Refresh() error = %v", err)
		}
	}

	states := f.mqtt.on("climateip/state/living-ac")
	if len(states) != 1 {
		t.Fatalf("state publishes = %d, want 1 (unchanged snapshot skipped)", len(states))
	}
	if !states[0].retained {
		t.Error("state not retained")
	}

	var msg StateMessage
	if err := json.Unmarshal(states[0].payload, &msg); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if msg.DeviceID != "living-ac" || !msg.Available || msg.Attributes["power"] != "off" {
		t.Errorf("state = %+v", msg)
	}

	f.dev.set(func(d *fakeDevice) { d.attrs["power"] = "on" })
	if err := f.bridge.Refresh(ctx, "living-ac"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if n := len(f.mqtt.on("climateip/state/living-ac")); n != 2 {
		t.Errorf("state publishes = %d, want 2 after change", n)
	}

	if got := f.history.sources(); len(got) != 2 || got[0] != history.SourcePoll {
		t.Errorf("history sources = %v, want two poll entries", got)
	}
	if f.telemetry.snapshots != 3 {
		t.Errorf("telemetry snapshots = %d, want 3 (every poll)", f.telemetry.snapshots)
	}
	if len(events) != 2 {
		t.Errorf("events = %d, want 2", len(events))
	}

	unsubscribe()
	f.dev.set(func(d *fakeDevice) { d.attrs["power"] = "off" })
	_ = f.bridge.Refresh(ctx, "living-ac")
	if len(events) != 2 {
		t.Errorf("listener called after unsubscribe")
	}

	if got := testutil.ToFloat64(f.bridge.metrics.polls.WithLabelValues("living-ac", "ok")); got != 4 {
		t.Errorf("polls_total{ok} = %v, want 4", got)
	}
	if got := testutil.ToFloat64(f.bridge.metrics.available.WithLabelValues("living-ac")); got != 1 {
		t.Errorf("device_available = %v, want 1", got)
	}
}

func TestRefresh_InitRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.dev.set(func(d *fakeDevice) { d.initErr = errors.New("descriptor missing") })

	if err := f.bridge.Refresh(ctx, "living-ac"); err == nil {
		t.Fatal("Refresh() expected init error")
	}
	if f.dev.updates != 0 {
		t.Error("UpdateState called before Initialize succeeded")
	}
	if got := testutil.ToFloat64(f.bridge.metrics.polls.WithLabelValues("living-ac", "init_error")); got != 1 {
		t.Errorf("polls_total{init_error} = %v, want 1", got)
	}

	f.dev.set(func(d *fakeDevice) { d.initErr = nil })
	if err := f.bridge.Refresh(ctx, "living-ac"); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	_ = f.bridge.Refresh(ctx, "living-ac")
	if f.dev.inits != 2 {
		t.Errorf("inits = %d, want 2 (not repeated once ready)", f.dev.inits)
	}
}

func TestRefresh_UpdateErrorStillPublishes(t *testing.T) {
	f := newFixture(t)
	f.dev.set(func(d *fakeDevice) {
		d.updateErr = controller.ErrStatusUnavailable
		d.available = false
	})

	err := f.bridge.Refresh(context.Background(), "living-ac")
	if !errors.Is(err, controller.ErrStatusUnavailable) {
		t.Fatalf("Refresh() = %v, want ErrStatusUnavailable", err)
	}
	states := f.mqtt.on("climateip/state/living-ac")
	if len(states) != 1 {
		t.Fatalf("state publishes = %d, want 1", len(states))
	}
	var msg StateMessage
	_ = json.Unmarshal(states[0].payload, &msg)
	if msg.Available {
		t.Error("state published as available")
	}
	if len(f.telemetry.avail) != 1 || f.telemetry.avail[0] {
		t.Errorf("availability writes = %v, want [false]", f.telemetry.avail)
	}

	h := f.bridge.Health()
	if h.Status != HealthDegraded || h.Devices[0].LastError == "" {
		t.Errorf("health = %+v, want degraded with last error", h)
	}
}

func TestHandleCommand(t *testing.T) {
	tests := []struct {
		name     string
		topic    string
		payload  string
		setErr   error
		wantCode string
		wantSet  string
	}{
		{
			name:    "accepted",
			topic:   "climateip/command/living-ac",
			payload: `{"id":"c1","property":"target_temp","value":22.5}`,
			wantSet: "target_temp=22.5",
		},
		{
			name:     "bad json",
			topic:    "climateip/command/living-ac",
			payload:  `{"property":`,
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "missing property",
			topic:    "climateip/command/living-ac",
			payload:  `{"value":1}`,
			wantCode: ErrCodeInvalidCommand,
		},
		{
			name:     "unknown device",
			topic:    "climateip/command/garage",
			payload:  `{"property":"power","value":"on"}`,
			wantCode: ErrCodeNotConfigured,
		},
		{
			name:     "invalid value",
			topic:    "climateip/command/living-ac",
			payload:  `{"property":"mode","value":"turbo"}`,
			setErr:   fmt.Errorf("%w: mode=turbo", property.ErrInvalidValue),
			wantCode: ErrCodeInvalidValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.dev.set(func(d *fakeDevice) { d.setErr = tt.setErr })

			err := f.bridge.HandleCommand(tt.topic, []byte(tt.payload))
			if (err != nil) != (tt.wantCode != "") {
				t.Fatalf("HandleCommand() error = %v", err)
			}

			deviceID, _ := mqtt.Topics{}.DeviceFromTopic(tt.topic)
			acks := f.mqtt.on(mqtt.Topics{}.Ack(deviceID))
			if len(acks) != 1 {
				t.Fatalf("acks = %d, want 1", len(acks))
			}
			var ack AckMessage
			if err := json.Unmarshal(acks[0].payload, &ack); err != nil {
				t.Fatalf("unmarshal ack: %v", err)
			}
			if ack.CommandID == "" {
				t.Error("ack without command id")
			}

			if tt.wantCode == "" {
				if ack.Status != AckAccepted || ack.Error != nil {
					t.Errorf("ack = %+v, want accepted", ack)
				}
				if len(f.dev.sets) != 1 || f.dev.sets[0] != tt.wantSet {
					t.Errorf("sets = %v, want [%s]", f.dev.sets, tt.wantSet)
				}
				if got := f.history.sources(); len(got) != 1 || got[0] != history.SourceCommand {
					t.Errorf("history = %v, want one command entry", got)
				}
				return
			}
			if ack.Status != AckFailed || ack.Error == nil || ack.Error.Code != tt.wantCode {
				t.Errorf("ack = %+v, want failed %s", ack, tt.wantCode)
			}
		})
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("%w: x", ErrUnknownDevice), ErrCodeNotConfigured},
		{fmt.Errorf("%w: swing", controller.ErrUnknownProperty), ErrCodeUnknownProperty},
		{fmt.Errorf("%w: current_temp", controller.ErrNotWritable), ErrCodeNotWritable},
		{property.ErrReadOnly, ErrCodeNotWritable},
		{property.ErrInvalidValue, ErrCodeInvalidValue},
		{controller.ErrNotInitialized, ErrCodeDeviceUnavailable},
		{errors.New("socket closed"), ErrCodeDeviceError},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Errorf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	updated := make(chan struct{}, 1)
	f.dev.set(func(d *fakeDevice) { d.updated = updated })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.bridge.Run(ctx) }()

	select {
	case <-updated:
	case <-time.After(5 * time.Second):
		t.Fatal("device was not polled")
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	f.mqtt.mu.Lock()
	_, subscribed := f.mqtt.subscribed["climateip/command/+"]
	f.mqtt.mu.Unlock()
	if !subscribed {
		t.Error("commands not subscribed")
	}

	f.dev.mu.Lock()
	closed := f.dev.closed
	f.dev.mu.Unlock()
	if !closed {
		t.Error("device not closed on shutdown")
	}

	health := f.mqtt.on("climateip/health")
	if len(health) == 0 {
		t.Fatal("no health published")
	}
	var last HealthMessage
	if err := json.Unmarshal(health[len(health)-1].payload, &last); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	if last.Status != HealthStopping || last.BridgeID != "test-bridge" {
		t.Errorf("final health = %+v, want stopping", last)
	}
}

func TestHealth_MQTTDisconnected(t *testing.T) {
	f := newFixture(t)
	_ = f.bridge.Refresh(context.Background(), "living-ac")

	if h := f.bridge.Health(); h.Status != HealthHealthy || !h.MQTTConnected {
		t.Errorf("health = %+v, want healthy", h)
	}

	f.mqtt.mu.Lock()
	f.mqtt.connected = false
	f.mqtt.mu.Unlock()

	h := f.bridge.Health()
	if h.Status != HealthDegraded || h.Reason != "MQTT disconnected" {
		t.Errorf("health = %+v, want degraded by MQTT", h)
	}
	if len(h.Devices) != 1 || !h.Devices[0].Initialized || h.Devices[0].LastPoll == nil {
		t.Errorf("devices = %+v", h.Devices)
	}
}

func TestUnknownDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.bridge.Device("nope"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Device() = %v, want ErrUnknownDevice", err)
	}
	if err := f.bridge.Refresh(ctx, "nope"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("Refresh() = %v, want ErrUnknownDevice", err)
	}
	if _, err := f.bridge.History(ctx, "nope", 1); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("History() = %v, want ErrUnknownDevice", err)
	}
	if err := f.bridge.SetProperty(ctx, "nope", "power", "on", "api"); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("SetProperty() = %v, want ErrUnknownDevice", err)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.observePoll("x", nil, time.Second)
	m.initFailed("x")
	m.command("x", "api", nil)
	m.setAvailable("x", true)
	m.publish("state", nil)
}
