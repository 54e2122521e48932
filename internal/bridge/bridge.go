package bridge

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/climate-ip/internal/climateip/controller"
	"github.com/nerrad567/climate-ip/internal/history"
	"github.com/nerrad567/climate-ip/internal/infrastructure/mqtt"
)

const (
	defaultPollInterval   = 30 * time.Second
	defaultHealthInterval = 30 * time.Second
	pruneInterval         = time.Hour

	// commandTimeout bounds a single SetProperty from MQTT.
	commandTimeout = 15 * time.Second
)

// Device is the part of *controller.YamlController the bridge drives.
type Device interface {
	ID() string
	Initialize(ctx context.Context) error
	UpdateState(ctx context.Context) error
	SetProperty(ctx context.Context, name string, v any) error
	Poll() bool
	Snapshot() controller.Snapshot
	Close() error
}

// Publisher is the MQTT client as seen by the bridge. *mqtt.Client
// satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	IsConnected() bool
}

// TelemetryWriter receives every polled snapshot. *influxdb.Client
// satisfies it.
type TelemetryWriter interface {
	WriteSnapshot(deviceID string, attrs map[string]any, ts time.Time)
	WriteAvailability(deviceID string, available bool, ts time.Time)
}

// Logger is the structured logger used by the bridge.
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

// Event is delivered to listeners when a device snapshot changes.
type Event struct {
	Snapshot controller.Snapshot
	Source   string
}

// Listener is called synchronously from the poll or command path; it
// must not block.
type Listener func(Event)

// DeviceEntry pairs a device with its poll interval.
type DeviceEntry struct {
	Device       Device
	PollInterval time.Duration
}

// Options configures a Bridge.
type Options struct {
	// BridgeID and Version appear in health reports.
	BridgeID string
	Version  string

	Devices []DeviceEntry

	// MQTT, History, Telemetry and Metrics are optional.
	MQTT      Publisher
	QoS       byte
	History   history.Store
	Telemetry TelemetryWriter
	Metrics   *Metrics

	HealthInterval   time.Duration
	HistoryRetention time.Duration

	Logger Logger
}

// Bridge polls devices and routes their state and commands.
type Bridge struct {
	id        string
	version   string
	startTime time.Time

	devices map[string]*deviceEntry
	order   []string

	mqtt      Publisher
	qos       byte
	history   history.Store
	telemetry TelemetryWriter
	metrics   *Metrics

	healthInterval time.Duration
	retention      time.Duration

	logger Logger

	listenersMu  sync.RWMutex
	listeners    map[int]Listener
	nextListener int

	// runCtx is the Run context, used by MQTT command handlers.
	runCtx atomic.Pointer[context.Context]
}

type deviceEntry struct {
	dev      Device
	interval time.Duration
	ready    atomic.Bool

	mu            sync.Mutex
	lastPublished []byte
	lastPoll      time.Time
	lastErr       error
}

// New validates opts and builds a bridge. Call Run to start it.
func New(opts Options) (*Bridge, error) {
	if len(opts.Devices) == 0 {
		return nil, ErrNoDevices
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = defaultHealthInterval
	}

	b := &Bridge{
		id:             opts.BridgeID,
		version:        opts.Version,
		startTime:      time.Now(),
		devices:        make(map[string]*deviceEntry, len(opts.Devices)),
		mqtt:           opts.MQTT,
		qos:            opts.QoS,
		history:        opts.History,
		telemetry:      opts.Telemetry,
		metrics:        opts.Metrics,
		healthInterval: opts.HealthInterval,
		retention:      opts.HistoryRetention,
		logger:         opts.Logger,
		listeners:      make(map[int]Listener),
	}

	for _, d := range opts.Devices {
		if d.Device == nil {
			return nil, fmt.Errorf("bridge: nil device")
		}
		id := d.Device.ID()
		if _, dup := b.devices[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDevice, id)
		}
		interval := d.PollInterval
		if interval <= 0 {
			interval = defaultPollInterval
		}
		b.devices[id] = &deviceEntry{dev: d.Device, interval: interval}
		b.order = append(b.order, id)
	}
	slices.Sort(b.order)

	return b, nil
}

// Run starts the poll loops, the command subscription, the health
// reporter and history pruning, and blocks until ctx is cancelled. On
// return every device has been closed.
func (b *Bridge) Run(ctx context.Context) error {
	b.runCtx.Store(&ctx)
	defer b.closeDevices()

	if b.mqtt != nil {
		topic := mqtt.Topics{}.AllCommands()
		if err := b.mqtt.Subscribe(topic, b.qos, b.HandleCommand); err != nil {
			return fmt.Errorf("subscribe to commands: %w", err)
		}
		b.logger.Info("subscribed to commands", "topic", topic)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range b.order {
		e := b.devices[id]
		g.Go(func() error {
			b.pollLoop(gctx, e)
			return nil
		})
	}
	if b.mqtt != nil {
		g.Go(func() error {
			b.healthLoop(gctx)
			return nil
		})
	}
	if b.history != nil && b.retention > 0 {
		g.Go(func() error {
			b.pruneLoop(gctx)
			return nil
		})
	}

	b.logger.Info("bridge started", "bridge_id", b.id, "devices", len(b.order))
	err := g.Wait()

	if b.mqtt != nil {
		b.publishHealth(HealthStopping, "bridge stopping")
	}
	b.logger.Info("bridge stopped", "bridge_id", b.id)
	return err
}

func (b *Bridge) closeDevices() {
	for _, id := range b.order {
		if err := b.devices[id].dev.Close(); err != nil {
			b.logger.Warn("closing device failed", "device", id, "error", err)
		}
	}
}

// baseContext returns the Run context, or Background before Run.
func (b *Bridge) baseContext() context.Context {
	if p := b.runCtx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

// DeviceIDs returns the configured device IDs, sorted.
func (b *Bridge) DeviceIDs() []string {
	return slices.Clone(b.order)
}

// Devices returns the current snapshot of every device, sorted by ID.
func (b *Bridge) Devices() []controller.Snapshot {
	out := make([]controller.Snapshot, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.devices[id].dev.Snapshot())
	}
	return out
}

// Device returns the current snapshot of one device.
func (b *Bridge) Device(id string) (controller.Snapshot, error) {
	e, ok := b.devices[id]
	if !ok {
		return controller.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownDevice, id)
	}
	return e.dev.Snapshot(), nil
}

// SetProperty writes a value to a device operation and publishes the
// resulting snapshot.
//
// Parameters:
//   - ctx: Context for the device round trip
//   - deviceID: Device to command
//   - name: Operation name, e.g. "target_temp"
//   - value: New value in display units
//   - source: Origin for logs and metrics ("mqtt", "api", "cli")
//
// Returns:
//   - error: ErrUnknownDevice, or the controller's error (see ErrorCode)
func (b *Bridge) SetProperty(ctx context.Context, deviceID, name string, value any, source string) error {
	e, ok := b.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}

	err := e.dev.SetProperty(ctx, name, value)
	b.metrics.command(deviceID, source, err)
	if err != nil {
		return err
	}

	b.logger.Info("command applied", "device", deviceID, "property", name, "value", value, "source", source)
	b.publishSnapshot(ctx, e, e.dev.Snapshot(), history.SourceCommand)
	return nil
}

// Refresh polls one device now, outside its schedule.
func (b *Bridge) Refresh(ctx context.Context, deviceID string) error {
	e, ok := b.devices[deviceID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return b.refresh(ctx, e)
}

// History returns recorded snapshots of a device, newest first.
func (b *Bridge) History(ctx context.Context, deviceID string, limit int) ([]history.Entry, error) {
	if _, ok := b.devices[deviceID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	if b.history == nil {
		return []history.Entry{}, nil
	}
	return b.history.Get(ctx, deviceID, limit)
}

// Subscribe registers a listener for snapshot changes and returns a
// function that removes it.
func (b *Bridge) Subscribe(l Listener) (unsubscribe func()) {
	b.listenersMu.Lock()
	id := b.nextListener
	b.nextListener++
	b.listeners[id] = l
	b.listenersMu.Unlock()

	return func() {
		b.listenersMu.Lock()
		delete(b.listeners, id)
		b.listenersMu.Unlock()
	}
}

func (b *Bridge) notify(ev Event) {
	b.listenersMu.RLock()
	defer b.listenersMu.RUnlock()
	for _, l := range b.listeners {
		l(ev)
	}
}
