package controller

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nerrad567/climate-ip/internal/climateip/connection"
	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
	"github.com/nerrad567/climate-ip/internal/climateip/property"
	"github.com/nerrad567/climate-ip/internal/climateip/render"
)

// MaxGetStatusRetries is how many consecutive failed status fetches reuse the
// last known device state before the state is reported as nil.
const MaxGetStatusRetries = 4

// Descriptor keys of the device node.
const (
	KeyDevice             = "device"
	KeyName               = "name"
	KeyPoll               = "poll"
	KeyValidateProperties = "validate_properties"
	KeyConnection         = "connection"
	KeyStatus             = "status"
	KeyOperations         = "operations"
	KeyAttributes         = "attributes"
)

// AttrName is the attribute holding the device name.
const AttrName = "name"

// Config identifies one device and its descriptor.
type Config struct {
	ID         string
	Name       string
	Descriptor string
	Host       string
	Token      string
	MAC        string

	// Poll overrides the descriptor's poll flag when set.
	Poll *bool

	// Debug exposes the raw device state as an attribute.
	Debug bool

	// TemperatureUnit is the display unit: "celsius" or "fahrenheit".
	TemperatureUnit string
}

// Logger defines the logging interface used by the controller.
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

// Options carry the registries and shared dependencies.
type Options struct {
	Connections *connection.Registry
	Properties  *property.Registry
	Engine      *render.Engine
	Logger      Logger

	// Connection is passed through to connection factories. Its Engine,
	// Logger and BaseDir are filled in by Initialize when empty.
	Connection connection.Options
}

func (o Options) withDefaults() Options {
	if o.Connections == nil {
		o.Connections = connection.DefaultRegistry()
	}
	if o.Properties == nil {
		o.Properties = property.DefaultRegistry()
	}
	if o.Engine == nil {
		o.Engine = render.NewEngine()
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// YamlController is a device defined by a YAML descriptor.
//
// Thread Safety: all methods are safe for concurrent use.
type YamlController struct {
	mu   sync.Mutex
	cfg  Config
	opts Options

	initialized bool
	name        string
	poll        bool

	conn       connection.Connection
	status     property.StatusGetter
	operations []property.Operation
	properties []property.Property
	byName     map[string]property.Property

	deviceState any
	retries     int
	attributes  map[string]any
	updatedAt   time.Time
}

// New creates an uninitialized controller.
func New(cfg Config, opts Options) *YamlController {
	if cfg.TemperatureUnit == "" {
		cfg.TemperatureUnit = property.UnitCelsius
	}
	return &YamlController{
		cfg:        cfg,
		opts:       opts.withDefaults(),
		name:       cfg.Name,
		byName:     make(map[string]property.Property),
		attributes: make(map[string]any),
	}
}

// Initialize loads the descriptor and builds the connection, the status
// getter, the operations and the attributes.
//
// Operations and attributes that fail to load are logged and left out.
// Anything else that fails leaves the controller unusable and is returned.
func (c *YamlController) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return nil
	}
	log := c.opts.Logger

	root, err := descriptor.LoadFile(c.cfg.Descriptor, descriptor.Substitutions{
		Host:  c.cfg.Host,
		Token: c.cfg.Token,
	})
	if err != nil {
		log.Error("loading descriptor failed", "device", c.cfg.ID, "error", err)
		return err
	}

	dev := root.Get(KeyDevice)
	if dev == nil {
		dev = root.Get("Device")
	}
	if !dev.IsMap() {
		log.Error("descriptor has no device node", "device", c.cfg.ID, "path", c.cfg.Descriptor)
		return fmt.Errorf("%w: %s: missing %s node", ErrDescriptor, c.cfg.Descriptor, KeyDevice)
	}

	if c.name == "" {
		c.name = dev.StringOr(KeyName, c.cfg.ID)
	}
	c.poll = dev.Bool(KeyPoll, true)
	if c.cfg.Poll != nil {
		c.poll = *c.cfg.Poll
	}

	connOpts := c.opts.Connection
	if connOpts.Engine == nil {
		connOpts.Engine = c.opts.Engine
	}
	if connOpts.Logger == nil {
		connOpts.Logger = c.opts.Logger
	}
	if connOpts.BaseDir == "" {
		connOpts.BaseDir = filepath.Dir(c.cfg.Descriptor)
	}

	connNode := dev.Get(KeyConnection)
	if connNode == nil {
		log.Error("descriptor has no connection node", "device", c.cfg.ID, "path", c.cfg.Descriptor)
		return fmt.Errorf("%w: %s: missing %s node", ErrDescriptor, c.cfg.Descriptor, KeyConnection)
	}
	conn, err := c.opts.Connections.Create(connNode, connOpts)
	if err != nil {
		log.Error("creating connection failed", "device", c.cfg.ID, "error", err)
		return err
	}

	propOpts := property.Options{
		Engine:          c.opts.Engine,
		Logger:          c.opts.Logger,
		TemperatureUnit: c.cfg.TemperatureUnit,
	}

	statusNode := dev.Get(KeyStatus)
	if statusNode == nil {
		_ = conn.Close() //nolint:errcheck // initialization already failed
		log.Error("descriptor has no status node", "device", c.cfg.ID, "path", c.cfg.Descriptor)
		return fmt.Errorf("%w: %s: missing %s node", ErrDescriptor, c.cfg.Descriptor, KeyStatus)
	}
	status, err := c.opts.Properties.CreateStatusGetter(KeyStatus, statusNode, conn, propOpts)
	if err != nil {
		_ = conn.Close() //nolint:errcheck // initialization already failed
		log.Error("creating status getter failed", "device", c.cfg.ID, "error", err)
		return err
	}

	var (
		operations []property.Operation
		properties []property.Property
	)
	for _, e := range dev.Get(KeyOperations).Entries() {
		p, err := c.opts.Properties.CreateProperty(e.Key, e.Value, conn, propOpts)
		if err != nil {
			log.Error("skipping operation", "device", c.cfg.ID, "operation", e.Key, "error", err)
			continue
		}
		op, ok := p.(property.Operation)
		if !ok {
			log.Error("skipping operation: type is read only", "device", c.cfg.ID, "operation", e.Key, "type", p.Type())
			continue
		}
		operations = append(operations, op)
	}
	for _, e := range dev.Get(KeyAttributes).Entries() {
		p, err := c.opts.Properties.CreateProperty(e.Key, e.Value, conn, propOpts)
		if err != nil {
			log.Error("skipping attribute", "device", c.cfg.ID, "attribute", e.Key, "error", err)
			continue
		}
		properties = append(properties, p)
	}

	if dev.Bool(KeyValidateProperties, false) {
		if err := status.UpdateState(ctx, nil, c.cfg.Debug); err != nil {
			log.Warn("cannot validate properties without device state", "device", c.cfg.ID, "error", err)
		} else {
			state := status.Status()
			c.deviceState = state
			operations = filterValid(operations, state, log, c.cfg.ID)
			properties = filterValid(properties, state, log, c.cfg.ID)
		}
	}

	c.conn = conn
	c.status = status
	c.operations = operations
	c.properties = properties
	for _, op := range operations {
		c.byName[op.ID()] = op
	}
	for _, p := range properties {
		if _, dup := c.byName[p.ID()]; !dup {
			c.byName[p.ID()] = p
		}
	}
	c.attributes = map[string]any{AttrName: c.name}
	c.initialized = true

	log.Info("device initialized",
		"device", c.cfg.ID,
		"name", c.name,
		"connection", conn.Type(),
		"operations", len(operations),
		"attributes", len(properties),
	)
	return nil
}

func filterValid[P property.Property](in []P, state any, log Logger, device string) []P {
	out := in[:0]
	for _, p := range in {
		if p.IsValid(state) {
			out = append(out, p)
			continue
		}
		log.Info("property not supported by device, removed", "device", device, "property", p.ID())
	}
	return out
}

// UpdateState fetches the device state and cascades it to every operation
// and attribute.
//
// A failed fetch reuses the last known state for up to MaxGetStatusRetries
// consecutive failures; after that the state is nil and properties keep
// their last values. The fetch error is returned either way, wrapped in
// ErrStatusUnavailable once the retries are spent.
func (c *YamlController) UpdateState(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}

	fetchErr := c.status.UpdateState(ctx, c.deviceState, c.cfg.Debug)
	switch {
	case fetchErr == nil:
		c.retries = 0
		c.deviceState = c.status.Status()
	case c.retries < MaxGetStatusRetries:
		c.retries++
		c.opts.Logger.Warn("status fetch failed, reusing last state",
			"device", c.cfg.ID, "attempt", c.retries, "error", fetchErr)
	default:
		c.deviceState = nil
		fetchErr = fmt.Errorf("%w: %w", ErrStatusUnavailable, fetchErr)
		c.opts.Logger.Error("status fetch failed", "device", c.cfg.ID, "error", fetchErr)
	}

	attrs := map[string]any{AttrName: c.name}
	maps.Copy(attrs, c.status.StateAttributes())
	for _, op := range c.operations {
		if err := op.UpdateState(ctx, c.deviceState, c.cfg.Debug); err != nil {
			c.opts.Logger.Debug("operation kept previous value", "device", c.cfg.ID, "operation", op.ID(), "error", err)
		}
		maps.Copy(attrs, op.StateAttributes())
	}
	for _, p := range c.properties {
		if err := p.UpdateState(ctx, c.deviceState, c.cfg.Debug); err != nil {
			c.opts.Logger.Debug("attribute kept previous value", "device", c.cfg.ID, "attribute", p.ID(), "error", err)
		}
		maps.Copy(attrs, p.StateAttributes())
	}
	attrs[AttrName] = c.name

	c.attributes = attrs
	c.updatedAt = time.Now()
	return fetchErr
}

// SetProperty writes v to the named operation.
func (c *YamlController) SetProperty(ctx context.Context, name string, v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return ErrNotInitialized
	}
	p, ok := c.byName[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	op, ok := p.(property.Operation)
	if !ok || !c.isOperation(name) {
		return fmt.Errorf("%w: %s", ErrNotWritable, name)
	}
	if !op.MatchValue(v) {
		return fmt.Errorf("%w: %s=%v", property.ErrInvalidValue, name, v)
	}

	if err := op.SetValue(ctx, v); err != nil {
		c.opts.Logger.Warn("set property failed", "device", c.cfg.ID, "property", name, "value", v, "error", err)
		return err
	}
	maps.Copy(c.attributes, op.StateAttributes())
	c.opts.Logger.Info("property set", "device", c.cfg.ID, "property", name, "value", v)
	return nil
}

func (c *YamlController) isOperation(name string) bool {
	for _, op := range c.operations {
		if op.ID() == name {
			return true
		}
	}
	return false
}

// GetProperty returns the current value of an operation or attribute.
func (c *YamlController) GetProperty(name string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	return p.Value(), nil
}

// Operations returns operation names in descriptor order.
func (c *YamlController) Operations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.operations))
	for _, op := range c.operations {
		names = append(names, op.ID())
	}
	return names
}

// Properties returns attribute names in descriptor order.
func (c *YamlController) Properties() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.properties))
	for _, p := range c.properties {
		names = append(names, p.ID())
	}
	return names
}

// Attributes returns a copy of the flat attribute map built by the last
// UpdateState.
func (c *YamlController) Attributes() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.attributes)
}

// PropertyValues returns the accepted values of an enumerated operation.
func (c *YamlController) PropertyValues(name string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProperty, name)
	}
	if e, ok := p.(property.Enumerated); ok {
		return e.Values(), nil
	}
	return nil, nil
}

// ValueRange returns the limits of a numeric operation in display units.
func (c *YamlController) ValueRange(name string) (lo, hi float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, isRanged := c.byName[name].(property.Ranged); isRanged {
		return r.Range()
	}
	return 0, 0, false
}

// DeviceState returns the state blob used by the last UpdateState.
func (c *YamlController) DeviceState() any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceState
}

// Name returns the display name.
func (c *YamlController) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.name == "" {
		return c.cfg.ID
	}
	return c.name
}

// ID returns the configured device ID.
func (c *YamlController) ID() string { return c.cfg.ID }

// UniqueID returns a stable identifier: the MAC address when configured,
// otherwise the device ID.
func (c *YamlController) UniqueID() string {
	if c.cfg.MAC != "" {
		return strings.ToLower(strings.ReplaceAll(c.cfg.MAC, "-", ":"))
	}
	return c.cfg.ID
}

// Poll reports whether the device should be polled.
func (c *YamlController) Poll() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.poll
}

// TemperatureUnit returns the display temperature unit.
func (c *YamlController) TemperatureUnit() string { return c.cfg.TemperatureUnit }

// Available reports whether the last UpdateState had a device state.
func (c *YamlController) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initialized && c.deviceState != nil
}

// Close releases the connection. The controller cannot be used afterwards.
func (c *YamlController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return nil
	}
	c.initialized = false
	if err := c.conn.Close(); err != nil && !errors.Is(err, connection.ErrClosed) {
		return fmt.Errorf("closing %s connection: %w", c.cfg.ID, err)
	}
	return nil
}
