package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sort"
	"sync"

	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
	"github.com/nerrad567/climate-ip/internal/climateip/render"
)

// Descriptor keys shared by all connection types.
const (
	KeyType              = "type"
	KeyParams            = "params"
	KeyCondition         = "condition_template"
	KeyEmbeddedCommand   = "embedded_command"
	KeyConnectionTpl     = "connection_template"
	KeyRetryDelay        = "retry_delay"
	KeyConnectionParams  = "connection_params"
	defaultRetryDelaySec = 1.0
)

// Connection executes rendered commands against a device.
type Connection interface {
	// Type returns the descriptor type this connection was created from.
	Type() string

	// Execute renders tpl with value and deviceState, sends the result to the
	// device and returns the device's reply. A nil tpl sends the base
	// parameters unchanged.
	Execute(ctx context.Context, tpl *render.Template, value any, deviceState any) (any, error)

	// CreateUpdated returns a copy of the connection whose parameters are
	// overlaid with the mapping in params. Copies share the underlying
	// transport.
	CreateUpdated(params *descriptor.Node) (Connection, error)

	// Params returns a copy of the connection parameters.
	Params() map[string]any

	// Close releases the transport. Copies made by CreateUpdated do not own
	// the transport and closing them is a no-op.
	Close() error
}

// Logger defines the logging interface used by connections.
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

// DialFunc opens a TLS connection to addr.
type DialFunc func(ctx context.Context, addr string, cfg *tls.Config) (net.Conn, error)

// Options carry the dependencies handed to every factory.
type Options struct {
	// Engine compiles condition and embedded command templates. Required.
	Engine *render.Engine

	// Logger receives connection diagnostics. Defaults to a no-op logger.
	Logger Logger

	// BaseDir resolves relative certificate paths (usually the descriptor's directory).
	BaseDir string

	// HTTPClient overrides the client built from verify/cert params.
	HTTPClient *http.Client

	// Dial overrides how samsung_2878 opens its socket.
	Dial DialFunc

	// Registry resolves nested connections. Set by Registry.Create.
	Registry *Registry
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	if o.Engine == nil {
		o.Engine = render.NewEngine()
	}
	return o
}

// resolvePath makes a descriptor-relative path absolute.
func (o Options) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || o.BaseDir == "" {
		return p
	}
	return filepath.Join(o.BaseDir, p)
}

// Factory builds a connection from its descriptor node.
type Factory func(node *descriptor.Node, opts Options) (Connection, error)

// Registry maps descriptor type names to factories.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry returns a registry with every built-in connection type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeRequest, NewRequestFromNode)
	r.Register(TypeRequestPrint, NewRequestPrintFromNode)
	r.Register(TypeSamsung2878, NewSamsung2878FromNode)
	return r
}

// Register binds a type name to a factory, replacing any previous binding.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typ] = f
}

// Lookup returns the factory registered for typ.
func (r *Registry) Lookup(typ string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	return f, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create builds the connection described by node.
//
// Returns:
//   - Connection: the connection, nil on error
//   - error: ErrUnknownType if no factory matches node's type, a wrapped
//     ErrLoad if the factory rejects the node
func (r *Registry) Create(node *descriptor.Node, opts Options) (Connection, error) {
	typ := node.String(KeyType)
	f, ok := r.Lookup(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	opts = opts.withDefaults()
	opts.Registry = r

	conn, err := f(node, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, typ, err)
	}
	return conn, nil
}
