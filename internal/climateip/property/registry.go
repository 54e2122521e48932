package property

import (
	"fmt"
	"sort"
	"sync"

	"github.com/nerrad567/climate-ip/internal/climateip/connection"
	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
)

// Factory builds a property from its descriptor node. conn is the
// controller's shared connection and may be nil.
type Factory func(id string, node *descriptor.Node, conn connection.Connection, opts Options) (Property, error)

// StatusGetterFactory builds a status getter from its descriptor node.
type StatusGetterFactory func(id string, node *descriptor.Node, conn connection.Connection, opts Options) (StatusGetter, error)

// Registry maps descriptor type names to property and status getter factories.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	properties    map[string]Factory
	statusGetters map[string]StatusGetterFactory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		properties:    make(map[string]Factory),
		statusGetters: make(map[string]StatusGetterFactory),
	}
}

// DefaultRegistry returns a registry with every built-in type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.RegisterProperty(TypeValue, NewValueFromNode)
	r.RegisterProperty(TypeModes, NewModesFromNode)
	r.RegisterProperty(TypeSwitch, NewSwitchFromNode)
	r.RegisterProperty(TypeNumber, NewNumberFromNode)
	r.RegisterProperty(TypeTemperature, NewTemperatureFromNode)
	r.RegisterStatusGetter(TypeJSONStatus, NewJSONStatusFromNode)
	return r
}

// RegisterProperty binds a property type to a factory.
func (r *Registry) RegisterProperty(typ string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.properties[typ] = f
}

// RegisterStatusGetter binds a status getter type to a factory.
func (r *Registry) RegisterStatusGetter(typ string, f StatusGetterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusGetters[typ] = f
}

// PropertyTypes returns the registered property types, sorted.
func (r *Registry) PropertyTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.properties)
}

// StatusGetterTypes returns the registered status getter types, sorted.
func (r *Registry) StatusGetterTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.statusGetters)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CreateProperty builds the property described by node.
//
// Returns:
//   - Property: the property, nil on error
//   - error: ErrUnknownType or a wrapped ErrLoad
func (r *Registry) CreateProperty(id string, node *descriptor.Node, conn connection.Connection, opts Options) (Property, error) {
	typ := node.String(KeyType)

	r.mu.RLock()
	f, ok := r.properties[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s: %q", ErrUnknownType, id, typ)
	}

	p, err := f(id, node, conn, opts.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoad, id, err)
	}
	return p, nil
}

// CreateStatusGetter builds the status getter described by node.
func (r *Registry) CreateStatusGetter(id string, node *descriptor.Node, conn connection.Connection, opts Options) (StatusGetter, error) {
	typ := node.String(KeyType)

	r.mu.RLock()
	f, ok := r.statusGetters[typ]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: status %s: %q", ErrUnknownType, id, typ)
	}

	g, err := f(id, node, conn, opts.withDefaults())
	if err != nil {
		return nil, fmt.Errorf("%w: status %s: %w", ErrLoad, id, err)
	}
	return g, nil
}
