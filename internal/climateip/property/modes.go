package property

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/climate-ip/internal/climateip/connection"
	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
	"github.com/nerrad567/climate-ip/internal/climateip/render"
)

// Mode-like descriptor types.
const (
	TypeModes  = "modes"
	TypeSwitch = "switch"
)

// Switch states.
const (
	SwitchOn  = "on"
	SwitchOff = "off"
)

// modeValue is one entry of a values map. Entries may override the
// operation's connection template and parameters.
type modeValue struct {
	ha   string
	dev  string
	tpl  *render.Template
	conn connection.Connection
}

// ModesOperation maps an ordered set of user values to device values.
//
// The values map is kept in descriptor order. When two user values share a
// device value, the first one wins when mapping device to user.
type ModesOperation struct {
	*base
	order    []string
	haToDev  map[string]*modeValue
	devToHa  map[string]string
	isSwitch bool
}

// NewModesFromNode is the Factory for the modes type.
func NewModesFromNode(id string, node *descriptor.Node, conn connection.Connection, opts Options) (Property, error) {
	return newModes(TypeModes, id, node, conn, opts)
}

// NewSwitchFromNode is the Factory for the switch type. The values map must
// define "on" and "off".
func NewSwitchFromNode(id string, node *descriptor.Node, conn connection.Connection, opts Options) (Property, error) {
	m, err := newModes(TypeSwitch, id, node, conn, opts)
	if err != nil {
		return nil, err
	}
	for _, k := range []string{SwitchOn, SwitchOff} {
		if _, ok := m.haToDev[k]; !ok {
			return nil, fmt.Errorf("%s: missing %q", KeyValues, k)
		}
	}
	m.isSwitch = true
	return m, nil
}

func newModes(typ, id string, node *descriptor.Node, conn connection.Connection, opts Options) (*ModesOperation, error) {
	b, err := newBase(typ, id, node, conn, opts)
	if err != nil {
		return nil, err
	}

	values := node.Get(KeyValues)
	if !values.IsMap() {
		return nil, fmt.Errorf("%s mapping is required", KeyValues)
	}

	m := &ModesOperation{
		base:    b,
		haToDev: make(map[string]*modeValue),
		devToHa: make(map[string]string),
	}

	for _, e := range values.Entries() {
		key := e.Key
		if typ == TypeSwitch {
			key = normaliseSwitch(key)
		}

		mv := &modeValue{ha: key}
		if e.Value.IsScalar() {
			mv.dev = e.Value.Scalar()
		} else {
			mv.dev = e.Value.String(KeyValue)
			if mv.tpl, err = compileOptional(opts.Engine, e.Value, KeyConnectionTemplate); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", KeyValues, e.Key, err)
			}
			if mv.conn, err = bindConnection(b.conn, e.Value); err != nil {
				return nil, fmt.Errorf("%s.%s: %w", KeyValues, e.Key, err)
			}
			if mv.conn == b.conn {
				mv.conn = nil
			}
		}

		if _, dup := m.haToDev[key]; dup {
			continue
		}
		m.order = append(m.order, key)
		m.haToDev[key] = mv
		if _, taken := m.devToHa[mv.dev]; !taken {
			m.devToHa[mv.dev] = key
		}
	}

	if len(m.order) == 0 {
		return nil, fmt.Errorf("%s must not be empty", KeyValues)
	}
	return m, nil
}

// normaliseSwitch folds the boolean spellings onto on/off.
func normaliseSwitch(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1", "yes":
		return SwitchOn
	case "off", "false", "0", "no":
		return SwitchOff
	default:
		return s
	}
}

// haKey resolves v to a key of the values map.
func (m *ModesOperation) haKey(v any) (string, bool) {
	var key string
	switch t := v.(type) {
	case bool:
		if !m.isSwitch {
			return "", false
		}
		key = SwitchOff
		if t {
			key = SwitchOn
		}
	default:
		key = formatValue(v)
		if m.isSwitch {
			key = normaliseSwitch(key)
		}
	}
	_, ok := m.haToDev[key]
	return key, ok
}

// Values implements Enumerated, in descriptor order.
func (m *ModesOperation) Values() []string {
	return append([]string(nil), m.order...)
}

// UpdateState implements Property. Device values missing from the map keep
// the previous value.
func (m *ModesOperation) UpdateState(_ context.Context, deviceState any, _ bool) error {
	return m.refresh(deviceState, func(s string) (any, error) { return m.ConvertDevToHass(s) })
}

// MatchValue implements Operation.
func (m *ModesOperation) MatchValue(v any) bool {
	_, ok := m.haKey(v)
	return ok
}

// ConvertHassToDev implements Operation.
func (m *ModesOperation) ConvertHassToDev(v any) (any, error) {
	key, ok := m.haKey(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s does not accept %v", ErrInvalidValue, m.id, v)
	}
	return m.haToDev[key].dev, nil
}

// ConvertDevToHass implements Operation.
func (m *ModesOperation) ConvertDevToHass(v any) (any, error) {
	ha, ok := m.devToHa[formatValue(v)]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no mapping for device value %v", ErrInvalidValue, m.id, v)
	}
	return ha, nil
}

// SetValue implements Operation.
func (m *ModesOperation) SetValue(ctx context.Context, v any) error {
	key, ok := m.haKey(v)
	if !ok {
		return fmt.Errorf("%w: %s does not accept %v", ErrInvalidValue, m.id, v)
	}
	mv := m.haToDev[key]
	if err := m.send(ctx, mv.conn, mv.tpl, mv.dev); err != nil {
		return err
	}
	m.value = key
	return nil
}
