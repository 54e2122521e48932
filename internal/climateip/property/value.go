package property

import (
	"context"

	"github.com/nerrad567/climate-ip/internal/climateip/connection"
	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
)

// TypeValue is the descriptor type of free-form string properties.
const TypeValue = "value"

// ValueProperty exposes the rendered status as a string. It is writable
// when the node has a connection_template.
type ValueProperty struct {
	*base
}

// NewValueFromNode is the Factory for the value type.
func NewValueFromNode(id string, node *descriptor.Node, conn connection.Connection, opts Options) (Property, error) {
	b, err := newBase(TypeValue, id, node, conn, opts)
	if err != nil {
		return nil, err
	}
	return &ValueProperty{base: b}, nil
}

// UpdateState implements Property.
func (p *ValueProperty) UpdateState(_ context.Context, deviceState any, _ bool) error {
	return p.refresh(deviceState, func(s string) (any, error) { return s, nil })
}

// SetValue implements Operation.
func (p *ValueProperty) SetValue(ctx context.Context, v any) error {
	if err := p.send(ctx, nil, nil, v); err != nil {
		return err
	}
	p.value = formatValue(v)
	return nil
}

// MatchValue implements Operation.
func (p *ValueProperty) MatchValue(v any) bool { return v != nil }

// ConvertHassToDev implements Operation.
func (p *ValueProperty) ConvertHassToDev(v any) (any, error) { return formatValue(v), nil }

// ConvertDevToHass implements Operation.
func (p *ValueProperty) ConvertDevToHass(v any) (any, error) { return formatValue(v), nil }
