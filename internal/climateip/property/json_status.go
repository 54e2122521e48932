package property

import (
	"context"
	"fmt"

	"github.com/nerrad567/climate-ip/internal/climateip/connection"
	"github.com/nerrad567/climate-ip/internal/climateip/descriptor"
)

// TypeJSONStatus is the descriptor type of the JSON status getter.
const TypeJSONStatus = "json_status"

// JSONStatus fetches the device state through its connection on every
// UpdateState and caches it. With debug on, the blob is exposed as a state
// attribute.
type JSONStatus struct {
	*base
	status any
	debug  bool
}

// NewJSONStatusFromNode is the StatusGetterFactory for the json_status type.
func NewJSONStatusFromNode(id string, node *descriptor.Node, conn connection.Connection, opts Options) (StatusGetter, error) {
	if conn == nil {
		return nil, fmt.Errorf("%s needs a connection", TypeJSONStatus)
	}
	b, err := newBase(TypeJSONStatus, id, node, conn, opts)
	if err != nil {
		return nil, err
	}
	return &JSONStatus{base: b}, nil
}

// UpdateState implements Property. deviceState is the previous blob and is
// only made available to the request template.
func (j *JSONStatus) UpdateState(ctx context.Context, deviceState any, debug bool) error {
	j.debug = debug
	j.deviceState = deviceState

	status, err := j.conn.Execute(ctx, j.connTpl, nil, deviceState)
	if err != nil {
		return fmt.Errorf("fetching status: %w", err)
	}
	if status == nil {
		return ErrNoStatus
	}
	j.status = status
	j.value = status
	return nil
}

// Status implements StatusGetter.
func (j *JSONStatus) Status() any { return j.status }

// StateAttributes implements Property.
func (j *JSONStatus) StateAttributes() map[string]any {
	if !j.debug || j.status == nil {
		return map[string]any{}
	}
	return map[string]any{j.id: j.status}
}

// IsValid implements Property. A status getter is always used.
func (j *JSONStatus) IsValid(any) bool { return true }
