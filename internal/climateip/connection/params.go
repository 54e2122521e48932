package connection

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"
)

// copyParams returns a shallow copy of p, never nil.
func copyParams(p map[string]any) map[string]any {
	out := make(map[string]any, len(p))
	maps.Copy(out, p)
	return out
}

// mergeParams returns base overlaid with over at the top level.
func mergeParams(base, over map[string]any) map[string]any {
	out := copyParams(base)
	maps.Copy(out, over)
	return out
}

// decodeCommand parses a rendered command. Numbers stay json.Number so they
// are written back exactly as rendered.
func decodeCommand(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTemplate, err)
	}
	return v, nil
}

// decodeParams parses a rendered command that must be a JSON object.
func decodeParams(s string) (map[string]any, error) {
	v, err := decodeCommand(s)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: expected object, got %T", ErrTemplate, v)
	}
	return m, nil
}

func paramString(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func paramFloat(p map[string]any, key string, def float64) float64 {
	switch v := p[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func paramBool(p map[string]any, key string, def bool) bool {
	switch v := p[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
