package effect

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Params is the free-form parameter map stored on a scene.
type Params map[string]interface{}

// Float reads a numeric parameter. Missing keys yield def; values of the
// wrong type are reported so the engine can fall back to pass-through.
func (p Params) Float(key string, def float64) (float64, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("param %q: %q is not a number", key, v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("param %q: unsupported type %T", key, raw)
}

func (p Params) Int(key string, def int) (int, error) {
	f, err := p.Float(key, float64(def))
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func (p Params) String(key, def string) (string, error) {
	raw, ok := p[key]
	if !ok || raw == nil {
		return def, nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("param %q: expected string, got %T", key, raw)
	}
	if s == "" {
		return def, nil
	}
	return strings.ToLower(s), nil
}

// oneOf validates an enumerated string parameter.
func (p Params) oneOf(key, def string, allowed ...string) (string, error) {
	s, err := p.String(key, def)
	if err != nil {
		return "", err
	}
	for _, a := range allowed {
		if s == a {
			return s, nil
		}
	}
	return "", fmt.Errorf("param %q: %q must be one of %s", key, s, strings.Join(allowed, ", "))
}
