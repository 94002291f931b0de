package event

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Payload is a decoded JSON object with typed, dotted-path accessors. The
// controller is loose about types (numbers sometimes arrive as strings), so
// the accessors coerce where it is unambiguous.
type Payload map[string]any

func (p Payload) lookup(path string) (any, bool) {
	var cur any = map[string]any(p)
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		v, ok := m[part]
		if !ok || v == nil {
			return nil, false
		}
		cur = v
	}
	return cur, true
}

// Has reports whether path resolves to a non-null value.
func (p Payload) Has(path string) bool {
	_, ok := p.lookup(path)
	return ok
}

// String returns the first path that resolves to a non-empty string.
func (p Payload) String(paths ...string) (string, bool) {
	for _, path := range paths {
		v, ok := p.lookup(path)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t, true
			}
		case float64:
			return strconv.FormatFloat(t, 'f', -1, 64), true
		case json.Number:
			return t.String(), true
		}
	}
	return "", false
}

// Float returns the first path that resolves to a number.
func (p Payload) Float(paths ...string) (float64, bool) {
	for _, path := range paths {
		v, ok := p.lookup(path)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, true
		case int:
			return float64(t), true
		case json.Number:
			if f, err := t.Float64(); err == nil {
				return f, true
			}
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// Int returns the first path that resolves to a number, truncated.
func (p Payload) Int(paths ...string) (int, bool) {
	f, ok := p.Float(paths...)
	return int(f), ok
}

// Bool returns the first path that resolves to a boolean.
func (p Payload) Bool(paths ...string) (bool, bool) {
	for _, path := range paths {
		v, ok := p.lookup(path)
		if !ok {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t, true
		case string:
			if b, err := strconv.ParseBool(t); err == nil {
				return b, true
			}
		}
	}
	return false, false
}

// Object returns the nested object at path, or nil.
func (p Payload) Object(path string) Payload {
	v, ok := p.lookup(path)
	if !ok {
		return nil
	}
	m, _ := asMap(v)
	return m
}

func asMap(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Payload:
		return t, true
	}
	return nil, false
}
