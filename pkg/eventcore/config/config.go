package config

import (
	"fmt"
	"strings"
)

// Config is a read-only view over decoded YAML or JSON.
// Keys may be dotted paths ("journal.driver") that descend into nested
// sections. Accessors return the caller's default when the path is missing
// or holds a value of another type.
type Config struct {
	data map[string]any
}

// New creates a Config from the given map.
// If data is nil, an empty Config is returned.
func New(data map[string]any) Config {
	if data == nil {
		data = make(map[string]any)
	}
	return Config{data: data}
}

// lookup resolves a dotted path. A literal key containing dots wins over
// descent.
func (c Config) lookup(path string) (any, bool) {
	if v, ok := c.data[path]; ok {
		return v, true
	}
	head, rest, found := strings.Cut(path, ".")
	if !found {
		return nil, false
	}
	section, ok := asSection(c.data[head])
	if !ok {
		return nil, false
	}
	return New(section).lookup(rest)
}

// asSection normalizes the map types decoders produce for nested objects.
func asSection(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// Sub returns the section at path. A missing or non-map value yields an
// empty Config.
func (c Config) Sub(path string) Config {
	v, _ := c.lookup(path)
	section, _ := asSection(v)
	return New(section)
}

// String returns the string at path, or defaultVal.
func (c Config) String(path, defaultVal string) string {
	if v, ok := c.lookup(path); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// Bool returns the boolean at path, or defaultVal.
// Strings such as "true" are not converted.
func (c Config) Bool(path string, defaultVal bool) bool {
	if v, ok := c.lookup(path); ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

// Int returns the integer at path, or defaultVal.
// JSON numbers (float64) are accepted only when they have no fractional part.
func (c Config) Int(path string, defaultVal int) int {
	v, _ := c.lookup(path)
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	}
	return defaultVal
}

// Has reports whether path resolves to a value.
func (c Config) Has(path string) bool {
	_, ok := c.lookup(path)
	return ok
}

// Raw returns the top-level map. It must not be modified.
func (c Config) Raw() map[string]any {
	return c.data
}
