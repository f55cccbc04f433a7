package topology

import (
	"sort"
	"strings"
)

// dict wraps a nested key-value mapping loaded from YAML or JSON and
// tracks key consumption, so that leftover unrecognized keys can be
// reported as a hard configuration error.
type dict struct {
	name string
	m    map[string]any
}

func newDict(name string, m map[string]any) *dict {
	copied := make(map[string]any, len(m))
	for k, v := range m {
		copied[k] = v
	}
	return &dict{name: name, m: copied}
}

func (d *dict) pop(key string) (any, bool) {
	v, ok := d.m[key]
	if ok {
		delete(d.m, key)
	}
	return v, ok
}

// rename moves the value under a legacy alias to its canonical key.
// The canonical key wins if both are present.
func (d *dict) rename(from, to string) {
	v, ok := d.pop(from)
	if !ok {
		return
	}
	if _, exists := d.m[to]; !exists {
		d.m[to] = v
	}
}

func (d *dict) popString(key, fallback string) (string, error) {
	v, ok := d.pop(key)
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", configErrorf("%s: key %q must be a string", d.name, key)
	}
	return s, nil
}

func (d *dict) popBool(key string) (bool, error) {
	v, ok := d.pop(key)
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, configErrorf("%s: key %q must be a boolean", d.name, key)
	}
	return b, nil
}

func (d *dict) popInt(key string, fallback int) (int, error) {
	v, ok := d.pop(key)
	if !ok || v == nil {
		return fallback, nil
	}
	n, ok := asInt(v)
	if !ok {
		return 0, configErrorf("%s: key %q must be an integer", d.name, key)
	}
	return n, nil
}

func (d *dict) popList(key string) ([]any, bool, error) {
	v, ok := d.pop(key)
	if !ok || v == nil {
		return nil, ok, nil
	}
	l, ok := v.([]any)
	if !ok {
		return nil, true, configErrorf("%s: key %q must be a list", d.name, key)
	}
	return l, true, nil
}

// checkEmpty ensures that every key of the mapping was consumed.
func (d *dict) checkEmpty() error {
	if len(d.m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(d.m))
	for k := range d.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return configErrorf("extra keys in configuration for %s: %s",
		d.name, strings.Join(keys, ", "))
}

// asStringMap normalizes a nested mapping regardless of whether the
// front-end decoder produced string or interface keys.
func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}

// asInt coerces the numeric types produced by the YAML and JSON
// decoders.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
