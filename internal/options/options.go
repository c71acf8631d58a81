// Package options holds the user-supplied run options and the closed registry
// of keys the resolver understands.
//
// A Map is built once from process arguments and is read-only afterwards. The
// only sanctioned change is WithPlans, used when the plans input is replaced by
// a down-sampled copy; it returns a new Map instead of mutating the receiver.
package options

import (
	"fmt"
	"sort"
	"strings"
)

// Map is an immutable, case-insensitive mapping from option key to value.
type Map struct {
	values map[string]string
}

// New builds a Map from raw key/value pairs. Keys are lower-cased and
// surrounding dashes and whitespace are trimmed, so "--Network" and "network"
// address the same option. When two raw keys collapse to the same key the
// lexically greater raw key wins, which keeps construction deterministic.
func New(raw map[string]string) Map {
	rawKeys := make([]string, 0, len(raw))
	for k := range raw {
		rawKeys = append(rawKeys, k)
	}
	sort.Strings(rawKeys)

	values := make(map[string]string, len(raw))
	for _, k := range rawKeys {
		key := normalizeKey(k)
		if key == "" {
			continue
		}
		values[key] = raw[k]
	}
	return Map{values: values}
}

// FromArgs tokenizes "--key value" pairs. A key directly followed by another
// key, or at the end of args, gets an empty value. A value without a
// preceding key is an error.
func FromArgs(args []string) (Map, error) {
	raw := make(map[string]string)
	pending := ""
	for i, arg := range args {
		if strings.HasPrefix(arg, "--") {
			if pending != "" {
				raw[pending] = ""
			}
			pending = arg
			if k, v, ok := strings.Cut(arg, "="); ok {
				raw[k] = v
				pending = ""
			}
			continue
		}
		if pending == "" {
			return Map{}, fmt.Errorf("argument %d (%q) has no preceding --key", i+1, arg)
		}
		raw[pending] = arg
		pending = ""
	}
	if pending != "" {
		raw[pending] = ""
	}
	return New(raw), nil
}

// Get returns the value for key, or "" when absent.
func (m Map) Get(key string) string {
	return m.values[normalizeKey(key)]
}

// Lookup returns the value for key and whether it was supplied.
func (m Map) Lookup(key string) (string, bool) {
	v, ok := m.values[normalizeKey(key)]
	return v, ok
}

// Has reports whether key was supplied, even with an empty value.
func (m Map) Has(key string) bool {
	_, ok := m.values[normalizeKey(key)]
	return ok
}

// Value returns the trimmed value for key and whether it is usable. Blank
// values count as absent, matching how every setter treats them.
func (m Map) Value(key string) (string, bool) {
	v, ok := m.values[normalizeKey(key)]
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Keys returns the supplied keys in sorted order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// WithPlans returns a copy of m whose plans entry points at path.
func (m Map) WithPlans(path string) Map {
	values := make(map[string]string, len(m.values)+1)
	for k, v := range m.values {
		values[k] = v
	}
	values[KeyPlans] = path
	return Map{values: values}
}

func normalizeKey(k string) string {
	return strings.ToLower(strings.TrimLeft(strings.TrimSpace(k), "-"))
}
