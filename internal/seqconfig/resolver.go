package seqconfig

import (
	"encoding/json"
	"fmt"
)

// Resolver answers token lookups for one namespace.
type Resolver interface {
	Namespace() string
	// Resolve returns the value at a key path, or false when the path
	// does not exist.
	Resolve(path []string) (any, bool)
}

// MapResolver serves a namespace from a nested map. Used for the
// playbook and config namespaces, whose values come from external
// services.
type MapResolver struct {
	Name   string
	Values map[string]any
}

func (m MapResolver) Namespace() string { return m.Name }

func (m MapResolver) Resolve(path []string) (any, bool) {
	return traverse(m.Values, path)
}

// NewCLIResolver builds the automatic cli namespace from the runtime
// start URL, shared overrides and any extra JSON overrides supplied on
// the command line. Invalid JSON is an input error, not a warning.
func NewCLIResolver(startURL string, sharedOverrides map[string]any, cliOverridesJSON string) (MapResolver, error) {
	values := map[string]any{}
	if startURL != "" {
		values["startUrl"] = startURL
	}
	if sharedOverrides != nil {
		values["sharedOverrides"] = sharedOverrides
	}
	if cliOverridesJSON != "" {
		var extra map[string]any
		if err := json.Unmarshal([]byte(cliOverridesJSON), &extra); err != nil {
			return MapResolver{}, fmt.Errorf("invalid cli overrides JSON: %w", err)
		}
		for k, v := range extra {
			values[k] = v
		}
	}
	return MapResolver{Name: "cli", Values: values}, nil
}

// traverse walks maps by key and slices by index segment.
func traverse(node any, path []string) (any, bool) {
	current := node
	for _, seg := range path {
		switch v := current.(type) {
		case map[string]any:
			next, ok := v[seg]
			if !ok {
				return nil, false
			}
			current = next
		case []any:
			idx, ok := indexSegment(seg)
			if !ok || idx < 0 || idx >= len(v) {
				return nil, false
			}
			current = v[idx]
		default:
			return nil, false
		}
	}
	return current, true
}
