// Package seqconfig loads declarative sequence files (YAML or JSON) and
// resolves @namespace.key tokens against pluggable resolvers.
package seqconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError marks a structural fault in a sequence file: invalid
// YAML/JSON, no steps, a step without an operation. Unresolvable tokens
// are warnings, never a ConfigError.
type ConfigError struct {
	Source string
	Msg    string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sequence config %s: %s", e.Source, e.Msg)
}

// Step is one operation invocation inside a sequence.
type Step struct {
	ID              string         `yaml:"id" json:"id"`
	Operation       string         `yaml:"operation" json:"operation"`
	Label           string         `yaml:"label,omitempty" json:"label,omitempty"`
	StartURL        string         `yaml:"startUrl,omitempty" json:"startUrl,omitempty"`
	Overrides       map[string]any `yaml:"overrides,omitempty" json:"overrides,omitempty"`
	ContinueOnError bool           `yaml:"continueOnError,omitempty" json:"continueOnError,omitempty"`
}

// ResolvedToken records one successful token substitution.
type ResolvedToken struct {
	Token    string `json:"token"`
	Location string `json:"location"`
	Value    any    `json:"value"`
}

// Metadata describes how a config was loaded.
type Metadata struct {
	Source         string          `json:"source"`
	ResolvedTokens []ResolvedToken `json:"resolved_tokens"`
	Warnings       []string        `json:"warnings"`
}

// Config is a loaded sequence. Immutable after load.
type Config struct {
	Name            string         `yaml:"name" json:"name"`
	Host            string         `yaml:"host,omitempty" json:"host,omitempty"`
	StartURL        string         `yaml:"startUrl,omitempty" json:"startUrl,omitempty"`
	SharedOverrides map[string]any `yaml:"sharedOverrides,omitempty" json:"sharedOverrides,omitempty"`
	ContinueOnError bool           `yaml:"continueOnError,omitempty" json:"continueOnError,omitempty"`
	Steps           []Step         `yaml:"steps" json:"steps"`
	Metadata        Metadata       `yaml:"-" json:"metadata"`
}

// Load reads and parses a sequence file. The extension decides nothing;
// YAML parsing covers JSON documents too.
func Load(path string, resolvers []Resolver) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Msg: fmt.Sprintf("cannot read file: %v", err)}
	}
	return Parse(data, path, resolvers)
}

// Find locates a sequence config by name under dir, trying the supported
// extensions.
func Find(dir, name string) (string, error) {
	for _, ext := range []string{".yaml", ".yml", ".json"} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", &ConfigError{Source: name, Msg: fmt.Sprintf("no sequence config named %q under %s", name, dir)}
}

// Parse decodes a sequence document, resolves its tokens eagerly and
// validates the structure.
func Parse(data []byte, source string, resolvers []Resolver) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Source: source, Msg: fmt.Sprintf("invalid document: %v", err)}
	}
	if raw == nil {
		return nil, &ConfigError{Source: source, Msg: "empty document"}
	}

	res := &resolution{resolvers: indexResolvers(resolvers)}
	resolved := res.walk(raw, "$")

	// Round-trip the resolved tree through YAML into the typed config.
	normalized, err := yaml.Marshal(resolved)
	if err != nil {
		return nil, &ConfigError{Source: source, Msg: fmt.Sprintf("cannot normalize document: %v", err)}
	}
	var cfg Config
	if err := yaml.Unmarshal(normalized, &cfg); err != nil {
		return nil, &ConfigError{Source: source, Msg: fmt.Sprintf("invalid structure: %v", err)}
	}

	if len(cfg.Steps) == 0 {
		return nil, &ConfigError{Source: source, Msg: "sequence has no steps"}
	}
	for i := range cfg.Steps {
		if cfg.Steps[i].Operation == "" {
			return nil, &ConfigError{Source: source, Msg: fmt.Sprintf("step %d has no operation", i)}
		}
		if cfg.Steps[i].ID == "" {
			cfg.Steps[i].ID = fmt.Sprintf("%s#%d", cfg.Steps[i].Operation, i)
		}
	}
	if cfg.Name == "" {
		cfg.Name = strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	}

	cfg.Metadata = Metadata{
		Source:         source,
		ResolvedTokens: res.resolved,
		Warnings:       res.warnings,
	}
	if cfg.Metadata.ResolvedTokens == nil {
		cfg.Metadata.ResolvedTokens = []ResolvedToken{}
	}
	if cfg.Metadata.Warnings == nil {
		cfg.Metadata.Warnings = []string{}
	}
	return &cfg, nil
}

// fullToken matches a string that is exactly one token; embedded matches
// tokens inside larger strings for interpolation.
var (
	fullToken     = regexp.MustCompile(`^@([a-zA-Z]+)\.([a-zA-Z0-9_.\[\]-]+)$`)
	embeddedToken = regexp.MustCompile(`@([a-zA-Z]+)\.([a-zA-Z0-9_.\[\]-]+)`)
)

type resolution struct {
	resolvers map[string]Resolver
	resolved  []ResolvedToken
	warnings  []string
}

// walk replaces token nodes throughout the parsed tree. Full-scalar
// tokens keep the resolved value's type; embedded tokens interpolate as
// strings.
func (r *resolution) walk(node any, location string) any {
	switch v := node.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[key] = r.walk(val, location+"."+key)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			k := fmt.Sprint(key)
			out[k] = r.walk(val, location+"."+k)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = r.walk(val, fmt.Sprintf("%s[%d]", location, i))
		}
		return out
	case string:
		return r.resolveString(v, location)
	default:
		return node
	}
}

func (r *resolution) resolveString(s, location string) any {
	if m := fullToken.FindStringSubmatch(s); m != nil {
		value, ok := r.lookup(m[1], m[2])
		if !ok {
			r.warnings = append(r.warnings, fmt.Sprintf("unresolved token %s at %s", s, location))
			return nil
		}
		r.resolved = append(r.resolved, ResolvedToken{Token: s, Location: location, Value: value})
		return value
	}

	if !embeddedToken.MatchString(s) {
		return s
	}
	return embeddedToken.ReplaceAllStringFunc(s, func(token string) string {
		m := embeddedToken.FindStringSubmatch(token)
		value, ok := r.lookup(m[1], m[2])
		if !ok {
			r.warnings = append(r.warnings, fmt.Sprintf("unresolved token %s at %s", token, location))
			return ""
		}
		r.resolved = append(r.resolved, ResolvedToken{Token: token, Location: location, Value: value})
		return fmt.Sprint(value)
	})
}

func (r *resolution) lookup(namespace, keyPath string) (any, bool) {
	resolver, ok := r.resolvers[namespace]
	if !ok {
		return nil, false
	}
	return resolver.Resolve(parseKeyPath(keyPath))
}

// parseKeyPath splits "key.sub[0].leaf" into path segments; indices
// become their own segments.
func parseKeyPath(keyPath string) []string {
	var segments []string
	for _, part := range strings.Split(keyPath, ".") {
		for {
			open := strings.Index(part, "[")
			if open < 0 {
				if part != "" {
					segments = append(segments, part)
				}
				break
			}
			if open > 0 {
				segments = append(segments, part[:open])
			}
			closing := strings.Index(part, "]")
			if closing < 0 {
				segments = append(segments, part[open:])
				break
			}
			segments = append(segments, part[open+1:closing])
			part = part[closing+1:]
		}
	}
	return segments
}

func indexResolvers(resolvers []Resolver) map[string]Resolver {
	out := make(map[string]Resolver, len(resolvers))
	for _, r := range resolvers {
		out[r.Namespace()] = r
	}
	return out
}

// indexSegment reports whether a path segment is an array index.
func indexSegment(seg string) (int, bool) {
	n, err := strconv.Atoi(seg)
	return n, err == nil
}
