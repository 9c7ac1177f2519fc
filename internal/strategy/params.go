package strategy

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Params is the flat option bag a strategy is constructed from. Values come
// from YAML or are set directly in code; constructors reject unknown keys.
type Params map[string]any

// UnknownKeys returns the keys not in the known set, sorted.
func (p Params) UnknownKeys(known ...string) []string {
	set := make(map[string]struct{}, len(known))
	for _, k := range known {
		set[k] = struct{}{}
	}
	var extra []string
	for k := range p {
		if _, ok := set[k]; !ok {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	return extra
}

// Int reads an integer option, falling back to def when absent.
func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n == float64(int(n)) {
			return int(n), nil
		}
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

// Float reads a numeric option, falling back to def when absent.
func (p Params) Float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

// String reads a string option, falling back to def when absent.
func (p Params) String(key string, def string) (string, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

// Profile is the on-disk form of a strategy choice: which strategy to run
// and with what options.
type Profile struct {
	Strategy string `yaml:"strategy"`
	Params   Params `yaml:"params"`
}

// LoadProfile reads a YAML profile. Unknown top-level fields fail
// immediately so a typo never silently falls back to defaults.
func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if p.Strategy == "" {
		return nil, fmt.Errorf("profile %s: strategy name is required", path)
	}
	return &p, nil
}
