// Package loader is the YAML/JSON front-end for topology
// configuration files. The core consumes only the parsed nested
// mapping; everything format-specific lives here.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"multihost/internal/topology"
)

// Load reads a configuration file and builds a topology from it. Files
// ending in .json are parsed as JSON, everything else as YAML.
func Load(path string) (*topology.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg *topology.Config
	if filepath.Ext(path) == ".json" {
		cfg, err = ParseJSON(data)
	} else {
		cfg, err = Parse(data)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse builds a topology from YAML bytes.
func Parse(data []byte) (*topology.Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	return topology.FromDict(m)
}

// ParseJSON builds a topology from JSON bytes.
func ParseJSON(data []byte) (*topology.Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return topology.FromDict(m)
}

// Save exports a topology back to a file in the canonical mapping
// shape, in the format implied by the path's extension. Reloading the
// result reproduces an equivalent topology.
func Save(cfg *topology.Config, path string) error {
	dct := cfg.ToDict()
	var data []byte
	var err error
	if filepath.Ext(path) == ".json" {
		data, err = json.MarshalIndent(dct, "", "  ")
	} else {
		data, err = yaml.Marshal(dct)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
