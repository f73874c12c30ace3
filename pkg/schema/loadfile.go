package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type schemasFile struct {
	Schemas []*Schema `yaml:"schemas"`
}

// LoadFile builds a registry from a YAML descriptor file. This is the
// binary's stand-in for app discovery: library callers register descriptors
// directly instead.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schemas file: %w", err)
	}
	var f schemasFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schemas file %s: %w", path, err)
	}

	reg := NewRegistry()
	for _, s := range f.Schemas {
		if s.PKColumn == "" {
			s.PKColumn = "id"
		}
		if err := reg.Register(s); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
