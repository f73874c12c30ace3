// Package schema holds the typed record model the dump and restore paths
// operate on: schema descriptors with their declared dependency edges, the
// registry they are looked up in, and decoded record instances.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Relation is a foreign-key or many-to-many edge from one of the schema's
// columns to another schema, identified by label.
type Relation struct {
	Column string `yaml:"column"`
	Target string `yaml:"target"`
}

// Schema describes one record type. Dependency edges are declared statically
// at registration; nothing in the system introspects record instances to
// discover them.
type Schema struct {
	App      string   `yaml:"app"`
	Name     string   `yaml:"name"`
	Table    string   `yaml:"table"`
	PKColumn string   `yaml:"pk_column"`
	Columns  []string `yaml:"columns"`

	// NaturalKey lists the columns forming the schema's natural key.
	// Empty means the schema has no natural key and is never a hard
	// predecessor in dependency resolution.
	NaturalKey []string `yaml:"natural_key"`

	// Dependencies are explicitly declared natural-key dependencies, by
	// label, in addition to what Relations imply.
	Dependencies []string   `yaml:"dependencies"`
	Relations    []Relation `yaml:"relations"`
}

func (s *Schema) Label() string {
	return strings.ToLower(s.App + "." + s.Name)
}

func (s *Schema) HasNaturalKey() bool {
	return len(s.NaturalKey) > 0
}

// Relation returns the relation declared on the given column, if any.
func (s *Schema) Relation(column string) (Relation, bool) {
	for _, rel := range s.Relations {
		if rel.Column == column {
			return rel, true
		}
	}
	return Relation{}, false
}

func (s *Schema) HasColumn(name string) bool {
	if name == s.PKColumn {
		return true
	}
	for _, c := range s.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Registry maps schema labels to descriptors. Labels are case-insensitive,
// matching the usual app.Model spelling of selectors and fixtures.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*Schema
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{schemas: map[string]*Schema{}}
}

func (r *Registry) Register(s *Schema) error {
	if s.App == "" || s.Name == "" {
		return fmt.Errorf("schema registration requires app and name, got %q.%q", s.App, s.Name)
	}
	label := s.Label()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[label]; ok {
		return fmt.Errorf("schema already registered: %s", label)
	}
	r.schemas[label] = s
	r.order = append(r.order, label)
	return nil
}

func (r *Registry) Get(label string) (*Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[strings.ToLower(label)]
	return s, ok
}

// All returns every registered schema in registration order.
func (r *Registry) All() []*Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Schema, 0, len(r.order))
	for _, label := range r.order {
		out = append(out, r.schemas[label])
	}
	return out
}

// App returns the schemas registered under the given app label.
func (r *Registry) App(app string) []*Schema {
	app = strings.ToLower(app)
	var out []*Schema
	for _, s := range r.All() {
		if strings.ToLower(s.App) == app {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) Apps() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range r.All() {
		app := strings.ToLower(s.App)
		if !seen[app] {
			seen[app] = true
			out = append(out, app)
		}
	}
	sort.Strings(out)
	return out
}
