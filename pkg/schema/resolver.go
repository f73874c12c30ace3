package schema

import (
	"fmt"
	"sort"
	"strings"
)

// CyclicDependencyError reports the schemas left over when dependency
// resolution stops making progress. Every schema in Remaining has at least
// one unsatisfied dependency inside the set.
type CyclicDependencyError struct {
	Remaining []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("can't resolve dependencies for %s in serialized schema list", strings.Join(e.Remaining, ", "))
}

type depNode struct {
	schema *Schema
	deps   []string
}

// Resolve orders schemas so that every schema a member depends on - by
// declared natural-key dependency or by a relation whose target schema has a
// natural key - precedes it. Dependencies on schemas outside the given set
// are treated as already satisfied. Schemas without natural-key involvement
// can load by raw primary key in any order, so relation targets without
// natural keys never become hard predecessors.
//
// The sort is a fixed-point promotion scan rather than a DFS: dependency
// sets here are loose and partial, and repeated rescans over a few hundred
// schemas are cheap. A full scan that promotes nothing means the remainder
// contains a cycle.
func Resolve(reg *Registry, schemas []*Schema) ([]*Schema, error) {
	inSet := make(map[string]bool, len(schemas))
	for _, s := range schemas {
		inSet[s.Label()] = true
	}

	pending := make([]depNode, 0, len(schemas))
	for _, s := range schemas {
		pending = append(pending, depNode{schema: s, deps: dependenciesOf(reg, s)})
	}

	out := make([]*Schema, 0, len(schemas))
	promoted := make(map[string]bool, len(schemas))

	for len(pending) > 0 {
		var skipped []depNode
		changed := false
		for _, n := range pending {
			satisfied := true
			for _, dep := range n.deps {
				if inSet[dep] && !promoted[dep] {
					satisfied = false
					break
				}
			}
			if satisfied {
				out = append(out, n.schema)
				promoted[n.schema.Label()] = true
				changed = true
			} else {
				skipped = append(skipped, n)
			}
		}
		if !changed {
			remaining := make([]string, 0, len(skipped))
			for _, n := range skipped {
				remaining = append(remaining, n.schema.Label())
			}
			sort.Strings(remaining)
			return nil, &CyclicDependencyError{Remaining: remaining}
		}
		pending = skipped
	}

	return out, nil
}

// dependenciesOf is the union of the schema's declared dependencies and the
// targets of its relations that expose a natural key. Self-edges are ignored.
func dependenciesOf(reg *Registry, s *Schema) []string {
	label := s.Label()
	seen := map[string]bool{}
	var deps []string

	add := func(dep string) {
		dep = strings.ToLower(dep)
		if dep == label || seen[dep] {
			return
		}
		seen[dep] = true
		deps = append(deps, dep)
	}

	for _, dep := range s.Dependencies {
		add(dep)
	}
	for _, rel := range s.Relations {
		target, ok := reg.Get(rel.Target)
		if !ok || !target.HasNaturalKey() {
			continue
		}
		add(rel.Target)
	}
	return deps
}
