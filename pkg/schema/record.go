package schema

import (
	"fmt"
	"strings"
)

// NaturalRef is a foreign-key reference expressed through the target
// schema's natural key instead of its primary key. It survives decoding when
// the referenced row does not exist yet; the store resolves it at save time.
type NaturalRef struct {
	Target string
	Key    []any
}

func (r NaturalRef) String() string {
	parts := make([]string, len(r.Key))
	for i, k := range r.Key {
		parts[i] = fmt.Sprint(k)
	}
	return fmt.Sprintf("%s[%s]", r.Target, strings.Join(parts, ","))
}

// Record is one decoded instance of a schema. PK may be nil when the row is
// identified by its natural key and the store assigns the primary key.
type Record struct {
	Schema string
	PK     any
	Fields map[string]any
}

// Identity names the record for operator-facing error messages: the primary
// key when present, the natural key otherwise.
func (r *Record) Identity(s *Schema) string {
	if r.PK != nil {
		return fmt.Sprint(r.PK)
	}
	if s != nil && s.HasNaturalKey() {
		parts := make([]string, 0, len(s.NaturalKey))
		for _, col := range s.NaturalKey {
			parts = append(parts, fmt.Sprint(r.Fields[col]))
		}
		return strings.Join(parts, ",")
	}
	return "?"
}

// NaturalKeyValues extracts the record's own natural key, in declaration
// order. Returns false when any component is missing.
func (r *Record) NaturalKeyValues(s *Schema) ([]any, bool) {
	if !s.HasNaturalKey() {
		return nil, false
	}
	key := make([]any, 0, len(s.NaturalKey))
	for _, col := range s.NaturalKey {
		v, ok := r.Fields[col]
		if !ok {
			return nil, false
		}
		key = append(key, v)
	}
	return key, true
}
