package store

import (
	"fmt"
	"strings"

	"github.com/iota-uz/gitversions/pkg/schema"
)

// buildUpsert renders the save statement for one record: an INSERT with an
// upsert clause so reloading an already-populated store re-saves identical
// rows without duplication. The conflict target is the primary key when the
// record carries one, the natural key otherwise. Records without either are
// plain inserts. Returns the statement, its arguments and whether the caller
// should scan a generated primary key.
func buildUpsert(s *schema.Schema, rec *schema.Record) (string, []any, bool) {
	var (
		cols []string
		args []any
	)
	if rec.PK != nil {
		cols = append(cols, s.PKColumn)
		args = append(args, rec.PK)
	}
	for _, col := range s.Columns {
		v, ok := rec.Fields[col]
		if !ok {
			continue
		}
		cols = append(cols, col)
		args = append(args, v)
	}

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)",
		s.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	conflict := conflictColumns(s, rec, cols)
	if len(conflict) > 0 {
		updates := updateColumns(cols, conflict)
		if len(updates) == 0 {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", strings.Join(conflict, ", "))
		} else {
			fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s",
				strings.Join(conflict, ", "), strings.Join(updates, ", "))
		}
	}

	returning := rec.PK == nil
	if returning {
		fmt.Fprintf(&b, " RETURNING %s", s.PKColumn)
	}
	return b.String(), args, returning
}

func conflictColumns(s *schema.Schema, rec *schema.Record, cols []string) []string {
	if rec.PK != nil {
		return []string{s.PKColumn}
	}
	if !s.HasNaturalKey() {
		return nil
	}
	for _, nk := range s.NaturalKey {
		if !contains(cols, nk) {
			return nil
		}
	}
	return s.NaturalKey
}

func updateColumns(cols, conflict []string) []string {
	var out []string
	for _, col := range cols {
		if contains(conflict, col) {
			continue
		}
		out = append(out, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	return out
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func selectColumns(s *schema.Schema) []string {
	return append([]string{s.PKColumn}, s.Columns...)
}
