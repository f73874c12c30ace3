package schema

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func registryOf(t *testing.T, schemas ...*Schema) *Registry {
	t.Helper()
	reg := NewRegistry()
	for _, s := range schemas {
		require.NoError(t, reg.Register(s))
	}
	return reg
}

func nk(app, name string, deps ...string) *Schema {
	return &Schema{
		App: app, Name: name, Table: name, PKColumn: "id",
		NaturalKey:   []string{"slug"},
		Columns:      []string{"slug"},
		Dependencies: deps,
	}
}

func resolvedLabels(t *testing.T, reg *Registry, schemas []*Schema) []string {
	t.Helper()
	ordered, err := Resolve(reg, schemas)
	require.NoError(t, err)
	out := make([]string, len(ordered))
	for i, s := range ordered {
		out[i] = s.Label()
	}
	return out
}

func indexOf(ss []string, s string) int {
	for i, v := range ss {
		if v == s {
			return i
		}
	}
	return -1
}

// Any input permutation must yield an order where every dependency precedes
// its dependent.
func TestResolveDependencyOrder(t *testing.T) {
	t.Parallel()

	a := nk("app", "A")
	b := nk("app", "B", "app.A")
	c := nk("app", "C", "app.B")
	d := nk("app", "D", "app.A", "app.C")
	reg := registryOf(t, a, b, c, d)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		in := []*Schema{a, b, c, d}
		r.Shuffle(len(in), func(i, j int) { in[i], in[j] = in[j], in[i] })

		got := resolvedLabels(t, reg, in)
		require.Len(t, got, 4)
		require.Less(t, indexOf(got, "app.a"), indexOf(got, "app.b"))
		require.Less(t, indexOf(got, "app.b"), indexOf(got, "app.c"))
		require.Less(t, indexOf(got, "app.a"), indexOf(got, "app.d"))
		require.Less(t, indexOf(got, "app.c"), indexOf(got, "app.d"))
	}
}

func TestResolveCycle(t *testing.T) {
	t.Parallel()

	a := nk("app", "A", "app.B")
	b := nk("app", "B", "app.A")
	c := nk("app", "C")
	reg := registryOf(t, a, b, c)

	_, err := Resolve(reg, []*Schema{a, b, c})
	var cerr *CyclicDependencyError
	require.ErrorAs(t, err, &cerr)
	require.Equal(t, []string{"app.a", "app.b"}, cerr.Remaining)
	require.Contains(t, cerr.Error(), "app.a, app.b")
}

// A dependency on a schema outside the resolved set counts as satisfied.
func TestResolveExternalDependency(t *testing.T) {
	t.Parallel()

	ext := nk("other", "Ext")
	a := nk("app", "A", "other.Ext")
	reg := registryOf(t, ext, a)

	got := resolvedLabels(t, reg, []*Schema{a})
	require.Equal(t, []string{"app.a"}, got)
}

// Relation targets only become predecessors when they expose a natural key;
// plain-PK targets load in any order.
func TestResolveRelationTargets(t *testing.T) {
	t.Parallel()

	author := nk("shop", "Author")
	plain := &Schema{
		App: "shop", Name: "Warehouse", Table: "warehouses", PKColumn: "id",
		Columns: []string{"code"},
	}
	book := &Schema{
		App: "shop", Name: "Book", Table: "books", PKColumn: "id",
		Columns: []string{"title", "author_id", "warehouse_id"},
		Relations: []Relation{
			{Column: "author_id", Target: "shop.author"},
			{Column: "warehouse_id", Target: "shop.warehouse"},
		},
	}
	reg := registryOf(t, book, plain, author)

	got := resolvedLabels(t, reg, []*Schema{book, plain, author})
	require.Less(t, indexOf(got, "shop.author"), indexOf(got, "shop.book"))
	// The unconstrained schema is promoted in the first scan.
	require.Less(t, indexOf(got, "shop.warehouse"), indexOf(got, "shop.book"))
}

// A schema referencing itself must not deadlock resolution.
func TestResolveSelfReference(t *testing.T) {
	t.Parallel()

	cat := &Schema{
		App: "shop", Name: "Category", Table: "categories", PKColumn: "id",
		Columns:    []string{"slug", "parent_id"},
		NaturalKey: []string{"slug"},
		Relations:  []Relation{{Column: "parent_id", Target: "shop.category"}},
	}
	reg := registryOf(t, cat)

	got := resolvedLabels(t, reg, []*Schema{cat})
	require.Equal(t, []string{"shop.category"}, got)
}

func TestResolveEmpty(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	got, err := Resolve(reg, nil)
	require.NoError(t, err)
	require.Empty(t, got)
}
