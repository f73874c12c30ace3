package loader

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/gitversions/pkg/schema"
	"github.com/iota-uz/gitversions/pkg/store"
	"github.com/iota-uz/gitversions/pkg/store/storetest"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	for _, s := range []*schema.Schema{
		{
			App: "shop", Name: "Author", Table: "authors", PKColumn: "id",
			Columns:    []string{"name"},
			NaturalKey: []string{"name"},
		},
		{
			App: "shop", Name: "Book", Table: "books", PKColumn: "id",
			Columns:   []string{"title", "author_id"},
			Relations: []schema.Relation{{Column: "author_id", Target: "shop.author"}},
		},
		{
			App: "shop", Name: "Category", Table: "categories", PKColumn: "id",
			Columns:    []string{"slug", "parent_id"},
			NaturalKey: []string{"slug"},
			Relations:  []schema.Relation{{Column: "parent_id", Target: "shop.category"}},
		},
	} {
		require.NoError(t, reg.Register(s))
	}
	return reg
}

func jsonUnit(name, body string) *Unit {
	return &Unit{
		Name:   name,
		Path:   name,
		Format: "json",
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(body)), nil
		},
	}
}

const (
	authorFixture = `[{"model":"shop.Author","pk":1,"fields":{"name":"Frank Herbert"}}]`
	bookFixture   = `[{"model":"shop.Book","pk":1,"fields":{"title":"Dune","author_id":["Frank Herbert"]}}]`
)

// The book fixture references its author by natural key and is handed to the
// loader before the author exists anywhere. The run must converge on its own.
func TestLoadForwardReferenceConverges(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	l := New(reg, st, Options{})

	units := []*Unit{
		jsonUnit("books.json", bookFixture),
		jsonUnit("authors.json", authorFixture),
	}

	res, err := l.Load(context.Background(), units)
	require.NoError(t, err)

	require.Equal(t, 2, res.Total)
	require.Equal(t, 2, res.Processed)
	require.Equal(t, 0, res.Skipped)
	require.Equal(t, 0, res.Unsaved)
	require.True(t, st.Has("shop.author", int64(1)))
	require.True(t, st.Has("shop.book", int64(1)))
}

func TestLoadEmptyBatch(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	l := New(reg, st, Options{})

	res, err := l.Load(context.Background(), nil)
	require.NoError(t, err)

	require.Equal(t, 0, res.Total)
	require.Equal(t, 0, res.SaveIterations)
	require.Equal(t, 0, res.LoadPasses)
	require.Equal(t, 0, st.RelaxedCalls)
}

// Thirty records all reference a row that never arrives. The retry chain must
// stop at the iteration cap instead of spinning, and every record stays
// unsaved.
func TestLoadIterationCap(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	l := New(reg, st, Options{})

	var units []*Unit
	for i := 0; i < 30; i++ {
		body := fmt.Sprintf(
			`[{"model":"shop.Book","pk":%d,"fields":{"title":"b%d","author_id":["ghost"]}}]`, i+1, i+1)
		units = append(units, jsonUnit(fmt.Sprintf("book-%02d.json", i+1), body))
	}

	res, err := l.Load(context.Background(), units)
	require.NoError(t, err)

	require.Equal(t, defaultIterationCap, res.SaveIterations)
	require.Equal(t, 30, res.Unsaved)
	require.Equal(t, 30, res.Skipped)
	require.Equal(t, 0, res.Processed)
	require.Equal(t, 0, st.Count("shop.book"))
}

// A ten-deep parent chain fed in worst-case order: each pass through the
// chain can only land the one record whose parent arrived in the previous
// pass.
func TestLoadDeepChain(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	l := New(reg, st, Options{})

	const depth = 10
	var units []*Unit
	for i := depth - 1; i >= 0; i-- {
		parent := "null"
		if i > 0 {
			parent = fmt.Sprintf(`["c%d"]`, i-1)
		}
		body := fmt.Sprintf(
			`[{"model":"shop.Category","pk":%d,"fields":{"slug":"c%d","parent_id":%s}}]`, i+1, i, parent)
		units = append(units, jsonUnit(fmt.Sprintf("cat-%d.json", i), body))
	}

	res, err := l.Load(context.Background(), units)
	require.NoError(t, err)

	require.Equal(t, depth, res.Processed)
	require.Equal(t, 0, res.Skipped)
	require.Equal(t, 0, res.Unsaved)
	require.Equal(t, depth, st.Count("shop.category"))
	require.LessOrEqual(t, res.SaveIterations, defaultIterationCap)
}

func TestLoadIdempotent(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	l := New(reg, st, Options{})

	units := func() []*Unit {
		return []*Unit{
			jsonUnit("authors.json", authorFixture),
			jsonUnit("books.json", bookFixture),
		}
	}

	res, err := l.Load(context.Background(), units())
	require.NoError(t, err)
	require.Equal(t, 0, res.Unsaved)

	res2, err := l.Load(context.Background(), units())
	require.NoError(t, err)
	require.Equal(t, 2, res2.Processed)
	require.Equal(t, 0, res2.Skipped)
	require.Equal(t, 0, res2.Unsaved)

	require.Equal(t, 1, st.Count("shop.author"))
	require.Equal(t, 1, st.Count("shop.book"))
}

// A unit that fails to parse is dropped without touching its neighbors.
func TestLoadMalformedUnitSkipped(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	l := New(reg, st, Options{})

	units := []*Unit{
		jsonUnit("bad.json", `{not json`),
		jsonUnit("authors.json", authorFixture),
	}

	res, err := l.Load(context.Background(), units)
	require.NoError(t, err)

	require.Equal(t, 1, res.Processed)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 0, res.Unsaved)
	require.Equal(t, 1, st.Count("shop.author"))
}

func TestLoadUnknownFormat(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	l := New(reg, st, Options{})

	u := jsonUnit("data.bin", "")
	u.Format = "bin"

	res, err := l.Load(context.Background(), []*Unit{u})
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)
}

// Records whose schema the routing policy excludes are dropped silently, not
// reported as unsaved.
func TestLoadRoutingDrop(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	st.Policy = func(s *schema.Schema) bool { return s.Label() != "shop.book" }
	l := New(reg, st, Options{})

	units := []*Unit{
		jsonUnit("authors.json", authorFixture),
		jsonUnit("books.json", `[{"model":"shop.Book","pk":1,"fields":{"title":"Dune","author_id":1}}]`),
	}

	res, err := l.Load(context.Background(), units)
	require.NoError(t, err)

	require.Equal(t, 2, res.Processed)
	require.Equal(t, 0, res.Unsaved)
	require.Equal(t, 1, st.Count("shop.author"))
	require.Equal(t, 0, st.Count("shop.book"))
}

type recordingHook struct {
	suspended bool
	resumes   int
}

func (h *recordingHook) Suspend() func() {
	h.suspended = true
	return func() {
		h.suspended = false
		h.resumes++
	}
}

type suspendProbe struct {
	hook   *recordingHook
	events int
	clean  bool
}

func (p *suspendProbe) Publish(args ...interface{}) {
	p.events++
	if !p.hook.suspended {
		p.clean = false
	}
}

// The side-effect hook must stay suspended for every save in the run and be
// resumed exactly once afterwards.
func TestLoadSuspendsHook(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	hook := &recordingHook{}
	probe := &suspendProbe{hook: hook, clean: true}
	st.Events = probe
	l := New(reg, st, Options{Hook: hook})

	units := []*Unit{
		jsonUnit("authors.json", authorFixture),
		jsonUnit("books.json", bookFixture),
	}

	_, err := l.Load(context.Background(), units)
	require.NoError(t, err)

	require.False(t, hook.suspended)
	require.Equal(t, 1, hook.resumes)
	require.True(t, probe.clean)
	require.Positive(t, probe.events)
}

// An ingest pass whose transaction ends in an invalid state is discarded and
// the same units are re-queued for a fresh pass.
func TestLoadTxStateRequeue(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	st := storetest.New(reg)
	st.FailNext = true
	l := New(reg, st, Options{})

	units := []*Unit{
		jsonUnit("authors.json", authorFixture),
		jsonUnit("books.json", bookFixture),
	}

	res, err := l.Load(context.Background(), units)
	require.NoError(t, err)

	require.Equal(t, 2, res.Processed)
	require.Equal(t, 0, res.Unsaved)
	require.GreaterOrEqual(t, res.LoadPasses, 2)
	require.Equal(t, 1, st.Count("shop.author"))
	require.Equal(t, 1, st.Count("shop.book"))
}

func TestLoadIgnoreUnknownFields(t *testing.T) {
	t.Parallel()

	reg := testRegistry(t)
	body := `[{"model":"shop.Author","pk":1,"fields":{"name":"x","legacy":"y"}}]`

	strict := New(reg, storetest.New(reg), Options{})
	res, err := strict.Load(context.Background(), []*Unit{jsonUnit("a.json", body)})
	require.NoError(t, err)
	require.Equal(t, 1, res.Skipped)

	lenientStore := storetest.New(reg)
	lenient := New(reg, lenientStore, Options{IgnoreUnknownFields: true})
	res, err = lenient.Load(context.Background(), []*Unit{jsonUnit("a.json", body)})
	require.NoError(t, err)
	require.Equal(t, 1, res.Processed)
	require.Equal(t, 1, lenientStore.Count("shop.author"))
}

var _ store.Store = (*storetest.Store)(nil)
