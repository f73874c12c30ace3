package versioner

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/gitversions/pkg/eventbus"
	"github.com/iota-uz/gitversions/pkg/schema"
	"github.com/iota-uz/gitversions/pkg/store"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Schema{
		App: "shop", Name: "Author", Table: "authors", PKColumn: "id",
		Columns:    []string{"name"},
		NaturalKey: []string{"name"},
	}))
	return reg
}

func TestWritePerRecordFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	v := New(testRegistry(t), dir, WithFormat("json", ""))

	rec := &schema.Record{Schema: "shop.author", PK: int64(7), Fields: map[string]any{"name": "Frank Herbert"}}
	path, err := v.Write(rec)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "shop", "author", "7.json"), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(body), `"shop.author"`)
	require.Contains(t, string(body), "Frank Herbert")
}

func TestWriteCompressed(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	v := New(testRegistry(t), dir, WithFormat("json", "gz"))

	rec := &schema.Record{Schema: "shop.author", PK: int64(1), Fields: map[string]any{"name": "x"}}
	path, err := v.Write(rec)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "shop", "author", "1.json.gz"), path)
}

func TestWriteUnknownSchema(t *testing.T) {
	t.Parallel()

	v := New(testRegistry(t), t.TempDir(), WithFormat("json", ""))
	_, err := v.Write(&schema.Record{Schema: "shop.magazine"})
	require.Error(t, err)
}

// Saves flowing through the bus land as version files; a suspended bus
// writes nothing.
func TestAttachMirrorsSaves(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	v := New(testRegistry(t), dir, WithFormat("json", ""))

	bus := eventbus.NewEventPublisher(nil)
	v.Attach(bus)

	rec := &schema.Record{Schema: "shop.author", PK: int64(1), Fields: map[string]any{"name": "x"}}
	bus.Publish(&store.RecordSaved{Record: rec})

	path := filepath.Join(dir, "shop", "author", "1.json")
	_, err := os.Stat(path)
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	resume := bus.Suspend()
	bus.Publish(&store.RecordSaved{Record: rec})
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
	resume()
}
