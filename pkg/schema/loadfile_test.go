package schema

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadFile(t *testing.T) {
	t.Parallel()

	reg, err := LoadFile(filepath.Join("testdata", "schemas.yml"))
	require.NoError(t, err)
	require.Len(t, reg.All(), 2)

	author, ok := reg.Get("shop.Author")
	require.True(t, ok)
	require.Equal(t, "authors", author.Table)
	require.Equal(t, "id", author.PKColumn) // defaulted
	require.Equal(t, []string{"name"}, author.NaturalKey)

	book, ok := reg.Get("shop.book")
	require.True(t, ok)
	require.Equal(t, "book_id", book.PKColumn)
	rel, ok := book.Relation("author_id")
	require.True(t, ok)
	require.Equal(t, "shop.Author", rel.Target)
	require.Equal(t, []string{"shop.Author"}, book.Dependencies)
}

func TestLoadFileMissing(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join("testdata", "nope.yml"))
	require.Error(t, err)
}
