package loader

import (
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/iota-uz/gitversions/pkg/codec"
)

// Unit is one decodable source object; it expands into zero or more records.
type Unit struct {
	Name        string
	Path        string
	Format      string
	Compression string
	Open        func() (io.ReadCloser, error)
}

// Discover walks the backup directory and collects every fixture unit.
// Files without a format suffix are not fixtures and are skipped; a file
// with an unregistered suffix is a configuration error naming the suffix.
func Discover(root string) ([]*Unit, error) {
	var units []*Unit
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		_, format, compression, perr := codec.ParseName(name)
		if perr != nil {
			return perr
		}
		if format == "" {
			return nil
		}

		p := path
		units = append(units, &Unit{
			Name:        name,
			Path:        p,
			Format:      format,
			Compression: compression,
			Open:        func() (io.ReadCloser, error) { return os.Open(p) },
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Path < units[j].Path })
	return units, nil
}
