// Package dump drives serialization of store contents: schema selection,
// dependency ordering, and either a single encoded stream or per-record
// version files.
package dump

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/iota-uz/gitversions/pkg/codec"
	"github.com/iota-uz/gitversions/pkg/schema"
	"github.com/iota-uz/gitversions/pkg/serrors"
	"github.com/iota-uz/gitversions/pkg/store"
	"github.com/iota-uz/gitversions/pkg/versioner"
)

var (
	ErrUnknownApp   = serrors.NewError("DUMP_UNKNOWN_APP", "unknown application", "")
	ErrUnknownModel = serrors.NewError("DUMP_UNKNOWN_MODEL", "unknown model", "")
	// ErrPKFilter rejects a primary-key filter applied to more than one
	// schema; the filter is only meaningful against a single record type.
	ErrPKFilter = serrors.NewError("DUMP_PK_FILTER", "primary-key filter requires exactly one model", "")
)

type Options struct {
	Format      string
	Compression string
	Indent      int
	// PKs restricts the dump to the given primary keys; valid only when
	// the selection resolves to exactly one schema.
	PKs                []string
	NaturalForeignKeys bool
	NaturalPrimaryKeys bool
}

// Result reports what a dump touched. Apps and Models count distinct schema
// groups, Instances counts records written.
type Result struct {
	Apps      int
	Models    int
	Instances int
}

type Dumper struct {
	reg   *schema.Registry
	store store.Store
}

func New(reg *schema.Registry, st store.Store) *Dumper {
	return &Dumper{reg: reg, store: st}
}

// Select resolves "app" and "app.Model" selectors into schemas. An empty
// include list selects every registered schema. Unknown names in either list
// are configuration errors reported before any work starts.
func Select(reg *schema.Registry, include, exclude []string) ([]*schema.Schema, error) {
	excludedApps := make(map[string]struct{})
	excludedModels := make(map[string]struct{})
	for _, sel := range exclude {
		s, apps, err := lookupSelector(reg, sel)
		if err != nil {
			return nil, fmt.Errorf("in excludes: %w", err)
		}
		if s != nil {
			excludedModels[s.Label()] = struct{}{}
			continue
		}
		for _, app := range apps {
			excludedApps[app] = struct{}{}
		}
	}

	var candidates []*schema.Schema
	if len(include) == 0 {
		candidates = reg.All()
	} else {
		seen := make(map[string]struct{})
		for _, sel := range include {
			s, apps, err := lookupSelector(reg, sel)
			if err != nil {
				return nil, err
			}
			if s != nil {
				if _, dup := seen[s.Label()]; !dup {
					seen[s.Label()] = struct{}{}
					candidates = append(candidates, s)
				}
				continue
			}
			for _, app := range apps {
				for _, as := range reg.App(app) {
					if _, dup := seen[as.Label()]; !dup {
						seen[as.Label()] = struct{}{}
						candidates = append(candidates, as)
					}
				}
			}
		}
	}

	var out []*schema.Schema
	for _, s := range candidates {
		if _, ok := excludedApps[strings.ToLower(s.App)]; ok {
			continue
		}
		if _, ok := excludedModels[s.Label()]; ok {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// lookupSelector resolves one selector: "app.Model" yields a schema, a bare
// "app" yields the app name. The app form is validated against the registry.
func lookupSelector(reg *schema.Registry, sel string) (*schema.Schema, []string, error) {
	if s, ok := reg.Get(sel); ok {
		return s, nil, nil
	}
	if strings.Contains(sel, ".") {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownModel, sel)
	}
	for _, app := range reg.Apps() {
		if app == strings.ToLower(sel) {
			return nil, []string{app}, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnknownApp, sel)
}

// plan validates options and produces the dependency-ordered schema list.
// Nothing is written before plan returns.
func (d *Dumper) plan(include, exclude []string, opts Options) ([]*schema.Schema, error) {
	if _, err := codec.Lookup(opts.Format); err != nil {
		return nil, err
	}
	sel, err := Select(d.reg, include, exclude)
	if err != nil {
		return nil, err
	}
	if len(opts.PKs) > 0 && len(sel) != 1 {
		return nil, fmt.Errorf("%w: %d selected", ErrPKFilter, len(sel))
	}
	return schema.Resolve(d.reg, sel)
}

func (d *Dumper) fetch(ctx context.Context, s *schema.Schema, opts Options) ([]*schema.Record, error) {
	return d.store.Fetch(ctx, s, store.FetchOptions{
		PKs:                opts.PKs,
		NaturalForeignKeys: opts.NaturalForeignKeys,
	})
}

// Dump fetches every selected schema's records in dependency order and
// encodes them as one document into w, compressed when requested.
func (d *Dumper) Dump(ctx context.Context, w io.Writer, include, exclude []string, opts Options) (*Result, error) {
	ordered, err := d.plan(include, exclude, opts)
	if err != nil {
		return nil, err
	}
	c, _ := codec.Lookup(opts.Format)

	res := &Result{}
	apps := make(map[string]struct{})
	var records []*schema.Record
	for _, s := range ordered {
		if !d.store.Routable(s) {
			continue
		}
		recs, err := d.fetch(ctx, s, opts)
		if err != nil {
			return nil, err
		}
		res.Models++
		res.Instances += len(recs)
		apps[s.App] = struct{}{}
		records = append(records, recs...)
	}
	res.Apps = len(apps)

	cw, err := codec.NewCompressedWriter(w, opts.Compression)
	if err != nil {
		return nil, err
	}
	if err := c.Encode(cw, d.reg, records, codec.Options{
		Indent:                opts.Indent,
		UseNaturalForeignKeys: opts.NaturalForeignKeys,
		UseNaturalPrimaryKeys: opts.NaturalPrimaryKeys,
	}); err != nil {
		cw.Close()
		return nil, err
	}
	return res, cw.Close()
}

// DumpVersions writes one file per record through the versioner, in
// dependency order, matching what the save hook produces incrementally.
func (d *Dumper) DumpVersions(ctx context.Context, v *versioner.Versioner, include, exclude []string, opts Options) (*Result, error) {
	ordered, err := d.plan(include, exclude, opts)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	apps := make(map[string]struct{})
	for _, s := range ordered {
		if !d.store.Routable(s) {
			continue
		}
		recs, err := d.fetch(ctx, s, opts)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if _, err := v.Write(rec); err != nil {
				return nil, err
			}
		}
		res.Models++
		res.Instances += len(recs)
		apps[s.App] = struct{}{}
	}
	res.Apps = len(apps)
	return res, nil
}
