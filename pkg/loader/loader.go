// Package loader ingests serialized fixture units and persists their records
// through a Store, converging on inter-record references by retrying.
package loader

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/gitversions/pkg/codec"
	"github.com/iota-uz/gitversions/pkg/schema"
	"github.com/iota-uz/gitversions/pkg/store"
)

// Result summarizes one Load run. Total, Processed and Skipped count units;
// Unsaved counts records still unpersisted when the run gave up.
type Result struct {
	Total          int
	Processed      int
	Skipped        int
	Unsaved        int
	LoadPasses     int
	SaveIterations int
}

type Loader struct {
	reg   *schema.Registry
	store store.Store
	opts  Options
}

func New(reg *schema.Registry, st store.Store, opts Options) *Loader {
	opts.setDefaults()
	return &Loader{reg: reg, store: st, opts: opts}
}

// passOutcome is the aggregate of one ingest pass over a unit batch.
type passOutcome struct {
	// pending holds records from fully decoded units, ready to save.
	pending []*schema.Record
	// missingByUnit holds partial records from units that decoded except
	// for unresolved references; keyed so a later successful re-decode of
	// the unit can supersede them.
	missingByUnit map[*Unit][]*schema.Record
	refSkipped    []*Unit
	processed     []*Unit
	skipped       int
	// retry reports that the pass transaction ended in an invalid state
	// and nothing it observed can be trusted.
	retry bool
}

// Load ingests the units and persists their records. References between
// records are allowed to point at rows that do not exist yet; the loader
// keeps retrying such records until the store stops making progress or the
// iteration cap is hit. Save side-effect hooks are suspended throughout.
func (l *Loader) Load(ctx context.Context, units []*Unit) (*Result, error) {
	res := &Result{Total: len(units)}
	if len(units) == 0 {
		return res, nil
	}
	if l.opts.Hook != nil {
		resume := l.opts.Hook.Suspend()
		defer resume()
	}

	first := l.runIngest(ctx, units, res)

	// Records with unresolved references go first in the retry chain so
	// the rows they stand in for land before the records that need them.
	var missing []*schema.Record
	for _, u := range first.refSkipped {
		missing = append(missing, first.missingByUnit[u]...)
	}
	chain := make([]*schema.Record, 0, len(missing)+len(first.pending))
	chain = append(chain, missing...)
	chain = append(chain, first.pending...)

	iterations, unsaved := l.persist(ctx, chain, 0)

	// Rows persisted above may unblock units that failed on unresolved
	// references, so decode those units again. A unit that decodes now
	// supersedes its partial records from the first pass; a unit that is
	// still unresolvable counts as skipped and its partials stay queued.
	var second passOutcome
	if len(first.refSkipped) > 0 {
		second = l.runIngest(ctx, first.refSkipped, res)
		res.Skipped += len(second.refSkipped)

		if len(second.processed) > 0 {
			stale := make(map[*schema.Record]struct{})
			for _, u := range second.processed {
				for _, rec := range first.missingByUnit[u] {
					stale[rec] = struct{}{}
				}
			}
			kept := unsaved[:0]
			for _, rec := range unsaved {
				if _, ok := stale[rec]; !ok {
					kept = append(kept, rec)
				}
			}
			unsaved = kept
		}
	}

	final := make([]*schema.Record, 0, len(second.pending)+len(unsaved))
	final = append(final, second.pending...)
	final = append(final, unsaved...)
	iterations, unsaved = l.persist(ctx, final, iterations)

	res.SaveIterations = iterations
	res.Unsaved = len(unsaved)
	return res, nil
}

// runIngest decodes a batch of units inside a relaxed store scope. A pass
// whose transaction ends in an invalid state is discarded and re-run with
// the same units, bounded by the batch size.
func (l *Loader) runIngest(ctx context.Context, units []*Unit, res *Result) passOutcome {
	for attempt := 0; attempt <= len(units); attempt++ {
		out := l.ingestPass(ctx, units)
		res.LoadPasses++
		if !out.retry {
			res.Processed += len(out.processed)
			res.Skipped += out.skipped
			return out
		}
		l.opts.Logger.WithField("units", len(units)).
			Warn("ingest pass transaction failed, re-queuing units")
	}
	res.Skipped += len(units)
	l.opts.Logger.WithField("units", len(units)).
		Error("giving up on unit batch after repeated transaction failures")
	return passOutcome{}
}

func (l *Loader) ingestPass(ctx context.Context, units []*Unit) passOutcome {
	out := passOutcome{missingByUnit: make(map[*Unit][]*schema.Record)}
	err := l.store.Relaxed(ctx, func(ctx context.Context) error {
		for _, u := range units {
			records, err := l.decodeUnit(ctx, u)
			var derr *codec.DecodeError
			switch {
			case err == nil:
				out.pending = append(out.pending, records...)
				out.processed = append(out.processed, u)
			case errors.As(err, &derr) && derr.Kind == codec.KindUnresolvedReference:
				out.missingByUnit[u] = derr.Records
				out.refSkipped = append(out.refSkipped, u)
			default:
				out.skipped++
				l.opts.Logger.WithField("unit", u.Name).
					Error(truncateError(err, logErrorMaxBytes))
			}
		}
		return nil
	})
	if err == nil {
		return out
	}
	if errors.Is(err, store.ErrTxState) {
		return passOutcome{retry: true}
	}
	l.opts.Logger.WithError(err).Error("ingest pass failed")
	return passOutcome{skipped: len(units)}
}

func (l *Loader) decodeUnit(ctx context.Context, u *Unit) ([]*schema.Record, error) {
	c, err := codec.Lookup(u.Format)
	if err != nil {
		return nil, err
	}
	rc, err := u.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	cr, err := codec.NewCompressedReader(rc, u.Compression)
	if err != nil {
		return nil, err
	}
	defer cr.Close()
	data, err := io.ReadAll(cr)
	if err != nil {
		return nil, err
	}
	return c.Decode(ctx, data, l.reg, l.store, codec.Options{
		IgnoreUnknownFields: l.opts.IgnoreUnknownFields,
	})
}

// persist runs the retry chain inside a relaxed store scope, carrying the
// shared iteration counter across calls. A transaction-state failure voids
// the scope's writes, so the whole chain is re-run once.
func (l *Loader) persist(ctx context.Context, records []*schema.Record, iterations int) (int, []*schema.Record) {
	if len(records) == 0 {
		return iterations, nil
	}
	var left []*schema.Record
	for attempt := 0; attempt < 2; attempt++ {
		err := l.store.Relaxed(ctx, func(ctx context.Context) error {
			iterations, left = l.saveAll(ctx, records, iterations)
			return nil
		})
		if err == nil {
			return iterations, left
		}
		if !errors.Is(err, store.ErrTxState) {
			l.opts.Logger.WithError(err).Error("persistence pass failed")
			return iterations, records
		}
		l.opts.Logger.Warn("persistence transaction failed, re-running chain")
	}
	return iterations, records
}

// saveAll walks the chain, collecting records whose save failed, and feeds
// the failures back in until everything lands or the iteration cap is hit.
// Forward references resolve here: a record that failed because its target
// row was missing succeeds once a later record in the chain lands.
func (l *Loader) saveAll(ctx context.Context, records []*schema.Record, iterations int) (int, []*schema.Record) {
	for len(records) > 0 && iterations < l.opts.IterationCap {
		var failed []*schema.Record
		for _, rec := range records {
			s, ok := l.reg.Get(rec.Schema)
			if !ok {
				l.opts.Logger.WithField("schema", rec.Schema).
					Error("dropping record with unknown schema")
				continue
			}
			if !l.store.Routable(s) {
				continue
			}
			if err := l.store.Save(ctx, rec); err != nil {
				l.opts.Logger.WithFields(logrus.Fields{
					"schema": rec.Schema,
					"id":     rec.Identity(s),
				}).Debug(truncateError(err, logErrorMaxBytes))
				failed = append(failed, rec)
			}
		}
		records = failed
		iterations++
	}
	return iterations, records
}
