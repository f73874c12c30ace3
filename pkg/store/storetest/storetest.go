// Package storetest provides an in-memory Store used by loader and dump
// tests. It honors the parts of the contract the cores rely on: natural-key
// resolution failing until the referenced row lands, upsert-style saves,
// routing policy, and injectable failures for transaction-state recovery.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/iota-uz/gitversions/pkg/schema"
	"github.com/iota-uz/gitversions/pkg/store"
)

type Store struct {
	mu   sync.Mutex
	reg  *schema.Registry
	rows map[string]map[string]*schema.Record
	seq  int64

	// Policy is the routing gate; nil permits everything.
	Policy func(*schema.Schema) bool
	// Events receives RecordSaved after each successful save.
	Events store.Publisher
	// FailNext makes the next Relaxed scope fail with a transaction-state
	// error after running fn, discarding its writes.
	FailNext bool

	SaveCalls    int
	RelaxedCalls int
}

func New(reg *schema.Registry) *Store {
	return &Store{reg: reg, rows: map[string]map[string]*schema.Record{}}
}

func (st *Store) Save(ctx context.Context, rec *schema.Record) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.SaveCalls++

	s, ok := st.reg.Get(rec.Schema)
	if !ok {
		return &store.StoreError{Schema: rec.Schema, Identity: "?", Err: fmt.Errorf("unknown schema")}
	}

	for col, val := range rec.Fields {
		ref, ok := val.(schema.NaturalRef)
		if !ok {
			continue
		}
		target, ok := st.reg.Get(ref.Target)
		if !ok {
			return &store.StoreError{Schema: s.Label(), Identity: rec.Identity(s), Err: fmt.Errorf("unknown schema in reference %s", ref)}
		}
		pk, err := st.resolveLocked(target, ref.Key)
		if err != nil {
			return &store.StoreError{Schema: s.Label(), Identity: rec.Identity(s), Err: err}
		}
		rec.Fields[col] = pk
	}

	if rec.PK == nil {
		if pk, err := st.resolveOwnKeyLocked(s, rec); err == nil {
			rec.PK = pk
		} else {
			st.seq++
			rec.PK = st.seq
		}
	}

	table := st.rows[s.Label()]
	if table == nil {
		table = map[string]*schema.Record{}
		st.rows[s.Label()] = table
	}
	table[fmt.Sprint(rec.PK)] = cloneRecord(rec)

	if st.Events != nil {
		st.Events.Publish(&store.RecordSaved{Record: rec})
	}
	return nil
}

func (st *Store) ResolveRef(ctx context.Context, target *schema.Schema, key []any) (any, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.resolveLocked(target, key)
}

func (st *Store) resolveLocked(target *schema.Schema, key []any) (any, error) {
	for _, rec := range st.rows[target.Label()] {
		if matchesKey(target, rec, key) {
			return rec.PK, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", schema.ErrRefNotFound, schema.NaturalRef{Target: target.Label(), Key: key})
}

func (st *Store) resolveOwnKeyLocked(s *schema.Schema, rec *schema.Record) (any, error) {
	key, ok := rec.NaturalKeyValues(s)
	if !ok {
		return nil, fmt.Errorf("no natural key on record")
	}
	return st.resolveLocked(s, key)
}

func (st *Store) Fetch(ctx context.Context, s *schema.Schema, opts store.FetchOptions) ([]*schema.Record, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	table := st.rows[s.Label()]
	pks := make([]string, 0, len(table))
	for pk := range table {
		if len(opts.PKs) > 0 && !containsStr(opts.PKs, pk) {
			continue
		}
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	out := make([]*schema.Record, 0, len(pks))
	for _, pk := range pks {
		rec := cloneRecord(table[pk])
		if opts.NaturalForeignKeys {
			st.naturalizeLocked(s, rec)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (st *Store) naturalizeLocked(s *schema.Schema, rec *schema.Record) {
	for _, rel := range s.Relations {
		target, ok := st.reg.Get(rel.Target)
		if !ok || !target.HasNaturalKey() {
			continue
		}
		val, ok := rec.Fields[rel.Column]
		if !ok || val == nil {
			continue
		}
		row := st.rows[target.Label()][fmt.Sprint(val)]
		if row == nil {
			continue
		}
		key := make([]any, 0, len(target.NaturalKey))
		for _, col := range target.NaturalKey {
			key = append(key, row.Fields[col])
		}
		rec.Fields[rel.Column] = schema.NaturalRef{Target: target.Label(), Key: key}
	}
}

func (st *Store) Routable(s *schema.Schema) bool {
	if st.Policy == nil {
		return true
	}
	return st.Policy(s)
}

func (st *Store) Relaxed(ctx context.Context, fn func(context.Context) error) error {
	st.mu.Lock()
	st.RelaxedCalls++
	fail := st.FailNext
	st.FailNext = false
	snapshot := st.snapshotLocked()
	st.mu.Unlock()

	err := fn(ctx)

	if fail {
		st.mu.Lock()
		st.rows = snapshot
		st.mu.Unlock()
		return fmt.Errorf("%w: injected failure", store.ErrTxState)
	}
	return err
}

func (st *Store) snapshotLocked() map[string]map[string]*schema.Record {
	out := make(map[string]map[string]*schema.Record, len(st.rows))
	for label, table := range st.rows {
		cp := make(map[string]*schema.Record, len(table))
		for pk, rec := range table {
			cp[pk] = cloneRecord(rec)
		}
		out[label] = cp
	}
	return out
}

// Put seeds a row directly, bypassing reference checks.
func (st *Store) Put(rec *schema.Record) {
	st.mu.Lock()
	defer st.mu.Unlock()
	table := st.rows[rec.Schema]
	if table == nil {
		table = map[string]*schema.Record{}
		st.rows[rec.Schema] = table
	}
	table[fmt.Sprint(rec.PK)] = cloneRecord(rec)
}

func (st *Store) Has(label string, pk any) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	_, ok := st.rows[label][fmt.Sprint(pk)]
	return ok
}

func (st *Store) Count(label string) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.rows[label])
}

func matchesKey(s *schema.Schema, rec *schema.Record, key []any) bool {
	if len(key) != len(s.NaturalKey) {
		return false
	}
	for i, col := range s.NaturalKey {
		if fmt.Sprint(rec.Fields[col]) != fmt.Sprint(key[i]) {
			return false
		}
	}
	return true
}

func cloneRecord(rec *schema.Record) *schema.Record {
	cp := &schema.Record{Schema: rec.Schema, PK: rec.PK, Fields: make(map[string]any, len(rec.Fields))}
	for k, v := range rec.Fields {
		cp.Fields[k] = v
	}
	return cp
}

func containsStr(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
