package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/gitversions/pkg/composables"
	"github.com/iota-uz/gitversions/pkg/schema"
)

// PgStore persists records through the pgx transaction or pool carried in
// the context (composables.WithPool / WithTx).
type PgStore struct {
	reg    *schema.Registry
	events Publisher
	policy func(*schema.Schema) bool
	log    *logrus.Entry
}

type PgOption func(*PgStore)

// WithPublisher attaches the save side-effect hook; every successful save
// outside a suspended scope publishes a *RecordSaved event.
func WithPublisher(p Publisher) PgOption {
	return func(s *PgStore) { s.events = p }
}

// WithRoutePolicy installs the routing/migration policy gate. The default
// permits every schema.
func WithRoutePolicy(fn func(*schema.Schema) bool) PgOption {
	return func(s *PgStore) { s.policy = fn }
}

func WithLogger(log *logrus.Entry) PgOption {
	return func(s *PgStore) { s.log = log }
}

func NewPgStore(reg *schema.Registry, opts ...PgOption) *PgStore {
	s := &PgStore{reg: reg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (p *PgStore) Save(ctx context.Context, rec *schema.Record) error {
	s, ok := p.reg.Get(rec.Schema)
	if !ok {
		return &StoreError{Schema: rec.Schema, Identity: "?", Err: fmt.Errorf("unknown schema")}
	}

	if err := p.resolveNaturalRefs(ctx, s, rec); err != nil {
		return &StoreError{Schema: s.Label(), Identity: rec.Identity(s), Err: err}
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return &StoreError{Schema: s.Label(), Identity: rec.Identity(s), Err: err}
	}

	sql, args, returning := buildUpsert(s, rec)
	if returning {
		var pk any
		if err := tx.QueryRow(ctx, sql, args...).Scan(&pk); err != nil {
			return &StoreError{Schema: s.Label(), Identity: rec.Identity(s), Err: err}
		}
		rec.PK = pk
	} else if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return &StoreError{Schema: s.Label(), Identity: rec.Identity(s), Err: err}
	}

	if p.events != nil {
		p.events.Publish(&RecordSaved{Record: rec})
	}
	return nil
}

// resolveNaturalRefs replaces natural-key reference values with the target
// rows' primary keys. A miss is retryable: the referenced row may land in a
// later pass of the same restore.
func (p *PgStore) resolveNaturalRefs(ctx context.Context, s *schema.Schema, rec *schema.Record) error {
	for col, val := range rec.Fields {
		ref, ok := val.(schema.NaturalRef)
		if !ok {
			continue
		}
		target, ok := p.reg.Get(ref.Target)
		if !ok {
			return fmt.Errorf("unknown schema in reference %s", ref)
		}
		pk, err := p.ResolveRef(ctx, target, ref.Key)
		if err != nil {
			return err
		}
		rec.Fields[col] = pk
	}
	return nil
}

func (p *PgStore) ResolveRef(ctx context.Context, target *schema.Schema, key []any) (any, error) {
	if !target.HasNaturalKey() {
		return nil, fmt.Errorf("schema %s has no natural key", target.Label())
	}
	if len(key) != len(target.NaturalKey) {
		return nil, fmt.Errorf("natural key for %s needs %d values, got %d",
			target.Label(), len(target.NaturalKey), len(key))
	}

	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, err
	}

	conds := make([]string, len(target.NaturalKey))
	for i, col := range target.NaturalKey {
		conds[i] = fmt.Sprintf("%s = $%d", col, i+1)
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		target.PKColumn, target.Table, strings.Join(conds, " AND "))

	var pk any
	if err := tx.QueryRow(ctx, q, key...).Scan(&pk); err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", schema.ErrRefNotFound, schema.NaturalRef{Target: target.Label(), Key: key})
		}
		return nil, errors.Wrap(err, "resolve natural key")
	}
	return pk, nil
}

func (p *PgStore) Fetch(ctx context.Context, s *schema.Schema, opts FetchOptions) ([]*schema.Record, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	cols := selectColumns(s)
	q := fmt.Sprintf("SELECT %s FROM %s", strings.Join(cols, ", "), s.Table)
	var args []any
	if len(opts.PKs) > 0 {
		q += fmt.Sprintf(" WHERE %s::text = ANY($1)", s.PKColumn)
		args = append(args, opts.PKs)
	}
	q += fmt.Sprintf(" ORDER BY %s", s.PKColumn)

	rows, err := tx.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute query")
	}
	defer rows.Close()

	var records []*schema.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan row")
		}
		rec := &schema.Record{
			Schema: s.Label(),
			PK:     vals[0],
			Fields: make(map[string]any, len(s.Columns)),
		}
		for i, col := range s.Columns {
			rec.Fields[col] = vals[i+1]
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration error")
	}

	if opts.NaturalForeignKeys {
		for _, rec := range records {
			if err := p.naturalizeRefs(ctx, s, rec); err != nil {
				return nil, err
			}
		}
	}
	return records, nil
}

// naturalizeRefs rewrites foreign keys pointing at natural-key schemas as
// NaturalRef values, so dumps stay loadable when generated primary keys
// differ between stores.
func (p *PgStore) naturalizeRefs(ctx context.Context, s *schema.Schema, rec *schema.Record) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return err
	}
	for _, rel := range s.Relations {
		target, ok := p.reg.Get(rel.Target)
		if !ok || !target.HasNaturalKey() {
			continue
		}
		val, ok := rec.Fields[rel.Column]
		if !ok || val == nil {
			continue
		}

		q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
			strings.Join(target.NaturalKey, ", "), target.Table, target.PKColumn)
		row, err := tx.Query(ctx, q, val)
		if err != nil {
			return errors.Wrap(err, "naturalize reference")
		}
		if row.Next() {
			key, err := row.Values()
			if err != nil {
				row.Close()
				return errors.Wrap(err, "naturalize reference")
			}
			rec.Fields[rel.Column] = schema.NaturalRef{Target: target.Label(), Key: key}
		}
		row.Close()
		if err := row.Err(); err != nil {
			return errors.Wrap(err, "naturalize reference")
		}
	}
	return nil
}

func (p *PgStore) Routable(s *schema.Schema) bool {
	if p.policy == nil {
		return true
	}
	return p.policy(s)
}

func (p *PgStore) Relaxed(ctx context.Context, fn func(context.Context) error) error {
	err := composables.InDeferredTx(ctx, fn)
	if err == nil {
		return nil
	}
	if stderrors.Is(err, pgx.ErrTxClosed) || stderrors.Is(err, pgx.ErrTxCommitRollback) {
		return fmt.Errorf("%w: %v", ErrTxState, err)
	}
	return err
}
