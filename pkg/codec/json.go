package codec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/iota-uz/gitversions/pkg/schema"
)

func init() {
	Register(&JSONCodec{})
}

// fixtureObject is the wire shape of one record: the schema label, the
// primary key (null when the row is identified by its natural key) and the
// field map. Foreign keys referencing natural-key schemas are arrays holding
// the target's natural key; everything else is a plain value.
type fixtureObject struct {
	Model  string         `json:"model"`
	PK     any            `json:"pk"`
	Fields map[string]any `json:"fields"`
}

type JSONCodec struct{}

func (c *JSONCodec) Format() string { return "json" }

func (c *JSONCodec) Encode(w io.Writer, reg *schema.Registry, records []*schema.Record, opts Options) error {
	objects := make([]fixtureObject, 0, len(records))
	for _, rec := range records {
		s, ok := reg.Get(rec.Schema)
		if !ok {
			return &DecodeError{Kind: KindUnknownSchema, Err: fmt.Errorf("invalid model identifier: %q", rec.Schema)}
		}

		obj := fixtureObject{
			Model:  s.Label(),
			PK:     rec.PK,
			Fields: make(map[string]any, len(rec.Fields)),
		}
		if opts.UseNaturalPrimaryKeys && s.HasNaturalKey() {
			obj.PK = nil
		}
		for name, val := range rec.Fields {
			if ref, ok := val.(schema.NaturalRef); ok {
				obj.Fields[name] = ref.Key
				continue
			}
			obj.Fields[name] = val
		}
		objects = append(objects, obj)
	}

	var (
		data []byte
		err  error
	)
	if opts.Indent > 0 {
		data, err = json.MarshalIndent(objects, "", strings.Repeat(" ", opts.Indent))
	} else {
		data, err = json.Marshal(objects)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (c *JSONCodec) Decode(ctx context.Context, data []byte, reg *schema.Registry, refs schema.RefResolver, opts Options) ([]*schema.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var objects []fixtureObject
	if err := dec.Decode(&objects); err != nil {
		return nil, &DecodeError{Kind: KindMalformed, Err: err}
	}

	var (
		records    []*schema.Record
		unresolved []schema.NaturalRef
	)
	for _, obj := range objects {
		s, ok := reg.Get(obj.Model)
		if !ok {
			return records, &DecodeError{
				Kind:    KindUnknownSchema,
				Records: records,
				Err:     fmt.Errorf("invalid model identifier: %q", obj.Model),
			}
		}

		rec := &schema.Record{
			Schema: s.Label(),
			PK:     normalizeScalar(obj.PK),
			Fields: make(map[string]any, len(obj.Fields)),
		}
		for name, val := range obj.Fields {
			if !s.HasColumn(name) {
				if opts.IgnoreUnknownFields {
					continue
				}
				return records, &DecodeError{
					Kind:    KindMalformed,
					Records: records,
					Err:     fmt.Errorf("unknown field %q on %s", name, s.Label()),
				}
			}

			rel, isRel := s.Relation(name)
			key, isNatural := val.([]any)
			if !isRel || !isNatural {
				rec.Fields[name] = normalizeScalar(val)
				continue
			}

			target, ok := reg.Get(rel.Target)
			if !ok || !target.HasNaturalKey() {
				return records, &DecodeError{
					Kind:    KindMalformed,
					Records: records,
					Err:     fmt.Errorf("field %q on %s holds a natural key but %q has none", name, s.Label(), rel.Target),
				}
			}
			for i, k := range key {
				key[i] = normalizeScalar(k)
			}

			ref := schema.NaturalRef{Target: target.Label(), Key: key}
			if refs == nil {
				rec.Fields[name] = ref
				continue
			}
			pk, err := refs.ResolveRef(ctx, target, key)
			switch {
			case err == nil:
				rec.Fields[name] = pk
			case errors.Is(err, schema.ErrRefNotFound):
				rec.Fields[name] = ref
				unresolved = append(unresolved, ref)
			default:
				return records, &DecodeError{Kind: KindMalformed, Records: records, Err: err}
			}
		}
		records = append(records, rec)
	}

	if len(unresolved) > 0 {
		return records, &DecodeError{
			Kind:    KindUnresolvedReference,
			Records: records,
			Err:     fmt.Errorf("%w: %v", schema.ErrRefNotFound, unresolved),
		}
	}
	return records, nil
}

// normalizeScalar collapses json.Number into int64 where it fits so primary
// keys compare equal across encode/decode round trips.
func normalizeScalar(v any) any {
	n, ok := v.(json.Number)
	if !ok {
		return v
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
