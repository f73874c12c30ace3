// Package codec turns typed records into serialized fixture bytes and back.
// The dump and restore cores depend only on the Codec contract; concrete
// formats register themselves with the package-level registry.
package codec

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/iota-uz/gitversions/pkg/schema"
	"github.com/iota-uz/gitversions/pkg/serrors"
)

var ErrUnknownFormat = serrors.NewError("CODEC_UNKNOWN_FORMAT", "unknown serialization format", "")

type Options struct {
	// Indent is the pretty-printing level for formats that support it.
	Indent int
	// IgnoreUnknownFields drops fixture fields that no longer exist on the
	// schema instead of failing the unit.
	IgnoreUnknownFields bool
	// UseNaturalForeignKeys and UseNaturalPrimaryKeys control how encode
	// represents references and primary keys for schemas with natural keys.
	UseNaturalForeignKeys bool
	UseNaturalPrimaryKeys bool
}

type Codec interface {
	Format() string
	Encode(w io.Writer, reg *schema.Registry, records []*schema.Record, opts Options) error
	// Decode parses one unit. Natural-key references are resolved through
	// refs; unresolved ones are kept as schema.NaturalRef field values and
	// reported via a DecodeError of KindUnresolvedReference carrying the
	// partially decoded records.
	Decode(ctx context.Context, data []byte, reg *schema.Registry, refs schema.RefResolver, opts Options) ([]*schema.Record, error)
}

// Kind classifies decode failures; only unresolvable references are
// retryable at the record level.
type Kind string

const (
	KindMalformed           Kind = "malformed"
	KindUnknownSchema       Kind = "unknown-schema"
	KindUnresolvedReference Kind = "unresolvable-reference"
)

type DecodeError struct {
	Kind Kind
	// Records decoded before (or despite) the failure. For unresolved
	// references these carry NaturalRef fields and are retried at save time.
	Records []*schema.Record
	Err     error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode (%s): %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var (
	regMu  sync.RWMutex
	codecs = map[string]Codec{}
)

func Register(c Codec) {
	regMu.Lock()
	defer regMu.Unlock()
	codecs[c.Format()] = c
}

func Lookup(format string) (Codec, error) {
	regMu.RLock()
	defer regMu.RUnlock()
	c, ok := codecs[format]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return c, nil
}

func Formats() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(codecs))
	for f := range codecs {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}
