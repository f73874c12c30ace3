package schema

import (
	"context"

	"github.com/iota-uz/gitversions/pkg/serrors"
)

// ErrRefNotFound signals that a natural-key reference points at a row that
// does not exist (yet). Decode and save paths treat it as retryable.
var ErrRefNotFound = serrors.NewError("SCHEMA_REF_NOT_FOUND", "referenced row does not exist", "")

// RefResolver resolves a natural-key reference to the target row's primary
// key. Implemented by the store.
type RefResolver interface {
	ResolveRef(ctx context.Context, target *Schema, key []any) (any, error)
}
