// Package store defines the persistence contract the dump and restore cores
// run against, and its Postgres implementation.
package store

import (
	"context"
	"fmt"

	"github.com/iota-uz/gitversions/pkg/schema"
	"github.com/iota-uz/gitversions/pkg/serrors"
)

var (
	// ErrTxState marks a pass whose transaction was left in an invalid
	// state. The loader recovers by re-queuing the in-flight units and
	// re-running the pass.
	ErrTxState = serrors.NewError("STORE_TX_STATE", "transaction left in invalid state", "")
)

// StoreError tags a failed save with the owning schema and the identity of
// the record, keeping the underlying cause for the operator log.
type StoreError struct {
	Schema   string
	Identity string
	Err      error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("could not load %s(pk=%s): %v", e.Schema, e.Identity, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

type FetchOptions struct {
	// PKs restricts the fetch to the given primary keys (textual form).
	PKs []string
	// NaturalForeignKeys re-expresses foreign keys to natural-key schemas
	// as schema.NaturalRef values.
	NaturalForeignKeys bool
}

// Store persists and fetches typed records.
type Store interface {
	schema.RefResolver

	// Save persists one record, creating or updating the row. Failures are
	// reported as *StoreError and are retryable.
	Save(ctx context.Context, rec *schema.Record) error

	Fetch(ctx context.Context, s *schema.Schema, opts FetchOptions) ([]*schema.Record, error)

	// Routable reports whether the active routing policy permits loading
	// the schema into this store.
	Routable(s *schema.Schema) bool

	// Relaxed runs fn with referential-integrity checks relaxed for the
	// duration of the scope. Enforcement is restored on every exit path.
	Relaxed(ctx context.Context, fn func(context.Context) error) error
}

// Publisher is the save side-effect hook surface; satisfied by the event
// bus. Bulk restore suspends the bus for its whole duration.
type Publisher interface {
	Publish(args ...interface{})
}

// RecordSaved is published after each successful save.
type RecordSaved struct {
	Record *schema.Record
}
