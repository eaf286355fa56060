/*
store.go - Persistence interface for tracker rows

PURPOSE:
  Defines the contract between the occurrence service and the database.
  Implementations live in store/memory (tests/dev) and store/sqlite
  (production).

ATOMICITY CONTRACT:
  Put is an atomic upsert keyed by (policy, employee, type). Together with
  the Service's per-key serialization this gives the single-writer-per-key
  guarantee: a lost update here corrupts an employee's penalty history, so
  this is a hard invariant, not a performance nicety.
*/
package occurrence

import "context"

// Store persists tracker rows.
type Store interface {
	// Get returns the tracker for a key, or ErrTrackerNotFound.
	Get(ctx context.Context, key Key) (Tracker, error)

	// Put atomically creates or replaces the tracker row for its key.
	Put(ctx context.Context, tracker Tracker) error

	// ListByPolicy returns every tracker under one policy.
	ListByPolicy(ctx context.Context, policyID PolicyID) ([]Tracker, error)

	// ListAll returns every tracker. Used by the auto-reset sweep.
	ListAll(ctx context.Context) ([]Tracker, error)

	// Delete removes a tracker row. Explicit administrative action only.
	Delete(ctx context.Context, key Key) error
}
