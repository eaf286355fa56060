package policy

import (
	"context"
	"errors"
)

// ErrPolicyNotFound is returned by Store.Get for unknown IDs.
var ErrPolicyNotFound = errors.New("policy not found")

// Store persists policy definitions. Implementations live in
// store/memory (tests/dev) and store/sqlite (production).
type Store interface {
	// Get returns the policy for an ID, or ErrPolicyNotFound.
	Get(ctx context.Context, id ID) (Policy, error)

	// Put creates or replaces the policy.
	Put(ctx context.Context, p Policy) error

	// ListByCompany returns every policy belonging to a company.
	ListByCompany(ctx context.Context, companyID string) ([]Policy, error)

	// Delete removes a policy definition.
	Delete(ctx context.Context, id ID) error
}
