// Package ports defines the boundaries the trust resolution core consumes
// but never implements: fetching raw statements from remote federation
// endpoints, and the statement store the hosting entity serves its own
// federation surface from.
package ports

import (
	"context"

	"github.com/sufield/fedtrust/internal/domain"
)

// Fetcher retrieves raw signed statements from federation endpoints. It is
// the only blocking boundary of the resolver; implementations apply their
// own per-fetch timeout and bounded retries for transient failures.
//
// Error Contract:
//   - Returns domain.ErrUnreachableEntity when the endpoint cannot be
//     reached after bounded retries.
//   - Returns domain.ErrNotFound when the endpoint answers but holds no
//     statement for the subject.
type Fetcher interface {
	// FetchEntityConfiguration fetches the entity's self-issued statement
	// from its well-known federation endpoint.
	FetchEntityConfiguration(ctx context.Context, entity domain.EntityID) ([]byte, error)

	// FetchSubordinateStatement fetches the superior's statement about the
	// subject from the superior's fetch endpoint.
	FetchSubordinateStatement(ctx context.Context, superior, subject domain.EntityID) ([]byte, error)
}

// SubordinateRecord is what the hosting entity knows about one of its
// immediate subordinates: the keys it vouches for and the policy it imposes.
type SubordinateRecord struct {
	ID     domain.EntityID
	Keys   domain.KeySet
	Policy domain.MetadataPolicy
	// Constraints the superior imposes on everything below the subordinate.
	Constraints *domain.Constraints
}

// StatementSource is the statement store behind the hosting entity's own
// federation endpoints. The resolver never touches it; it receives parsed
// anchor sets and hint lists as inputs instead.
//
// Error Contract:
//   - Subordinate returns domain.ErrNotFound for an unknown subject.
type StatementSource interface {
	// Subordinate returns the record for an immediate subordinate.
	Subordinate(ctx context.Context, subject domain.EntityID) (*SubordinateRecord, error)

	// ListSubordinates returns the identifiers of all registered
	// subordinates in registration order.
	ListSubordinates(ctx context.Context) ([]domain.EntityID, error)

	// TrustMarkStatus reports whether this entity has issued an active
	// trust mark of the given type for the subject.
	TrustMarkStatus(ctx context.Context, subject domain.EntityID, markType string) (bool, error)
}
