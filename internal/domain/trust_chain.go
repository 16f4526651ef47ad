package domain

import (
	"fmt"
	"time"
)

// TrustChain is a validated path of statements from a leaf entity to a
// trusted anchor: the leaf's entity configuration followed by one
// subordinate statement per hop, the last issued by the anchor itself.
// Immutable once returned by the resolver.
type TrustChain struct {
	// Leaf is the subject's self-issued entity configuration.
	Leaf *EntityStatement
	// Links are the subordinate statements walking leaf-ward to
	// anchor-ward: Links[0] is about the leaf, the final link is issued by
	// the anchor.
	Links []*SubordinateStatement
	// AnchorID is the anchor actually reached.
	AnchorID EntityID
	// AnchorConfig is the anchor's verified entity configuration. It is not
	// a chain member (the chain ends with the anchor's statement about the
	// last subordinate) but carries the anchor's keys and its trust mark
	// issuer allow-list.
	AnchorConfig *EntityStatement
}

// Len returns the number of chain members (leaf plus links).
func (c *TrustChain) Len() int {
	return 1 + len(c.Links)
}

// Path returns the entities walked from leaf to anchor.
func (c *TrustChain) Path() []EntityID {
	path := make([]EntityID, 0, len(c.Links)+1)
	path = append(path, c.Leaf.Subject)
	for _, link := range c.Links {
		path = append(path, link.Issuer)
	}
	return path
}

// ExpiresAt returns the earliest expiry over all chain members; the chain is
// unusable past it.
func (c *TrustChain) ExpiresAt() time.Time {
	min := c.Leaf.ExpiresAt
	for _, link := range c.Links {
		if link.ExpiresAt < min {
			min = link.ExpiresAt
		}
	}
	return time.Unix(min, 0)
}

// RawStatements returns every member in wire form, leaf first. This is the
// trust_chain payload of a resolve response.
func (c *TrustChain) RawStatements() []string {
	raw := make([]string, 0, c.Len())
	raw = append(raw, string(c.Leaf.Raw))
	for _, link := range c.Links {
		raw = append(raw, string(link.Raw))
	}
	return raw
}

// VerifyAdjacency re-checks the structural chain invariant: each statement's
// issuer equals the next statement's subject, and the key that signed each
// statement is vouched by the next statement's subject key set (the leaf's
// additionally by its own published set). Cryptographic verification happens
// in the codec during resolution; this is the statement-level cross-check.
func (c *TrustChain) VerifyAdjacency() error {
	if err := c.Leaf.Validate(); err != nil {
		return err
	}
	if len(c.Links) == 0 {
		// Single-member chain: the leaf itself is the anchor.
		if c.Leaf.Subject != c.AnchorID {
			return fmt.Errorf("%w: chain without links does not end at anchor %q", ErrBrokenChainLink, c.AnchorID)
		}
		return nil
	}

	prevSubject := c.Leaf.Subject
	prevKid := c.Leaf.SigningKeyID
	for i, link := range c.Links {
		if err := link.Validate(); err != nil {
			return err
		}
		if link.Subject != prevSubject {
			return fmt.Errorf("%w: link %d subject %q does not continue chain at %q",
				ErrBrokenChainLink, i, link.Subject, prevSubject)
		}
		if i == 0 {
			// The leaf's signing key must be both self-published and vouched.
			key, ok := c.Leaf.Keys.LookupKeyID(prevKid)
			if !ok || !link.SubjectKeys.Contains(key) {
				return fmt.Errorf("%w: leaf signing key %q not vouched by %q",
					ErrBrokenChainLink, prevKid, link.Issuer)
			}
		} else if _, ok := link.SubjectKeys.LookupKeyID(prevKid); !ok {
			return fmt.Errorf("%w: signing key %q of %q not vouched by %q",
				ErrBrokenChainLink, prevKid, prevSubject, link.Issuer)
		}
		prevSubject = link.Issuer
		prevKid = link.SigningKeyID
	}

	last := c.Links[len(c.Links)-1]
	if last.Issuer != c.AnchorID {
		return fmt.Errorf("%w: final link issued by %q, not anchor %q", ErrBrokenChainLink, last.Issuer, c.AnchorID)
	}
	if c.AnchorConfig != nil {
		if _, ok := c.AnchorConfig.Keys.LookupKeyID(last.SigningKeyID); !ok {
			return fmt.Errorf("%w: anchor signing key %q not in anchor configuration", ErrBrokenChainLink, last.SigningKeyID)
		}
	}
	return nil
}
