package domain

import (
	"fmt"
	"time"
)

// TrustMark is an assertion by a trust mark issuer that a subject satisfies
// the property named by its type. Signed by the issuer; the issuer's keys
// are established through chain resolution, never taken from the mark.
type TrustMark struct {
	TrustMarkType string   `json:"trust_mark_type"`
	Issuer        EntityID `json:"iss"`
	Subject       EntityID `json:"sub"`
	IssuedAt      int64    `json:"iat"`
	ExpiresAt     int64    `json:"exp,omitempty"`
	// Ref optionally points at the policy document behind the mark.
	Ref string `json:"ref,omitempty"`

	// Raw is the compact JWS this mark was verified from; not a claim.
	Raw []byte `json:"-"`
}

// Validate enforces the trust mark invariants. A mark without exp never
// expires, matching the protocol's optional lifetime.
func (m *TrustMark) Validate() error {
	if m.TrustMarkType == "" {
		return fmt.Errorf("%w: trust mark without trust_mark_type", ErrMalformedStatement)
	}
	if m.Issuer == "" || m.Subject == "" {
		return fmt.Errorf("%w: trust mark missing iss or sub", ErrMalformedStatement)
	}
	if m.ExpiresAt != 0 && m.ExpiresAt <= m.IssuedAt {
		return fmt.Errorf("%w: trust mark exp not after iat", ErrMalformedStatement)
	}
	return nil
}

// IssuedTime returns iat as a time.
func (m *TrustMark) IssuedTime() time.Time { return time.Unix(m.IssuedAt, 0) }

// ExpiresTime returns exp as a time; zero time if the mark has no expiry.
func (m *TrustMark) ExpiresTime() time.Time {
	if m.ExpiresAt == 0 {
		return time.Time{}
	}
	return time.Unix(m.ExpiresAt, 0)
}
