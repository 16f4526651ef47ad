package domain

import (
	"fmt"
	"time"
)

// TrustMarkRef is an entry in the trust_marks claim: a named trust mark type
// together with the signed mark itself in compact JWS form.
type TrustMarkRef struct {
	TrustMarkType string `json:"trust_mark_type"`
	TrustMark     string `json:"trust_mark"`
}

// EntityStatement is a statement an entity issues about itself (its entity
// configuration): its own keys, metadata, the superiors it may request
// subordinate statements from, and trust mark references.
//
// Invariants: iss == sub, exp > iat.
type EntityStatement struct {
	Issuer         EntityID   `json:"iss"`
	Subject        EntityID   `json:"sub"`
	IssuedAt       int64      `json:"iat"`
	ExpiresAt      int64      `json:"exp"`
	Keys           KeySet     `json:"jwks"`
	AuthorityHints []EntityID `json:"authority_hints,omitempty"`
	Metadata       Metadata   `json:"metadata,omitempty"`
	TrustMarks     []TrustMarkRef `json:"trust_marks,omitempty"`
	// TrustMarkIssuers maps a trust mark type to the issuers an anchor
	// recognizes for it. Only meaningful on anchor configurations; an empty
	// issuer list means any issuer the anchor can vouch a chain for.
	TrustMarkIssuers map[string][]EntityID `json:"trust_mark_issuers,omitempty"`
	Constraints      *Constraints          `json:"constraints,omitempty"`

	// Raw is the compact JWS this statement was verified from; not a claim.
	Raw []byte `json:"-"`
	// SigningKeyID is the kid of the key that verified Raw; not a claim.
	SigningKeyID string `json:"-"`
}

// Validate enforces the self-issued statement invariants.
func (s *EntityStatement) Validate() error {
	if s.Issuer == "" || s.Subject == "" {
		return fmt.Errorf("%w: entity configuration missing iss or sub", ErrMalformedStatement)
	}
	if s.Issuer != s.Subject {
		return fmt.Errorf("%w: entity configuration iss %q != sub %q", ErrMalformedStatement, s.Issuer, s.Subject)
	}
	if s.ExpiresAt <= s.IssuedAt {
		return fmt.Errorf("%w: entity configuration exp not after iat", ErrMalformedStatement)
	}
	if s.Keys.Len() == 0 {
		return fmt.Errorf("%w: entity configuration without jwks", ErrMalformedStatement)
	}
	return nil
}

// IssuedTime returns iat as a time.
func (s *EntityStatement) IssuedTime() time.Time { return time.Unix(s.IssuedAt, 0) }

// ExpiresTime returns exp as a time.
func (s *EntityStatement) ExpiresTime() time.Time { return time.Unix(s.ExpiresAt, 0) }

// SubordinateStatement is a statement a superior issues about an immediate
// subordinate: the keys it vouches the subject owns, the metadata policy it
// imposes, and optionally where to fetch more of the subject's statements.
//
// Invariants: iss != sub, exp > iat, signed with a key from the issuer's
// own key set (enforced by the codec, not here).
type SubordinateStatement struct {
	Issuer         EntityID       `json:"iss"`
	Subject        EntityID       `json:"sub"`
	IssuedAt       int64          `json:"iat"`
	ExpiresAt      int64          `json:"exp"`
	SubjectKeys    KeySet         `json:"jwks"`
	MetadataPolicy MetadataPolicy `json:"metadata_policy,omitempty"`
	SourceEndpoint string         `json:"source_endpoint,omitempty"`
	Constraints    *Constraints   `json:"constraints,omitempty"`

	// Raw is the compact JWS this statement was verified from; not a claim.
	Raw []byte `json:"-"`
	// SigningKeyID is the kid of the issuer key that verified Raw; not a claim.
	SigningKeyID string `json:"-"`
}

// Validate enforces the subordinate statement invariants.
func (s *SubordinateStatement) Validate() error {
	if s.Issuer == "" || s.Subject == "" {
		return fmt.Errorf("%w: subordinate statement missing iss or sub", ErrMalformedStatement)
	}
	if s.Issuer == s.Subject {
		return fmt.Errorf("%w: subordinate statement iss == sub (%q)", ErrMalformedStatement, s.Issuer)
	}
	if s.ExpiresAt <= s.IssuedAt {
		return fmt.Errorf("%w: subordinate statement exp not after iat", ErrMalformedStatement)
	}
	if s.SubjectKeys.Len() == 0 {
		return fmt.Errorf("%w: subordinate statement vouches no keys", ErrMalformedStatement)
	}
	return nil
}

// IssuedTime returns iat as a time.
func (s *SubordinateStatement) IssuedTime() time.Time { return time.Unix(s.IssuedAt, 0) }

// ExpiresTime returns exp as a time.
func (s *SubordinateStatement) ExpiresTime() time.Time { return time.Unix(s.ExpiresAt, 0) }
