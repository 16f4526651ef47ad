// Package codec signs and verifies the compact JWS statements federation
// entities exchange: entity configurations, subordinate statements, trust
// marks and resolve responses. It is pure computation over its inputs; all
// fetching happens behind the ports.Fetcher boundary.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"

	"github.com/sufield/fedtrust/internal/domain"
)

// JOSE typ values for the statement kinds.
const (
	TypeEntityStatement = "entity-statement+jwt"
	TypeTrustMark       = "trust-mark+jwt"
	TypeResolveResponse = "resolve-response+jwt"
)

// DefaultClockSkew tolerates small clock drift between federation members.
const DefaultClockSkew = 2 * time.Minute

// Codec verifies and produces signed statements.
type Codec struct {
	skew time.Duration
	now  func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClockSkew sets the tolerated clock drift for iat/exp checks.
func WithClockSkew(d time.Duration) Option {
	return func(c *Codec) { c.skew = d }
}

// WithClock overrides the time source; tests pin it.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// New creates a Codec.
func New(opts ...Option) *Codec {
	c := &Codec{skew: DefaultClockSkew, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VerifyEntityConfiguration verifies a self-issued entity configuration.
// Self-issued means the signature is checked against the key set embedded in
// the statement itself; trust in those keys is established separately by the
// superior's vouching statement.
func (c *Codec) VerifyEntityConfiguration(raw []byte) (*domain.EntityStatement, error) {
	payload, err := unverifiedPayload(raw)
	if err != nil {
		return nil, err
	}
	var st domain.EntityStatement
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("%w: entity configuration claims: %v", domain.ErrMalformedStatement, err)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	kid, err := c.verifySignature(raw, st.Keys, TypeEntityStatement)
	if err != nil {
		return nil, err
	}
	if err := c.checkWindow(st.IssuedAt, st.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: entity configuration of %q", err, st.Subject)
	}
	st.Raw = append([]byte(nil), raw...)
	st.SigningKeyID = kid
	return &st, nil
}

// VerifySubordinateStatement verifies a statement a superior issued about a
// subordinate, against the superior's own advertised key set.
func (c *Codec) VerifySubordinateStatement(raw []byte, issuerKeys domain.KeySet) (*domain.SubordinateStatement, error) {
	kid, err := c.verifySignature(raw, issuerKeys, TypeEntityStatement)
	if err != nil {
		return nil, err
	}
	payload, err := unverifiedPayload(raw)
	if err != nil {
		return nil, err
	}
	var st domain.SubordinateStatement
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("%w: subordinate statement claims: %v", domain.ErrMalformedStatement, err)
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if err := c.checkWindow(st.IssuedAt, st.ExpiresAt); err != nil {
		return nil, fmt.Errorf("%w: subordinate statement %q -> %q", err, st.Issuer, st.Subject)
	}
	st.Raw = append([]byte(nil), raw...)
	st.SigningKeyID = kid
	return &st, nil
}

// VerifyTrustMark verifies a trust mark against its issuer's resolved key set.
func (c *Codec) VerifyTrustMark(raw []byte, issuerKeys domain.KeySet) (*domain.TrustMark, error) {
	if _, err := c.verifySignature(raw, issuerKeys, TypeTrustMark); err != nil {
		return nil, err
	}
	payload, err := unverifiedPayload(raw)
	if err != nil {
		return nil, err
	}
	var mark domain.TrustMark
	if err := json.Unmarshal(payload, &mark); err != nil {
		return nil, fmt.Errorf("%w: trust mark claims: %v", domain.ErrMalformedStatement, err)
	}
	if err := mark.Validate(); err != nil {
		return nil, err
	}
	if mark.ExpiresAt != 0 {
		if err := c.checkWindow(mark.IssuedAt, mark.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%w: trust mark %q for %q", err, mark.TrustMarkType, mark.Subject)
		}
	}
	mark.Raw = append([]byte(nil), raw...)
	return &mark, nil
}

// VerifySignature checks only that raw verifies under one of the candidate
// keys. The resolver uses it to confirm a previously accepted statement is
// signed by a key the next hop vouches for.
func (c *Codec) VerifySignature(raw []byte, candidateKeys domain.KeySet) error {
	_, err := c.verifySignature(raw, candidateKeys, "")
	return err
}

// PeekIssuer extracts the iss claim without verifying the signature. The
// trust mark validator needs the claimed issuer before it can resolve the
// keys that decide whether the claim holds.
func (c *Codec) PeekIssuer(raw []byte) (domain.EntityID, error) {
	payload, err := unverifiedPayload(raw)
	if err != nil {
		return "", err
	}
	var claims struct {
		Issuer domain.EntityID `json:"iss"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", fmt.Errorf("%w: unreadable iss claim: %v", domain.ErrMalformedStatement, err)
	}
	if claims.Issuer == "" {
		return "", fmt.Errorf("%w: missing iss claim", domain.ErrMalformedStatement)
	}
	return claims.Issuer, nil
}

// Sign produces a compact JWS over claims with the given JOSE typ. The key
// must be a private key carrying a kid; its alg is honored, defaulting to
// ES256. Not on the resolution hot path.
func (c *Codec) Sign(claims any, key jwk.Key, typ string) ([]byte, error) {
	if key == nil || key.KeyID() == "" {
		return nil, fmt.Errorf("signing key must carry a kid")
	}
	payload, err := json.Marshal(claims)
	if err != nil {
		return nil, fmt.Errorf("marshaling claims: %w", err)
	}
	alg := jwa.ES256
	if sa, ok := key.Algorithm().(jwa.SignatureAlgorithm); ok && sa != "" {
		alg = sa
	}
	hdrs := jws.NewHeaders()
	if err := hdrs.Set(jws.TypeKey, typ); err != nil {
		return nil, fmt.Errorf("setting typ header: %w", err)
	}
	if err := hdrs.Set(jws.KeyIDKey, key.KeyID()); err != nil {
		return nil, fmt.Errorf("setting kid header: %w", err)
	}
	signed, err := jws.Sign(payload, jws.WithKey(alg, key, jws.WithProtectedHeaders(hdrs)))
	if err != nil {
		return nil, fmt.Errorf("signing statement: %w", err)
	}
	return signed, nil
}

// SignEntityStatement signs an entity configuration or subordinate statement.
func (c *Codec) SignEntityStatement(claims any, key jwk.Key) ([]byte, error) {
	return c.Sign(claims, key, TypeEntityStatement)
}

// SignTrustMark signs a trust mark.
func (c *Codec) SignTrustMark(mark *domain.TrustMark, key jwk.Key) ([]byte, error) {
	return c.Sign(mark, key, TypeTrustMark)
}

// verifySignature verifies raw against the candidate keys, preferring the
// key the JWS header names. Returns the kid that verified.
func (c *Codec) verifySignature(raw []byte, keys domain.KeySet, wantTyp string) (string, error) {
	msg, err := jws.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: not a compact JWS: %v", domain.ErrMalformedStatement, err)
	}
	sigs := msg.Signatures()
	if len(sigs) == 0 {
		return "", fmt.Errorf("%w: statement carries no signature", domain.ErrMalformedStatement)
	}
	hdr := sigs[0].ProtectedHeaders()
	alg := hdr.Algorithm()
	if alg == "" || alg == jwa.NoSignature {
		return "", fmt.Errorf("%w: unsigned statement rejected", domain.ErrSignatureInvalid)
	}
	if wantTyp != "" && hdr.Type() != wantTyp {
		return "", fmt.Errorf("%w: typ %q, want %q", domain.ErrMalformedStatement, hdr.Type(), wantTyp)
	}

	try := func(key jwk.Key) bool {
		_, err := jws.Verify(raw, jws.WithKey(alg, key))
		return err == nil
	}

	if kid := hdr.KeyID(); kid != "" {
		key, ok := keys.LookupKeyID(kid)
		if !ok {
			return "", fmt.Errorf("%w: no candidate key with kid %q", domain.ErrSignatureInvalid, kid)
		}
		if !try(key) {
			return "", fmt.Errorf("%w: signature does not verify under kid %q", domain.ErrSignatureInvalid, kid)
		}
		return kid, nil
	}

	// No kid in the header: try each candidate in publication order.
	for i := 0; i < keys.Len(); i++ {
		key, ok := keys.Key(i)
		if !ok {
			continue
		}
		if try(key) {
			return key.KeyID(), nil
		}
	}
	return "", fmt.Errorf("%w: no candidate key verifies the signature", domain.ErrSignatureInvalid)
}

func (c *Codec) checkWindow(iat, exp int64) error {
	now := c.now()
	if now.Add(c.skew).Before(time.Unix(iat, 0)) {
		return domain.ErrExpired
	}
	if !now.Before(time.Unix(exp, 0).Add(c.skew)) {
		return domain.ErrExpired
	}
	return nil
}

func unverifiedPayload(raw []byte) ([]byte, error) {
	msg, err := jws.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: not a compact JWS: %v", domain.ErrMalformedStatement, err)
	}
	return msg.Payload(), nil
}
