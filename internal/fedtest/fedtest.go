// Package fedtest builds signed statement fixtures for tests: entities with
// fresh signing keys and a seeded stub federation the resolver can walk
// without network access.
package fedtest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/stretchr/testify/require"

	"github.com/sufield/fedtrust/internal/adapters/outbound/inmemory"
	"github.com/sufield/fedtrust/internal/codec"
	"github.com/sufield/fedtrust/internal/domain"
)

// Entity is a federation member with a fresh signing key.
type Entity struct {
	ID         domain.EntityID
	PrivateKey jwk.Key
	Keys       domain.KeySet
}

// NewEntity creates an entity with a generated EC P-256 signing key. The kid
// is derived from the entity identifier so fixtures stay readable.
func NewEntity(t *testing.T, id string) *Entity {
	t.Helper()

	entityID, err := domain.ParseEntityID(id)
	require.NoError(t, err)

	raw, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key, err := jwk.FromRaw(raw)
	require.NoError(t, err)
	require.NoError(t, key.Set(jwk.KeyIDKey, fmt.Sprintf("key-%s", entityID.Host())))
	require.NoError(t, key.Set(jwk.AlgorithmKey, jwa.ES256))

	pub, err := jwk.PublicKeyOf(key)
	require.NoError(t, err)
	keys, err := domain.NewKeySet(pub)
	require.NoError(t, err)

	return &Entity{ID: entityID, PrivateKey: key, Keys: keys}
}

// Statement returns a fresh self-issued statement skeleton for the entity,
// valid for an hour. Callers mutate it before signing.
func (e *Entity) Statement() *domain.EntityStatement {
	now := time.Now()
	return &domain.EntityStatement{
		Issuer:    e.ID,
		Subject:   e.ID,
		IssuedAt:  now.Add(-time.Minute).Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
		Keys:      e.Keys,
	}
}

// SubordinateStatementFor returns a statement skeleton about sub, signed
// later with this entity's key.
func (e *Entity) SubordinateStatementFor(sub *Entity) *domain.SubordinateStatement {
	now := time.Now()
	return &domain.SubordinateStatement{
		Issuer:      e.ID,
		Subject:     sub.ID,
		IssuedAt:    now.Add(-time.Minute).Unix(),
		ExpiresAt:   now.Add(time.Hour).Unix(),
		SubjectKeys: sub.Keys,
	}
}

// TrustMarkFor returns a trust mark skeleton this entity issues for subject.
func (e *Entity) TrustMarkFor(subject domain.EntityID, markType string) *domain.TrustMark {
	now := time.Now()
	return &domain.TrustMark{
		TrustMarkType: markType,
		Issuer:        e.ID,
		Subject:       subject,
		IssuedAt:      now.Add(-time.Minute).Unix(),
		ExpiresAt:     now.Add(time.Hour).Unix(),
	}
}

// Federation is a stub federation: entities, their published statements, and
// the in-memory fetcher serving them.
type Federation struct {
	t       *testing.T
	cdc     *codec.Codec
	Fetcher *inmemory.Fetcher
}

// NewFederation creates an empty stub federation.
func NewFederation(t *testing.T, cdc *codec.Codec) *Federation {
	t.Helper()
	return &Federation{t: t, cdc: cdc, Fetcher: inmemory.NewFetcher()}
}

// PublishConfig signs and publishes an entity configuration. The mutate hook,
// when non-nil, adjusts the skeleton before signing.
func (f *Federation) PublishConfig(e *Entity, mutate func(*domain.EntityStatement)) []byte {
	f.t.Helper()
	st := e.Statement()
	if mutate != nil {
		mutate(st)
	}
	raw, err := f.cdc.SignEntityStatement(st, e.PrivateKey)
	require.NoError(f.t, err)
	f.Fetcher.SetEntityConfiguration(e.ID, raw)
	return raw
}

// PublishSubordinate signs and publishes superior's statement about sub.
func (f *Federation) PublishSubordinate(superior, sub *Entity, mutate func(*domain.SubordinateStatement)) []byte {
	f.t.Helper()
	st := superior.SubordinateStatementFor(sub)
	if mutate != nil {
		mutate(st)
	}
	raw, err := f.cdc.SignEntityStatement(st, superior.PrivateKey)
	require.NoError(f.t, err)
	f.Fetcher.SetSubordinateStatement(superior.ID, sub.ID, raw)
	return raw
}

// SignTrustMark signs a trust mark with the issuer's key.
func (f *Federation) SignTrustMark(issuer *Entity, mark *domain.TrustMark) string {
	f.t.Helper()
	raw, err := f.cdc.SignTrustMark(mark, issuer.PrivateKey)
	require.NoError(f.t, err)
	return string(raw)
}
