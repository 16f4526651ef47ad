package domain

import (
	"bytes"
	"crypto"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// KeySet is an ordered set of public verification keys, each carrying a key
// identifier unique within the set. On the wire it is a JWK Set under the
// "jwks" claim. It is owned by the entity that published it; statements that
// vouch for it reference keys by identifier rather than copying them.
type KeySet struct {
	set jwk.Set
}

// NewKeySet builds a key set from the given keys. Keys without a key ID or
// with a duplicate key ID are rejected.
func NewKeySet(keys ...jwk.Key) (KeySet, error) {
	set := jwk.NewSet()
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		kid := k.KeyID()
		if kid == "" {
			return KeySet{}, fmt.Errorf("%w: key without kid in key set", ErrMalformedStatement)
		}
		if _, dup := seen[kid]; dup {
			return KeySet{}, fmt.Errorf("%w: duplicate kid %q in key set", ErrMalformedStatement, kid)
		}
		seen[kid] = struct{}{}
		if err := set.AddKey(k); err != nil {
			return KeySet{}, fmt.Errorf("adding key %q: %w", kid, err)
		}
	}
	return KeySet{set: set}, nil
}

// Len returns the number of keys.
func (ks KeySet) Len() int {
	if ks.set == nil {
		return 0
	}
	return ks.set.Len()
}

// Key returns the i-th key in publication order.
func (ks KeySet) Key(i int) (jwk.Key, bool) {
	if ks.set == nil {
		return nil, false
	}
	return ks.set.Key(i)
}

// LookupKeyID returns the key with the given identifier.
func (ks KeySet) LookupKeyID(kid string) (jwk.Key, bool) {
	if ks.set == nil {
		return nil, false
	}
	return ks.set.LookupKeyID(kid)
}

// Contains reports whether the set holds a key with the same identifier and
// the same key material (compared by thumbprint, so a forged key reusing a
// vouched kid does not pass).
func (ks KeySet) Contains(key jwk.Key) bool {
	if key == nil {
		return false
	}
	candidate, ok := ks.LookupKeyID(key.KeyID())
	if !ok {
		return false
	}
	want, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return false
	}
	got, err := candidate.Thumbprint(crypto.SHA256)
	if err != nil {
		return false
	}
	return bytes.Equal(want, got)
}

// MarshalJSON renders the set as a JWK Set document.
func (ks KeySet) MarshalJSON() ([]byte, error) {
	if ks.set == nil {
		return []byte(`{"keys":[]}`), nil
	}
	return json.Marshal(ks.set)
}

// UnmarshalJSON parses a JWK Set document.
func (ks *KeySet) UnmarshalJSON(data []byte) error {
	set, err := jwk.Parse(data)
	if err != nil {
		return fmt.Errorf("%w: jwks claim: %v", ErrMalformedStatement, err)
	}
	ks.set = set
	return nil
}

// IsZero reports whether the set was never populated.
func (ks KeySet) IsZero() bool {
	return ks.set == nil
}
