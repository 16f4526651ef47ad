package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(n int) *int { return &n }

// chainOf builds an unsigned chain skeleton for constraint checks, which only
// read subjects, issuers and the constraints claims.
func chainOf(leaf EntityID, hops ...*SubordinateStatement) *TrustChain {
	chain := &TrustChain{
		Leaf:  &EntityStatement{Issuer: leaf, Subject: leaf},
		Links: hops,
	}
	if len(hops) > 0 {
		chain.AnchorID = hops[len(hops)-1].Issuer
	}
	return chain
}

func TestCheckChainConstraintsMaxPathLength(t *testing.T) {
	t.Parallel()

	t.Run("within limit", func(t *testing.T) {
		t.Parallel()
		chain := chainOf("https://op.example.org",
			&SubordinateStatement{Issuer: "https://mid.example.org", Subject: "https://op.example.org"},
			&SubordinateStatement{
				Issuer:      "https://ta.example.org",
				Subject:     "https://mid.example.org",
				Constraints: &Constraints{MaxPathLength: intp(1)},
			},
		)
		assert.NoError(t, CheckChainConstraints(chain))
	})

	t.Run("exceeded", func(t *testing.T) {
		t.Parallel()
		chain := chainOf("https://op.example.org",
			&SubordinateStatement{Issuer: "https://mid2.example.org", Subject: "https://op.example.org"},
			&SubordinateStatement{Issuer: "https://mid1.example.org", Subject: "https://mid2.example.org"},
			&SubordinateStatement{
				Issuer:      "https://ta.example.org",
				Subject:     "https://mid1.example.org",
				Constraints: &Constraints{MaxPathLength: intp(1)},
			},
		)
		assert.ErrorIs(t, CheckChainConstraints(chain), ErrPolicyViolation)
	})

	t.Run("subordinate may tighten but not relax", func(t *testing.T) {
		t.Parallel()
		chain := chainOf("https://op.example.org",
			&SubordinateStatement{Issuer: "https://mid2.example.org", Subject: "https://op.example.org"},
			&SubordinateStatement{
				Issuer:  "https://mid1.example.org",
				Subject: "https://mid2.example.org",
				// An attempt to relax the anchor's limit of 0 below mid1.
				Constraints: &Constraints{MaxPathLength: intp(5)},
			},
			&SubordinateStatement{
				Issuer:      "https://ta.example.org",
				Subject:     "https://mid1.example.org",
				Constraints: &Constraints{MaxPathLength: intp(1)},
			},
		)
		assert.ErrorIs(t, CheckChainConstraints(chain), ErrPolicyViolation)
	})
}

func TestCheckChainConstraintsNaming(t *testing.T) {
	t.Parallel()

	t.Run("permitted covers by domain suffix", func(t *testing.T) {
		t.Parallel()
		chain := chainOf("https://op.example.org",
			&SubordinateStatement{
				Issuer:  "https://ta.example.org",
				Subject: "https://op.example.org",
				Constraints: &Constraints{
					NamingConstraints: &NamingConstraints{Permitted: []string{"https://example.org"}},
				},
			},
		)
		assert.NoError(t, CheckChainConstraints(chain))
	})

	t.Run("leaf outside permitted set", func(t *testing.T) {
		t.Parallel()
		chain := chainOf("https://op.other.net",
			&SubordinateStatement{
				Issuer:  "https://ta.example.org",
				Subject: "https://op.other.net",
				Constraints: &Constraints{
					NamingConstraints: &NamingConstraints{Permitted: []string{"https://example.org"}},
				},
			},
		)
		assert.ErrorIs(t, CheckChainConstraints(chain), ErrPolicyViolation)
	})

	t.Run("excluded wins over permitted", func(t *testing.T) {
		t.Parallel()
		chain := chainOf("https://bad.example.org",
			&SubordinateStatement{
				Issuer:  "https://ta.example.org",
				Subject: "https://bad.example.org",
				Constraints: &Constraints{
					NamingConstraints: &NamingConstraints{
						Permitted: []string{"https://example.org"},
						Excluded:  []string{"https://bad.example.org"},
					},
				},
			},
		)
		assert.ErrorIs(t, CheckChainConstraints(chain), ErrPolicyViolation)
	})

	t.Run("suffix match is label-wise not substring", func(t *testing.T) {
		t.Parallel()
		// notexample.org must not be covered by example.org.
		chain := chainOf("https://notexample.org",
			&SubordinateStatement{
				Issuer:  "https://ta.example.org",
				Subject: "https://notexample.org",
				Constraints: &Constraints{
					NamingConstraints: &NamingConstraints{Permitted: []string{"https://example.org"}},
				},
			},
		)
		assert.ErrorIs(t, CheckChainConstraints(chain), ErrPolicyViolation)
	})

	t.Run("no constraints passes", func(t *testing.T) {
		t.Parallel()
		chain := chainOf("https://op.example.org",
			&SubordinateStatement{Issuer: "https://ta.example.org", Subject: "https://op.example.org"},
		)
		assert.NoError(t, CheckChainConstraints(chain))
	})
}
