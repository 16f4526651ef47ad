// Package config loads and validates the hosting entity's configuration
// file: who this entity is, which keys it signs with, who it trusts, and
// which subordinates it vouches for.
package config

import (
	"time"
)

// Defaults applied by Validate when the file leaves a knob unset.
const (
	DefaultListenAddr        = ":8080"
	DefaultStatementLifetime = 24 * time.Hour
	DefaultMaxDepth          = 10
)

// SubordinateSection registers one immediate subordinate: the keys this
// entity vouches the subordinate owns and the policy it imposes on it.
type SubordinateSection struct {
	EntityID string `yaml:"entity_id"`

	// JWKSFile points at the subordinate's public JWK Set document.
	JWKSFile string `yaml:"jwks_file"`

	// MetadataPolicy is carried verbatim on the subordinate statement.
	// Shape: entity type -> claim -> policy verbs.
	MetadataPolicy map[string]map[string]map[string]any `yaml:"metadata_policy,omitempty"`

	// MaxPathLength bounds intermediates below this subordinate.
	MaxPathLength *int `yaml:"max_path_length,omitempty"`
}

// TrustMarkSection records one trust mark this entity has issued, for the
// trust mark status endpoint.
type TrustMarkSection struct {
	Subject       string `yaml:"subject"`
	TrustMarkType string `yaml:"trust_mark_type"`
	Active        bool   `yaml:"active"`
}

// ResolverSection tunes chain resolution.
// Durations use Go duration format: "5s", "30s", "2m".
type ResolverSection struct {
	MaxDepth       int    `yaml:"max_depth,omitempty"`
	ResolveTimeout string `yaml:"resolve_timeout,omitempty"`
	FetchTimeout   string `yaml:"fetch_timeout,omitempty"`
	ClockSkew      string `yaml:"clock_skew,omitempty"`
	CacheSkew      string `yaml:"cache_skew,omitempty"`
}

// FileConfig is the entity host configuration file.
type FileConfig struct {
	// EntityID is this entity's federation identifier.
	EntityID string `yaml:"entity_id"`

	// ListenAddr is where the federation endpoints listen.
	ListenAddr string `yaml:"listen_addr,omitempty"`

	// PrivateKeyFile points at this entity's private signing key (JWK).
	PrivateKeyFile string `yaml:"private_key_file"`

	// StatementLifetime is the validity window of statements this entity
	// signs. Go duration format.
	StatementLifetime string `yaml:"statement_lifetime,omitempty"`

	// AuthorityHints lists superiors in preference order.
	AuthorityHints []string `yaml:"authority_hints,omitempty"`

	// TrustAnchors are the entity identifiers trusted as chain roots.
	TrustAnchors []string `yaml:"trust_anchors"`

	// TrustMarkAnchors optionally names a distinct anchor set for trust
	// mark issuer resolution.
	TrustMarkAnchors []string `yaml:"trust_mark_anchors,omitempty"`

	// RequiredTrustMarks lists mark types resolution must confirm.
	RequiredTrustMarks []string `yaml:"required_trust_marks,omitempty"`

	// Metadata is this entity's self-asserted metadata by entity type.
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`

	Resolver     ResolverSection      `yaml:"resolver,omitempty"`
	Subordinates []SubordinateSection `yaml:"subordinates,omitempty"`
	TrustMarks   []TrustMarkSection   `yaml:"trust_marks,omitempty"`
}
