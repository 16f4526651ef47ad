package config

import (
	"fmt"
	"time"

	"github.com/sufield/fedtrust/internal/domain"
)

// Validate checks the configuration and fills defaults. It returns the
// first problem found; a valid config is safe to bootstrap from.
func (c *FileConfig) Validate() error {
	if c.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}
	if _, err := domain.ParseEntityID(c.EntityID); err != nil {
		return fmt.Errorf("entity_id: %w", err)
	}
	if c.PrivateKeyFile == "" {
		return fmt.Errorf("private_key_file is required")
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListenAddr
	}
	if c.Resolver.MaxDepth < 0 {
		return fmt.Errorf("resolver.max_depth must not be negative")
	}
	if c.Resolver.MaxDepth == 0 {
		c.Resolver.MaxDepth = DefaultMaxDepth
	}

	for _, raw := range append(append([]string{}, c.AuthorityHints...), c.TrustAnchors...) {
		if _, err := domain.ParseEntityID(raw); err != nil {
			return err
		}
	}
	for _, raw := range c.TrustMarkAnchors {
		if _, err := domain.ParseEntityID(raw); err != nil {
			return err
		}
	}
	for i, sub := range c.Subordinates {
		if sub.EntityID == "" {
			return fmt.Errorf("subordinates[%d]: entity_id is required", i)
		}
		if _, err := domain.ParseEntityID(sub.EntityID); err != nil {
			return fmt.Errorf("subordinates[%d]: %w", i, err)
		}
		if sub.JWKSFile == "" {
			return fmt.Errorf("subordinates[%d] (%s): jwks_file is required", i, sub.EntityID)
		}
	}
	for i, mark := range c.TrustMarks {
		if mark.Subject == "" || mark.TrustMarkType == "" {
			return fmt.Errorf("trust_marks[%d]: subject and trust_mark_type are required", i)
		}
	}

	for name, raw := range map[string]string{
		"statement_lifetime":      c.StatementLifetime,
		"resolver.resolve_timeout": c.Resolver.ResolveTimeout,
		"resolver.fetch_timeout":   c.Resolver.FetchTimeout,
		"resolver.clock_skew":      c.Resolver.ClockSkew,
		"resolver.cache_skew":      c.Resolver.CacheSkew,
	} {
		if _, err := parseDuration(raw, 0); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Lifetime returns the statement lifetime, defaulted.
func (c *FileConfig) Lifetime() time.Duration {
	d, _ := parseDuration(c.StatementLifetime, DefaultStatementLifetime)
	return d
}

// ResolveTimeout returns the configured resolve timeout or zero for the
// resolver's own default.
func (c *FileConfig) ResolveTimeout() time.Duration {
	d, _ := parseDuration(c.Resolver.ResolveTimeout, 0)
	return d
}

// FetchTimeout returns the configured per-fetch timeout or zero for the
// fetcher's own default.
func (c *FileConfig) FetchTimeout() time.Duration {
	d, _ := parseDuration(c.Resolver.FetchTimeout, 0)
	return d
}

// ClockSkew returns the configured clock skew or zero for the codec's own
// default.
func (c *FileConfig) ClockSkew() time.Duration {
	d, _ := parseDuration(c.Resolver.ClockSkew, 0)
	return d
}

// CacheSkew returns the configured cache expiry skew or zero for the cache's
// own default.
func (c *FileConfig) CacheSkew() time.Duration {
	d, _ := parseDuration(c.Resolver.CacheSkew, 0)
	return d
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	return d, nil
}
