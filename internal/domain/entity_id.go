package domain

import (
	"fmt"
	"net/url"
	"strings"
)

// EntityID identifies a federation participant. It is an https URL (http is
// tolerated for local test federations) with no query or fragment, immutable
// once assigned.
type EntityID string

// ParseEntityID validates raw as an entity identifier.
func ParseEntityID(raw string) (EntityID, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty entity identifier", ErrMalformedStatement)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: entity identifier %q: %v", ErrMalformedStatement, raw, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("%w: entity identifier %q: scheme must be https", ErrMalformedStatement, raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: entity identifier %q: missing host", ErrMalformedStatement, raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return "", fmt.Errorf("%w: entity identifier %q: query and fragment not allowed", ErrMalformedStatement, raw)
	}
	return EntityID(strings.TrimSuffix(raw, "/")), nil
}

// String returns the identifier as published.
func (id EntityID) String() string {
	return string(id)
}

// Host returns the authority part of the identifier, used for naming
// constraint matching.
func (id EntityID) Host() string {
	u, err := url.Parse(string(id))
	if err != nil {
		return ""
	}
	return u.Host
}
