// Package inmemory provides map-backed implementations of the outbound
// ports: the statement source behind a hosting entity's federation
// endpoints, and a fetcher that serves a seeded federation without network
// access (the stub federation used throughout the tests).
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sufield/fedtrust/internal/domain"
	"github.com/sufield/fedtrust/internal/ports"
)

// Source is an in-memory implementation of ports.StatementSource, seeded at
// startup with the hosting entity's subordinates and issued trust marks.
type Source struct {
	mu           sync.RWMutex
	subordinates map[domain.EntityID]*ports.SubordinateRecord
	order        []domain.EntityID
	marks        map[markKey]bool
}

type markKey struct {
	subject  domain.EntityID
	markType string
}

// NewSource creates an empty statement source.
func NewSource() *Source {
	return &Source{
		subordinates: make(map[domain.EntityID]*ports.SubordinateRecord),
		marks:        make(map[markKey]bool),
	}
}

// RegisterSubordinate adds a subordinate record. Registering the same
// subject twice is an error; subordinate lists are seeded once at startup.
func (s *Source) RegisterSubordinate(rec ports.SubordinateRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("subordinate record without entity id")
	}
	if rec.Keys.Len() == 0 {
		return fmt.Errorf("subordinate %q registered without keys", rec.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subordinates[rec.ID]; exists {
		return fmt.Errorf("subordinate %q already registered", rec.ID)
	}
	copied := rec
	s.subordinates[rec.ID] = &copied
	s.order = append(s.order, rec.ID)
	return nil
}

// SetTrustMarkStatus records whether an issued trust mark of markType for
// subject is active.
func (s *Source) SetTrustMarkStatus(subject domain.EntityID, markType string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[markKey{subject: subject, markType: markType}] = active
}

// Subordinate returns the record for an immediate subordinate.
func (s *Source) Subordinate(ctx context.Context, subject domain.EntityID) (*ports.SubordinateRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.subordinates[subject]
	if !ok {
		return nil, fmt.Errorf("%w: no subordinate %q", domain.ErrNotFound, subject)
	}
	return rec, nil
}

// ListSubordinates returns registered subordinates in registration order.
func (s *Source) ListSubordinates(ctx context.Context) ([]domain.EntityID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.EntityID(nil), s.order...), nil
}

// TrustMarkStatus reports whether an active mark of markType exists for
// subject.
func (s *Source) TrustMarkStatus(ctx context.Context, subject domain.EntityID, markType string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marks[markKey{subject: subject, markType: markType}], nil
}
