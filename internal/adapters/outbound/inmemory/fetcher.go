package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/sufield/fedtrust/internal/domain"
)

// Fetcher serves a seeded federation from memory. It implements
// ports.Fetcher and counts every call, so tests can assert that a cache hit
// never reaches the fetch boundary.
type Fetcher struct {
	mu          sync.RWMutex
	configs     map[domain.EntityID][]byte
	statements  map[subKey][]byte
	unreachable map[domain.EntityID]bool

	configCalls      int
	subordinateCalls int
}

type subKey struct {
	superior domain.EntityID
	subject  domain.EntityID
}

// NewFetcher creates an empty in-memory federation.
func NewFetcher() *Fetcher {
	return &Fetcher{
		configs:     make(map[domain.EntityID][]byte),
		statements:  make(map[subKey][]byte),
		unreachable: make(map[domain.EntityID]bool),
	}
}

// SetEntityConfiguration seeds the raw signed configuration served at the
// entity's well-known endpoint.
func (f *Fetcher) SetEntityConfiguration(entity domain.EntityID, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs[entity] = raw
}

// SetSubordinateStatement seeds the raw signed statement the superior serves
// about the subject.
func (f *Fetcher) SetSubordinateStatement(superior, subject domain.EntityID, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statements[subKey{superior: superior, subject: subject}] = raw
}

// SetUnreachable makes every fetch against the entity fail as unreachable.
func (f *Fetcher) SetUnreachable(entity domain.EntityID, down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unreachable[entity] = down
}

// FetchEntityConfiguration returns the seeded configuration.
func (f *Fetcher) FetchEntityConfiguration(ctx context.Context, entity domain.EntityID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.configCalls++
	down := f.unreachable[entity]
	raw, ok := f.configs[entity]
	f.mu.Unlock()

	if down {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnreachableEntity, entity)
	}
	if !ok {
		return nil, fmt.Errorf("%w: no entity configuration for %q", domain.ErrNotFound, entity)
	}
	return raw, nil
}

// FetchSubordinateStatement returns the seeded subordinate statement.
func (f *Fetcher) FetchSubordinateStatement(ctx context.Context, superior, subject domain.EntityID) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.subordinateCalls++
	down := f.unreachable[superior]
	raw, ok := f.statements[subKey{superior: superior, subject: subject}]
	f.mu.Unlock()

	if down {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnreachableEntity, superior)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q holds no statement about %q", domain.ErrNotFound, superior, subject)
	}
	return raw, nil
}

// Calls returns how many fetches of each kind were made.
func (f *Fetcher) Calls() (configs, subordinates int) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.configCalls, f.subordinateCalls
}
