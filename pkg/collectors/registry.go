package collectors

import (
	"fmt"
	"sync"

	"github.com/marketflow/marketflow/pkg/domain"
)

// Entry pairs a registered collector with its capability and the order it
// arrived in. Registration order is the final ranking tie-breaker, so the
// registry preserves it.
type Entry struct {
	Collector  Collector
	Capability domain.CollectorCapability
	Order      int
}

// Registry is the static collector table. Registration happens at startup;
// after that reads dominate, so the registry hands out copied snapshots and
// the router never locks on the hot path.
type Registry struct {
	mu      sync.RWMutex
	entries []Entry
	byID    map[string]int
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// Register adds a collector under its capability ID. Duplicate IDs are a
// programmer error and fail with domain.ErrDuplicateCollector.
func (r *Registry) Register(c Collector, capability domain.CollectorCapability) error {
	if err := capability.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[capability.ID]; exists {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateCollector, capability.ID)
	}
	r.byID[capability.ID] = len(r.entries)
	r.entries = append(r.entries, Entry{
		Collector:  c,
		Capability: capability,
		Order:      len(r.entries),
	})
	return nil
}

// Get returns the entry for an ID, or domain.ErrCollectorNotFound.
func (r *Registry) Get(id string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", domain.ErrCollectorNotFound, id)
	}
	return r.entries[idx], nil
}

// Snapshot returns a copy of all entries in registration order.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered collectors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
