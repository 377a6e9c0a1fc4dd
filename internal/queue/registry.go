package queue

import (
	"fmt"
	"sync"
	"time"
)

// Registry is the canonical ordered collection of work items.
//
// All mutations are keyed merges against the current stored state, so callers
// never write back a stale copy. Removal is unconditional; later updates for a
// removed id are no-ops.
type Registry struct {
	mu         sync.RWMutex
	order      []string
	items      map[string]*Item
	generation uint64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]*Item)}
}

// Add appends items in order. Items must be valid and carry unique ids; on
// error nothing is added.
func (r *Registry) Add(items ...*Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item == nil {
			return fmt.Errorf("add item: nil item")
		}
		if item.ID == "" {
			return fmt.Errorf("add item %q: empty id", item.Name)
		}
		if _, ok := r.items[item.ID]; ok {
			return fmt.Errorf("add item %s: %w", item.ID, ErrDuplicateID)
		}
		if _, ok := seen[item.ID]; ok {
			return fmt.Errorf("add item %s: %w", item.ID, ErrDuplicateID)
		}
		if err := item.Validate(); err != nil {
			return fmt.Errorf("add item %s: %w", item.ID, err)
		}
		seen[item.ID] = struct{}{}
	}
	for _, item := range items {
		stored := item.Clone()
		r.items[item.ID] = &stored
		r.order = append(r.order, item.ID)
	}
	return nil
}

// Remove deletes the item with the given id. It reports whether the id was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return false
	}
	delete(r.items, id)
	for idx, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:idx], r.order[idx+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the item with the given id.
func (r *Registry) Get(id string) (Item, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[id]
	if !ok {
		return Item{}, false
	}
	return item.Clone(), true
}

// List returns copies of all items in registry order.
func (r *Registry) List() []Item {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Item, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.items[id].Clone())
	}
	return out
}

// Len returns the number of registered items.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Update applies patch to a copy of the current item and stores the result when
// the patch succeeds and the item invariants hold. It returns the stored item
// and whether the id was present. A rejected patch leaves the item untouched.
func (r *Registry) Update(id string, patch func(*Item) error) (Item, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updateLocked(id, patch)
}

// UpdateInGeneration behaves like Update but is a no-op when the registry has
// been reset since generation was observed.
func (r *Registry) UpdateInGeneration(generation uint64, id string, patch func(*Item) error) (Item, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.generation != generation {
		return Item{}, false, nil
	}
	return r.updateLocked(id, patch)
}

func (r *Registry) updateLocked(id string, patch func(*Item) error) (Item, bool, error) {
	current, ok := r.items[id]
	if !ok {
		return Item{}, false, nil
	}
	next := current.Clone()
	if err := patch(&next); err != nil {
		return current.Clone(), true, err
	}
	if next.ID != current.ID || next.Name != current.Name || !next.Source.equal(current.Source) {
		return current.Clone(), true, ErrImmutableField
	}
	if err := next.Validate(); err != nil {
		return current.Clone(), true, err
	}
	next.UpdatedAt = time.Now().UTC()
	*current = next
	return next.Clone(), true, nil
}

// SnapshotIdleIDs returns the ids of idle items in registry order.
func (r *Registry) SnapshotIdleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.order {
		if r.items[id].Status == StatusIdle {
			ids = append(ids, id)
		}
	}
	return ids
}

// Reset removes every item and starts a new generation, which it returns.
func (r *Registry) Reset() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = make(map[string]*Item)
	r.order = nil
	r.generation++
	return r.generation
}

// Generation returns the current reset generation.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}

// Stats returns item counts per status.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{ByStatus: make(map[Status]int, len(allStatuses))}
	for _, id := range r.order {
		status := r.items[id].Status
		stats.Total++
		stats.ByStatus[status]++
		switch {
		case status == StatusIdle:
			stats.Idle++
		case status == StatusCropped:
			stats.Cropped++
		case status == StatusError:
			stats.Failed++
		case IsProcessingStatus(status):
			stats.Active++
		}
		if status != StatusIdle {
			stats.Attempted++
		}
	}
	return stats
}
