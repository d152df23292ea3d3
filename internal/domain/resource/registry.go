package resource

import "sync"

// RegistryInterface resolves resources and pool memberships. The catalog
// service is the real implementation; Registry below covers tests and
// single-process deployments.
type RegistryInterface interface {
	Get(id string) (*Resource, error)
	Members(poolID string) ([]*Resource, error)
	Register(res *Resource)
}

// Registry is an in-memory resource registry.
type Registry struct {
	mu          sync.RWMutex
	resources   map[string]*Resource
	memberships []Membership
}

func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]*Resource)}
}

// Register adds or replaces a resource and rebuilds its pool relations.
func (r *Registry) Register(res *Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resources[res.ID] = res

	// Drop stale relations for this pool before re-adding.
	kept := r.memberships[:0]
	for _, m := range r.memberships {
		if m.PoolID != res.ID {
			kept = append(kept, m)
		}
	}
	r.memberships = kept

	for _, itemID := range res.MemberIDs {
		r.memberships = append(r.memberships,
			Membership{PoolID: res.ID, ItemID: itemID, Kind: MembershipSingle},
			Membership{PoolID: res.ID, ItemID: itemID, Kind: MembershipPool},
		)
	}
}

func (r *Registry) Get(id string) (*Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	res, ok := r.resources[id]
	if !ok {
		return nil, ErrNotFound
	}
	return res, nil
}

// Members returns the single items backing a pool, in catalog order.
func (r *Registry) Members(poolID string) ([]*Resource, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pool, ok := r.resources[poolID]
	if !ok {
		return nil, ErrNotFound
	}

	members := make([]*Resource, 0, len(pool.MemberIDs))
	for _, id := range pool.MemberIDs {
		if item, ok := r.resources[id]; ok {
			members = append(members, item)
		}
	}
	return members, nil
}

// Pools returns the ids of every pool a single item belongs to.
func (r *Registry) Pools(itemID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pools []string
	for _, m := range r.memberships {
		if m.Kind == MembershipPool && m.ItemID == itemID {
			pools = append(pools, m.PoolID)
		}
	}
	return pools
}
