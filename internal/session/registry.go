package session

import "sync"

// Registry tracks the live instances, keyed by member external id. It is
// owned by the orchestrator and injected into whatever needs to reach running
// sessions; there is no package-level instance list.
type Registry struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{instances: map[string]*Instance{}}
}

// Add registers an instance, replacing any previous one for the same member.
func (r *Registry) Add(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[inst.Member().ExternalID] = inst
}

// Remove drops the instance for the member, returning it if present.
func (r *Registry) Remove(externalID string) (*Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.instances[externalID]
	if ok {
		delete(r.instances, externalID)
	}
	return inst, ok
}

// Get returns the instance for the member external id.
func (r *Registry) Get(externalID string) (*Instance, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.instances[externalID]
	return inst, ok
}

// Each calls fn for every registered instance.
func (r *Registry) Each(fn func(*Instance)) {
	r.mu.RLock()
	snapshot := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		snapshot = append(snapshot, inst)
	}
	r.mu.RUnlock()
	for _, inst := range snapshot {
		fn(inst)
	}
}

// Len reports how many instances are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.instances)
}
