package grove

import (
	"fmt"
	"reflect"
	"sync"
)

// registry maps provider identities to their singleton instances. Once sealed
// it rejects further registrations.
type registry struct {
	mu sync.RWMutex

	providers map[reflect.Type]*provider
	order     []*provider
	nextSeq   int
	sealed    bool
}

func newRegistry() *registry {
	return &registry{providers: make(map[reflect.Type]*provider)}
}

// register inserts or overwrites the mapping for id. It reports whether an
// existing provider was replaced. A replaced provider keeps its position in
// the enumeration order.
func (r *registry) register(id reflect.Type, instance any) (replaced bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return false, fmt.Errorf("%w: %s", ErrRegistrationAfterStart, id)
	}

	if old, ok := r.providers[id]; ok {
		p := newProvider(id, instance, old.seq)
		r.providers[id] = p
		for i := range r.order {
			if r.order[i] == old {
				r.order[i] = p
				break
			}
		}
		return true, nil
	}

	p := newProvider(id, instance, r.nextSeq)
	r.nextSeq++
	r.providers[id] = p
	r.order = append(r.order, p)
	return false, nil
}

func (r *registry) lookup(id reflect.Type) (*provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, id)
	}
	return p, nil
}

// seal blocks further registrations. It returns the providers in
// registration order.
func (r *registry) seal() []*provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sealed = true
	return r.snapshotLocked()
}

func (r *registry) snapshot() []*provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *registry) snapshotLocked() []*provider {
	out := make([]*provider, len(r.order))
	copy(out, r.order)
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
