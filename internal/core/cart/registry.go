package cart

import (
	"sync"

	"github.com/google/uuid"

	"github.com/rl1809/milk-route/internal/core/domain"
)

// Registry owns the open delivery-entry sessions. Each session has its own
// Cart; nothing is shared between sessions.
type Registry struct {
	catalog ProductLookup

	mu    sync.RWMutex
	carts map[string]*Cart
}

func NewRegistry(catalog ProductLookup) *Registry {
	return &Registry{
		catalog: catalog,
		carts:   make(map[string]*Cart),
	}
}

func (r *Registry) Open() *Cart {
	c := New(uuid.NewString(), r.catalog)

	r.mu.Lock()
	r.carts[c.ID] = c
	r.mu.Unlock()

	return c
}

func (r *Registry) Get(id string) (*Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[id]
	if !ok {
		return nil, domain.ErrCartNotFound
	}
	return c, nil
}

func (r *Registry) Discard(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.carts[id]; !ok {
		return domain.ErrCartNotFound
	}
	delete(r.carts, id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.carts)
}
