package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/storefront/internal/domain"
)

var ErrCartNotFound = errors.New("cart not found")

// SessionRepository stores one cart per session.
type SessionRepository interface {
	Load(ctx context.Context, sessionID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, sessionID string) error
}

// MemoryRepository keeps carts for the lifetime of the process.
type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]*domain.Cart)}
}

func (r *MemoryRepository) Load(_ context.Context, sessionID string) (*domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.carts[sessionID]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cloneCart(c), nil
}

func (r *MemoryRepository) Save(_ context.Context, c *domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[c.SessionID] = cloneCart(c)
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, sessionID)
	return nil
}

func cloneCart(c *domain.Cart) *domain.Cart {
	out := *c
	out.Items = c.Snapshot()
	return &out
}
