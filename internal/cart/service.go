package cart

import (
	"context"
	"errors"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
)

const lockStripes = 64

// ProductLookup resolves product ids for AddItem.
type ProductLookup interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// Service owns the carts of all sessions. Mutations for the same session are
// serialised, and a mutation is visible to every reader once it returns.
type Service struct {
	repo     SessionRepository
	products ProductLookup
	logger   *zap.Logger
	locks    [lockStripes]sync.Mutex
}

func NewService(repo SessionRepository, products ProductLookup, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		products: products,
		logger:   logger,
	}
}

// Get returns the session cart, or a new empty one when the session has none.
func (s *Service) Get(ctx context.Context, sessionID string) (*domain.Cart, error) {
	c, err := s.repo.Load(ctx, sessionID)
	if errors.Is(err, ErrCartNotFound) {
		return domain.NewCart(sessionID), nil
	}
	if err != nil {
		s.logger.Error("repo load cart error", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return c, nil
}

// AddItem adds quantity units of a catalog product. Adding a product that is
// already in the cart increases its quantity.
func (s *Service) AddItem(ctx context.Context, sessionID string, productID int64, quantity int) (*domain.Cart, error) {
	p, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, sessionID, func(c *domain.Cart) error {
		return c.AddQuantity(*p, quantity)
	})
}

func (s *Service) RemoveItem(ctx context.Context, sessionID string, productID int64) (*domain.Cart, error) {
	return s.mutate(ctx, sessionID, func(c *domain.Cart) error {
		c.Remove(productID)
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, sessionID string) (*domain.Cart, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.repo.Delete(ctx, sessionID); err != nil {
		s.logger.Error("repo delete cart error", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return domain.NewCart(sessionID), nil
}

func (s *Service) mutate(ctx context.Context, sessionID string, fn func(c *domain.Cart) error) (*domain.Cart, error) {
	mu := s.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, c); err != nil {
		s.logger.Error("repo save cart error", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return c, nil
}

func (s *Service) lockFor(sessionID string) *sync.Mutex {
	return &s.locks[xxhash.Sum64String(sessionID)%lockStripes]
}
