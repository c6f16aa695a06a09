package catalog

import (
	"context"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type Service struct {
	repo   Repository
	logger *zap.Logger
	sfg    singleflight.Group // collapses concurrent listings
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	// the shared load must not die with whichever caller started it
	ch := s.sfg.DoChan("all", func() (interface{}, error) {
		return s.repo.GetAllProducts(context.WithoutCancel(ctx))
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		s.logger.Error("failed to list products", zap.Error(res.Err))
		return nil, fmt.Errorf("failed to list products: %w", res.Err)
	}
	if res.Shared {
		s.logger.Debug("product listing shared between callers")
	}

	// callers sharing a result must not see each other's edits
	products := res.Val.([]domain.Product)
	out := make([]domain.Product, len(products))
	copy(out, products)
	return out, nil
}

func (s *Service) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return s.repo.GetProduct(ctx, id)
}
