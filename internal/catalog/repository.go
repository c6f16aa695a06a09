package catalog

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

var ErrProductNotFound = errors.New("product not found")

// Repository is the read-only product source.
type Repository interface {
	GetAllProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
}

// StaticRepository serves the built-in mock product list.
type StaticRepository struct {
	products []domain.Product
}

func NewStaticRepository() *StaticRepository {
	return &StaticRepository{products: []domain.Product{
		{ID: 1, Name: "Product 1", Price: decimal.RequireFromString("19.99"), Description: "Description 1"},
		{ID: 2, Name: "Product 2", Price: decimal.RequireFromString("29.99"), Description: "Description 2"},
		{ID: 3, Name: "Product 3", Price: decimal.RequireFromString("39.99"), Description: "Description 3"},
	}}
}

func (r *StaticRepository) GetAllProducts(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]domain.Product, len(r.products))
	copy(out, r.products)
	return out, nil
}

func (r *StaticRepository) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, p := range r.products {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, ErrProductNotFound
}
