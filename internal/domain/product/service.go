package product

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/validate"
)

// Cache is an optional read-through cache for single product lookups.
// A miss is reported as (nil, nil).
type Cache interface {
	Get(ctx context.Context, id int64) (*Product, error)
	Set(ctx context.Context, p *Product) error
	Invalidate(ctx context.Context, id int64) error
}

// Input holds the writable fields of a product.
type Input struct {
	Name        string `validate:"notblank,max=255"`
	Description string `validate:"notblank"`
	Brand       string `validate:"notblank,max=255"`
	Price       decimal.Decimal
}

// Product validates in and returns the catalog entry it describes.
func (in Input) Product() (*Product, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if !in.Price.IsPositive() {
		return nil, &InvalidPriceError{Price: in.Price}
	}
	if !FitsScale(in.Price) {
		return nil, &PriceScaleError{Price: in.Price}
	}
	return &Product{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Brand:       strings.TrimSpace(in.Brand),
		Price:       in.Price,
	}, nil
}

// Service implements catalog management.
type Service struct {
	repo  Repository
	cache Cache
}

// NewService creates a catalog Service. cache may be nil.
func NewService(repo Repository, cache Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// Find returns a product, consulting the cache first when one is configured.
func (s *Service) Find(ctx context.Context, id int64) (*Product, error) {
	if s.cache != nil {
		p, err := s.cache.Get(ctx, id)
		if err != nil {
			zctx.From(ctx).Warn("Product cache read failed", zap.Int64("product_id", id), zap.Error(err))
		} else if p != nil {
			return p, nil
		}
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, p); err != nil {
			zctx.From(ctx).Warn("Product cache write failed", zap.Int64("product_id", id), zap.Error(err))
		}
	}
	return p, nil
}

// List returns a page of products whose name contains name (case-insensitive).
func (s *Service) List(ctx context.Context, name string, req page.Request) (page.Page[Product], error) {
	return s.repo.List(ctx, strings.TrimSpace(name), req.Normalize())
}

// Create validates and stores a new product.
func (s *Service) Create(ctx context.Context, in Input) (*Product, error) {
	p, err := in.Product()
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create product")
	}
	zctx.From(ctx).Info("Product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// Update replaces the writable fields of an existing product. Order lines
// keep their snapshot prices.
func (s *Service) Update(ctx context.Context, id int64, in Input) (*Product, error) {
	p, err := in.Product()
	if err != nil {
		return nil, err
	}
	p.ID = id
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "update product %d", id)
	}
	s.invalidate(ctx, id)
	return p, nil
}

// Delete removes a product. It fails with a conflict while order lines still
// reference it.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return errors.Wrapf(err, "delete product %d", id)
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, id); err != nil {
		zctx.From(ctx).Warn("Product cache invalidation failed", zap.Int64("product_id", id), zap.Error(err))
	}
}
