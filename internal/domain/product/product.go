package product

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/page"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = &apperr.Error{Kind: apperr.KindNotFound, Msg: "product not found"}

// Product is a catalog entry that order lines reference.
type Product struct {
	ID          int64
	Name        string
	Description string
	Brand       string
	Price       decimal.Decimal
}

// PriceScale is the number of decimal places a stored price keeps.
const PriceScale = 2

// FitsScale reports whether d has no digits beyond PriceScale.
func FitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Round(PriceScale))
}

// PriceScaleError indicates a price with more decimal places than the store keeps.
type PriceScaleError struct {
	Price decimal.Decimal
}

func (e *PriceScaleError) Error() string {
	return fmt.Sprintf("price must have at most %d decimal places, got %s", PriceScale, e.Price)
}

func (e *PriceScaleError) Kind() apperr.Kind { return apperr.KindInvalidArgument }

func (e *PriceScaleError) Is(target error) bool {
	return apperr.Matches(apperr.KindInvalidArgument, target)
}

// InvalidPriceError indicates a product price that is not strictly positive.
type InvalidPriceError struct {
	Price decimal.Decimal
}

func (e *InvalidPriceError) Error() string {
	return fmt.Sprintf("price must be greater than 0, got %s", e.Price)
}

func (e *InvalidPriceError) Kind() apperr.Kind { return apperr.KindInvalidArgument }

func (e *InvalidPriceError) Is(target error) bool {
	return apperr.Matches(apperr.KindInvalidArgument, target)
}

// Reader resolves products by identity.
type Reader interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
}

// Repository defines persistence operations for the product catalog.
type Repository interface {
	Reader
	List(ctx context.Context, name string, req page.Request) (page.Page[Product], error)
	Create(ctx context.Context, p *Product) error
	Update(ctx context.Context, p *Product) error
	Delete(ctx context.Context, id int64) error
	Exists(ctx context.Context, id int64) (bool, error)
}
