// Package ledger owns the order item lines of every order: the per-order
// collection of (product, quantity, unit price snapshot) entries, and the
// totals derived from them.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/product"
)

// LineInput is one desired line as submitted by a caller. An invalid
// (unset) UnitPrice means "snapshot the current catalog price"; a set zero
// records a free line.
type LineInput struct {
	ProductID int64
	Quantity  int
	UnitPrice decimal.NullDecimal
}

// Line is a persisted order item. LineNo distinguishes lines of the same
// product inside one order; lines are never merged.
type Line struct {
	OrderID   int64
	LineNo    int
	ProductID int64
	Product   product.Product
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal returns UnitPrice × Quantity.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals are derived from an order's current lines and never stored.
type Totals struct {
	Total    decimal.Decimal
	Quantity int
}

// Compute folds lines into their totals.
func Compute(lines []Line) Totals {
	t := Totals{Total: decimal.Zero}
	for _, l := range lines {
		t.Total = t.Total.Add(l.Subtotal())
		t.Quantity += l.Quantity
	}
	return t
}

// Repository persists lines.
type Repository interface {
	// Append inserts lines for orderID, numbering them after the order's
	// current highest LineNo. LineNo is set on each element.
	Append(ctx context.Context, orderID int64, lines []Line) error
	DeleteByOrder(ctx context.Context, orderID int64) error
	// ListByOrder returns the order's lines with Product populated, ordered
	// by LineNo.
	ListByOrder(ctx context.Context, orderID int64) ([]Line, error)
	// ListByOrders is the batch variant used by paged reads.
	ListByOrders(ctx context.Context, orderIDs []int64) (map[int64][]Line, error)
}

// OrderChecker checks and locks the orders lines belong to.
type OrderChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
	// Lock takes a write lock on the order for the rest of the transaction
	// and fails with a not-found error when the order does not exist.
	Lock(ctx context.Context, id int64) error
}

// InvalidQuantityError indicates a line with a non-positive quantity.
type InvalidQuantityError struct {
	ProductID int64
	Quantity  int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %d, got %d", e.ProductID, e.Quantity)
}

func (e *InvalidQuantityError) Kind() apperr.Kind { return apperr.KindInvalidArgument }

func (e *InvalidQuantityError) Is(target error) bool {
	return apperr.Matches(apperr.KindInvalidArgument, target)
}

// InvalidUnitPriceError indicates a negative snapshot price.
type InvalidUnitPriceError struct {
	ProductID int64
	UnitPrice decimal.Decimal
}

func (e *InvalidUnitPriceError) Error() string {
	return fmt.Sprintf("unit price must not be negative for product %d, got %s", e.ProductID, e.UnitPrice)
}

func (e *InvalidUnitPriceError) Kind() apperr.Kind { return apperr.KindInvalidArgument }

func (e *InvalidUnitPriceError) Is(target error) bool {
	return apperr.Matches(apperr.KindInvalidArgument, target)
}

// ErrMissingProduct is returned for a line without a product reference.
var ErrMissingProduct = &apperr.Error{Kind: apperr.KindInvalidArgument, Msg: "line has no product reference"}

// ProductNotFoundError indicates a line referencing a product that does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Kind() apperr.Kind { return apperr.KindReferenceNotFound }

func (e *ProductNotFoundError) Is(target error) bool {
	return apperr.Matches(apperr.KindReferenceNotFound, target)
}

// OrderNotFoundError indicates lines submitted for an order that does not exist.
type OrderNotFoundError struct {
	OrderID int64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

func (e *OrderNotFoundError) Kind() apperr.Kind { return apperr.KindReferenceNotFound }

func (e *OrderNotFoundError) Is(target error) bool {
	return apperr.Matches(apperr.KindReferenceNotFound, target)
}

// ValidateInputs checks the shape of desired lines without touching storage.
func ValidateInputs(inputs []LineInput) error {
	for _, in := range inputs {
		if in.ProductID <= 0 {
			return ErrMissingProduct
		}
		if in.Quantity <= 0 {
			return &InvalidQuantityError{ProductID: in.ProductID, Quantity: in.Quantity}
		}
		if !in.UnitPrice.Valid {
			continue
		}
		if in.UnitPrice.Decimal.IsNegative() {
			return &InvalidUnitPriceError{ProductID: in.ProductID, UnitPrice: in.UnitPrice.Decimal}
		}
		if !product.FitsScale(in.UnitPrice.Decimal) {
			return &product.PriceScaleError{Price: in.UnitPrice.Decimal}
		}
	}
	return nil
}
