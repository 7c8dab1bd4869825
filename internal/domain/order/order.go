package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = &apperr.Error{Kind: apperr.KindNotFound, Msg: "order not found"}

// Status is the fulfilment state of an order. Transitions between values
// are not enforced; any valid value may be set by an update.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusShipped   Status = "SHIPPED"
	StatusReady     Status = "READY"
	StatusPaid      Status = "PAID"
	StatusDelivered Status = "DELIVERED"
	StatusFinalized Status = "FINALIZED"
	StatusCanceled  Status = "CANCELED"
)

// Statuses lists every valid status.
var Statuses = []Status{
	StatusPending, StatusShipped, StatusReady, StatusPaid,
	StatusDelivered, StatusFinalized, StatusCanceled,
}

// Valid reports whether s is one of Statuses.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether s ends the order's life.
func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusCanceled
}

// Order is the aggregate root: scalar fields plus the lines it owns.
// Totals are always derived from Items.
type Order struct {
	ID                 int64
	ServiceDescription string
	Observation        string
	// DeliveryDate is a calendar date; the zero value means unset.
	DeliveryDate time.Time
	Status       Status
	UserID       int64
	Owner        user.Summary
	Items        []ledger.Line
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Totals folds the current lines.
func (o *Order) Totals() ledger.Totals {
	return ledger.Compute(o.Items)
}

// Total is Σ(unit price × quantity) over the current lines.
func (o *Order) Total() decimal.Decimal {
	return o.Totals().Total
}

// TotalQuantity is Σ(quantity) over the current lines.
func (o *Order) TotalQuantity() int {
	return o.Totals().Quantity
}

// Products returns the distinct products referenced by the lines, in first
// appearance order.
func (o *Order) Products() []product.Product {
	seen := make(map[int64]struct{}, len(o.Items))
	out := make([]product.Product, 0, len(o.Items))
	for _, l := range o.Items {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l.Product)
	}
	return out
}

// ListFilter narrows List. A nil UserID lists every user's orders.
type ListFilter struct {
	UserID *int64
}

// Repository persists the scalar part of orders. Lines live in the ledger.
type Repository interface {
	// Create inserts o and sets its ID and timestamps.
	Create(ctx context.Context, o *Order) error
	Update(ctx context.Context, o *Order) error
	// GetByID returns the order with Owner populated and no Items.
	GetByID(ctx context.Context, id int64) (*Order, error)
	// Lock takes a write lock on the order row for the rest of the
	// transaction. It returns ErrNotFound when the order does not exist.
	Lock(ctx context.Context, id int64) error
	Exists(ctx context.Context, id int64) (bool, error)
	List(ctx context.Context, f ListFilter, req page.Request) (page.Page[Order], error)
	Delete(ctx context.Context, id int64) error
}

// UserChecker reports whether a user exists.
type UserChecker interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// PaymentRemover deletes the payment bound to an order, if any.
type PaymentRemover interface {
	DeleteByOrder(ctx context.Context, orderID int64) error
}

// UserNotFoundError indicates an order owner that does not exist.
type UserNotFoundError struct {
	UserID int64
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %d not found", e.UserID)
}

func (e *UserNotFoundError) Kind() apperr.Kind { return apperr.KindReferenceNotFound }

func (e *UserNotFoundError) Is(target error) bool {
	return apperr.Matches(apperr.KindReferenceNotFound, target)
}

// InvalidStatusError indicates a status outside the enumeration.
type InvalidStatusError struct {
	Status Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", string(e.Status))
}

func (e *InvalidStatusError) Kind() apperr.Kind { return apperr.KindInvalidArgument }

func (e *InvalidStatusError) Is(target error) bool {
	return apperr.Matches(apperr.KindInvalidArgument, target)
}

// ErrFutureDeliveryDate is returned for a delivery date after the day of the write.
var ErrFutureDeliveryDate = &apperr.Error{Kind: apperr.KindInvalidArgument, Msg: "delivery date must not be in the future"}
