// Package payment implements the payment lifecycle of an order: at most one
// payment per order, moving PENDING -> PAID -> CANCELED.
package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/page"
)

// ErrNotFound is returned when a requested payment does not exist.
var ErrNotFound = &apperr.Error{Kind: apperr.KindNotFound, Msg: "payment not found"}

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusPaid     Status = "PAID"
	StatusCanceled Status = "CANCELED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCanceled:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusCanceled},
	StatusPaid:    {StatusCanceled},
}

// CanTransition reports whether a payment in s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Payment is the single payment record of an order.
type Payment struct {
	ID      int64
	Moment  time.Time
	Status  Status
	OrderID int64
	// OrderDescription is the owning order's service description, loaded
	// with every read.
	OrderDescription string
}

// Repository persists payments. Reads populate OrderDescription.
type Repository interface {
	// Create inserts p and sets its ID. A second payment for the same order
	// fails with a conflict.
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id int64) (*Payment, error)
	GetByOrderID(ctx context.Context, orderID int64) (*Payment, error)
	// Update stores Status and Moment.
	Update(ctx context.Context, p *Payment) error
	List(ctx context.Context, req page.Request) (page.Page[Payment], error)
	DeleteByOrder(ctx context.Context, orderID int64) error
}

// OrderLookup resolves the order a payment is created for.
type OrderLookup interface {
	// Describe returns the service description of order id, or false when
	// the order does not exist.
	Describe(ctx context.Context, id int64) (string, bool, error)
}

// OrderNotFoundError indicates a payment for an order that does not exist.
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

// AlreadyExistsError indicates an order that already has a payment.
type AlreadyExistsError struct {
	OrderID int64
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("order %d already has a payment", e.OrderID)
}

func (e *AlreadyExistsError) Kind() apperr.Kind { return apperr.KindConflict }

func (e *AlreadyExistsError) Is(target error) bool {
	return apperr.Matches(apperr.KindConflict, target)
}

// InvalidStatusError indicates a status outside the enumeration.
type InvalidStatusError struct {
	Status Status
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid payment status %q", string(e.Status))
}

func (e *InvalidStatusError) Kind() apperr.Kind { return apperr.KindInvalidArgument }

func (e *InvalidStatusError) Is(target error) bool {
	return apperr.Matches(apperr.KindInvalidArgument, target)
}

// TransitionError indicates a move the lifecycle does not allow.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("payment cannot move from %s to %s", e.From, e.To)
}

func (e *TransitionError) Kind() apperr.Kind { return apperr.KindConflict }

func (e *TransitionError) Is(target error) bool {
	return apperr.Matches(apperr.KindConflict, target)
}
