package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/store"
)

// Option configures a Service.
type Option func(*Service)

// WithMeterProvider sets the provider for the transition counter.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter("github.com/xenking/hdcontrol/internal/domain/payment") }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service implements the payment lifecycle.
type Service struct {
	tx       store.Transactor
	payments Repository
	orders   OrderLookup
	now      func() time.Time

	meter       metric.Meter
	transitions metric.Int64Counter
}

// NewService creates a payment Service.
func NewService(tx store.Transactor, payments Repository, orders OrderLookup, opts ...Option) *Service {
	s := &Service{
		tx:       tx,
		payments: payments,
		orders:   orders,
		now:      time.Now,
		meter:    noop.NewMeterProvider().Meter("payment"),
	}
	for _, o := range opts {
		o(s)
	}
	var err error
	if s.transitions, err = s.meter.Int64Counter("hdcontrol.payments.transitions",
		metric.WithDescription("Payment status changes, including creation"),
	); err != nil {
		s.transitions, _ = noop.NewMeterProvider().Meter("payment").Int64Counter("transitions")
	}
	return s
}

// Create opens a PENDING payment for an order. The existence pre-check gives
// the common case a clear error; the store's uniqueness on the order id is
// what decides a race between two creators.
func (s *Service) Create(ctx context.Context, orderID int64) (*Payment, error) {
	var created *Payment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		desc, ok, err := s.orders.Describe(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "get order")
		}
		if !ok {
			return &OrderNotFoundError{OrderID: orderID}
		}

		switch _, err := s.payments.GetByOrderID(ctx, orderID); {
		case err == nil:
			return &AlreadyExistsError{OrderID: orderID}
		case !errors.Is(err, ErrNotFound):
			return errors.Wrap(err, "check existing payment")
		}

		p := &Payment{
			Moment:           s.now().UTC(),
			Status:           StatusPending,
			OrderID:          orderID,
			OrderDescription: desc,
		}
		if err := s.payments.Create(ctx, p); err != nil {
			if errors.Is(err, apperr.ErrConflict) {
				return &AlreadyExistsError{OrderID: orderID}
			}
			return errors.Wrap(err, "create payment")
		}
		created = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", string(StatusPending))))
	zctx.From(ctx).Info("Payment created",
		zap.Int64("payment_id", created.ID),
		zap.Int64("order_id", orderID),
	)
	return created, nil
}

// Advance moves a payment to status and stamps the transition time.
func (s *Service) Advance(ctx context.Context, id int64, status Status) (*Payment, error) {
	if !status.Valid() {
		return nil, &InvalidStatusError{Status: status}
	}

	var (
		updated *Payment
		from    Status
	)
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := s.payments.GetByID(ctx, id)
		if err != nil {
			return errors.Wrapf(err, "get payment %d", id)
		}
		if !p.Status.CanTransition(status) {
			return &TransitionError{From: p.Status, To: status}
		}

		from = p.Status
		p.Status = status
		p.Moment = s.now().UTC()
		if err := s.payments.Update(ctx, p); err != nil {
			return errors.Wrapf(err, "update payment %d", id)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(status)),
	))
	zctx.From(ctx).Info("Payment advanced",
		zap.Int64("payment_id", id),
		zap.String("from", string(from)),
		zap.String("to", string(status)),
	)
	return updated, nil
}

// Find returns a payment by id.
func (s *Service) Find(ctx context.Context, id int64) (*Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// FindByOrder returns the payment of an order.
func (s *Service) FindByOrder(ctx context.Context, orderID int64) (*Payment, error) {
	return s.payments.GetByOrderID(ctx, orderID)
}

// List returns a page of payments.
func (s *Service) List(ctx context.Context, req page.Request) (page.Page[Payment], error) {
	return s.payments.List(ctx, req.Normalize())
}
