package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/store"
	"github.com/xenking/hdcontrol/internal/domain/validate"
)

const instrumentationName = "github.com/xenking/hdcontrol/internal/domain/order"

// Request holds the caller-supplied fields of an order and its desired lines.
// It serves both creation and full replacement.
type Request struct {
	UserID             int64  `validate:"required"`
	ServiceDescription string `validate:"notblank,max=255"`
	Observation        string `validate:"max=2000"`
	DeliveryDate       time.Time
	Status             Status
	Items              []ledger.LineInput
}

// normalize validates r against the clock and fills defaults.
func (r Request) normalize(now time.Time) (Request, error) {
	if err := validate.Struct(r); err != nil {
		return r, err
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	if !r.Status.Valid() {
		return r, &InvalidStatusError{Status: r.Status}
	}
	if !r.DeliveryDate.IsZero() && dateOf(r.DeliveryDate).After(dateOf(now)) {
		return r, ErrFutureDeliveryDate
	}
	if err := ledger.ValidateInputs(r.Items); err != nil {
		return r, err
	}
	r.ServiceDescription = strings.TrimSpace(r.ServiceDescription)
	return r, nil
}

func (r Request) toOrder() *Order {
	o := &Order{
		ServiceDescription: r.ServiceDescription,
		Observation:        r.Observation,
		Status:             r.Status,
		UserID:             r.UserID,
	}
	if !r.DeliveryDate.IsZero() {
		o.DeliveryDate = dateOf(r.DeliveryDate)
	}
	return o
}

// dateOf drops the clock part, keeping the calendar date as written.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Option configures a Service.
type Option func(*Service)

// WithTracerProvider sets the provider for aggregate write spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer(instrumentationName) }
}

// WithMeterProvider sets the provider for order counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meter = mp.Meter(instrumentationName) }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service maintains the order aggregate: the order row and its ledger lines
// are always written in one transaction.
type Service struct {
	tx       store.Transactor
	orders   Repository
	ledger   *ledger.Ledger
	users    UserChecker
	payments PaymentRemover

	now     func() time.Time
	tracer  trace.Tracer
	meter   metric.Meter
	created metric.Int64Counter
	deleted metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	tx store.Transactor,
	orders Repository,
	lg *ledger.Ledger,
	users UserChecker,
	payments PaymentRemover,
	opts ...Option,
) *Service {
	s := &Service{
		tx:       tx,
		orders:   orders,
		ledger:   lg,
		users:    users,
		payments: payments,
		now:      time.Now,
		tracer:   tracenoop.NewTracerProvider().Tracer(instrumentationName),
		meter:    metricnoop.NewMeterProvider().Meter(instrumentationName),
	}
	for _, o := range opts {
		o(s)
	}

	// Instrument creation only fails on invalid names; fall back to no-op.
	var err error
	if s.created, err = s.meter.Int64Counter("hdcontrol.orders.created",
		metric.WithDescription("Orders created"),
	); err != nil {
		s.created, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("created")
	}
	if s.deleted, err = s.meter.Int64Counter("hdcontrol.orders.deleted",
		metric.WithDescription("Orders deleted"),
	); err != nil {
		s.deleted, _ = metricnoop.NewMeterProvider().Meter(instrumentationName).Int64Counter("deleted")
	}
	return s
}

// Create persists a new order and its lines atomically. The order is
// inserted first to obtain its identity, then the lines are written against
// it; any failure rolls both back.
func (s *Service) Create(ctx context.Context, req Request) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Create")
	defer func() { endSpan(span, rerr) }()

	req, err := req.normalize(s.now())
	if err != nil {
		return nil, err
	}

	var created *Order
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.requireUser(ctx, req.UserID); err != nil {
			return err
		}

		o := req.toOrder()
		if err := s.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "create order")
		}
		if _, err := s.ledger.ReplaceItems(ctx, o.ID, req.Items); err != nil {
			return errors.Wrap(err, "attach lines")
		}

		loaded, err := s.load(ctx, o.ID)
		if err != nil {
			return err
		}
		created = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(created.Status))))
	span.SetAttributes(attribute.Int64("order.id", created.ID))
	zctx.From(ctx).Info("Order created",
		zap.Int64("order_id", created.ID),
		zap.Int64("user_id", created.UserID),
		zap.Int("lines", len(created.Items)),
		zap.Stringer("total", created.Total()),
	)
	return created, nil
}

// Update replaces the scalar fields and the whole line set of an existing
// order. The order row is locked for the duration so concurrent replacements
// serialize.
func (s *Service) Update(ctx context.Context, id int64, req Request) (_ *Order, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Update", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, rerr) }()

	req, err := req.normalize(s.now())
	if err != nil {
		return nil, err
	}

	var updated *Order
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.orders.Lock(ctx, id); err != nil {
			return errors.Wrapf(err, "lock order %d", id)
		}
		if err := s.requireUser(ctx, req.UserID); err != nil {
			return err
		}

		o := req.toOrder()
		o.ID = id
		if err := s.orders.Update(ctx, o); err != nil {
			return errors.Wrapf(err, "update order %d", id)
		}
		if _, err := s.ledger.ReplaceItems(ctx, id, req.Items); err != nil {
			return errors.Wrap(err, "replace lines")
		}

		loaded, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		updated = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	zctx.From(ctx).Info("Order updated",
		zap.Int64("order_id", id),
		zap.String("status", string(updated.Status)),
		zap.Int("lines", len(updated.Items)),
	)
	return updated, nil
}

// Find returns the order with its lines from one consistent snapshot.
func (s *Service) Find(ctx context.Context, id int64) (*Order, error) {
	var found *Order
	err := s.tx.InReadTx(ctx, func(ctx context.Context) error {
		o, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		found = o
		return nil
	})
	return found, err
}

// List returns a page of orders, optionally scoped to one owner. Lines are
// batch-loaded for the whole page so totals need no further lookups.
func (s *Service) List(ctx context.Context, f ListFilter, req page.Request) (page.Page[Order], error) {
	var result page.Page[Order]
	err := s.tx.InReadTx(ctx, func(ctx context.Context) error {
		p, err := s.orders.List(ctx, f, req.Normalize())
		if err != nil {
			return errors.Wrap(err, "list orders")
		}

		ids := make([]int64, len(p.Items))
		for i, o := range p.Items {
			ids[i] = o.ID
		}
		lines, err := s.ledger.LinesByOrders(ctx, ids)
		if err != nil {
			return err
		}
		for i := range p.Items {
			p.Items[i].Items = lines[p.Items[i].ID]
		}
		result = p
		return nil
	})
	return result, err
}

// Delete removes the order together with its lines and payment.
func (s *Service) Delete(ctx context.Context, id int64) (rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Delete", trace.WithAttributes(attribute.Int64("order.id", id)))
	defer func() { endSpan(span, rerr) }()

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		ok, err := s.orders.Exists(ctx, id)
		if err != nil {
			return errors.Wrap(err, "check order")
		}
		if !ok {
			return errors.Wrapf(ErrNotFound, "delete order %d", id)
		}
		if err := s.ledger.Clear(ctx, id); err != nil {
			return err
		}
		if err := s.payments.DeleteByOrder(ctx, id); err != nil {
			return errors.Wrapf(err, "delete payment of order %d", id)
		}
		if err := s.orders.Delete(ctx, id); err != nil {
			return errors.Wrapf(err, "delete order %d", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.deleted.Add(ctx, 1)
	zctx.From(ctx).Info("Order deleted", zap.Int64("order_id", id))
	return nil
}

func (s *Service) load(ctx context.Context, id int64) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	lines, err := s.ledger.Lines(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = lines
	return o, nil
}

func (s *Service) requireUser(ctx context.Context, id int64) error {
	ok, err := s.users.Exists(ctx, id)
	if err != nil {
		return errors.Wrap(err, "check user")
	}
	if !ok {
		return &UserNotFoundError{UserID: id}
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
