package memory

import (
	"context"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/payment"
)

var (
	_ payment.Repository   = (*PaymentRepository)(nil)
	_ order.PaymentRemover = (*PaymentRepository)(nil)
)

// PaymentRepository implements payment.Repository.
type PaymentRepository struct {
	s *Store
}

func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	return r.s.do(ctx, func(st *state) error {
		o, ok := st.orders[p.OrderID]
		if !ok {
			return apperr.New(apperr.KindReferenceNotFound, "order %d not found", p.OrderID)
		}
		for _, existing := range st.payments {
			if existing.OrderID == p.OrderID {
				return apperr.New(apperr.KindConflict, "order %d already has a payment", p.OrderID)
			}
		}
		p.ID = st.next("payments")
		p.OrderDescription = o.ServiceDescription
		st.payments[p.ID] = *p
		return nil
	})
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	var out *payment.Payment
	err := r.s.do(ctx, func(st *state) error {
		p, ok := st.payments[id]
		if !ok {
			return payment.ErrNotFound
		}
		p.OrderDescription = st.orders[p.OrderID].ServiceDescription
		out = &p
		return nil
	})
	return out, err
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*payment.Payment, error) {
	var out *payment.Payment
	err := r.s.do(ctx, func(st *state) error {
		for _, p := range st.payments {
			if p.OrderID == orderID {
				p.OrderDescription = st.orders[p.OrderID].ServiceDescription
				out = &p
				return nil
			}
		}
		return payment.ErrNotFound
	})
	return out, err
}

func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	return r.s.do(ctx, func(st *state) error {
		existing, ok := st.payments[p.ID]
		if !ok {
			return payment.ErrNotFound
		}
		existing.Status = p.Status
		existing.Moment = p.Moment
		st.payments[p.ID] = existing
		return nil
	})
}

func (r *PaymentRepository) List(ctx context.Context, req page.Request) (page.Page[payment.Payment], error) {
	var out page.Page[payment.Payment]
	err := r.s.do(ctx, func(st *state) error {
		all := sortedValues(st.payments)
		for i := range all {
			all[i].OrderDescription = st.orders[all[i].OrderID].ServiceDescription
		}
		out = page.Slice(all, req)
		return nil
	})
	return out, err
}

func (r *PaymentRepository) DeleteByOrder(ctx context.Context, orderID int64) error {
	return r.s.do(ctx, func(st *state) error {
		for id, p := range st.payments {
			if p.OrderID == orderID {
				delete(st.payments, id)
			}
		}
		return nil
	})
}
