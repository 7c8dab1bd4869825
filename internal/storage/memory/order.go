package memory

import (
	"context"

	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/payment"
	"github.com/xenking/hdcontrol/internal/domain/user"
)

var (
	_ order.Repository    = (*OrderRepository)(nil)
	_ payment.OrderLookup = (*OrderRepository)(nil)
	_ order.UserChecker   = (*UserRepository)(nil)
)

// OrderRepository implements order.Repository.
type OrderRepository struct {
	s *Store
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	return r.s.do(ctx, func(st *state) error {
		o.ID = st.next("orders")
		o.CreatedAt = now()
		o.UpdatedAt = o.CreatedAt
		o.Items = nil
		st.orders[o.ID] = *o
		return nil
	})
}

func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	return r.s.do(ctx, func(st *state) error {
		existing, ok := st.orders[o.ID]
		if !ok {
			return order.ErrNotFound
		}
		o.CreatedAt = existing.CreatedAt
		o.UpdatedAt = now()
		stored := *o
		stored.Items = nil
		st.orders[o.ID] = stored
		return nil
	})
}

func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	var out *order.Order
	err := r.s.do(ctx, func(st *state) error {
		o, ok := st.orders[id]
		if !ok {
			return order.ErrNotFound
		}
		o.Owner = owner(st, o.UserID)
		out = &o
		return nil
	})
	return out, err
}

// Lock is a no-op beyond the existence check: every transaction already
// holds the store lock.
func (r *OrderRepository) Lock(ctx context.Context, id int64) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.orders[id]; !ok {
			return order.ErrNotFound
		}
		return nil
	})
}

func (r *OrderRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.s.do(ctx, func(st *state) error {
		_, ok = st.orders[id]
		return nil
	})
	return ok, err
}

func (r *OrderRepository) Describe(ctx context.Context, id int64) (string, bool, error) {
	var (
		desc string
		ok   bool
	)
	err := r.s.do(ctx, func(st *state) error {
		var o order.Order
		o, ok = st.orders[id]
		desc = o.ServiceDescription
		return nil
	})
	return desc, ok, err
}

func (r *OrderRepository) List(ctx context.Context, f order.ListFilter, req page.Request) (page.Page[order.Order], error) {
	var out page.Page[order.Order]
	err := r.s.do(ctx, func(st *state) error {
		var all []order.Order
		for _, o := range sortedValues(st.orders) {
			if f.UserID != nil && o.UserID != *f.UserID {
				continue
			}
			o.Owner = owner(st, o.UserID)
			all = append(all, o)
		}
		out = page.Slice(all, req)
		return nil
	})
	return out, err
}

func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.orders[id]; !ok {
			return order.ErrNotFound
		}
		delete(st.orders, id)
		delete(st.lines, id)
		for pid, p := range st.payments {
			if p.OrderID == id {
				delete(st.payments, pid)
			}
		}
		return nil
	})
}

func owner(st *state, userID int64) user.Summary {
	u, ok := st.users[userID]
	if !ok {
		return user.Summary{ID: userID}
	}
	return u.Summarize()
}
