package memory

import (
	"context"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
	"github.com/xenking/hdcontrol/internal/domain/product"
)

var (
	_ ledger.Repository   = (*LineRepository)(nil)
	_ ledger.OrderChecker = (*OrderRepository)(nil)
)

// LineRepository implements ledger.Repository.
type LineRepository struct {
	s *Store
}

func (r *LineRepository) Append(ctx context.Context, orderID int64, lines []ledger.Line) error {
	return r.s.do(ctx, func(st *state) error {
		if _, ok := st.orders[orderID]; !ok {
			return apperr.New(apperr.KindReferenceNotFound, "order %d not found", orderID)
		}
		next := 0
		for _, l := range st.lines[orderID] {
			next = max(next, l.LineNo)
		}
		for i := range lines {
			if _, ok := st.products[lines[i].ProductID]; !ok {
				return apperr.New(apperr.KindReferenceNotFound, "product %d not found", lines[i].ProductID)
			}
			next++
			lines[i].OrderID = orderID
			lines[i].LineNo = next
			stored := lines[i]
			stored.Product = productOf(st, stored.ProductID)
			st.lines[orderID] = append(st.lines[orderID], stored)
		}
		return nil
	})
}

func (r *LineRepository) DeleteByOrder(ctx context.Context, orderID int64) error {
	return r.s.do(ctx, func(st *state) error {
		delete(st.lines, orderID)
		return nil
	})
}

func (r *LineRepository) ListByOrder(ctx context.Context, orderID int64) ([]ledger.Line, error) {
	var out []ledger.Line
	err := r.s.do(ctx, func(st *state) error {
		out = linesOf(st, orderID)
		return nil
	})
	return out, err
}

func (r *LineRepository) ListByOrders(ctx context.Context, orderIDs []int64) (map[int64][]ledger.Line, error) {
	out := make(map[int64][]ledger.Line, len(orderIDs))
	err := r.s.do(ctx, func(st *state) error {
		for _, id := range orderIDs {
			if lines := linesOf(st, id); len(lines) > 0 {
				out[id] = lines
			}
		}
		return nil
	})
	return out, err
}

// linesOf copies an order's lines, refreshing the referenced products.
// Lines are kept in LineNo order by Append.
func linesOf(st *state, orderID int64) []ledger.Line {
	stored := st.lines[orderID]
	if len(stored) == 0 {
		return nil
	}
	out := make([]ledger.Line, len(stored))
	for i, l := range stored {
		l.Product = productOf(st, l.ProductID)
		out[i] = l
	}
	return out
}

func productOf(st *state, id int64) product.Product {
	if p, ok := st.products[id]; ok {
		return p
	}
	return product.Product{ID: id}
}
