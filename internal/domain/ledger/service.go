package ledger

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/product"
	"github.com/xenking/hdcontrol/internal/domain/store"
)

// Ledger implements the order item operations.
type Ledger struct {
	tx       store.Transactor
	items    Repository
	products product.Reader
	orders   OrderChecker
}

// New creates a Ledger.
func New(tx store.Transactor, items Repository, products product.Reader, orders OrderChecker) *Ledger {
	return &Ledger{tx: tx, items: items, products: products, orders: orders}
}

// AddItem appends one line to an existing order.
func (l *Ledger) AddItem(ctx context.Context, orderID int64, in LineInput) (*Line, error) {
	if err := ValidateInputs([]LineInput{in}); err != nil {
		return nil, err
	}

	var added Line
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		if err := l.lockOrder(ctx, orderID); err != nil {
			return err
		}
		lines, err := l.resolve(ctx, orderID, []LineInput{in})
		if err != nil {
			return err
		}
		if err := l.items.Append(ctx, orderID, lines); err != nil {
			return errors.Wrap(err, "append line")
		}
		added = lines[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &added, nil
}

// ReplaceItems swaps the order's whole line set for inputs: existing lines
// are deleted and the new ones inserted in the same transaction. It joins the
// caller's transaction when ctx carries one.
func (l *Ledger) ReplaceItems(ctx context.Context, orderID int64, inputs []LineInput) ([]Line, error) {
	if err := ValidateInputs(inputs); err != nil {
		return nil, err
	}

	var lines []Line
	err := l.tx.InTx(ctx, func(ctx context.Context) error {
		if err := l.lockOrder(ctx, orderID); err != nil {
			return err
		}
		resolved, err := l.resolve(ctx, orderID, inputs)
		if err != nil {
			return err
		}
		if err := l.items.DeleteByOrder(ctx, orderID); err != nil {
			return errors.Wrap(err, "clear lines")
		}
		if len(resolved) > 0 {
			if err := l.items.Append(ctx, orderID, resolved); err != nil {
				return errors.Wrap(err, "insert lines")
			}
		}
		lines = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// Lines returns the current lines of an order.
func (l *Ledger) Lines(ctx context.Context, orderID int64) ([]Line, error) {
	lines, err := l.items.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list lines of order %d", orderID)
	}
	return lines, nil
}

// ComputeTotals re-reads the order's lines and folds them. Nothing is cached.
func (l *Ledger) ComputeTotals(ctx context.Context, orderID int64) (Totals, error) {
	var totals Totals
	err := l.tx.InReadTx(ctx, func(ctx context.Context) error {
		ok, err := l.orders.Exists(ctx, orderID)
		if err != nil {
			return errors.Wrap(err, "check order")
		}
		if !ok {
			return apperr.New(apperr.KindNotFound, "order %d not found", orderID)
		}
		lines, err := l.Lines(ctx, orderID)
		if err != nil {
			return err
		}
		totals = Compute(lines)
		return nil
	})
	return totals, err
}

// lockOrder serializes line writes per order; line numbers are derived from
// the current maximum.
func (l *Ledger) lockOrder(ctx context.Context, orderID int64) error {
	err := l.orders.Lock(ctx, orderID)
	switch {
	case err == nil:
		return nil
	case apperr.KindOf(err) == apperr.KindNotFound:
		return &OrderNotFoundError{OrderID: orderID}
	default:
		return errors.Wrapf(err, "lock order %d", orderID)
	}
}

// resolve fetches every referenced product in one batch and builds the lines,
// snapshotting catalog prices where the input left the price unset.
func (l *Ledger) resolve(ctx context.Context, orderID int64, inputs []LineInput) ([]Line, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(inputs))
	seen := make(map[int64]struct{}, len(inputs))
	for _, in := range inputs {
		if _, ok := seen[in.ProductID]; ok {
			continue
		}
		seen[in.ProductID] = struct{}{}
		ids = append(ids, in.ProductID)
	}

	fetched, err := l.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}
	byID := make(map[int64]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	lines := make([]Line, len(inputs))
	for i, in := range inputs {
		p, ok := byID[in.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: in.ProductID}
		}
		price := p.Price
		if in.UnitPrice.Valid {
			price = in.UnitPrice.Decimal
		}
		lines[i] = Line{
			OrderID:   orderID,
			ProductID: p.ID,
			Product:   p,
			Quantity:  in.Quantity,
			UnitPrice: price,
		}
	}
	return lines, nil
}

// LinesByOrders batch-loads the lines of several orders.
func (l *Ledger) LinesByOrders(ctx context.Context, orderIDs []int64) (map[int64][]Line, error) {
	if len(orderIDs) == 0 {
		return map[int64][]Line{}, nil
	}
	lines, err := l.items.ListByOrders(ctx, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "list lines")
	}
	return lines, nil
}

// Clear removes every line of an order. Used when the order itself is deleted.
func (l *Ledger) Clear(ctx context.Context, orderID int64) error {
	if err := l.items.DeleteByOrder(ctx, orderID); err != nil {
		return errors.Wrapf(err, "clear lines of order %d", orderID)
	}
	return nil
}
