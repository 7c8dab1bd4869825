package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/ledger"
)

const (
	lineColumns = `i.order_id, i.line_no, i.product_id, i.quantity, i.unit_price,
		p.name, p.description, p.brand, p.price`

	listLinesSQL = `SELECT ` + lineColumns + `
		FROM order_items i JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1 ORDER BY i.line_no`

	listLinesByOrdersSQL = `SELECT ` + lineColumns + `
		FROM order_items i JOIN products p ON p.id = i.product_id
		WHERE i.order_id = ANY($1) ORDER BY i.order_id, i.line_no`

	maxLineNoSQL   = `SELECT COALESCE(MAX(line_no), 0) FROM order_items WHERE order_id = $1`
	deleteLinesSQL = `DELETE FROM order_items WHERE order_id = $1`
)

var (
	_ ledger.Repository   = (*LineRepository)(nil)
	_ ledger.OrderChecker = (*OrderRepository)(nil)
)

// LineRepository implements ledger.Repository backed by PostgreSQL.
type LineRepository struct {
	db *DB
}

// NewLineRepository returns a LineRepository that uses db.
func NewLineRepository(db *DB) *LineRepository {
	return &LineRepository{db: db}
}

// Append bulk-inserts lines with COPY, numbering them after the order's
// current highest line number. Callers run it inside a transaction that
// holds the order row lock.
func (r *LineRepository) Append(ctx context.Context, orderID int64, lines []ledger.Line) error {
	if len(lines) == 0 {
		return nil
	}
	q := r.db.conn(ctx)

	var last int
	if err := q.QueryRow(ctx, maxLineNoSQL, orderID).Scan(&last); err != nil {
		return fmt.Errorf("numbering lines of order %d: %w", orderID, classify(err, 0))
	}

	rows := make([][]any, len(lines))
	for i := range lines {
		lines[i].OrderID = orderID
		lines[i].LineNo = last + i + 1
		rows[i] = []any{orderID, lines[i].LineNo, lines[i].ProductID, lines[i].Quantity, lines[i].UnitPrice}
	}

	_, err := q.CopyFrom(ctx,
		pgx.Identifier{"order_items"},
		[]string{"order_id", "line_no", "product_id", "quantity", "unit_price"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("inserting lines of order %d: %w", orderID, classify(err, apperr.KindReferenceNotFound))
	}
	return nil
}

func (r *LineRepository) DeleteByOrder(ctx context.Context, orderID int64) error {
	if _, err := r.db.conn(ctx).Exec(ctx, deleteLinesSQL, orderID); err != nil {
		return fmt.Errorf("deleting lines of order %d: %w", orderID, classify(err, 0))
	}
	return nil
}

// ListByOrder returns the order's lines with their products, by line number.
func (r *LineRepository) ListByOrder(ctx context.Context, orderID int64) ([]ledger.Line, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listLinesSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing lines of order %d: %w", orderID, classify(err, 0))
	}
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return nil, fmt.Errorf("listing lines of order %d: %w", orderID, classify(err, 0))
	}
	return lines, nil
}

// ListByOrders returns the lines of several orders grouped by order id.
func (r *LineRepository) ListByOrders(ctx context.Context, orderIDs []int64) (map[int64][]ledger.Line, error) {
	rows, err := r.db.conn(ctx).Query(ctx, listLinesByOrdersSQL, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("listing lines: %w", classify(err, 0))
	}
	lines, err := pgx.CollectRows(rows, scanLine)
	if err != nil {
		return nil, fmt.Errorf("listing lines: %w", classify(err, 0))
	}

	out := make(map[int64][]ledger.Line, len(orderIDs))
	for _, l := range lines {
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, nil
}

func scanLine(row pgx.CollectableRow) (ledger.Line, error) {
	var l ledger.Line
	err := row.Scan(
		&l.OrderID, &l.LineNo, &l.ProductID, &l.Quantity, &l.UnitPrice,
		&l.Product.Name, &l.Product.Description, &l.Product.Brand, &l.Product.Price,
	)
	l.Product.ID = l.ProductID
	return l, err
}
