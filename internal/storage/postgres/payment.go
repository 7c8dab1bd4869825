package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/payment"
)

const (
	paymentColumns = `p.id, p.moment, p.status, p.order_id, o.service_description`

	getPaymentByIDSQL = `SELECT ` + paymentColumns + `
		FROM payments p JOIN orders o ON o.id = p.order_id WHERE p.id = $1`

	getPaymentByOrderIDSQL = `SELECT ` + paymentColumns + `
		FROM payments p JOIN orders o ON o.id = p.order_id WHERE p.order_id = $1`

	listPaymentsSQL = `SELECT ` + paymentColumns + `
		FROM payments p JOIN orders o ON o.id = p.order_id
		ORDER BY p.id LIMIT $1 OFFSET $2`

	countPaymentsSQL        = `SELECT COUNT(*) FROM payments`
	deletePaymentByOrderSQL = `DELETE FROM payments WHERE order_id = $1`
	updatePaymentSQL        = `UPDATE payments SET status = $2, moment = $3 WHERE id = $1`
	createPaymentSQL        = `INSERT INTO payments (moment, status, order_id) VALUES ($1, $2, $3) RETURNING id`
)

var (
	_ payment.Repository   = (*PaymentRepository)(nil)
	_ order.PaymentRemover = (*PaymentRepository)(nil)
)

// PaymentRepository implements payment.Repository backed by PostgreSQL.
type PaymentRepository struct {
	db *DB
}

// NewPaymentRepository returns a PaymentRepository that uses db.
func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts p. The unique constraint on order_id turns a racing second
// insert into a conflict.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	err := r.db.conn(ctx).QueryRow(ctx, createPaymentSQL, p.Moment, string(p.Status), p.OrderID).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("creating payment for order %d: %w", p.OrderID, classify(err, apperr.KindReferenceNotFound))
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id int64) (*payment.Payment, error) {
	return r.get(ctx, getPaymentByIDSQL, id)
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID int64) (*payment.Payment, error) {
	return r.get(ctx, getPaymentByOrderIDSQL, orderID)
}

func (r *PaymentRepository) get(ctx context.Context, sql string, id int64) (*payment.Payment, error) {
	rows, err := r.db.conn(ctx).Query(ctx, sql, id)
	if err != nil {
		return nil, fmt.Errorf("getting payment: %w", classify(err, 0))
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("getting payment: %w", classify(err, 0))
	}
	return &p, nil
}

// Update stores the status and moment of p.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := r.db.conn(ctx).Exec(ctx, updatePaymentSQL, p.ID, string(p.Status), p.Moment)
	if err != nil {
		return fmt.Errorf("updating payment %d: %w", p.ID, classify(err, 0))
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrNotFound
	}
	return nil
}

func (r *PaymentRepository) List(ctx context.Context, req page.Request) (page.Page[payment.Payment], error) {
	q := r.db.conn(ctx)

	var total int64
	if err := q.QueryRow(ctx, countPaymentsSQL).Scan(&total); err != nil {
		return page.Page[payment.Payment]{}, fmt.Errorf("counting payments: %w", classify(err, 0))
	}
	rows, err := q.Query(ctx, listPaymentsSQL, req.Size, req.Offset())
	if err != nil {
		return page.Page[payment.Payment]{}, fmt.Errorf("listing payments: %w", classify(err, 0))
	}
	items, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return page.Page[payment.Payment]{}, fmt.Errorf("listing payments: %w", classify(err, 0))
	}
	return page.New(items, req, total), nil
}

func (r *PaymentRepository) DeleteByOrder(ctx context.Context, orderID int64) error {
	if _, err := r.db.conn(ctx).Exec(ctx, deletePaymentByOrderSQL, orderID); err != nil {
		return fmt.Errorf("deleting payment of order %d: %w", orderID, classify(err, 0))
	}
	return nil
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p      payment.Payment
		status string
	)
	err := row.Scan(&p.ID, &p.Moment, &status, &p.OrderID, &p.OrderDescription)
	p.Status = payment.Status(status)
	return p, err
}
