package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/hdcontrol/internal/domain/apperr"
	"github.com/xenking/hdcontrol/internal/domain/order"
	"github.com/xenking/hdcontrol/internal/domain/page"
	"github.com/xenking/hdcontrol/internal/domain/payment"
)

const (
	orderColumns = `o.id, o.service_description, o.observation, o.delivery_date, o.status,
		o.user_id, o.created_at, o.updated_at,
		u.first_name, u.last_name, u.email`

	getOrderByIDSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE o.id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + `
		FROM orders o JOIN users u ON u.id = o.user_id
		WHERE ($1::BIGINT IS NULL OR o.user_id = $1)
		ORDER BY o.id LIMIT $2 OFFSET $3`
	countOrdersSQL = `SELECT COUNT(*) FROM orders WHERE ($1::BIGINT IS NULL OR user_id = $1)`

	createOrderSQL = `INSERT INTO orders (service_description, observation, delivery_date, status, user_id)
		VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at, updated_at`
	updateOrderSQL = `UPDATE orders
		SET service_description = $2, observation = $3, delivery_date = $4, status = $5,
			user_id = $6, updated_at = NOW()
		WHERE id = $1 RETURNING created_at, updated_at`

	lockOrderSQL     = `SELECT id FROM orders WHERE id = $1 FOR UPDATE`
	orderExistsSQL   = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
	describeOrderSQL = `SELECT service_description FROM orders WHERE id = $1`
	deleteOrderSQL   = `DELETE FROM orders WHERE id = $1`
)

var (
	_ order.Repository    = (*OrderRepository)(nil)
	_ payment.OrderLookup = (*OrderRepository)(nil)
	_ order.UserChecker   = (*UserRepository)(nil)
)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	db *DB
}

// NewOrderRepository returns an OrderRepository that uses db.
func NewOrderRepository(db *DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the scalar part of o and sets its ID and timestamps.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	err := r.db.conn(ctx).QueryRow(ctx, createOrderSQL,
		o.ServiceDescription, o.Observation, nullDate(o.DeliveryDate), string(o.Status), o.UserID,
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order: %w", classify(err, apperr.KindReferenceNotFound))
	}
	return nil
}

// Update stores the scalar fields of o.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	err := r.db.conn(ctx).QueryRow(ctx, updateOrderSQL,
		o.ID, o.ServiceDescription, o.Observation, nullDate(o.DeliveryDate), string(o.Status), o.UserID,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("updating order %d: %w", o.ID, classify(err, apperr.KindReferenceNotFound))
	}
	return nil
}

// GetByID returns the order with its owner summary and no lines.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.db.conn(ctx).Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, classify(err, 0))
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, classify(err, 0))
	}
	return &o, nil
}

// Lock takes a row lock on the order for the rest of the transaction.
func (r *OrderRepository) Lock(ctx context.Context, id int64) error {
	var locked int64
	if err := r.db.conn(ctx).QueryRow(ctx, lockOrderSQL, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.ErrNotFound
		}
		return fmt.Errorf("locking order %d: %w", id, classify(err, 0))
	}
	return nil
}

func (r *OrderRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := r.db.conn(ctx).QueryRow(ctx, orderExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking order %d: %w", id, classify(err, 0))
	}
	return ok, nil
}

// Describe returns the service description of an order.
func (r *OrderRepository) Describe(ctx context.Context, id int64) (string, bool, error) {
	var desc string
	if err := r.db.conn(ctx).QueryRow(ctx, describeOrderSQL, id).Scan(&desc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("describing order %d: %w", id, classify(err, 0))
	}
	return desc, true, nil
}

// List returns a page of orders ordered by id, optionally for one owner.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter, req page.Request) (page.Page[order.Order], error) {
	q := r.db.conn(ctx)

	var total int64
	if err := q.QueryRow(ctx, countOrdersSQL, f.UserID).Scan(&total); err != nil {
		return page.Page[order.Order]{}, fmt.Errorf("counting orders: %w", classify(err, 0))
	}

	rows, err := q.Query(ctx, listOrdersSQL, f.UserID, req.Size, req.Offset())
	if err != nil {
		return page.Page[order.Order]{}, fmt.Errorf("listing orders: %w", classify(err, 0))
	}
	items, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return page.Page[order.Order]{}, fmt.Errorf("listing orders: %w", classify(err, 0))
	}
	return page.New(items, req, total), nil
}

// Delete removes the order row. Lines and payment cascade in the schema.
func (r *OrderRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.conn(ctx).Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %d: %w", id, classify(err, apperr.KindConflict))
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o        order.Order
		status   string
		delivery *time.Time
	)
	err := row.Scan(
		&o.ID, &o.ServiceDescription, &o.Observation, &delivery, &status,
		&o.UserID, &o.CreatedAt, &o.UpdatedAt,
		&o.Owner.FirstName, &o.Owner.LastName, &o.Owner.Email,
	)
	o.Status = order.Status(status)
	o.Owner.ID = o.UserID
	if delivery != nil {
		o.DeliveryDate = *delivery
	}
	return o, err
}

func nullDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
