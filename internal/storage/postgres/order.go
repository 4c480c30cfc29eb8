package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/golden-feast/internal/domain/order"
	"github.com/xenking/golden-feast/internal/domain/payment"
)

const orderColumns = `id, customer_id, items, total, status, payment_status, payment_method,
	payment_session_id, customer, shipping, metadata, admin_notification, customer_notification,
	created_at, updated_at`

const (
	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertOrderForSessionSQL = insertOrderSQL + `
	ON CONFLICT (payment_session_id) DO NOTHING
	RETURNING ` + orderColumns

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderBySessionSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_session_id = $1`

	updateOrderSQL = `UPDATE orders SET
		status = COALESCE($2::text, status),
		admin_notification = COALESCE($3::boolean, admin_notification),
		customer_notification = COALESCE($4::boolean, customer_notification),
		metadata = CASE
			WHEN $5::text IS NULL THEN metadata
			ELSE jsonb_set(metadata, '{adminComment}', to_jsonb($5::text))
		END,
		updated_at = now()
	WHERE id = $1
	RETURNING ` + orderColumns

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
	WHERE ($1::text = '' OR status = $1::text)
		AND ($2::text = '' OR customer_id = $2::text)
		AND (NOT $3::boolean OR admin_notification)
		AND (NOT $4::boolean OR customer_notification)
	ORDER BY created_at DESC, id`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. Items and the customer, shipping and
// metadata snapshots are stored as JSONB.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	args, err := orderArgs(o)
	if err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, insertOrderSQL, args...); err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// CreateForSession inserts o unless its payment session already produced an
// order. The unique payment_session_id column arbitrates concurrent calls.
func (r *OrderRepository) CreateForSession(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
	if o.PaymentSessionID == "" {
		return nil, false, fmt.Errorf("creating order %q: %w", o.ID, order.ErrValidation)
	}
	args, err := orderArgs(o)
	if err != nil {
		return nil, false, err
	}

	rows, err := r.pool.Query(ctx, insertOrderForSessionSQL, args...)
	if err != nil {
		return nil, false, fmt.Errorf("creating order for session %q: %w", o.PaymentSessionID, err)
	}
	created, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	switch {
	case err == nil:
		return &created, true, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, false, fmt.Errorf("creating order for session %q: %w", o.PaymentSessionID, err)
	}

	existing, err := r.GetByPaymentSessionID(ctx, o.PaymentSessionID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByPaymentSessionID returns the order created for a payment session.
func (r *OrderRepository) GetByPaymentSessionID(ctx context.Context, sessionID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderBySessionSQL, sessionID)
}

func (r *OrderRepository) getOne(ctx context.Context, sql, key string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, key)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", key, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", key, err)
	}
	return &o, nil
}

// Update applies u in a single statement and returns the updated order.
func (r *OrderRepository) Update(ctx context.Context, id string, u order.Update) (*order.Order, error) {
	var status *string
	if u.Status != nil {
		s := string(*u.Status)
		status = &s
	}
	rows, err := r.pool.Query(ctx, updateOrderSQL,
		id, status, u.AdminNotification, u.CustomerNotification, u.AdminComment,
	)
	if err != nil {
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("updating order %q: %w", id, err)
	}
	return &o, nil
}

// List returns orders matching f, newest first.
func (r *OrderRepository) List(ctx context.Context, f order.Filter) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL,
		string(f.Status), f.CustomerID, f.AdminNotificationPending, f.CustomerNotificationPending,
	)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return orders, nil
}

func orderArgs(o *order.Order) ([]any, error) {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("marshaling order items: %w", err)
	}
	customer, err := json.Marshal(o.Customer)
	if err != nil {
		return nil, fmt.Errorf("marshaling customer: %w", err)
	}
	metadata, err := json.Marshal(o.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	var shipping []byte
	if o.Shipping != nil {
		if shipping, err = json.Marshal(o.Shipping); err != nil {
			return nil, fmt.Errorf("marshaling shipping: %w", err)
		}
	}
	var sessionID *string
	if o.PaymentSessionID != "" {
		sessionID = &o.PaymentSessionID
	}
	return []any{
		o.ID, o.CustomerID, items, o.Total, string(o.Status), string(o.PaymentStatus), o.PaymentMethod,
		sessionID, customer, shipping, metadata, o.AdminNotification, o.CustomerNotification,
		o.CreatedAt, o.UpdatedAt,
	}, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                               order.Order
		status, paymentStatus           string
		sessionID                       *string
		items, customer, shipping, meta []byte
	)
	err := row.Scan(
		&o.ID, &o.CustomerID, &items, &o.Total, &status, &paymentStatus, &o.PaymentMethod,
		&sessionID, &customer, &shipping, &meta, &o.AdminNotification, &o.CustomerNotification,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	if sessionID != nil {
		o.PaymentSessionID = *sessionID
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling items of %q: %w", o.ID, err)
	}
	if err := unmarshalOptional(customer, &o.Customer); err != nil {
		return o, fmt.Errorf("unmarshaling customer of %q: %w", o.ID, err)
	}
	if err := unmarshalOptional(meta, &o.Metadata); err != nil {
		return o, fmt.Errorf("unmarshaling metadata of %q: %w", o.ID, err)
	}
	if len(shipping) > 0 && string(shipping) != "null" {
		var sh payment.Shipping
		if err := json.Unmarshal(shipping, &sh); err != nil {
			return o, fmt.Errorf("unmarshaling shipping of %q: %w", o.ID, err)
		}
		o.Shipping = &sh
	}
	return o, nil
}

func unmarshalOptional(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
