package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/oolio-purchase/internal/domain/order"
)

const (
	getOrderByIDSQL = `SELECT id, product_id, quantity, total_price, status, created_at
		FROM orders WHERE id = $1`

	listOrdersCreatedBetweenSQL = `SELECT id, product_id, quantity, total_price, status, created_at
		FROM orders WHERE created_at >= $1 AND created_at < $2 ORDER BY id`
)

var _ order.Reader = (*OrderRepository)(nil)

// OrderRepository reads committed orders. Orders are only ever written by
// Store inside a purchase transaction.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns a committed order.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	return &o, nil
}

// EachCreatedBetween calls fn for every order created in [from, to), in id
// order, without loading the whole window into memory.
func (r *OrderRepository) EachCreatedBetween(ctx context.Context, from, to time.Time, fn func(order.Order) error) error {
	rows, err := r.pool.Query(ctx, listOrdersCreatedBetweenSQL, from, to)
	if err != nil {
		return fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return fmt.Errorf("scanning order: %w", err)
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return rows.Err()
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.ProductID, &o.Quantity, &o.TotalPrice, &status, &o.CreatedAt)
	o.Status = order.Status(status)
	return o, err
}
