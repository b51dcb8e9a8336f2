package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/oolio-purchase/internal/domain/order"
)

const getOrderByIDSQL = `SELECT id, product_id, quantity, total_price, status, created_at
	FROM orders WHERE id = ?`

var _ order.Reader = (*OrderRepository)(nil)

// OrderRepository reads committed orders.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository returns an OrderRepository that uses sqlDB.
func NewOrderRepository(sqlDB *sql.DB) *OrderRepository {
	return &OrderRepository{db: sqlDB}
}

// GetByID returns a committed order.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := r.db.QueryRowContext(ctx, getOrderByIDSQL, id).
		Scan(&o.ID, &o.ProductID, &o.Quantity, &o.TotalPrice, &status, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o.Status = order.Status(status)
	return &o, nil
}
