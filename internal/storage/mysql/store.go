package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/domain/product"
)

const (
	setLockWaitSQL = `SET SESSION innodb_lock_wait_timeout = ?`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = ?)`

	decrementStockSQL = `UPDATE products SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP(6)
		WHERE id = ? AND stock >= ?`

	productPriceSQL = `SELECT price FROM products WHERE id = ?`

	insertOrderSQL = `INSERT INTO orders (product_id, quantity, total_price, status, created_at)
		VALUES (?, ?, ?, ?, ?)`
)

var _ order.Store = (*Store)(nil)

// Store implements order.Store backed by MySQL.
type Store struct {
	db          *sql.DB
	lockTimeout time.Duration
	now         func() time.Time
}

// NewStore returns a Store. InnoDB lock waits are bounded in whole seconds,
// so a positive lockTimeout is rounded up to at least one second.
func NewStore(sqlDB *sql.DB, lockTimeout time.Duration) *Store {
	return &Store{
		db:          sqlDB,
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// InTx runs fn in a READ COMMITTED transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	// The lock wait timeout is a session variable, so pin one connection for
	// both the SET and the transaction.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if s.lockTimeout > 0 {
		secs := int64((s.lockTimeout + time.Second - 1) / time.Second)
		if _, err := conn.ExecContext(ctx, setLockWaitSQL, secs); err != nil {
			return fmt.Errorf("setting lock wait timeout: %w", err)
		}
	}

	tx, err := conn.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(err))
		}
	}()

	if err := fn(ctx, &sqlTx{tx: tx, now: s.now}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

var _ order.Tx = (*sqlTx)(nil)

func (t *sqlTx) ProductExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := t.tx.QueryRowContext(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking product %d: %w", id, err)
	}
	return exists, nil
}

func (t *sqlTx) ConditionalDecrement(ctx context.Context, id int64, quantity int) (int64, error) {
	res, err := t.tx.ExecContext(ctx, decrementStockSQL, quantity, id, quantity)
	if err != nil {
		return 0, fmt.Errorf("decrementing stock of product %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return n, nil
}

func (t *sqlTx) ProductPrice(ctx context.Context, id int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	if err := t.tx.QueryRowContext(ctx, productPriceSQL, id).Scan(&price); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, product.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("reading price of product %d: %w", id, err)
	}
	return price, nil
}

func (t *sqlTx) InsertOrder(ctx context.Context, o *order.Order) error {
	createdAt := t.now()
	res, err := t.tx.ExecContext(ctx, insertOrderSQL, o.ProductID, o.Quantity, o.TotalPrice, string(o.Status), createdAt)
	if err != nil {
		return fmt.Errorf("inserting order for product %d: %w", o.ProductID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading order id: %w", err)
	}
	o.ID = id
	o.CreatedAt = createdAt
	return nil
}
