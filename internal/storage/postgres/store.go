package postgres

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/domain/product"
)

const (
	setLockTimeoutSQL = `SELECT set_config('lock_timeout', $1, true)`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`

	// The stock check and the write are one statement: the row lock taken by
	// UPDATE serializes concurrent purchases of the same product.
	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	productPriceSQL = `SELECT price FROM products WHERE id = $1`

	insertOrderSQL = `INSERT INTO orders (product_id, quantity, total_price, status)
		VALUES ($1, $2, $3, $4) RETURNING id, created_at`
)

var _ order.Store = (*Store)(nil)

// Store implements order.Store backed by PostgreSQL.
type Store struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewStore returns a Store. A positive lockTimeout bounds row lock waits
// inside each transaction.
func NewStore(pool *pgxpool.Pool, lockTimeout time.Duration) *Store {
	return &Store{pool: pool, lockTimeout: lockTimeout}
}

// InTx runs fn in a READ COMMITTED transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			zctx.From(ctx).Warn("Rollback failed", zap.Error(err))
		}
	}()

	if s.lockTimeout > 0 {
		ms := strconv.FormatInt(s.lockTimeout.Milliseconds(), 10)
		if _, err := tx.Exec(ctx, setLockTimeoutSQL, ms); err != nil {
			return fmt.Errorf("setting lock timeout: %w", err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

var _ order.Tx = (*pgTx)(nil)

func (t *pgTx) ProductExists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	if err := t.tx.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking product %d: %w", id, err)
	}
	return exists, nil
}

func (t *pgTx) ConditionalDecrement(ctx context.Context, id int64, quantity int) (int64, error) {
	tag, err := t.tx.Exec(ctx, decrementStockSQL, id, quantity)
	if err != nil {
		return 0, fmt.Errorf("decrementing stock of product %d: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) ProductPrice(ctx context.Context, id int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	if err := t.tx.QueryRow(ctx, productPriceSQL, id).Scan(&price); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, product.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("reading price of product %d: %w", id, err)
	}
	return price, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *order.Order) error {
	err := t.tx.QueryRow(ctx, insertOrderSQL, o.ProductID, o.Quantity, o.TotalPrice, string(o.Status)).
		Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting order for product %d: %w", o.ProductID, err)
	}
	return nil
}
