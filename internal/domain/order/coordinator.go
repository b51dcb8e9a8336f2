package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultTxTimeout bounds a purchase transaction when no timeout is configured.
const DefaultTxTimeout = 10 * time.Second

// Coordinator reserves stock and creates the matching order as one atomic
// unit. It holds no locks of its own: the store's conditional decrement is the
// only serialization point.
type Coordinator struct {
	store     Store
	txTimeout time.Duration
	tracer    trace.Tracer
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTxTimeout bounds the whole transaction, lock waits included.
func WithTxTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.txTimeout = d
		}
	}
}

// WithTracerProvider sets the tracer provider for transaction spans.
func WithTracerProvider(tp trace.TracerProvider) CoordinatorOption {
	return func(c *Coordinator) {
		c.tracer = tp.Tracer("purchase/order")
	}
}

// NewCoordinator creates a Coordinator over store.
func NewCoordinator(store Store, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:     store,
		txTimeout: DefaultTxTimeout,
		tracer:    tracenoop.NewTracerProvider().Tracer("purchase/order"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PlaceOrder atomically decrements stock of productID by quantity and inserts
// an order for it.
//
// On success stock is lower by exactly quantity and one new order exists. On
// any error neither stock nor orders changed. Errors are ErrInvalidQuantity,
// *ProductNotFoundError, *OutOfStockError or *TransactionFailedError.
//
// Once started, the transaction is not bound to ctx cancellation: it commits
// or rolls back on its own within the configured timeout.
func (c *Coordinator) PlaceOrder(ctx context.Context, productID int64, quantity int) (*Order, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	ctx, span := c.tracer.Start(ctx, "order.PlaceOrder", trace.WithAttributes(
		attribute.Int64("product.id", productID),
		attribute.Int("order.quantity", quantity),
	))
	defer span.End()

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.txTimeout)
	defer cancel()

	var placed *Order
	err := c.store.InTx(txCtx, func(ctx context.Context, tx Tx) error {
		exists, err := tx.ProductExists(ctx, productID)
		if err != nil {
			return errors.Wrap(err, "check product")
		}
		if !exists {
			return &ProductNotFoundError{ProductID: productID}
		}

		affected, err := tx.ConditionalDecrement(ctx, productID, quantity)
		if err != nil {
			return errors.Wrap(err, "decrement stock")
		}
		if affected == 0 {
			return &OutOfStockError{ProductID: productID, Quantity: quantity}
		}

		// The row is locked by the decrement above, so this price is the one
		// the reservation was made against.
		price, err := tx.ProductPrice(ctx, productID)
		if err != nil {
			return errors.Wrap(err, "read price")
		}

		o := &Order{
			ProductID:  productID,
			Quantity:   quantity,
			TotalPrice: price.Mul(decimal.NewFromInt(int64(quantity))),
			Status:     StatusCreated,
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return errors.Wrap(err, "insert order")
		}
		placed = o
		return nil
	})
	if err != nil {
		if IsRejection(err) {
			span.SetAttributes(attribute.String("order.rejected", err.Error()))
			return nil, err
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
		return nil, &TransactionFailedError{ProductID: productID, Quantity: quantity, Err: err}
	}

	span.SetAttributes(attribute.Int64("order.id", placed.ID))
	return placed, nil
}
