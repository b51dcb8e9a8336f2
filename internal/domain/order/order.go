package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is the lifecycle state of an order.
type Status string

// Order states. Only StatusCreated is ever written by this service; the rest
// belong to downstream processors.
const (
	StatusCreated    Status = "created"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Order is a committed purchase of a single product.
//
// ProductID is a weak reference: the product may later change price or stock,
// or disappear, without altering the order.
type Order struct {
	ID         int64
	ProductID  int64
	Quantity   int
	TotalPrice decimal.Decimal
	Status     Status
	CreatedAt  time.Time
}

// Store runs purchase transactions against the inventory.
//
// InTx begins a transaction, calls fn and commits if fn returns nil. Any error
// from fn, and any failure to commit, leaves the store unchanged. Errors
// returned by fn are passed through unwrapped.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available inside a purchase transaction.
type Tx interface {
	// ProductExists reports whether the product row exists.
	ProductExists(ctx context.Context, productID int64) (bool, error)
	// ConditionalDecrement lowers stock by quantity only if at least quantity
	// units remain, as a single atomic statement. It returns the number of
	// rows changed: 1 on success, 0 when stock is insufficient.
	ConditionalDecrement(ctx context.Context, productID int64, quantity int) (int64, error)
	// ProductPrice reads the current unit price.
	ProductPrice(ctx context.Context, productID int64) (decimal.Decimal, error)
	// InsertOrder persists o and fills in ID and CreatedAt.
	InsertOrder(ctx context.Context, o *Order) error
}

// Reader defines read access to committed orders.
type Reader interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
}

// Notifier tells a downstream system that an order was committed.
//
// Implementations never report failure to the caller: errors are logged and
// dropped. Delivery is at-most-once and not durable.
type Notifier interface {
	NotifyOrderCommitted(ctx context.Context, orderID int64)
}
