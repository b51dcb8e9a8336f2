package order

import (
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/oolio-purchase/internal/domain/product"
)

// Sentinel errors for order placement.
var (
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrOutOfStock      = errors.New("out of stock")
)

// ProductNotFoundError indicates the purchased product does not exist.
type ProductNotFoundError struct {
	ProductID int64
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %d not found", e.ProductID)
}

func (e *ProductNotFoundError) Unwrap() error { return product.ErrNotFound }

// OutOfStockError indicates the conditional decrement changed no rows.
// No state was modified.
type OutOfStockError struct {
	ProductID int64
	Quantity  int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %d: cannot reserve %d units: out of stock", e.ProductID, e.Quantity)
}

func (e *OutOfStockError) Unwrap() error { return ErrOutOfStock }

// TransactionFailedError is an infrastructure failure while reserving stock
// or committing the order. The transaction was rolled back; the caller may
// retry the whole operation.
type TransactionFailedError struct {
	ProductID int64
	Quantity  int
	Err       error
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("place order for product %d (qty %d): %v", e.ProductID, e.Quantity, e.Err)
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }

// NotificationFailedError records a failed downstream notification. It is
// only ever logged.
type NotificationFailedError struct {
	OrderID int64
	Err     error
}

func (e *NotificationFailedError) Error() string {
	return fmt.Sprintf("notify order %d committed: %v", e.OrderID, e.Err)
}

func (e *NotificationFailedError) Unwrap() error { return e.Err }

// IsRejection reports whether err is a domain outcome (invalid input,
// unknown product, insufficient stock) rather than an infrastructure fault.
func IsRejection(err error) bool {
	var (
		notFound   *ProductNotFoundError
		outOfStock *OutOfStockError
	)
	return errors.Is(err, ErrInvalidQuantity) ||
		errors.As(err, &notFound) ||
		errors.As(err, &outOfStock)
}
