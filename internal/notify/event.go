// Package notify delivers "order committed" events to the downstream order
// processor.
//
// Delivery is at-most-once and not durable. Each event is attempted exactly
// once; a process crash or network partition between commit and dispatch
// loses it for good. Downstream systems must tolerate missing events and
// reconcile against the orders table (see cmd/reconcile).
package notify

import (
	"context"

	"github.com/go-faster/jx"

	"github.com/xenking/oolio-purchase/internal/domain/order"
)

// encodeCommitted renders the downstream body {"order_id": N}.
func encodeCommitted(orderID int64) []byte {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("order_id")
	e.Int64(orderID)
	e.ObjEnd()
	return e.Bytes()
}

// Nop discards notifications. It is used when no downstream is configured.
type Nop struct{}

var _ order.Notifier = Nop{}

// NotifyOrderCommitted does nothing.
func (Nop) NotifyOrderCommitted(context.Context, int64) {}
