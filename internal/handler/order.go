package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/domain/product"
)

type purchaseRequest struct {
	ProductID int64
	Quantity  int64
	hasID     bool
	hasQty    bool
}

func decodePurchase(data []byte) (purchaseRequest, error) {
	var req purchaseRequest
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			req.ProductID, err = decodeInt(d)
			req.hasID = true
		case "quantity":
			req.Quantity, err = decodeInt(d)
			req.hasQty = true
		default:
			err = d.Skip()
		}
		return err
	})
	return req, err
}

// PlaceOrder handles POST /api/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, w)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	req, err := decodePurchase(body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body")
		return
	}
	switch {
	case !req.hasID || req.ProductID <= 0:
		writeMessage(w, http.StatusUnprocessableEntity, "product_id must be a positive integer")
		return
	case !req.hasQty:
		writeMessage(w, http.StatusUnprocessableEntity, "quantity is required")
		return
	case req.Quantity > int64(^uint32(0)>>1):
		writeMessage(w, http.StatusUnprocessableEntity, "quantity is too large")
		return
	}

	res, err := h.orders.PlaceOrder(r.Context(), order.PlaceOrderRequest{
		ProductID: req.ProductID,
		Quantity:  int(req.Quantity),
	})
	if err != nil {
		code, msg := mapOrderError(err)
		writeMessage(w, code, msg)
		return
	}

	writeData(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, res)
	})
}

// GetOrder handles GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	res, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Order not found")
			return
		}
		zctx.From(r.Context()).Error("Get order failed", zap.Int64("order_id", id), zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}

	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, res)
	})
}

// mapOrderError keeps conflict (stock) and fault (infrastructure) apart.
// Fault causes are logged by the service and never echoed.
func mapOrderError(err error) (int, string) {
	var outOfStock *order.OutOfStockError
	switch {
	case errors.Is(err, order.ErrInvalidQuantity):
		return http.StatusUnprocessableEntity, "quantity must be greater than 0"
	case errors.As(err, &outOfStock):
		return http.StatusConflict, "Out of stock"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "Product not found"
	default:
		return http.StatusInternalServerError, "Purchase failed"
	}
}
