package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/product"
)

// productInput holds the fields present in a create or update body.
type productInput struct {
	Name  *string
	Price *decimal.Decimal
	Stock *int64
}

func decodeProductInput(data []byte) (productInput, error) {
	var in productInput
	err := decodeObject(data, func(d *jx.Decoder, key string) error {
		switch key {
		case "name":
			s, err := d.Str()
			in.Name = &s
			return err
		case "price":
			p, err := decodeMoney(d)
			in.Price = &p
			return err
		case "stock":
			n, err := decodeInt(d)
			in.Stock = &n
			return err
		default:
			return d.Skip()
		}
	})
	return in, err
}

// apply copies the present fields onto p.
func (in productInput) apply(p *product.Product) {
	if in.Name != nil {
		p.Name = *in.Name
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Stock != nil {
		p.Stock = int(*in.Stock)
	}
}

// ListProducts handles GET /api/products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.List(r.Context())
	if err != nil {
		h.internalError(w, r, "List products failed", err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) {
		e.ArrStart()
		for i := range products {
			encodeProduct(e, &products[i])
		}
		e.ArrEnd()
	})
}

// GetProduct handles GET /api/products/{id}.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid product id")
		return
	}
	p, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		h.productError(w, r, "Get product failed", err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// CreateProduct handles POST /api/products. All fields are required.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readProductInput(w, r)
	if !ok {
		return
	}
	if in.Name == nil || in.Price == nil || in.Stock == nil {
		writeMessage(w, http.StatusUnprocessableEntity, "name, price and stock are required")
		return
	}

	var p product.Product
	in.apply(&p)
	if !validate(w, &p) {
		return
	}
	if err := h.catalog.Create(r.Context(), &p); err != nil {
		h.internalError(w, r, "Create product failed", err)
		return
	}
	writeData(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, &p) })
}

// UpdateProduct handles PUT /api/products/{id}. Absent fields keep their
// current values.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid product id")
		return
	}
	in, ok := h.readProductInput(w, r)
	if !ok {
		return
	}

	p, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		h.productError(w, r, "Update product failed", err)
		return
	}
	in.apply(p)
	if !validate(w, p) {
		return
	}
	if err := h.catalog.Update(r.Context(), p); err != nil {
		h.productError(w, r, "Update product failed", err)
		return
	}
	writeData(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, p) })
}

// DeleteProduct handles DELETE /api/products/{id}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeMessage(w, http.StatusBadRequest, "Invalid product id")
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		h.productError(w, r, "Delete product failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) readProductInput(w http.ResponseWriter, r *http.Request) (productInput, bool) {
	body, err := readBody(r, w)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body")
		return productInput{}, false
	}
	in, err := decodeProductInput(body)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Malformed request body")
		return productInput{}, false
	}
	return in, true
}

func validate(w http.ResponseWriter, p *product.Product) bool {
	var vErr *product.ValidationError
	if err := p.Validate(); errors.As(err, &vErr) {
		writeMessage(w, http.StatusUnprocessableEntity, vErr.Error())
		return false
	}
	return true
}

func (h *Handler) productError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if errors.Is(err, product.ErrNotFound) {
		writeMessage(w, http.StatusNotFound, "Product not found")
		return
	}
	h.internalError(w, r, msg, err)
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
	writeMessage(w, http.StatusInternalServerError, "Internal Server Error")
}
