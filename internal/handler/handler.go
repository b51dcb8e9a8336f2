// Package handler exposes the purchase and catalog use cases over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/domain/product"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handler maps HTTP requests to the order service and the product catalog.
type Handler struct {
	orders  *order.Service
	catalog product.Catalog
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(orders *order.Service, catalog product.Catalog) *Handler {
	return &Handler{orders: orders, catalog: catalog}
}

// Routes returns the API router, meant to be mounted under /api.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.PlaceOrder)
		r.Get("/{id}", h.GetOrder)
	})
	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Post("/", h.CreateProduct)
		r.Get("/{id}", h.GetProduct)
		r.Put("/{id}", h.UpdateProduct)
		r.Delete("/{id}", h.DeleteProduct)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeMessage(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}
