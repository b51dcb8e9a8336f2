package memory

import (
	"context"
	"sort"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/domain/product"
)

var (
	_ order.Store     = (*Store)(nil)
	_ order.Reader    = (*OrderReader)(nil)
	_ product.Catalog = (*Store)(nil)
)

// List returns all products ordered by id.
func (s *Store) List(_ context.Context) ([]product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]product.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetByID returns a copy of the product.
func (s *Store) GetByID(_ context.Context, id int64) (*product.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

// Create assigns an id and timestamps to p and stores it.
func (s *Store) Create(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextProductID++
	now := s.now()
	p.ID = s.nextProductID
	p.CreatedAt = now
	p.UpdatedAt = now
	s.products[p.ID] = *p
	return nil
}

// Update overwrites name, price and stock of an existing product.
func (s *Store) Update(_ context.Context, p *product.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.products[p.ID]
	if !ok {
		return product.ErrNotFound
	}
	cur.Name = p.Name
	cur.Price = p.Price
	cur.Stock = p.Stock
	cur.UpdatedAt = s.now()
	s.products[p.ID] = cur
	*p = cur
	return nil
}

// Delete removes a product. Orders referencing it are kept.
func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return product.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

// OrderReader exposes committed orders of a Store. It is a separate type
// because Store.GetByID already serves the catalog.
type OrderReader struct {
	s *Store
}

// OrderReader returns the order read view of s.
func (s *Store) OrderReader() *OrderReader {
	return &OrderReader{s: s}
}

// GetByID returns a committed order.
func (r *OrderReader) GetByID(_ context.Context, id int64) (*order.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	o, ok := r.s.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return &o, nil
}
