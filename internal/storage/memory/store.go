// Package memory implements the purchase store, catalog and order reader in
// process memory. It backs unit tests and the "memory" database driver used
// for local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/domain/product"
)

// Store holds products and orders behind a single lock. A transaction holds
// the lock from begin to commit, so transactions are fully serialized.
type Store struct {
	mu sync.Mutex

	products      map[int64]product.Product
	orders        map[int64]order.Order
	nextProductID int64
	nextOrderID   int64

	now          func() time.Time
	beforeCommit func() error
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source for created/updated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithCommitHook installs fn to run at commit time. A non-nil error aborts the
// commit and discards the transaction, as a failed database commit would.
func WithCommitHook(fn func() error) Option {
	return func(s *Store) { s.beforeCommit = fn }
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		products: make(map[int64]product.Product),
		orders:   make(map[int64]order.Order),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InTx implements order.Store. Writes are staged and only applied on commit.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "begin tx")
	}

	tx := &memTx{s: s, stock: make(map[int64]int)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "commit")
	}
	if s.beforeCommit != nil {
		if err := s.beforeCommit(); err != nil {
			return errors.Wrap(err, "commit")
		}
	}

	now := s.now()
	for id, stock := range tx.stock {
		p := s.products[id]
		p.Stock = stock
		p.UpdatedAt = now
		s.products[id] = p
	}
	for _, o := range tx.orders {
		s.orders[o.ID] = *o
	}
	return nil
}

type memTx struct {
	s      *Store
	stock  map[int64]int
	orders []*order.Order
}

var _ order.Tx = (*memTx)(nil)

func (t *memTx) ProductExists(_ context.Context, id int64) (bool, error) {
	_, ok := t.s.products[id]
	return ok, nil
}

func (t *memTx) ConditionalDecrement(_ context.Context, id int64, quantity int) (int64, error) {
	p, ok := t.s.products[id]
	if !ok {
		return 0, nil
	}
	current, staged := t.stock[id]
	if !staged {
		current = p.Stock
	}
	if current < quantity {
		return 0, nil
	}
	t.stock[id] = current - quantity
	return 1, nil
}

func (t *memTx) ProductPrice(_ context.Context, id int64) (decimal.Decimal, error) {
	p, ok := t.s.products[id]
	if !ok {
		return decimal.Zero, product.ErrNotFound
	}
	return p.Price, nil
}

// InsertOrder assigns the next id. Like a database sequence, ids consumed by
// rolled-back transactions are not reused.
func (t *memTx) InsertOrder(_ context.Context, o *order.Order) error {
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	o.CreatedAt = t.s.now()
	t.orders = append(t.orders, o)
	return nil
}

// Put stores p as is, keeping its ID when set. It is intended for fixtures.
func (s *Store) Put(p product.Product) product.Product {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		s.nextProductID++
		p.ID = s.nextProductID
	} else if p.ID > s.nextProductID {
		s.nextProductID = p.ID
	}
	now := s.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	s.products[p.ID] = p
	return p
}

// Orders returns all committed orders sorted by id.
func (s *Store) Orders() []order.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
