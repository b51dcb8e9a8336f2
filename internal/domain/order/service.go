package order

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/product"
)

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	ProductID int64
	Quantity  int
}

// Details is an order together with the current representation of its
// product. Product is nil when the product could not be loaded.
type Details struct {
	Order   *Order
	Product *product.Product
}

// evicter is implemented by cached catalogs that must forget a product after
// its stock changed.
type evicter interface {
	Evict(ctx context.Context, id int64)
}

// Service encapsulates the purchase use case.
type Service struct {
	coordinator *Coordinator
	orders      Reader
	products    product.Repository
	notifier    Notifier

	placed   metric.Int64Counter
	rejected metric.Int64Counter
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	meterProvider metric.MeterProvider
}

// WithMeterProvider sets the meter provider for purchase counters.
func WithMeterProvider(mp metric.MeterProvider) ServiceOption {
	return func(o *serviceOptions) {
		o.meterProvider = mp
	}
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	coordinator *Coordinator,
	orders Reader,
	products product.Repository,
	notifier Notifier,
	opts ...ServiceOption,
) (*Service, error) {
	o := serviceOptions{meterProvider: metricnoop.NewMeterProvider()}
	for _, opt := range opts {
		opt(&o)
	}

	meter := o.meterProvider.Meter("purchase/order")
	placed, err := meter.Int64Counter("purchase.orders.placed",
		metric.WithDescription("Orders committed"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create placed counter")
	}
	rejected, err := meter.Int64Counter("purchase.orders.rejected",
		metric.WithDescription("Purchase attempts that did not commit, by reason"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create rejected counter")
	}

	return &Service{
		coordinator: coordinator,
		orders:      orders,
		products:    products,
		notifier:    notifier,
		placed:      placed,
		rejected:    rejected,
	}, nil
}

// PlaceOrder reserves stock, commits the order and fires the downstream
// notification. Notification outcome never affects the result.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Details, error) {
	lg := zctx.From(ctx).With(
		zap.Int64("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity),
	)

	o, err := s.coordinator.PlaceOrder(ctx, req.ProductID, req.Quantity)
	if err != nil {
		s.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", rejectReason(err))))

		var txErr *TransactionFailedError
		if errors.As(err, &txErr) {
			lg.Error("Purchase transaction failed", zap.Error(txErr.Err))
		}
		return nil, err
	}
	s.placed.Add(ctx, 1)
	lg.Info("Order placed", zap.Int64("order_id", o.ID), zap.String("total_price", o.TotalPrice.StringFixed(2)))

	s.notifier.NotifyOrderCommitted(ctx, o.ID)

	if ev, ok := s.products.(evicter); ok {
		ev.Evict(ctx, req.ProductID)
	}
	return &Details{Order: o, Product: s.loadProduct(ctx, o.ProductID)}, nil
}

// GetOrder returns a committed order with its product.
func (s *Service) GetOrder(ctx context.Context, id int64) (*Details, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %d", id)
	}
	return &Details{Order: o, Product: s.loadProduct(ctx, o.ProductID)}, nil
}

// loadProduct fetches the product for display. The order is already
// committed, so a lookup failure only drops the product from the result.
func (s *Service) loadProduct(ctx context.Context, id int64) *product.Product {
	p, err := s.products.GetByID(ctx, id)
	if err != nil {
		zctx.From(ctx).Warn("Failed to load product for order",
			zap.Int64("product_id", id),
			zap.Error(err),
		)
		return nil
	}
	return p
}

func rejectReason(err error) string {
	var (
		notFound   *ProductNotFoundError
		outOfStock *OutOfStockError
	)
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.As(err, &notFound):
		return "product_not_found"
	case errors.As(err, &outOfStock):
		return "out_of_stock"
	default:
		return "transaction_failed"
	}
}
