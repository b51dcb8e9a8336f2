package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/order"
)

// DefaultTimeout bounds a single downstream call.
const DefaultTimeout = 2 * time.Second

// StatusError is a non-2xx downstream response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("downstream responded %d", e.Code)
}

// BreakerConfig controls the circuit breaker in front of the downstream.
// A zero MaxFailures disables tripping.
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

// HTTPConfig configures HTTPDispatcher.
type HTTPConfig struct {
	URL     string
	Timeout time.Duration
	Breaker BreakerConfig

	// Transport defaults to http.DefaultTransport. Logger receives breaker
	// state changes.
	Transport      http.RoundTripper
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
	Logger         *zap.Logger
}

var _ order.Notifier = (*HTTPDispatcher)(nil)

// HTTPDispatcher POSTs {"order_id": N} to a fixed URL. Each event is sent once
// with a short timeout; failures are logged, counted and dropped.
type HTTPDispatcher struct {
	url     string
	timeout time.Duration
	client  *http.Client
	cb      *gobreaker.CircuitBreaker
	tracer  trace.Tracer

	sent     metric.Int64Counter
	failures metric.Int64Counter
}

// NewHTTPDispatcher creates an HTTPDispatcher.
func NewHTTPDispatcher(cfg HTTPConfig) (*HTTPDispatcher, error) {
	if cfg.URL == "" {
		return nil, errors.New("notify url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Transport == nil {
		cfg.Transport = http.DefaultTransport
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = tracenoop.NewTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = metricnoop.NewMeterProvider()
	}

	sent, failures, err := newCounters(cfg.MeterProvider)
	if err != nil {
		return nil, err
	}

	return &HTTPDispatcher{
		url:     cfg.URL,
		timeout: cfg.Timeout,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: otelhttp.NewTransport(cfg.Transport,
				otelhttp.WithTracerProvider(cfg.TracerProvider),
				otelhttp.WithMeterProvider(cfg.MeterProvider),
			),
		},
		cb:       newBreaker("order-notify", cfg.Breaker, cfg.Logger),
		tracer:   cfg.TracerProvider.Tracer("purchase/notify"),
		sent:     sent,
		failures: failures,
	}, nil
}

// NotifyOrderCommitted sends the event and swallows any failure.
func (d *HTTPDispatcher) NotifyOrderCommitted(ctx context.Context, orderID int64) {
	ctx, span := d.tracer.Start(ctx, "notify.OrderCommitted",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.Int64("order.id", orderID)),
	)
	defer span.End()

	lg := zctx.From(ctx).With(zap.Int64("order_id", orderID))

	_, err := d.cb.Execute(func() (any, error) {
		return nil, d.post(ctx, orderID)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "notification failed")
		d.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", "http")))
		lg.Warn("Order notification failed",
			zap.Error(&order.NotificationFailedError{OrderID: orderID, Err: err}),
		)
		return
	}

	d.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", "http")))
	lg.Info("Order notification sent")
}

func (d *HTTPDispatcher) post(ctx context.Context, orderID int64) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(encodeCommitted(orderID)))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "post")
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// Check reports an error while the breaker is open. It is meant for a
// degraded-only health check.
func (d *HTTPDispatcher) Check(context.Context) error {
	if d.cb.State() == gobreaker.StateOpen {
		return errors.New("notification circuit open")
	}
	return nil
}

func newBreaker(name string, cfg BreakerConfig, lg *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.MaxFailures > 0 && counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			lg.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

func newCounters(mp metric.MeterProvider) (sent, failures metric.Int64Counter, err error) {
	meter := mp.Meter("purchase/notify")
	sent, err = meter.Int64Counter("purchase.notify.sent",
		metric.WithDescription("Order notifications delivered"),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create sent counter")
	}
	failures, err = meter.Int64Counter("purchase.notify.failures",
		metric.WithDescription("Order notifications that failed and were dropped"),
	)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create failures counter")
	}
	return sent, failures, nil
}
