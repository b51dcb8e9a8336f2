package notify

import (
	"context"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xenking/oolio-purchase/internal/domain/order"
)

// DefaultMaxInFlight bounds concurrent background notifications.
const DefaultMaxInFlight = 256

var _ order.Notifier = (*Detached)(nil)

// Detached runs another Notifier in the background so the purchase response
// never waits on the downstream. The background call keeps the request's
// values (logger, trace) but not its cancellation.
//
// When MaxInFlight calls are already running the notification is dropped and
// logged rather than queued.
type Detached struct {
	next    order.Notifier
	sem     *semaphore.Weighted
	dropped metric.Int64Counter

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDetached wraps next. A nil mp disables metrics.
func NewDetached(next order.Notifier, maxInFlight int64, mp metric.MeterProvider) (*Detached, error) {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	dropped, err := mp.Meter("purchase/notify").Int64Counter("purchase.notify.dropped",
		metric.WithDescription("Order notifications dropped because too many were in flight"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create dropped counter")
	}
	return &Detached{
		next:    next,
		sem:     semaphore.NewWeighted(maxInFlight),
		dropped: dropped,
	}, nil
}

// NotifyOrderCommitted schedules the notification and returns immediately.
func (d *Detached) NotifyOrderCommitted(ctx context.Context, orderID int64) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed || !d.sem.TryAcquire(1) {
		d.dropped.Add(ctx, 1)
		zctx.From(ctx).Warn("Order notification dropped",
			zap.Int64("order_id", orderID),
			zap.Bool("shutting_down", d.closed),
		)
		return
	}

	d.wg.Add(1)
	bg := context.WithoutCancel(ctx)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.next.NotifyOrderCommitted(bg, orderID)
	}()
}

// Close stops accepting notifications and waits for in-flight ones until ctx
// is done.
func (d *Detached) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "wait for notifications")
	}
}
