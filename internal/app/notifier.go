package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/notify"
	"github.com/xenking/oolio-purchase/pkg/health"
)

// notifier is the configured downstream transport behind the detached
// wrapper the purchase path calls.
type notifier struct {
	detached *notify.Detached

	// check reports the downstream breaker; nil when there is none.
	check health.CheckFunc
	close func() error
}

func newNotifier(lg *zap.Logger, m *app.Telemetry, cfg NotifyConfig) (*notifier, error) {
	var (
		next order.Notifier
		n    = &notifier{close: func() error { return nil }}
		mp   = m.MeterProvider()
	)

	switch cfg.Kind {
	case NotifyHTTP:
		d, err := notify.NewHTTPDispatcher(notify.HTTPConfig{
			URL:     cfg.URL,
			Timeout: cfg.Timeout,
			Breaker: notify.BreakerConfig{
				MaxFailures: cfg.Breaker.MaxFailures,
				OpenTimeout: cfg.Breaker.OpenTimeout,
			},
			TracerProvider: m.TracerProvider(),
			MeterProvider:  mp,
			Logger:         lg.Named("notify"),
		})
		if err != nil {
			return nil, errors.Wrap(err, "create http notifier")
		}
		next, n.check = d, d.Check
		lg.Info("Order notifications via HTTP", zap.String("url", cfg.URL))
	case NotifyKafka:
		d, err := notify.NewKafkaDispatcher(notify.KafkaConfig{
			Brokers:       cfg.Kafka.Brokers,
			Topic:         cfg.Kafka.Topic,
			Timeout:       cfg.Timeout,
			MeterProvider: mp,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create kafka notifier")
		}
		next, n.close = d, d.Close
		lg.Info("Order notifications via Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	case NotifyNone:
		next = notify.Nop{}
		lg.Warn("Order notifications are disabled")
	default:
		return nil, errors.Errorf("unknown notifier %q", cfg.Kind)
	}

	detached, err := notify.NewDetached(next, cfg.MaxInFlight, mp)
	if err != nil {
		return nil, errors.Wrap(err, "create detached notifier")
	}
	n.detached = detached
	return n, nil
}

// shutdown waits for in-flight notifications, then closes the transport.
func (n *notifier) shutdown(ctx context.Context) error {
	drainErr := n.detached.Close(ctx)
	if err := n.close(); err != nil {
		return errors.Wrap(err, "close transport")
	}
	return drainErr
}
