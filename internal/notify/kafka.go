package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/order"
)

// DefaultTopic receives order committed events.
const DefaultTopic = "orders.committed"

// KafkaConfig configures KafkaDispatcher.
type KafkaConfig struct {
	Brokers       []string
	Topic         string
	Timeout       time.Duration
	MeterProvider metric.MeterProvider
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ order.Notifier = (*KafkaDispatcher)(nil)

// KafkaDispatcher publishes one message per committed order, keyed by order
// id, with the same body as the HTTP transport. The writer makes a single
// attempt.
type KafkaDispatcher struct {
	w       messageWriter
	timeout time.Duration

	sent     metric.Int64Counter
	failures metric.Int64Counter
}

// NewKafkaDispatcher creates a KafkaDispatcher.
func NewKafkaDispatcher(cfg KafkaConfig) (*KafkaDispatcher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		MaxAttempts:            1,
		BatchSize:              1,
		WriteTimeout:           cfg.Timeout,
		AllowAutoTopicCreation: true,
	}
	return newKafkaDispatcher(w, cfg.Timeout, cfg.MeterProvider)
}

func newKafkaDispatcher(w messageWriter, timeout time.Duration, mp metric.MeterProvider) (*KafkaDispatcher, error) {
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	sent, failures, err := newCounters(mp)
	if err != nil {
		return nil, err
	}
	return &KafkaDispatcher{w: w, timeout: timeout, sent: sent, failures: failures}, nil
}

// NotifyOrderCommitted publishes the event and swallows any failure.
func (d *KafkaDispatcher) NotifyOrderCommitted(ctx context.Context, orderID int64) {
	lg := zctx.From(ctx).With(zap.Int64("order_id", orderID))

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	err := d.w.WriteMessages(ctx, kafka.Message{
		Key:   strconv.AppendInt(nil, orderID, 10),
		Value: encodeCommitted(orderID),
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("order.committed")},
		},
	})
	if err != nil {
		d.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", "kafka")))
		lg.Warn("Order notification failed",
			zap.Error(&order.NotificationFailedError{OrderID: orderID, Err: err}),
		)
		return
	}

	d.sent.Add(ctx, 1, metric.WithAttributes(attribute.String("transport", "kafka")))
	lg.Info("Order notification published")
}

// Close flushes and closes the writer.
func (d *KafkaDispatcher) Close() error {
	return d.w.Close()
}
