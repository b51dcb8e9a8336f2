package notify

import (
	"context"
	"sync"
	"testing"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error {
	m.closed = true
	return nil
}

func TestKafkaDispatcher_Publishes(t *testing.T) {
	w := &mockWriter{}
	d, err := newKafkaDispatcher(w, DefaultTimeout, nil)
	require.NoError(t, err)

	ctx, logs := observedContext(t)
	d.NotifyOrderCommitted(ctx, 1001)

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "1001", string(w.msgs[0].Key))
	assert.Equal(t, int64(1001), decodeOrderID(t, w.msgs[0].Value))
	assert.Equal(t, 1, logs.FilterMessage("Order notification published").Len())

	require.NoError(t, d.Close())
	assert.True(t, w.closed)
}

func TestKafkaDispatcher_FailureSwallowed(t *testing.T) {
	w := &mockWriter{err: errors.New("leader not available")}
	d, err := newKafkaDispatcher(w, DefaultTimeout, nil)
	require.NoError(t, err)

	ctx, logs := observedContext(t)
	d.NotifyOrderCommitted(ctx, 5)
	assert.Equal(t, 1, logs.FilterMessage("Order notification failed").Len())
}

func TestNewKafkaDispatcher_RequiresBrokers(t *testing.T) {
	_, err := NewKafkaDispatcher(KafkaConfig{})
	require.Error(t, err)
}
