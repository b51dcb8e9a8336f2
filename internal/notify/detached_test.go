package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingNotifier blocks every call until release is closed.
type blockingNotifier struct {
	release chan struct{}

	mu      sync.Mutex
	started []int64
	ctxErrs []error
}

func newBlockingNotifier() *blockingNotifier {
	return &blockingNotifier{release: make(chan struct{})}
}

func (b *blockingNotifier) NotifyOrderCommitted(ctx context.Context, orderID int64) {
	b.mu.Lock()
	b.started = append(b.started, orderID)
	b.mu.Unlock()

	<-b.release

	b.mu.Lock()
	b.ctxErrs = append(b.ctxErrs, ctx.Err())
	b.mu.Unlock()
}

func (b *blockingNotifier) startedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.started)
}

func TestDetached_DoesNotBlockCaller(t *testing.T) {
	next := newBlockingNotifier()
	d, err := NewDetached(next, 4, nil)
	require.NoError(t, err)

	start := time.Now()
	d.NotifyOrderCommitted(context.Background(), 1)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	close(next.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 1, next.startedCount())
}

func TestDetached_IgnoresRequestCancellation(t *testing.T) {
	next := newBlockingNotifier()
	d, err := NewDetached(next, 4, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	d.NotifyOrderCommitted(ctx, 1)
	cancel()

	close(next.release)
	require.NoError(t, d.Close(context.Background()))

	next.mu.Lock()
	defer next.mu.Unlock()
	require.Len(t, next.ctxErrs, 1)
	assert.NoError(t, next.ctxErrs[0])
}

func TestDetached_DropsWhenFull(t *testing.T) {
	next := newBlockingNotifier()
	d, err := NewDetached(next, 2, nil)
	require.NoError(t, err)

	ctx, logs := observedContext(t)
	for i := range 5 {
		d.NotifyOrderCommitted(ctx, int64(i+1))
	}

	assert.Equal(t, 3, logs.FilterMessage("Order notification dropped").Len())

	close(next.release)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, 2, next.startedCount())
}

func TestDetached_CloseRespectsDeadline(t *testing.T) {
	next := newBlockingNotifier()
	d, err := NewDetached(next, 1, nil)
	require.NoError(t, err)
	d.NotifyOrderCommitted(context.Background(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, d.Close(ctx))

	close(next.release)
	require.NoError(t, d.Close(context.Background()))

	// Closed dispatchers drop new notifications.
	d.NotifyOrderCommitted(context.Background(), 2)
	assert.Equal(t, 1, next.startedCount())
}
