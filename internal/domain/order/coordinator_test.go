package order

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingStore waits for the transaction context to end.
type blockingStore struct{}

func (blockingStore) InTx(ctx context.Context, _ func(ctx context.Context, tx Tx) error) error {
	<-ctx.Done()
	return ctx.Err()
}

// ctxCheckingStore fails like a driver would when the tx context is done.
type ctxCheckingStore struct {
	*mockStore
}

func (s ctxCheckingStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.mockStore.InTx(ctx, fn)
}

func TestCoordinator_ScenarioA_ExactStock(t *testing.T) {
	store := newMockStore(newTestProduct(1, "10.00", 5))
	c := NewCoordinator(store)

	o, err := c.PlaceOrder(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, o.Quantity)
	assert.Equal(t, 0, store.products[1].Stock)
	assert.Len(t, store.orders, 1)
}

func TestCoordinator_ScenarioB_InsufficientStock(t *testing.T) {
	store := newMockStore(newTestProduct(1, "10.00", 5))
	c := NewCoordinator(store)

	_, err := c.PlaceOrder(context.Background(), 1, 6)
	require.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 5, store.products[1].Stock)
	assert.Empty(t, store.orders)
	assert.Zero(t, store.commits)
}

func TestCoordinator_CallerCancellationDoesNotAbortTx(t *testing.T) {
	store := newMockStore(newTestProduct(1, "10.00", 5))
	c := NewCoordinator(ctxCheckingStore{store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o, err := c.PlaceOrder(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, store.products[1].Stock)
	assert.Equal(t, int64(1), o.ID)
}

func TestCoordinator_TxTimeout(t *testing.T) {
	c := NewCoordinator(blockingStore{}, WithTxTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := c.PlaceOrder(context.Background(), 1, 1)

	var txErr *TransactionFailedError
	require.ErrorAs(t, err, &txErr)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestCoordinator_NoRetry(t *testing.T) {
	store := newMockStore(newTestProduct(1, "10.00", 5))
	store.commitErr = context.DeadlineExceeded
	c := NewCoordinator(store)

	_, err := c.PlaceOrder(context.Background(), 1, 1)
	require.Error(t, err)
	assert.Equal(t, 1, store.decrementCalls)
	assert.Equal(t, 1, store.rollbacks)
}
