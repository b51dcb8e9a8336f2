//go:build integration

package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/oolio-purchase/internal/domain/product"
	"github.com/xenking/oolio-purchase/internal/storage/memory"
)

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())
	return rdb
}

func TestProductCache_ReadThrough(t *testing.T) {
	ctx := context.Background()
	rdb := startRedis(t)
	store := memory.New()
	seeded := store.Put(product.Product{Name: "Keyboard", Price: decimal.RequireFromString("89.90"), Stock: 3})

	c := NewProductCache(store, rdb, time.Minute)

	_, err := c.GetByID(ctx, seeded.ID)
	require.NoError(t, err)

	ttl, err := rdb.TTL(ctx, productKey(seeded.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	// Change the source behind the cache's back: the cached copy is served.
	seeded.Stock = 0
	store.Put(seeded)
	got, err := c.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	// Evict forces a reload.
	c.Evict(ctx, seeded.ID)
	got, err = c.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)
}

func TestProductCache_WritesInvalidate(t *testing.T) {
	ctx := context.Background()
	rdb := startRedis(t)
	c := NewProductCache(memory.New(), rdb, time.Minute)

	p := &product.Product{Name: "Stand", Price: decimal.RequireFromString("29.95"), Stock: 2}
	require.NoError(t, c.Create(ctx, p))
	_, err := c.GetByID(ctx, p.ID)
	require.NoError(t, err)

	p.Name = "Laptop Stand"
	require.NoError(t, c.Update(ctx, p))
	n, err := rdb.Exists(ctx, productKey(p.ID)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := c.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Laptop Stand", got.Name)

	require.NoError(t, c.Delete(ctx, p.ID))
	_, err = c.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, product.ErrNotFound)
}
