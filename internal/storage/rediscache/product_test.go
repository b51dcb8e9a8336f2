package rediscache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/oolio-purchase/internal/domain/product"
	"github.com/xenking/oolio-purchase/internal/storage/memory"
)

// unreachableRedis returns a client whose every command fails fast.
func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestProductCache_RedisDownFallsThrough(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	seeded := store.Put(product.Product{Name: "Mouse", Price: decimal.RequireFromString("19.99"), Stock: 4})

	c := NewProductCache(store, unreachableRedis(t), time.Minute)

	got, err := c.GetByID(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, "Mouse", got.Name)

	p := &product.Product{Name: "Hub", Price: decimal.RequireFromString("5.00"), Stock: 1}
	require.NoError(t, c.Create(ctx, p))
	p.Stock = 2
	require.NoError(t, c.Update(ctx, p))
	require.NoError(t, c.Delete(ctx, p.ID))

	_, err = c.GetByID(ctx, p.ID)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestCodec(t *testing.T) {
	created := time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC)
	in := &product.Product{
		ID:        9,
		Name:      `Figure "limited"`,
		Price:     decimal.RequireFromString("120.00"),
		Stock:     1,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
	}

	out, err := decodeProduct(encodeProduct(in))
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Name, out.Name)
	assert.True(t, in.Price.Equal(out.Price))
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.True(t, in.UpdatedAt.Equal(out.UpdatedAt))

	_, err = decodeProduct([]byte(`{"id":"nope"}`))
	require.Error(t, err)
	_, err = decodeProduct([]byte(`{}`))
	require.Error(t, err)
}
