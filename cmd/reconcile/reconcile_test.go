package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/order"
)

func writeGz(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer func() { require.NoError(t, f.Close()) }()

	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	return path
}

type fakeOrders []order.Order

func (f fakeOrders) EachCreatedBetween(_ context.Context, from, to time.Time, fn func(order.Order) error) error {
	for _, o := range f {
		if o.CreatedAt.Before(from) || !o.CreatedAt.Before(to) {
			continue
		}
		if err := fn(o); err != nil {
			return err
		}
	}
	return nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	ids []int64
}

func (n *recordingNotifier) NotifyOrderCommitted(_ context.Context, orderID int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ids = append(n.ids, orderID)
}

func TestFindMissing(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeGz(t, dir, "processed-1.gz", "1", "2", ""),
		writeGz(t, dir, "processed-2.gz", " 4 "),
	}

	filters, err := buildFilters(context.Background(), zap.NewNop(), files, 1000, 0.0001)
	require.NoError(t, err)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var orders fakeOrders
	for id := int64(1); id <= 5; id++ {
		orders = append(orders, order.Order{ID: id, CreatedAt: base.Add(time.Duration(id) * time.Minute)})
	}

	missing, scanned, err := findMissing(context.Background(), orders, filters, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 5, scanned)
	assert.Equal(t, []int64{3, 5}, missing)

	// Orders outside the window are not considered.
	missing, scanned, err = findMissing(context.Background(), orders, filters, base, base.Add(4*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, scanned)
	assert.Equal(t, []int64{3}, missing)
}

func TestBuildFilters_RejectsGarbage(t *testing.T) {
	dir := t.TempDir()
	path := writeGz(t, dir, "processed-1.gz", "1", "n/a")

	_, err := buildFilters(context.Background(), zap.NewNop(), []string{path}, 1000, 0.01)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `not an order id: "n/a"`)
}

func TestBuildFilters_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.gz")
	require.NoError(t, os.WriteFile(path, []byte("1\n2\n"), 0o600))

	_, err := buildFilters(context.Background(), zap.NewNop(), []string{path}, 1000, 0.01)
	require.Error(t, err)
}

func TestWriteIDs(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeIDs(&buf, []int64{3, 17}))
	assert.Equal(t, "3\n17\n", buf.String())
}

func TestRenotify(t *testing.T) {
	n := &recordingNotifier{}
	require.NoError(t, renotify(context.Background(), n, []int64{1, 2, 3, 4}, 2))
	assert.ElementsMatch(t, []int64{1, 2, 3, 4}, n.ids)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n = &recordingNotifier{}
	require.ErrorIs(t, renotify(ctx, n, []int64{1, 2}, 2), context.Canceled)
	assert.Empty(t, n.ids)
}
