package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func observedContext(t *testing.T) (context.Context, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	return zctx.Base(context.Background(), zap.New(core)), logs
}

func decodeOrderID(t *testing.T, body []byte) int64 {
	t.Helper()
	var id int64
	err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "order_id" {
			return d.Skip()
		}
		v, err := d.Int64()
		id = v
		return err
	})
	require.NoError(t, err)
	return id
}

func TestHTTPDispatcher_Success(t *testing.T) {
	var got atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		got.Store(decodeOrderID(t, body))
		_, _ = w.Write([]byte(`{"ignored": true}`))
	}))
	defer srv.Close()

	d, err := NewHTTPDispatcher(HTTPConfig{URL: srv.URL})
	require.NoError(t, err)

	ctx, logs := observedContext(t)
	d.NotifyOrderCommitted(ctx, 42)

	assert.Equal(t, int64(42), got.Load())
	assert.Equal(t, 1, logs.FilterMessage("Order notification sent").Len())
	assert.NoError(t, d.Check(ctx))
}

func TestHTTPDispatcher_FailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"redirect-less 3xx", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotModified)
		}},
		{"timeout", func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				tt.handler(w, r)
			}))
			defer srv.Close()

			d, err := NewHTTPDispatcher(HTTPConfig{URL: srv.URL, Timeout: 100 * time.Millisecond})
			require.NoError(t, err)

			ctx, logs := observedContext(t)
			start := time.Now()
			d.NotifyOrderCommitted(ctx, 7)

			assert.Less(t, time.Since(start), 2*time.Second)
			assert.Equal(t, int32(1), calls.Load(), "no retries")
			assert.Equal(t, 1, logs.FilterMessage("Order notification failed").Len())
		})
	}
}

func TestHTTPDispatcher_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d, err := NewHTTPDispatcher(HTTPConfig{URL: url, Timeout: 200 * time.Millisecond})
	require.NoError(t, err)

	ctx, logs := observedContext(t)
	d.NotifyOrderCommitted(ctx, 1)
	assert.Equal(t, 1, logs.FilterMessage("Order notification failed").Len())
}

func TestHTTPDispatcher_BreakerSkipsCallsWhileOpen(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d, err := NewHTTPDispatcher(HTTPConfig{
		URL:     srv.URL,
		Breaker: BreakerConfig{MaxFailures: 2, OpenTimeout: time.Minute},
	})
	require.NoError(t, err)

	ctx, logs := observedContext(t)
	for i := range 5 {
		d.NotifyOrderCommitted(ctx, int64(i+1))
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 5, logs.FilterMessage("Order notification failed").Len())
	assert.Error(t, d.Check(ctx))
}

func TestNewHTTPDispatcher_RequiresURL(t *testing.T) {
	_, err := NewHTTPDispatcher(HTTPConfig{})
	require.Error(t, err)
}
