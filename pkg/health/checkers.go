package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than limit goroutines are running.
// Detached notifications and stuck lock waits both show up here first.
func GoroutineCountCheck(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines running, limit %d", n, limit)
		}
		return nil
	}
}

// GCPauseCheck fails when a stop-the-world pause longer than limit happened
// since the previous run. Older pauses are not reported again.
func GCPauseCheck(limit time.Duration) CheckFunc {
	var (
		mu   sync.Mutex
		seen int64
	)
	return func(context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		mu.Lock()
		defer mu.Unlock()

		// Pause holds the most recent pauses first.
		fresh := stats.NumGC - seen
		seen = stats.NumGC
		for i := 0; i < len(stats.Pause) && int64(i) < fresh; i++ {
			if stats.Pause[i] > limit {
				return errors.Errorf("GC pause %s over %s", stats.Pause[i], limit)
			}
		}
		return nil
	}
}
