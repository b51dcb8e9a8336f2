// Command reconcile finds committed orders whose notification the downstream
// never processed.
//
// Notifications are sent at most once, so a crash between commit and dispatch
// loses them. The downstream exports the order ids it has processed as gzip
// files with one id per line. reconcile loads them into bloom filters and
// streams the orders committed in a time window: an order absent from every
// filter was definitely not processed (bloom filters have no false negatives).
// Missing ids are printed to stdout and, with --renotify-url, sent once more.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/notify"
	"github.com/xenking/oolio-purchase/internal/storage/postgres"
)

type options struct {
	databaseURL string
	processed   string
	since       time.Duration
	until       time.Duration
	renotifyURL string
	parallel    int
	capacity    uint
	fpr         float64
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.processed, "processed", "data/processed-*.gz", "glob of gzip files with processed order ids")
	flag.DurationVar(&opts.since, "since", 24*time.Hour, "start of the window, relative to now")
	flag.DurationVar(&opts.until, "until", time.Minute, "end of the window, relative to now; skips orders still in flight")
	flag.StringVar(&opts.renotifyURL, "renotify-url", "", "resend missing notifications to this URL")
	flag.IntVar(&opts.parallel, "parallel", 8, "concurrent renotify requests")
	flag.UintVar(&opts.capacity, "capacity", 10_000_000, "expected processed ids per file")
	flag.Float64Var(&opts.fpr, "fpr", 0.001, "bloom filter false positive rate")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if opts.databaseURL == "" {
		opts.databaseURL = os.Getenv("DATABASE_URL")
	}
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Reconcile failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	files, err := filepath.Glob(opts.processed)
	if err != nil {
		return errors.Wrap(err, "match processed files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", opts.processed)
	}

	lg.Info("Building bloom filters", zap.Strings("files", files))
	filters, err := buildFilters(ctx, lg, files, opts.capacity, opts.fpr)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	pool, err := postgres.NewPool(ctx, opts.databaseURL, postgres.PoolConfig{MaxConns: 2})
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	now := time.Now()
	from, to := now.Add(-opts.since), now.Add(-opts.until)
	lg.Info("Scanning committed orders", zap.Time("from", from), zap.Time("to", to))

	missing, scanned, err := findMissing(ctx, postgres.NewOrderRepository(pool), filters, from, to)
	if err != nil {
		return errors.Wrap(err, "scan orders")
	}
	if err := writeIDs(os.Stdout, missing); err != nil {
		return errors.Wrap(err, "write missing ids")
	}
	lg.Info("Scan complete", zap.Int("orders", scanned), zap.Int("missing", len(missing)))

	if opts.renotifyURL == "" || len(missing) == 0 {
		return nil
	}
	d, err := notify.NewHTTPDispatcher(notify.HTTPConfig{URL: opts.renotifyURL, Logger: lg})
	if err != nil {
		return errors.Wrap(err, "create notifier")
	}
	lg.Info("Resending notifications", zap.Int("count", len(missing)), zap.String("url", opts.renotifyURL))
	return renotify(ctx, d, missing, opts.parallel)
}
