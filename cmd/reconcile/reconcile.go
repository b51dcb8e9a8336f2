package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/oolio-purchase/internal/domain/order"
)

const progressEvery = 1_000_000

// orderSource streams committed orders. Implemented by
// postgres.OrderRepository.
type orderSource interface {
	EachCreatedBetween(ctx context.Context, from, to time.Time, fn func(order.Order) error) error
}

// buildFilters loads each file into its own bloom filter, concurrently.
func buildFilters(ctx context.Context, lg *zap.Logger, files []string, capacity uint, fpr float64) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, fpr)
			var count uint64
			err := streamGzFile(ctx, path, func(line string) error {
				if _, err := strconv.ParseInt(line, 10, 64); err != nil {
					return errors.Errorf("line %d: not an order id: %q", count+1, line)
				}
				filter.AddString(line)
				count++
				if count%progressEvery == 0 {
					lg.Info("Loading progress", zap.String("file", path), zap.Uint64("ids", count))
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "load %s", path)
			}
			lg.Info("File loaded", zap.String("file", path), zap.Uint64("ids", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// streamGzFile calls fn for every non-empty line of a gzip file.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// findMissing returns the ids of orders in [from, to) that no filter
// contains, along with the number of orders scanned.
func findMissing(
	ctx context.Context,
	src orderSource,
	filters []*bloom.BloomFilter,
	from, to time.Time,
) (missing []int64, scanned int, err error) {
	err = src.EachCreatedBetween(ctx, from, to, func(o order.Order) error {
		scanned++
		id := strconv.FormatInt(o.ID, 10)
		for _, f := range filters {
			if f.TestString(id) {
				return nil
			}
		}
		missing = append(missing, o.ID)
		return nil
	})
	return missing, scanned, err
}

func writeIDs(w io.Writer, ids []int64) error {
	bw := bufio.NewWriter(w)
	for _, id := range ids {
		if _, err := bw.WriteString(strconv.FormatInt(id, 10) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// renotify sends one notification per id. Failures are logged by the
// notifier; an operator reruns the tool to catch anything still missing.
func renotify(ctx context.Context, n order.Notifier, ids []int64, parallel int) error {
	var g errgroup.Group
	g.SetLimit(max(parallel, 1))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return err
		}
		g.Go(func() error {
			n.NotifyOrderCommitted(ctx, id)
			return nil
		})
	}
	return g.Wait()
}
