package app

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/oolio-purchase/internal/domain/order"
	"github.com/xenking/oolio-purchase/internal/domain/product"
	"github.com/xenking/oolio-purchase/internal/storage/memory"
	"github.com/xenking/oolio-purchase/internal/storage/mysql"
	"github.com/xenking/oolio-purchase/internal/storage/postgres"
	"github.com/xenking/oolio-purchase/internal/storage/rediscache"
	"github.com/xenking/oolio-purchase/pkg/health"
)

// storage bundles the store-backed dependencies of the order service.
type storage struct {
	store   order.Store
	orders  order.Reader
	catalog product.Catalog

	// ping is nil for drivers without a remote dependency.
	ping  health.CheckFunc
	close func()
}

func openStorage(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg DatabaseConfig, databaseURL string) (*storage, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return openPostgres(ctx, lg, m, cfg, databaseURL)
	case DriverMySQL:
		return openMySQL(ctx, lg, cfg, databaseURL)
	case DriverMemory:
		lg.Warn("Using in-memory storage, data is lost on restart")
		s := memory.New()
		return &storage{
			store:   s,
			orders:  s.OrderReader(),
			catalog: s,
			close:   func() {},
		}, nil
	default:
		return nil, errors.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg DatabaseConfig, url string) (*storage, error) {
	pool, err := postgres.NewPool(ctx, url, postgres.PoolConfig{
		MaxConns:       cfg.MaxConns,
		TracerProvider: m.TracerProvider(),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	lg.Info("Connected to PostgreSQL", zap.Int32("max_conns", pool.Config().MaxConns))

	return &storage{
		store:   postgres.NewStore(pool, cfg.LockTimeout),
		orders:  postgres.NewOrderRepository(pool),
		catalog: postgres.NewProductRepository(pool),
		ping:    pingPool(pool),
		close:   pool.Close,
	}, nil
}

func pingPool(pool *pgxpool.Pool) health.CheckFunc {
	return func(ctx context.Context) error { return pool.Ping(ctx) }
}

func openMySQL(ctx context.Context, lg *zap.Logger, cfg DatabaseConfig, dsn string) (*storage, error) {
	sqlDB, err := mysql.Open(ctx, dsn, int(cfg.MaxConns))
	if err != nil {
		return nil, errors.Wrap(err, "open mysql")
	}
	if err := mysql.RunMigrations(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, errors.Wrap(err, "run migrations")
	}
	lg.Info("Connected to MySQL", zap.Int32("max_conns", cfg.MaxConns))

	return &storage{
		store:   mysql.NewStore(sqlDB, cfg.LockTimeout),
		orders:  mysql.NewOrderRepository(sqlDB),
		catalog: mysql.NewProductRepository(sqlDB),
		ping:    pingDB(sqlDB),
		close: func() {
			if err := sqlDB.Close(); err != nil {
				lg.Warn("Close mysql", zap.Error(err))
			}
		},
	}, nil
}

func pingDB(sqlDB *sql.DB) health.CheckFunc {
	return func(ctx context.Context) error { return sqlDB.PingContext(ctx) }
}

// withProductCache puts the Redis read-through cache in front of the catalog.
// The cache is optional: the returned check only ever degrades the service.
func withProductCache(catalog product.Catalog, cfg RedisConfig) (product.Catalog, health.CheckFunc, func()) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DialTimeout:  time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	check := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	closeFn := func() { _ = rdb.Close() }
	return rediscache.NewProductCache(catalog, rdb, cfg.ProductTTL), check, closeFn
}
