// Package mysql implements the purchase store, catalog and order reader on
// MySQL (InnoDB) through database/sql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	gomysql "github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/xenking/oolio-purchase/db"
)

// Open connects to MySQL. The DSN uses the driver's format, for example
// "user:pass@tcp(localhost:3306)/purchase". Time parsing and multi-statement
// execution are always enabled.
func Open(ctx context.Context, dsn string, maxConns int) (*sql.DB, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.MultiStatements = true

	connector, err := gomysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating mysql connector: %w", err)
	}

	sqlDB := sql.OpenDB(connector)
	if maxConns > 0 {
		sqlDB.SetMaxOpenConns(maxConns)
		sqlDB.SetMaxIdleConns(maxConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("pinging mysql: %w", err)
	}
	return sqlDB, nil
}

// RunMigrations applies the embedded MySQL schema migrations.
func RunMigrations(sqlDB *sql.DB) error {
	src, err := iofs.New(db.Migrations, "migrations/mysql")
	if err != nil {
		return fmt.Errorf("opening migrations: %w", err)
	}

	driver, err := migratemysql.WithInstance(sqlDB, &migratemysql.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "mysql", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
