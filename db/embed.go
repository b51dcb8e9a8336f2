// Package db provides embedded database schema migrations and seed data.
package db

import "embed"

// Migrations holds the versioned DDL for every supported engine, laid out as
// migrations/<driver>/NNNNNN_name.{up,down}.sql for golang-migrate.
//
//go:embed migrations
var Migrations embed.FS
