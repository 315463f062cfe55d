// Package bridgedb holds all the migrations for the bridge database
package bridgedb

import "github.com/uptrace/bun/migrate"

// Migrations is the collection the per-file init() functions register into
var Migrations = migrate.NewMigrations()
