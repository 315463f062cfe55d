package main

import (
	"flag"
	"log"

	"github.com/uptrace/bun/migrate"

	"github.com/pawbridge/paw-middleware/pkg/config"
	"github.com/pawbridge/paw-middleware/pkg/migrations/bridgedb"
	"github.com/pawbridge/paw-middleware/pkg/pgutil"
	mghelper "github.com/pawbridge/paw-middleware/pkg/pgutil/migrations"
)

var configPath = flag.String("config", "config.yaml", "Path to configuration file")

func main() {
	flag.Usage = mghelper.Usage
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		mghelper.Exitf("failed to load config: %v", err)
	}

	db, err := pgutil.ConnectDB(&cfg.Database)
	if err != nil {
		mghelper.Exitf("failed to connect to database: %v", err)
	}
	defer func() { _ = db.Close() }()

	migrator := migrate.NewMigrator(db, bridgedb.Migrations)
	if err := mghelper.RunMigrations(migrator, flag.Args()...); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
}
