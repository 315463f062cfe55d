package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/pawbridge/paw-middleware/pkg/ledger"
	mghelper "github.com/pawbridge/paw-middleware/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating ledger_locks table...")
		return mghelper.CreateSchema(ctx, db, &ledger.LockDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping ledger_locks table...")
		return mghelper.DropTables(ctx, db, &ledger.LockDao{})
	})
}
