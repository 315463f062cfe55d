package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	mghelper "github.com/pawbridge/paw-middleware/pkg/pgutil/migrations"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating queue_jobs table...")
		if err := mghelper.CreateSchema(ctx, db, &queue.JobDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &queue.JobDao{}, "topic", "status", "run_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping queue_jobs table...")
		return mghelper.DropTables(ctx, db, &queue.JobDao{})
	})
}
