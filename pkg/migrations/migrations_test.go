package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun/migrate"

	"github.com/pawbridge/paw-middleware/pkg/migrations/bridgedb"
	mghelper "github.com/pawbridge/paw-middleware/pkg/pgutil"
)

func TestBridgeDBMigrations_Apply(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, bridgedb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected migrations to run, but none were applied")
	}

	expectedTables := []string{
		"balances",
		"pending_claims",
		"claims",
		"deposits",
		"withdrawals",
		"swaps_to_wrapped",
		"swaps_to_native",
		"audits",
		"scan_cursor",
		"ledger_locks",
		"queue_jobs",
		"bun_migrations",
	}

	for _, table := range expectedTables {
		mghelper.AssertTableExists(t, db, table)
	}

	// History queries filter by wallet and order by timestamp.
	mghelper.AssertIndexExists(t, db, "idx_deposits_native")
	mghelper.AssertIndexExists(t, db, "idx_deposits_ts")
	mghelper.AssertIndexExists(t, db, "idx_withdrawals_native")
	mghelper.AssertIndexExists(t, db, "idx_withdrawals_ts")
	mghelper.AssertIndexExists(t, db, "idx_swaps_to_wrapped_native")
	mghelper.AssertIndexExists(t, db, "idx_swaps_to_wrapped_ts")
	mghelper.AssertIndexExists(t, db, "idx_swaps_to_native_evm_address")
	mghelper.AssertIndexExists(t, db, "idx_swaps_to_native_ts")

	// Natural keys backing the idempotent ON CONFLICT inserts.
	mghelper.AssertIndexExists(t, db, "idx_withdrawals_native_ts")
	mghelper.AssertIndexExists(t, db, "idx_swaps_to_native_evm_address_hash")

	// Queue claim path scans by topic, status and run_at.
	mghelper.AssertIndexExists(t, db, "idx_queue_jobs_topic")
	mghelper.AssertIndexExists(t, db, "idx_queue_jobs_status")
	mghelper.AssertIndexExists(t, db, "idx_queue_jobs_run_at")
}

func TestBridgeDBMigrations_Idempotency(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, bridgedb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("First Migrate() failed: %v", err)
	}

	// Second run should be a no-op, not a failure.
	group, err := migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Second Migrate() failed: %v", err)
	}
	if !group.IsZero() {
		t.Error("Expected no new migrations on second run")
	}

	mghelper.AssertTableExists(t, db, "balances")
	mghelper.AssertTableExists(t, db, "queue_jobs")
}

func TestBridgeDBMigrations_Rollback(t *testing.T) {
	db, cleanup := mghelper.SetupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	migrator := migrate.NewMigrator(db, bridgedb.Migrations)

	err := migrator.Init(ctx)
	if err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	_, err = migrator.Migrate(ctx)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}

	mghelper.AssertTableExists(t, db, "balances")
	mghelper.AssertTableExists(t, db, "queue_jobs")

	// Migrate() applies everything as one group, so rollback drops it all.
	group, err := migrator.Rollback(ctx)
	if err != nil {
		t.Fatalf("Rollback() failed: %v", err)
	}
	if group.IsZero() {
		t.Error("Expected rollback to process a migration")
	}

	mghelper.AssertTableNotExists(t, db, "queue_jobs")
	mghelper.AssertTableNotExists(t, db, "ledger_locks")
	mghelper.AssertTableNotExists(t, db, "balances")
	mghelper.AssertTableNotExists(t, db, "deposits")
	mghelper.AssertTableNotExists(t, db, "withdrawals")
}
