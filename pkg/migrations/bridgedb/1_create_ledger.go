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
		log.Println("creating ledger tables...")
		err := mghelper.CreateSchema(ctx, db,
			&ledger.BalanceDao{},
			&ledger.PendingClaimDao{},
			&ledger.ClaimDao{},
			&ledger.DepositDao{},
			&ledger.WithdrawalDao{},
			&ledger.SwapOutDao{},
			&ledger.SwapInDao{},
			&ledger.AuditDao{},
			&ledger.ScanCursorDao{},
		)
		if err != nil {
			return err
		}

		if err := mghelper.CreateModelIndexes(ctx, db, &ledger.DepositDao{}, "native", "ts"); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &ledger.WithdrawalDao{}, "native", "ts"); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &ledger.SwapOutDao{}, "native", "ts"); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &ledger.SwapInDao{}, "evm_address", "ts"); err != nil {
			return err
		}

		// Composite natural keys backing the ON CONFLICT targets.
		if _, err := db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_withdrawals_native_ts ON withdrawals (native, ts)`); err != nil {
			return err
		}
		_, err = db.ExecContext(ctx,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_swaps_to_native_evm_address_hash ON swaps_to_native (evm_address, hash)`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping ledger tables...")
		return mghelper.DropTables(ctx, db,
			&ledger.BalanceDao{},
			&ledger.PendingClaimDao{},
			&ledger.ClaimDao{},
			&ledger.DepositDao{},
			&ledger.WithdrawalDao{},
			&ledger.SwapOutDao{},
			&ledger.SwapInDao{},
			&ledger.AuditDao{},
			&ledger.ScanCursorDao{},
		)
	})
}
