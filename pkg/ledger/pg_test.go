package ledger_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"

	"github.com/pawbridge/paw-middleware/pkg/ledger"
	"github.com/pawbridge/paw-middleware/pkg/migrations/bridgedb"
	"github.com/pawbridge/paw-middleware/pkg/pgutil"
)

func setupStore(t *testing.T, claimTTL time.Duration) ledger.Store {
	t.Helper()

	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, bridgedb.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	return ledger.NewStore(db, claimTTL)
}

func TestDepositCreditsBalanceOnce(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	deposit := ledger.Deposit{
		Native:    "paw_alice",
		Amount:    big.NewInt(5_000_000_000),
		Timestamp: 1000,
		Hash:      "dep-1",
	}

	stored, err := store.StoreDeposit(ctx, deposit)
	require.NoError(t, err)
	require.True(t, stored)

	balance, err := store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "5000000000", balance.String())

	// Replaying the same hash must not credit again.
	stored, err = store.StoreDeposit(ctx, deposit)
	require.NoError(t, err)
	assert.False(t, stored)

	balance, err = store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "5000000000", balance.String())

	has, err := store.HasDeposit(ctx, "paw_alice", "dep-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAuditRowWrittenWithOperation(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	_, found, err := store.GetAudit(ctx, "dep-1")
	require.NoError(t, err)
	assert.False(t, found)

	_, err = store.StoreDeposit(ctx, ledger.Deposit{
		Native: "paw_alice", Amount: big.NewInt(1_500_000_000), Timestamp: 1000, Hash: "dep-1",
	})
	require.NoError(t, err)

	audit, found, err := store.GetAudit(ctx, "dep-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "deposit", audit.Kind)
	assert.Contains(t, audit.Payload, `"paw_alice"`)
}

func TestWithdrawalDebitsAndRejectsOverdraft(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	_, err := store.StoreDeposit(ctx, ledger.Deposit{
		Native: "paw_alice", Amount: big.NewInt(5_000_000_000), Timestamp: 1000, Hash: "dep-1",
	})
	require.NoError(t, err)

	withdrawal := ledger.Withdrawal{
		Native:    "paw_alice",
		Amount:    big.NewInt(2_000_000_000),
		Timestamp: 2000,
		Hash:      "wd-1",
	}
	stored, err := store.StoreWithdrawal(ctx, withdrawal)
	require.NoError(t, err)
	require.True(t, stored)

	balance, err := store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "3000000000", balance.String())

	// Overdraft rolls back: no record, no balance change.
	_, err = store.StoreWithdrawal(ctx, ledger.Withdrawal{
		Native: "paw_alice", Amount: big.NewInt(10_000_000_000), Timestamp: 3000, Hash: "wd-2",
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	has, err := store.HasWithdrawalAt(ctx, "paw_alice", 3000)
	require.NoError(t, err)
	assert.False(t, has)

	balance, err = store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "3000000000", balance.String())

	// Same (native, timestamp) is the natural key; replay is a no-op.
	stored, err = store.StoreWithdrawal(ctx, withdrawal)
	require.NoError(t, err)
	assert.False(t, stored)

	balance, err = store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "3000000000", balance.String())
}

func TestClaimLifecycle(t *testing.T) {
	store := setupStore(t, time.Minute)
	ctx := context.Background()

	const (
		native = "paw_alice"
		evm    = "0x1111111111111111111111111111111111111111"
		other  = "0x2222222222222222222222222222222222222222"
	)

	stored, err := store.StorePendingClaim(ctx, native, evm)
	require.NoError(t, err)
	require.True(t, stored)

	// Only one live pending claim per native address.
	stored, err = store.StorePendingClaim(ctx, native, other)
	require.NoError(t, err)
	assert.False(t, stored)

	pendingEVM, ok, err := store.HasPendingClaim(ctx, native)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, evm, pendingEVM)

	require.NoError(t, store.ConfirmClaim(ctx, native))

	claimed, err := store.IsClaimed(ctx, native)
	require.NoError(t, err)
	assert.True(t, claimed)

	has, err := store.HasClaim(ctx, native, evm)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = store.HasClaim(ctx, native, other)
	require.NoError(t, err)
	assert.False(t, has)

	// The pending row is consumed by confirmation.
	_, ok, err = store.HasPendingClaim(ctx, native)
	require.NoError(t, err)
	assert.False(t, ok)

	err = store.ConfirmClaim(ctx, native)
	require.ErrorIs(t, err, ledger.ErrNoPendingClaim)
}

func TestPendingClaimExpires(t *testing.T) {
	store := setupStore(t, 100*time.Millisecond)
	ctx := context.Background()

	const native = "paw_alice"

	stored, err := store.StorePendingClaim(ctx, native, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	require.True(t, stored)

	time.Sleep(150 * time.Millisecond)

	_, ok, err := store.HasPendingClaim(ctx, native)
	require.NoError(t, err)
	assert.False(t, ok)

	err = store.ConfirmClaim(ctx, native)
	require.ErrorIs(t, err, ledger.ErrNoPendingClaim)

	// An expired row gets swept so the slot opens up again.
	stored, err = store.StorePendingClaim(ctx, native, "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestSwapToWrappedDebitsOnce(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	_, err := store.StoreDeposit(ctx, ledger.Deposit{
		Native: "paw_alice", Amount: big.NewInt(5_000_000_000), Timestamp: 1000, Hash: "dep-1",
	})
	require.NoError(t, err)

	swap := ledger.SwapToWrapped{
		Native:     "paw_alice",
		EVMAddress: "0x1111111111111111111111111111111111111111",
		Amount:     big.NewInt(2_000_000_000),
		Timestamp:  2000,
		Receipt:    "0xreceipt",
		UUID:       7,
	}

	stored, err := store.StoreSwapToWrapped(ctx, swap)
	require.NoError(t, err)
	require.True(t, stored)

	balance, err := store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "3000000000", balance.String())

	// The receipt uuid is the natural key.
	stored, err = store.StoreSwapToWrapped(ctx, swap)
	require.NoError(t, err)
	assert.False(t, stored)

	balance, err = store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "3000000000", balance.String())
}

func TestSwapToNativeCreditsOnce(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	swap := ledger.SwapToNative{
		EVMAddress: "0x1111111111111111111111111111111111111111",
		Native:     "paw_alice",
		Amount:     big.NewInt(1_500_000_000),
		Timestamp:  1000,
		Hash:       "burn-1",
	}

	stored, err := store.StoreSwapToNative(ctx, swap)
	require.NoError(t, err)
	require.True(t, stored)

	balance, err := store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "1500000000", balance.String())

	// A replayed burn hash must not credit twice.
	stored, err = store.StoreSwapToNative(ctx, swap)
	require.NoError(t, err)
	assert.False(t, stored)

	balance, err = store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "1500000000", balance.String())

	has, err := store.HasSwapToNative(ctx, swap.EVMAddress, "burn-1")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestScanCursorIsMonotonic(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	cursor, err := store.GetScanCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)

	require.NoError(t, store.AdvanceScanCursor(ctx, 10))
	cursor, err = store.GetScanCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cursor)

	// Going backwards is ignored.
	require.NoError(t, store.AdvanceScanCursor(ctx, 5))
	cursor, err = store.GetScanCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), cursor)

	require.NoError(t, store.AdvanceScanCursor(ctx, 11))
	cursor, err = store.GetScanCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), cursor)
}

func TestHistoryIsNewestFirst(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	for i, hash := range []string{"dep-1", "dep-2", "dep-3"} {
		_, err := store.StoreDeposit(ctx, ledger.Deposit{
			Native:    "paw_alice",
			Amount:    big.NewInt(1_000_000_000),
			Timestamp: int64(1000 * (i + 1)),
			Hash:      hash,
		})
		require.NoError(t, err)
	}

	deposits, err := store.Deposits(ctx, "paw_alice")
	require.NoError(t, err)
	require.Len(t, deposits, 3)
	assert.Equal(t, "dep-3", deposits[0].Hash)
	assert.Equal(t, "dep-2", deposits[1].Hash)
	assert.Equal(t, "dep-1", deposits[2].Hash)

	// Other wallets stay invisible.
	deposits, err = store.Deposits(ctx, "paw_bob")
	require.NoError(t, err)
	assert.Empty(t, deposits)
}

func TestBalanceConservationAcrossOperations(t *testing.T) {
	store := setupStore(t, 0)
	ctx := context.Background()

	_, err := store.StoreDeposit(ctx, ledger.Deposit{
		Native: "paw_alice", Amount: big.NewInt(10_000_000_000), Timestamp: 1000, Hash: "dep-1",
	})
	require.NoError(t, err)

	_, err = store.StoreWithdrawal(ctx, ledger.Withdrawal{
		Native: "paw_alice", Amount: big.NewInt(3_000_000_000), Timestamp: 2000, Hash: "wd-1",
	})
	require.NoError(t, err)

	_, err = store.StoreSwapToWrapped(ctx, ledger.SwapToWrapped{
		Native:     "paw_alice",
		EVMAddress: "0x1111111111111111111111111111111111111111",
		Amount:     big.NewInt(4_000_000_000),
		Timestamp:  3000,
		Receipt:    "0xr",
		UUID:       1,
	})
	require.NoError(t, err)

	_, err = store.StoreSwapToNative(ctx, ledger.SwapToNative{
		EVMAddress: "0x1111111111111111111111111111111111111111",
		Native:     "paw_alice",
		Amount:     big.NewInt(2_000_000_000),
		Timestamp:  4000,
		Hash:       "burn-1",
	})
	require.NoError(t, err)

	// 10 - 3 - 4 + 2 = 5 PAW
	balance, err := store.GetBalance(ctx, "paw_alice")
	require.NoError(t, err)
	assert.Equal(t, "5000000000", balance.String())
}
