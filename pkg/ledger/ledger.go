// Package ledger owns the authoritative bridge state: per-user balances,
// claims, append-only deposit/withdrawal/swap records, audit rows and the
// EVM scan cursor. All mutations run inside a database transaction held
// under a named lease lock, so records and balances move together.
package ledger

import (
	"context"
	"errors"
	"math/big"
)

var (
	// ErrLockContention is returned when lock acquisition retries are exhausted.
	ErrLockContention = errors.New("ledger lock contention")
	// ErrInsufficientBalance is returned when a debit would take a balance negative.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNoPendingClaim is returned by ConfirmClaim when there is nothing to promote.
	ErrNoPendingClaim = errors.New("no pending claim")
)

// Deposit is a confirmed inbound PAW transaction credited to a user.
type Deposit struct {
	Native    string
	Amount    *big.Int // atomic units, 10^-9 PAW
	Timestamp int64    // milliseconds
	Hash      string
}

// Withdrawal is an outbound PAW transaction debited from a user.
type Withdrawal struct {
	Native    string
	Amount    *big.Int
	Timestamp int64
	Hash      string
}

// SwapToWrapped records a PAW -> wPAW conversion and its mint receipt.
type SwapToWrapped struct {
	Native     string
	EVMAddress string
	Amount     *big.Int
	Timestamp  int64
	Receipt    string
	UUID       int64
}

// SwapToNative records a wPAW burn credited back to the native side.
type SwapToNative struct {
	EVMAddress string
	Native     string
	Amount     *big.Int
	Timestamp  int64
	Hash       string
}

// Audit is the raw record of a settled operation, keyed by its hash or
// receipt uuid.
type Audit struct {
	Key     string
	Kind    string
	Payload string
}

// History aggregates a user's records, newest first.
type History struct {
	Deposits       []Deposit       `json:"deposits"`
	Withdrawals    []Withdrawal    `json:"withdrawals"`
	SwapsToWrapped []SwapToWrapped `json:"swaps"`
	SwapsToNative  []SwapToNative  `json:"swapsToNative"`
}

// Store is the persistence contract for the bridge state.
//
// Store* methods are idempotent on their natural key: replaying the same
// deposit hash, withdrawal timestamp, receipt uuid or burn hash is a
// no-op and reports stored=false.
type Store interface {
	// GetBalance returns the user balance in atomic units, under the balance lock.
	GetBalance(ctx context.Context, native string) (*big.Int, error)

	// HasPendingClaim returns the EVM address of the live pending claim, if any.
	HasPendingClaim(ctx context.Context, native string) (string, bool, error)
	// StorePendingClaim records a pending claim unless another one is live
	// for the same native address. Returns whether the claim was stored.
	StorePendingClaim(ctx context.Context, native, evmAddress string) (bool, error)
	// IsClaimed reports whether a confirmed claim exists for the native address.
	IsClaimed(ctx context.Context, native string) (bool, error)
	// HasClaim reports whether the exact (native, evm) binding is confirmed.
	HasClaim(ctx context.Context, native, evmAddress string) (bool, error)
	// ConfirmClaim promotes the pending claim to a confirmed one.
	// Returns ErrNoPendingClaim if there is nothing to promote.
	ConfirmClaim(ctx context.Context, native string) error

	StoreDeposit(ctx context.Context, d Deposit) (stored bool, err error)
	HasDeposit(ctx context.Context, native, hash string) (bool, error)

	StoreWithdrawal(ctx context.Context, w Withdrawal) (stored bool, err error)
	HasWithdrawalAt(ctx context.Context, native string, timestamp int64) (bool, error)

	StoreSwapToWrapped(ctx context.Context, s SwapToWrapped) (stored bool, err error)
	StoreSwapToNative(ctx context.Context, s SwapToNative) (stored bool, err error)
	HasSwapToNative(ctx context.Context, evmAddress, hash string) (bool, error)

	// GetAudit returns the audit row for an operation hash or receipt uuid.
	GetAudit(ctx context.Context, key string) (Audit, bool, error)

	// GetScanCursor returns the last EVM block processed by the burn scanner.
	GetScanCursor(ctx context.Context) (uint64, error)
	// AdvanceScanCursor writes the cursor only if block is strictly greater.
	AdvanceScanCursor(ctx context.Context, block uint64) error

	// History queries return newest-first, capped at 1000 entries.
	Deposits(ctx context.Context, native string) ([]Deposit, error)
	Withdrawals(ctx context.Context, native string) ([]Withdrawal, error)
	SwapsToWrapped(ctx context.Context, native string) ([]SwapToWrapped, error)
	SwapsToNative(ctx context.Context, evmAddress string) ([]SwapToNative, error)
}
