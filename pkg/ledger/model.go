package ledger

import (
	"fmt"
	"math/big"
	"time"

	"github.com/uptrace/bun"
)

// BalanceDao maps to the 'balances' table.
type BalanceDao struct {
	bun.BaseModel `bun:"table:balances,alias:b"`
	Native        string    `bun:"native,pk,type:varchar(72)"`
	Amount        string    `bun:"amount,notnull,type:numeric(38,0),default:0"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// PendingClaimDao maps to the 'pending_claims' table. Rows past
// expires_at are dead; they are swept lazily on the next claim attempt.
type PendingClaimDao struct {
	bun.BaseModel `bun:"table:pending_claims,alias:pc"`
	Native        string    `bun:"native,pk,type:varchar(72)"`
	EVMAddress    string    `bun:"evm_address,notnull,type:varchar(42)"`
	ExpiresAt     time.Time `bun:"expires_at,notnull"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// ClaimDao maps to the 'claims' table: confirmed, immutable bindings.
type ClaimDao struct {
	bun.BaseModel `bun:"table:claims,alias:c"`
	Native        string    `bun:"native,pk,type:varchar(72)"`
	EVMAddress    string    `bun:"evm_address,notnull,type:varchar(42)"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// DepositDao maps to the 'deposits' table.
type DepositDao struct {
	bun.BaseModel `bun:"table:deposits,alias:d"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Native        string `bun:"native,notnull,type:varchar(72)"`
	Amount        string `bun:"amount,notnull,type:numeric(38,0)"`
	Timestamp     int64  `bun:"ts,notnull"`
	Hash          string `bun:"hash,unique,notnull,type:varchar(128)"`
}

// WithdrawalDao maps to the 'withdrawals' table. The (native, ts) pair is
// the natural key a client submission carries before the hash exists.
type WithdrawalDao struct {
	bun.BaseModel `bun:"table:withdrawals,alias:w"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Native        string `bun:"native,notnull,type:varchar(72)"`
	Amount        string `bun:"amount,notnull,type:numeric(38,0)"`
	Timestamp     int64  `bun:"ts,notnull"`
	Hash          string `bun:"hash,notnull,type:varchar(128)"`
}

// SwapOutDao maps to the 'swaps_to_wrapped' table.
type SwapOutDao struct {
	bun.BaseModel `bun:"table:swaps_to_wrapped,alias:sw"`
	ID            int64  `bun:"id,pk,autoincrement"`
	Native        string `bun:"native,notnull,type:varchar(72)"`
	EVMAddress    string `bun:"evm_address,notnull,type:varchar(42)"`
	Amount        string `bun:"amount,notnull,type:numeric(38,0)"`
	Timestamp     int64  `bun:"ts,notnull"`
	Receipt       string `bun:"receipt,notnull,type:varchar(255)"`
	UUID          int64  `bun:"uuid,unique,notnull"`
}

// SwapInDao maps to the 'swaps_to_native' table.
type SwapInDao struct {
	bun.BaseModel `bun:"table:swaps_to_native,alias:sn"`
	ID            int64  `bun:"id,pk,autoincrement"`
	EVMAddress    string `bun:"evm_address,notnull,type:varchar(42)"`
	Native        string `bun:"native,notnull,type:varchar(72)"`
	Amount        string `bun:"amount,notnull,type:numeric(38,0)"`
	Timestamp     int64  `bun:"ts,notnull"`
	Hash          string `bun:"hash,notnull,type:varchar(128)"`
}

// AuditDao maps to the 'audits' table: one row per settled operation,
// keyed by its hash or receipt uuid.
type AuditDao struct {
	bun.BaseModel `bun:"table:audits,alias:a"`
	Key           string    `bun:"key,pk,type:varchar(128)"`
	Kind          string    `bun:"kind,notnull,type:varchar(32)"`
	Payload       string    `bun:"payload,notnull,type:jsonb"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
}

// ScanCursorDao maps to the 'scan_cursor' singleton table.
type ScanCursorDao struct {
	bun.BaseModel `bun:"table:scan_cursor,alias:sc"`
	ID            int64  `bun:"id,pk"`
	LastBlock     uint64 `bun:"last_block,notnull"`
}

// LockDao maps to the 'ledger_locks' lease table.
type LockDao struct {
	bun.BaseModel `bun:"table:ledger_locks,alias:l"`
	Name          string    `bun:"name,pk,type:varchar(128)"`
	Holder        string    `bun:"holder,notnull,type:varchar(64)"`
	ExpiresAt     time.Time `bun:"expires_at,notnull"`
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("malformed amount %q", s)
	}
	return n, nil
}

func toDeposit(dao *DepositDao) (Deposit, error) {
	amount, err := parseAmount(dao.Amount)
	if err != nil {
		return Deposit{}, err
	}
	return Deposit{Native: dao.Native, Amount: amount, Timestamp: dao.Timestamp, Hash: dao.Hash}, nil
}

func toWithdrawal(dao *WithdrawalDao) (Withdrawal, error) {
	amount, err := parseAmount(dao.Amount)
	if err != nil {
		return Withdrawal{}, err
	}
	return Withdrawal{Native: dao.Native, Amount: amount, Timestamp: dao.Timestamp, Hash: dao.Hash}, nil
}

func toSwapToWrapped(dao *SwapOutDao) (SwapToWrapped, error) {
	amount, err := parseAmount(dao.Amount)
	if err != nil {
		return SwapToWrapped{}, err
	}
	return SwapToWrapped{
		Native:     dao.Native,
		EVMAddress: dao.EVMAddress,
		Amount:     amount,
		Timestamp:  dao.Timestamp,
		Receipt:    dao.Receipt,
		UUID:       dao.UUID,
	}, nil
}

func toSwapToNative(dao *SwapInDao) (SwapToNative, error) {
	amount, err := parseAmount(dao.Amount)
	if err != nil {
		return SwapToNative{}, err
	}
	return SwapToNative{
		EVMAddress: dao.EVMAddress,
		Native:     dao.Native,
		Amount:     amount,
		Timestamp:  dao.Timestamp,
		Hash:       dao.Hash,
	}, nil
}
