package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

type pgStore struct {
	db       *bun.DB
	locker   *Locker
	claimTTL time.Duration
}

// NewStore creates the postgres implementation of the ledger Store.
func NewStore(db *bun.DB, claimTTL time.Duration) Store {
	if claimTTL <= 0 {
		claimTTL = 300 * time.Second
	}
	return &pgStore{db: db, locker: NewLocker(db), claimTTL: claimTTL}
}

// withLock runs fn inside a transaction held under the named lease lock.
func (s *pgStore) withLock(ctx context.Context, name string, fn func(ctx context.Context, tx bun.Tx) error) error {
	release, err := s.locker.Acquire(ctx, name)
	if err != nil {
		return err
	}
	defer release()

	return s.db.RunInTx(ctx, nil, fn)
}

func (s *pgStore) GetBalance(ctx context.Context, native string) (*big.Int, error) {
	release, err := s.locker.Acquire(ctx, balanceLockName(native))
	if err != nil {
		return nil, err
	}
	defer release()

	return s.readBalance(ctx, s.db, native)
}

func (s *pgStore) readBalance(ctx context.Context, db bun.IDB, native string) (*big.Int, error) {
	dao := new(BalanceDao)
	err := db.NewSelect().Model(dao).Where("native = ?", native).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read balance: %w", err)
	}
	return parseAmount(dao.Amount)
}

// applyDelta moves a balance by delta inside tx. A debit that would go
// negative fails with ErrInsufficientBalance and rolls the tx back.
//
// The upsert adds the delta to the stored amount instead of writing the
// value read above: a holder whose lease expired mid-transaction may
// race a thief's commit, and an absolute write would erase it. The
// guard re-checks non-negativity against the row the update actually
// sees, so a raced debit fails instead of going negative.
func (s *pgStore) applyDelta(ctx context.Context, tx bun.Tx, native string, delta *big.Int) error {
	current, err := s.readBalance(ctx, tx, native)
	if err != nil {
		return err
	}

	next := new(big.Int).Add(current, delta)
	if next.Sign() < 0 {
		return fmt.Errorf("balance %s + delta %s: %w", current, delta, ErrInsufficientBalance)
	}

	res, err := tx.NewInsert().
		Model(&BalanceDao{Native: native, Amount: delta.String(), UpdatedAt: time.Now()}).
		On("CONFLICT (native) DO UPDATE").
		Set("amount = b.amount + EXCLUDED.amount, updated_at = EXCLUDED.updated_at").
		Where("b.amount + EXCLUDED.amount >= 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write balance: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("balance %s + delta %s: %w", current, delta, ErrInsufficientBalance)
	}
	return nil
}

func (s *pgStore) audit(ctx context.Context, tx bun.Tx, key, kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = tx.NewInsert().
		Model(&AuditDao{Key: key, Kind: kind, Payload: string(raw)}).
		On("CONFLICT (key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}

func (s *pgStore) GetAudit(ctx context.Context, key string) (Audit, bool, error) {
	dao := new(AuditDao)
	err := s.db.NewSelect().Model(dao).Where("key = ?", key).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return Audit{}, false, nil
	}
	if err != nil {
		return Audit{}, false, fmt.Errorf("read audit: %w", err)
	}
	return Audit{Key: dao.Key, Kind: dao.Kind, Payload: dao.Payload}, true, nil
}

func (s *pgStore) HasPendingClaim(ctx context.Context, native string) (string, bool, error) {
	dao := new(PendingClaimDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("native = ? AND expires_at > ?", native, time.Now()).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read pending claim: %w", err)
	}
	return dao.EVMAddress, true, nil
}

func (s *pgStore) StorePendingClaim(ctx context.Context, native, evmAddress string) (bool, error) {
	now := time.Now()

	// Sweep an expired row so the insert below can take its place.
	_, err := s.db.NewDelete().
		Model((*PendingClaimDao)(nil)).
		Where("native = ? AND expires_at <= ?", native, now).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("sweep expired pending claim: %w", err)
	}

	res, err := s.db.NewInsert().
		Model(&PendingClaimDao{Native: native, EVMAddress: evmAddress, ExpiresAt: now.Add(s.claimTTL)}).
		On("CONFLICT (native) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("store pending claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *pgStore) IsClaimed(ctx context.Context, native string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*ClaimDao)(nil)).
		Where("native = ?", native).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check claim: %w", err)
	}
	return exists, nil
}

func (s *pgStore) HasClaim(ctx context.Context, native, evmAddress string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*ClaimDao)(nil)).
		Where("native = ? AND evm_address = ?", native, evmAddress).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check claim binding: %w", err)
	}
	return exists, nil
}

func (s *pgStore) ConfirmClaim(ctx context.Context, native string) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		pending := new(PendingClaimDao)
		err := tx.NewSelect().
			Model(pending).
			Where("native = ? AND expires_at > ?", native, time.Now()).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNoPendingClaim
		}
		if err != nil {
			return fmt.Errorf("read pending claim: %w", err)
		}

		// First confirmation wins; a confirmed claim is immutable.
		_, err = tx.NewInsert().
			Model(&ClaimDao{Native: native, EVMAddress: pending.EVMAddress}).
			On("CONFLICT (native) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("confirm claim: %w", err)
		}

		_, err = tx.NewDelete().
			Model((*PendingClaimDao)(nil)).
			Where("native = ?", native).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("delete pending claim: %w", err)
		}
		return nil
	})
}

func (s *pgStore) StoreDeposit(ctx context.Context, d Deposit) (bool, error) {
	var stored bool
	err := s.withLock(ctx, balanceLockName(d.Native), func(ctx context.Context, tx bun.Tx) error {
		dao := &DepositDao{Native: d.Native, Amount: d.Amount.String(), Timestamp: d.Timestamp, Hash: d.Hash}
		res, err := tx.NewInsert().
			Model(dao).
			On("CONFLICT (hash) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("store deposit: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		stored = true

		if err := s.applyDelta(ctx, tx, d.Native, d.Amount); err != nil {
			return err
		}
		return s.audit(ctx, tx, d.Hash, "deposit", dao)
	})
	return stored, err
}

func (s *pgStore) HasDeposit(ctx context.Context, native, hash string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*DepositDao)(nil)).
		Where("native = ? AND hash = ?", native, hash).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check deposit: %w", err)
	}
	return exists, nil
}

func (s *pgStore) StoreWithdrawal(ctx context.Context, w Withdrawal) (bool, error) {
	var stored bool
	err := s.withLock(ctx, balanceLockName(w.Native), func(ctx context.Context, tx bun.Tx) error {
		dao := &WithdrawalDao{Native: w.Native, Amount: w.Amount.String(), Timestamp: w.Timestamp, Hash: w.Hash}
		res, err := tx.NewInsert().
			Model(dao).
			On("CONFLICT (native, ts) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("store withdrawal: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		stored = true

		if err := s.applyDelta(ctx, tx, w.Native, new(big.Int).Neg(w.Amount)); err != nil {
			return err
		}
		return s.audit(ctx, tx, w.Hash, "withdrawal", dao)
	})
	return stored, err
}

func (s *pgStore) HasWithdrawalAt(ctx context.Context, native string, timestamp int64) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*WithdrawalDao)(nil)).
		Where("native = ? AND ts = ?", native, timestamp).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check withdrawal: %w", err)
	}
	return exists, nil
}

func (s *pgStore) StoreSwapToWrapped(ctx context.Context, sw SwapToWrapped) (bool, error) {
	var stored bool
	err := s.withLock(ctx, swapOutLockName(sw.Native), func(ctx context.Context, tx bun.Tx) error {
		dao := &SwapOutDao{
			Native:     sw.Native,
			EVMAddress: sw.EVMAddress,
			Amount:     sw.Amount.String(),
			Timestamp:  sw.Timestamp,
			Receipt:    sw.Receipt,
			UUID:       sw.UUID,
		}
		res, err := tx.NewInsert().
			Model(dao).
			On("CONFLICT (uuid) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("store swap to wrapped: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		stored = true

		if err := s.applyDelta(ctx, tx, sw.Native, new(big.Int).Neg(sw.Amount)); err != nil {
			return err
		}
		return s.audit(ctx, tx, strconv.FormatInt(sw.UUID, 10), "swap_to_wrapped", dao)
	})
	return stored, err
}

func (s *pgStore) StoreSwapToNative(ctx context.Context, sn SwapToNative) (bool, error) {
	var stored bool
	err := s.withLock(ctx, balanceLockName(sn.Native), func(ctx context.Context, tx bun.Tx) error {
		dao := &SwapInDao{
			EVMAddress: sn.EVMAddress,
			Native:     sn.Native,
			Amount:     sn.Amount.String(),
			Timestamp:  sn.Timestamp,
			Hash:       sn.Hash,
		}
		res, err := tx.NewInsert().
			Model(dao).
			On("CONFLICT (evm_address, hash) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("store swap to native: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		stored = true

		if err := s.applyDelta(ctx, tx, sn.Native, sn.Amount); err != nil {
			return err
		}
		return s.audit(ctx, tx, sn.Hash, "swap_to_native", dao)
	})
	return stored, err
}

func (s *pgStore) HasSwapToNative(ctx context.Context, evmAddress, hash string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*SwapInDao)(nil)).
		Where("evm_address = ? AND hash = ?", evmAddress, hash).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check swap to native: %w", err)
	}
	return exists, nil
}

func (s *pgStore) GetScanCursor(ctx context.Context) (uint64, error) {
	dao := new(ScanCursorDao)
	err := s.db.NewSelect().Model(dao).Where("id = 1").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read scan cursor: %w", err)
	}
	return dao.LastBlock, nil
}

func (s *pgStore) AdvanceScanCursor(ctx context.Context, block uint64) error {
	_, err := s.db.NewInsert().
		Model(&ScanCursorDao{ID: 1, LastBlock: block}).
		On("CONFLICT (id) DO UPDATE").
		Set("last_block = EXCLUDED.last_block").
		Where("sc.last_block < EXCLUDED.last_block").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("advance scan cursor: %w", err)
	}
	return nil
}

const historyLimit = 1000

func (s *pgStore) Deposits(ctx context.Context, native string) ([]Deposit, error) {
	var daos []DepositDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("native = ?", native).
		OrderExpr("ts DESC").
		Limit(historyLimit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list deposits: %w", err)
	}

	out := make([]Deposit, len(daos))
	for i := range daos {
		if out[i], err = toDeposit(&daos[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *pgStore) Withdrawals(ctx context.Context, native string) ([]Withdrawal, error) {
	var daos []WithdrawalDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("native = ?", native).
		OrderExpr("ts DESC").
		Limit(historyLimit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list withdrawals: %w", err)
	}

	out := make([]Withdrawal, len(daos))
	for i := range daos {
		if out[i], err = toWithdrawal(&daos[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *pgStore) SwapsToWrapped(ctx context.Context, native string) ([]SwapToWrapped, error) {
	var daos []SwapOutDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("native = ?", native).
		OrderExpr("ts DESC").
		Limit(historyLimit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list swaps to wrapped: %w", err)
	}

	out := make([]SwapToWrapped, len(daos))
	for i := range daos {
		if out[i], err = toSwapToWrapped(&daos[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *pgStore) SwapsToNative(ctx context.Context, evmAddress string) ([]SwapToNative, error) {
	var daos []SwapInDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("evm_address = ?", evmAddress).
		OrderExpr("ts DESC").
		Limit(historyLimit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list swaps to native: %w", err)
	}

	out := make([]SwapToNative, len(daos))
	for i := range daos {
		if out[i], err = toSwapToNative(&daos[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
