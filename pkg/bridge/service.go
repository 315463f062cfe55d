// Package bridge implements the custodial bridge state machine: claims,
// deposits, withdrawals and bidirectional swaps between native PAW and
// the wrapped wPAW token. User-initiated operations are validated here
// and settled asynchronously through the job queue; the processors in
// this package are the queue's workers.
package bridge

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/internal/metrics"
	apperrors "github.com/pawbridge/paw-middleware/pkg/app/errors"
	"github.com/pawbridge/paw-middleware/pkg/auth"
	"github.com/pawbridge/paw-middleware/pkg/blacklist"
	"github.com/pawbridge/paw-middleware/pkg/config"
	"github.com/pawbridge/paw-middleware/pkg/ledger"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

// Jobs is the queue capability the service uses.
type Jobs interface {
	EnqueueWithdrawal(ctx context.Context, job queue.WithdrawalJob) (bool, error)
	EnqueuePendingWithdrawal(ctx context.Context, job queue.WithdrawalJob) (bool, error)
	EnqueueSwapToWrapped(ctx context.Context, job queue.SwapToWrappedJob) (bool, error)
	GetPendingWithdrawalsAmount(ctx context.Context) (*big.Int, error)
}

// TokenReader reads wPAW state for reporting.
type TokenReader interface {
	WrappedBalance(ctx context.Context, evmAddress string) (*big.Int, error)
}

// Oracle screens native addresses.
type Oracle interface {
	IsBlacklisted(ctx context.Context, native string) (*blacklist.Entry, error)
}

// Signer produces mint receipts.
type Signer interface {
	Sign(evmAddress string, amountRaw *big.Int, uuid int64) (string, error)
}

// Notifier pushes operation outcomes to wallet subscribers.
type Notifier interface {
	Publish(native, kind string, data any)
}

// Service is the bridge state machine.
type Service struct {
	store  ledger.Store
	jobs   Jobs
	node   pawchain.Client
	token  TokenReader
	oracle Oracle
	signer Signer
	events Notifier
	logger *zap.Logger

	hotMinimum   *big.Int // atomic units
	hotColdRatio int      // percent kept hot
}

// NewService wires the bridge service.
func NewService(
	store ledger.Store,
	jobs Jobs,
	node pawchain.Client,
	token TokenReader,
	oracle Oracle,
	signer Signer,
	events Notifier,
	cfg config.BridgeConfig,
	logger *zap.Logger,
) (*Service, error) {
	hotMinimum, err := pawchain.ParseAmount(cfg.HotWalletMinimum)
	if err != nil {
		return nil, fmt.Errorf("parse hot wallet minimum: %w", err)
	}
	if cfg.HotColdRatio < 0 || cfg.HotColdRatio > 100 {
		return nil, fmt.Errorf("hot/cold ratio %d out of range", cfg.HotColdRatio)
	}

	return &Service{
		store:        store,
		jobs:         jobs,
		node:         node,
		token:        token,
		oracle:       oracle,
		signer:       signer,
		events:       events,
		logger:       logger,
		hotMinimum:   hotMinimum,
		hotColdRatio: cfg.HotColdRatio,
	}, nil
}

// Claim binds a native address to the signer's EVM wallet. The binding
// stays pending until a deposit from the native address confirms it.
func (s *Service) Claim(ctx context.Context, native, evmAddress, signature string) error {
	err := s.claim(ctx, native, evmAddress, signature)
	s.count("claim", err)
	return err
}

func (s *Service) claim(ctx context.Context, native, evmAddress, signature string) error {
	evmAddress = auth.NormalizeAddress(evmAddress)

	if err := auth.VerifySignedBy(auth.ClaimMessage(native), signature, evmAddress); err != nil {
		return apperrors.InvalidSignatureError(err)
	}

	entry, err := s.oracle.IsBlacklisted(ctx, native)
	if err != nil {
		return apperrors.ExternalFailureError(fmt.Errorf("blacklist check: %w", err))
	}
	if entry != nil {
		s.logger.Warn("Claim from blacklisted address",
			zap.String("native", native), zap.String("alias", entry.Alias))
		return apperrors.BlacklistedError(fmt.Errorf("%s is blacklisted (%s)", native, entry.Type))
	}

	confirmed, err := s.store.HasClaim(ctx, native, evmAddress)
	if err != nil {
		return err
	}
	if confirmed {
		return apperrors.AlreadyProcessedError(fmt.Errorf("claim %s <-> %s already confirmed", native, evmAddress))
	}

	claimed, err := s.store.IsClaimed(ctx, native)
	if err != nil {
		return err
	}
	if claimed {
		return apperrors.InvalidOwnerError(fmt.Errorf("%s is already claimed by another wallet", native))
	}

	pendingEVM, pending, err := s.store.HasPendingClaim(ctx, native)
	if err != nil {
		return err
	}
	if pending {
		if pendingEVM == evmAddress {
			// Re-submission of the same claim while it awaits its deposit.
			return nil
		}
		return apperrors.InvalidOwnerError(fmt.Errorf("%s has a pending claim by another wallet", native))
	}

	stored, err := s.store.StorePendingClaim(ctx, native, evmAddress)
	if err != nil {
		return err
	}
	if !stored {
		return apperrors.InvalidOwnerError(fmt.Errorf("%s has a pending claim by another wallet", native))
	}

	s.logger.Info("Pending claim stored",
		zap.String("native", native), zap.String("evm_address", evmAddress))
	return nil
}

// GetBalance returns a user's ledger balance in atomic units.
func (s *Service) GetBalance(ctx context.Context, native string) (*big.Int, error) {
	return s.store.GetBalance(ctx, native)
}

// HotWalletAddress returns the deposit address users send PAW to.
func (s *Service) HotWalletAddress() string {
	return s.node.HotWallet()
}

// PendingWithdrawalsAmount sums withdrawals parked on hot liquidity, in
// atomic units.
func (s *Service) PendingWithdrawalsAmount(ctx context.Context) (*big.Int, error) {
	amount, err := s.jobs.GetPendingWithdrawalsAmount(ctx)
	if err != nil {
		return nil, err
	}
	metrics.PendingWithdrawalAmount.Set(metrics.AmountFloat(amount))
	return amount, nil
}

// History returns a user's bridge records, newest first.
func (s *Service) History(ctx context.Context, evmAddress, native string) (*ledger.History, error) {
	evmAddress = auth.NormalizeAddress(evmAddress)

	deposits, err := s.store.Deposits(ctx, native)
	if err != nil {
		return nil, err
	}
	withdrawals, err := s.store.Withdrawals(ctx, native)
	if err != nil {
		return nil, err
	}
	swapsOut, err := s.store.SwapsToWrapped(ctx, native)
	if err != nil {
		return nil, err
	}
	swapsIn, err := s.store.SwapsToNative(ctx, evmAddress)
	if err != nil {
		return nil, err
	}

	return &ledger.History{
		Deposits:       deposits,
		Withdrawals:    withdrawals,
		SwapsToWrapped: swapsOut,
		SwapsToNative:  swapsIn,
	}, nil
}

// count tracks operation outcomes, resolving the status label from the
// error code so dashboards can split user errors from faults.
func (s *Service) count(operation string, err error) {
	status := "ok"
	if err != nil {
		status = string(apperrors.CodeOf(err))
	}
	metrics.OperationsTotal.WithLabelValues(operation, status).Inc()
}
