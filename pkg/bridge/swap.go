package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/pawbridge/paw-middleware/pkg/app/errors"
	"github.com/pawbridge/paw-middleware/pkg/auth"
	"github.com/pawbridge/paw-middleware/pkg/ledger"
	"github.com/pawbridge/paw-middleware/pkg/notify"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

// RequestSwap validates and schedules a PAW -> wPAW conversion. The
// mint receipt is produced on the swap worker and delivered through the
// event stream.
func (s *Service) RequestSwap(ctx context.Context, native, amount, evmAddress, signature string) error {
	if !auth.ValidateEVMAddress(evmAddress) {
		return apperrors.BadRequestError(fmt.Errorf("malformed evm address %q", evmAddress), "invalid evm address")
	}
	units, err := pawchain.ParseAmount(amount)
	if err != nil {
		return apperrors.BadRequestError(err, "invalid amount")
	}
	if units.Sign() <= 0 {
		return apperrors.BadRequestError(fmt.Errorf("non-positive amount %q", amount), "amount must be positive")
	}

	_, err = s.jobs.EnqueueSwapToWrapped(ctx, queue.SwapToWrappedJob{
		Native:     native,
		Amount:     amount,
		EVMAddress: auth.NormalizeAddress(evmAddress),
		Signature:  signature,
		Timestamp:  time.Now().UnixMilli(),
	})
	return err
}

// HandleSwapToWrappedJob is the queue processor for the swap-to-wrapped topic.
func (s *Service) HandleSwapToWrappedJob(ctx context.Context, job queue.Job) error {
	var swap queue.SwapToWrappedJob
	if err := json.Unmarshal(job.Payload, &swap); err != nil {
		return fmt.Errorf("decode swap job: %w", err)
	}
	err := s.processSwapToWrapped(ctx, swap)
	s.count("swap_to_wrapped", err)
	return err
}

// processSwapToWrapped debits the user's ledger balance and signs a
// mint receipt for the same amount of wPAW. The uuid makes the receipt
// single-use on-chain and idempotent in the ledger.
func (s *Service) processSwapToWrapped(ctx context.Context, job queue.SwapToWrappedJob) error {
	message := auth.SwapMessage(job.Amount, job.Native)
	if err := auth.VerifySignedBy(message, job.Signature, job.EVMAddress); err != nil {
		return apperrors.InvalidSignatureError(err)
	}

	owned, err := s.store.HasClaim(ctx, job.Native, job.EVMAddress)
	if err != nil {
		return err
	}
	if !owned {
		return apperrors.InvalidOwnerError(fmt.Errorf("%s is not claimed by %s", job.Native, job.EVMAddress))
	}

	amount, err := pawchain.ParseAmount(job.Amount)
	if err != nil {
		return apperrors.BadRequestError(err, "malformed swap amount")
	}
	if amount.Sign() <= 0 {
		return apperrors.BadRequestError(fmt.Errorf("non-positive amount %q", job.Amount), "amount must be positive")
	}

	balance, err := s.store.GetBalance(ctx, job.Native)
	if err != nil {
		return s.translateStoreErr(err)
	}
	if balance.Cmp(amount) < 0 {
		return apperrors.InsufficientBalanceError(
			fmt.Errorf("balance %s < requested %s", pawchain.FormatAmount(balance), job.Amount))
	}

	// Read before mutating so an RPC failure leaves nothing to unwind.
	wrappedBalance, err := s.token.WrappedBalance(ctx, job.EVMAddress)
	if err != nil {
		return apperrors.ExternalFailureError(fmt.Errorf("read wrapped balance: %w", err))
	}

	uuid := time.Now().UnixMilli()
	receipt, err := s.signer.Sign(job.EVMAddress, pawchain.WrappedRawFromUnits(amount), uuid)
	if err != nil {
		return fmt.Errorf("sign mint receipt: %w", err)
	}

	stored, err := s.store.StoreSwapToWrapped(ctx, ledger.SwapToWrapped{
		Native:     job.Native,
		EVMAddress: job.EVMAddress,
		Amount:     amount,
		Timestamp:  job.Timestamp,
		Receipt:    receipt,
		UUID:       uuid,
	})
	if err != nil {
		return s.translateStoreErr(err)
	}
	if !stored {
		return apperrors.AlreadyProcessedError(fmt.Errorf("swap %s at %d already settled", job.Native, job.Timestamp))
	}

	s.logger.Info("Swap to wrapped settled",
		zap.String("native", job.Native),
		zap.String("evm_address", job.EVMAddress),
		zap.String("amount", job.Amount),
		zap.Int64("uuid", uuid))
	s.events.Publish(job.Native, notify.KindSwapToWrapped, map[string]any{
		"amount":         job.Amount,
		"receipt":        receipt,
		"uuid":           uuid,
		"wrappedBalance": pawchain.FormatAmount(pawchain.UnitsFromWrappedRaw(wrappedBalance)),
	})
	return nil
}

// HandleSwapToNativeJob is the queue processor for the swap-to-native topic.
func (s *Service) HandleSwapToNativeJob(ctx context.Context, job queue.Job) error {
	var swap queue.SwapToNativeJob
	if err := json.Unmarshal(job.Payload, &swap); err != nil {
		return fmt.Errorf("decode swap job: %w", err)
	}
	err := s.processSwapToNative(ctx, swap)
	s.count("swap_to_native", err)
	return err
}

// processSwapToNative credits the native-side balance for a wPAW burn.
// The credit is the complete settlement; the user reclaims coin with a
// regular withdrawal.
func (s *Service) processSwapToNative(ctx context.Context, job queue.SwapToNativeJob) error {
	amount, err := pawchain.ParseAmount(job.Amount)
	if err != nil {
		return apperrors.BadRequestError(err, "malformed swap amount")
	}

	stored, err := s.store.StoreSwapToNative(ctx, ledger.SwapToNative{
		EVMAddress: job.EVMAddress,
		Native:     job.Native,
		Amount:     amount,
		Timestamp:  job.Timestamp,
		Hash:       job.Hash,
	})
	if err != nil {
		return s.translateStoreErr(err)
	}
	if !stored {
		// A replayed burn is success, not an error.
		s.logger.Info("Burn already credited", zap.String("hash", job.Hash))
		return nil
	}

	s.logger.Info("Swap to native credited",
		zap.String("evm_address", job.EVMAddress),
		zap.String("native", job.Native),
		zap.String("amount", job.Amount),
		zap.String("hash", job.Hash))
	s.events.Publish(job.Native, notify.KindSwapToNative, map[string]string{
		"amount": job.Amount,
		"hash":   job.Hash,
	})
	return nil
}
