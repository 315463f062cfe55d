package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/pawbridge/paw-middleware/pkg/app/errors"
	"github.com/pawbridge/paw-middleware/pkg/auth"
	"github.com/pawbridge/paw-middleware/pkg/ledger"
	"github.com/pawbridge/paw-middleware/pkg/notify"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

// RequestWithdrawal validates and schedules a user withdrawal. The
// settlement happens on the withdrawal worker; the outcome reaches the
// user through the event stream.
func (s *Service) RequestWithdrawal(ctx context.Context, native, amount, evmAddress, signature string) error {
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

	_, err = s.jobs.EnqueueWithdrawal(ctx, queue.WithdrawalJob{
		Native:     native,
		Amount:     amount,
		EVMAddress: auth.NormalizeAddress(evmAddress),
		Signature:  signature,
		Timestamp:  time.Now().UnixMilli(),
	})
	return err
}

// HandleWithdrawalJob is the queue processor for the withdrawal topic.
func (s *Service) HandleWithdrawalJob(ctx context.Context, job queue.Job) error {
	var withdrawal queue.WithdrawalJob
	if err := json.Unmarshal(job.Payload, &withdrawal); err != nil {
		return fmt.Errorf("decode withdrawal job: %w", err)
	}
	err := s.processWithdrawal(ctx, withdrawal)
	s.count("withdrawal", err)
	return err
}

func (s *Service) processWithdrawal(ctx context.Context, job queue.WithdrawalJob) error {
	done, err := s.store.HasWithdrawalAt(ctx, job.Native, job.Timestamp)
	if err != nil {
		return err
	}
	if done {
		return apperrors.AlreadyProcessedError(fmt.Errorf("withdrawal %s at %d already settled", job.Native, job.Timestamp))
	}

	// Delayed liquidity retries carry no signature; the first attempt
	// already verified it.
	if job.Signature != "" {
		message := auth.WithdrawMessage(job.Amount, job.Native)
		if err := auth.VerifySignedBy(message, job.Signature, job.EVMAddress); err != nil {
			return apperrors.InvalidSignatureError(err)
		}
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
		return apperrors.BadRequestError(err, "malformed withdrawal amount")
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

	hot, err := s.node.Balance(ctx, s.node.HotWallet())
	if err != nil {
		return apperrors.ExternalFailureError(fmt.Errorf("hot wallet balance: %w", err))
	}
	if hot.Cmp(amount) < 0 {
		return s.parkWithdrawal(ctx, job, hot)
	}

	hash, err := s.node.Send(ctx, job.Native, amount)
	if err != nil {
		return apperrors.ExternalFailureError(fmt.Errorf("send withdrawal: %w", err))
	}

	if _, err := s.store.StoreWithdrawal(ctx, ledger.Withdrawal{
		Native:    job.Native,
		Amount:    amount,
		Timestamp: job.Timestamp,
		Hash:      hash,
	}); err != nil {
		return s.translateStoreErr(err)
	}

	s.logger.Info("Withdrawal settled",
		zap.String("native", job.Native),
		zap.String("amount", job.Amount),
		zap.String("hash", hash))
	s.events.Publish(job.Native, notify.KindWithdrawal, map[string]string{
		"amount": job.Amount,
		"hash":   hash,
	})
	return nil
}

// parkWithdrawal replaces the job with a delayed successor until the
// hot wallet can cover it. The current job fails as "replaced"; the
// successor is the authoritative one.
func (s *Service) parkWithdrawal(ctx context.Context, job queue.WithdrawalJob, hot *big.Int) error {
	if _, err := s.jobs.EnqueuePendingWithdrawal(ctx, job); err != nil {
		return err
	}

	s.logger.Warn("Withdrawal pending hot wallet liquidity",
		zap.String("native", job.Native),
		zap.String("amount", job.Amount),
		zap.String("hot_balance", pawchain.FormatAmount(hot)),
		zap.Int("attempt", job.Attempt+1))
	s.events.Publish(job.Native, notify.KindWithdrawal, map[string]any{
		"amount":  job.Amount,
		"pending": true,
	})
	return fmt.Errorf("hot wallet cannot cover %s yet: %w", job.Amount, queue.ErrReplaced)
}
