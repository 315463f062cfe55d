package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/internal/metrics"
	apperrors "github.com/pawbridge/paw-middleware/pkg/app/errors"
	"github.com/pawbridge/paw-middleware/pkg/ledger"
	"github.com/pawbridge/paw-middleware/pkg/notify"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

// HandleDepositJob is the queue processor for the deposit topic.
func (s *Service) HandleDepositJob(ctx context.Context, job queue.Job) error {
	var deposit queue.DepositJob
	if err := json.Unmarshal(job.Payload, &deposit); err != nil {
		return fmt.Errorf("decode deposit job: %w", err)
	}
	err := s.processDeposit(ctx, deposit)
	s.count("deposit", err)
	return err
}

// processDeposit settles one inbound transaction to the hot wallet.
// Deposits from unclaimed wallets and deposits finer than 0.01 PAW are
// returned to the sender.
func (s *Service) processDeposit(ctx context.Context, job queue.DepositJob) error {
	amount, err := pawchain.ParseAmount(job.Amount)
	if err != nil {
		return apperrors.BadRequestError(err, "malformed deposit amount")
	}

	// A deposit is what confirms the sender's pending claim.
	_, pending, err := s.store.HasPendingClaim(ctx, job.Sender)
	if err != nil {
		return err
	}
	if pending {
		if err := s.store.ConfirmClaim(ctx, job.Sender); err != nil && !errors.Is(err, ledger.ErrNoPendingClaim) {
			return err
		}
		s.logger.Info("Claim confirmed by deposit", zap.String("native", job.Sender))
	}

	// Pocket the pending block; safe to replay.
	if err := s.node.Receive(ctx, job.Hash); err != nil {
		return apperrors.ExternalFailureError(fmt.Errorf("receive %s: %w", job.Hash, err))
	}

	claimed, err := s.store.IsClaimed(ctx, job.Sender)
	if err != nil {
		return err
	}
	if !claimed {
		return s.refund(ctx, job, amount, "unclaimed")
	}

	if pawchain.HasMoreThanTwoDecimals(amount) {
		return s.refund(ctx, job, amount, "precision")
	}

	stored, err := s.store.StoreDeposit(ctx, ledger.Deposit{
		Native:    job.Sender,
		Amount:    amount,
		Timestamp: job.Timestamp,
		Hash:      job.Hash,
	})
	if err != nil {
		return s.translateStoreErr(err)
	}
	if !stored {
		s.logger.Info("Deposit already recorded", zap.String("hash", job.Hash))
		return nil
	}

	s.logger.Info("Deposit credited",
		zap.String("native", job.Sender),
		zap.String("amount", job.Amount),
		zap.String("hash", job.Hash))
	s.events.Publish(job.Sender, notify.KindDeposit, map[string]string{
		"amount": job.Amount,
		"hash":   job.Hash,
	})

	s.rebalance(ctx, amount)
	return nil
}

// refund returns the full deposit to the sender without crediting it.
func (s *Service) refund(ctx context.Context, job queue.DepositJob, amount *big.Int, reason string) error {
	hash, err := s.node.Send(ctx, job.Sender, amount)
	if err != nil {
		return apperrors.ExternalFailureError(fmt.Errorf("refund %s to %s: %w", job.Amount, job.Sender, err))
	}

	metrics.RefundsTotal.WithLabelValues(reason).Inc()
	s.logger.Info("Deposit refunded",
		zap.String("native", job.Sender),
		zap.String("amount", job.Amount),
		zap.String("reason", reason),
		zap.String("refund_hash", hash))
	s.events.Publish(job.Sender, notify.KindRefund, map[string]string{
		"amount": job.Amount,
		"reason": reason,
		"hash":   hash,
	})
	return nil
}

// translateStoreErr maps ledger sentinels to service error codes.
func (s *Service) translateStoreErr(err error) error {
	switch {
	case errors.Is(err, ledger.ErrLockContention):
		return apperrors.ContentionTimeoutError(err)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return apperrors.InsufficientBalanceError(err)
	default:
		return err
	}
}
