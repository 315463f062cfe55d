package bridge

import (
	"context"
	"math/big"

	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/internal/metrics"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
)

// rebalance runs after every credited deposit: it moves a slice of the
// fresh liquidity to the cold wallet while keeping the hot wallet above
// its configured minimum. Failures are logged, never bubbled; the
// deposit itself already settled.
func (s *Service) rebalance(ctx context.Context, deposit *big.Int) {
	hot, err := s.node.Balance(ctx, s.node.HotWallet())
	if err != nil {
		s.logger.Error("Failed to read hot wallet balance", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("rebalance", "balance").Inc()
		return
	}
	metrics.HotWalletBalance.Set(metrics.AmountFloat(hot))

	send := s.coldSendAmount(hot, deposit)
	if send.Sign() <= 0 {
		return
	}

	hash, err := s.node.Send(ctx, s.node.ColdWallet(), send)
	if err != nil {
		s.logger.Error("Failed to transfer to cold wallet",
			zap.String("amount", pawchain.FormatAmount(send)), zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("rebalance", "send").Inc()
		return
	}

	metrics.ColdTransfersTotal.Inc()
	s.logger.Info("Hot to cold transfer",
		zap.String("amount", pawchain.FormatAmount(send)),
		zap.String("hash", hash))
}

// coldSendAmount computes the hot -> cold transfer for a deposit:
// the spendable part of the deposit (capped by what the hot wallet can
// give up without dropping below the minimum), floored to whole PAW,
// with the configured hot percentage retained.
func (s *Service) coldSendAmount(hot, deposit *big.Int) *big.Int {
	spendable := new(big.Int).Sub(hot, s.hotMinimum)
	if spendable.Sign() <= 0 {
		return big.NewInt(0)
	}
	if spendable.Cmp(deposit) > 0 {
		spendable.Set(deposit)
	}

	whole := pawchain.FloorToWholeCoins(spendable)
	send := new(big.Int).Mul(whole, big.NewInt(int64(100-s.hotColdRatio)))
	return send.Div(send, big.NewInt(100))
}
