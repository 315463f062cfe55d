package pawchain

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/internal/metrics"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

const (
	reconnectMinDelay = 500 * time.Millisecond
	reconnectMaxDelay = 15 * time.Second
)

// DepositEnqueuer is the queue capability the watcher needs.
type DepositEnqueuer interface {
	EnqueueDeposit(ctx context.Context, job queue.DepositJob) (bool, error)
}

// Watcher feeds hot wallet deposits into the queue from two sources:
// the confirmation websocket and a periodic sweep of pending
// receivables that reconciles missed messages.
type Watcher struct {
	client        Client
	jobs          DepositEnqueuer
	logger        *zap.Logger
	sweepInterval time.Duration

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewWatcher creates the L1 watcher.
func NewWatcher(client Client, jobs DepositEnqueuer, sweepInterval time.Duration, logger *zap.Logger) *Watcher {
	if sweepInterval <= 0 {
		sweepInterval = 60 * time.Second
	}
	return &Watcher{
		client:        client,
		jobs:          jobs,
		logger:        logger,
		sweepInterval: sweepInterval,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the stream and sweep loops.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(2)
	go w.streamLoop(ctx)
	go w.sweepLoop(ctx)
	w.logger.Info("PAW watcher started", zap.String("hot_wallet", w.client.HotWallet()))
}

// Stop signals the loops and waits for them.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("PAW watcher stopped")
}

// streamLoop owns the websocket and restarts it with bounded
// exponential backoff and +/-20% jitter.
func (w *Watcher) streamLoop(ctx context.Context) {
	defer w.wg.Done()

	delay := reconnectMinDelay
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		err := w.client.SubscribeConfirmations(ctx, []string{w.client.HotWallet()}, func(c Confirmation) {
			w.handleConfirmation(ctx, c)
		})
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("Node websocket closed, reconnecting", zap.Error(err), zap.Duration("delay", delay))
		metrics.ErrorsTotal.WithLabelValues("paw_watcher", "websocket").Inc()

		// A long-lived socket resets the backoff window.
		if time.Since(start) > reconnectMaxDelay {
			delay = reconnectMinDelay
		}

		jitter := time.Duration(float64(delay) * (0.8 + 0.4*rand.Float64()))
		select {
		case <-time.After(jitter):
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

func (w *Watcher) sweepLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

// sweep lists pending receivables and pushes them through the same
// classification as the stream path.
func (w *Watcher) sweep(ctx context.Context) {
	receivables, err := w.client.Receivables(ctx)
	if err != nil {
		w.logger.Error("Failed to list receivables", zap.Error(err))
		metrics.ErrorsTotal.WithLabelValues("paw_watcher", "receivables").Inc()
		return
	}

	for _, r := range receivables {
		w.handleConfirmation(ctx, Confirmation{
			Sender:    r.Source,
			Receiver:  w.client.HotWallet(),
			AmountRaw: r.AmountRaw,
			Hash:      r.Hash,
		})
	}
}

// handleConfirmation classifies one inbound block. Self-pays from the
// custodial wallets are pocketed without crediting anyone; sends to
// other receivers are not ours.
func (w *Watcher) handleConfirmation(ctx context.Context, c Confirmation) {
	metrics.EventsDetected.WithLabelValues("paw", "confirmation").Inc()

	if c.Sender == w.client.HotWallet() || c.Sender == w.client.ColdWallet() {
		if err := w.client.Receive(ctx, c.Hash); err != nil {
			w.logger.Error("Failed to pocket self-pay", zap.String("hash", c.Hash), zap.Error(err))
		}
		return
	}

	if c.Receiver != w.client.HotWallet() {
		w.logger.Debug("Ignoring confirmation for foreign receiver",
			zap.String("receiver", c.Receiver), zap.String("hash", c.Hash))
		return
	}

	units := UnitsFromRaw(c.AmountRaw)
	enqueued, err := w.jobs.EnqueueDeposit(ctx, queue.DepositJob{
		Sender:    c.Sender,
		Amount:    FormatAmount(units),
		Timestamp: time.Now().UnixMilli(),
		Hash:      c.Hash,
	})
	if err != nil {
		w.logger.Error("Failed to enqueue deposit", zap.String("hash", c.Hash), zap.Error(err))
		return
	}
	if enqueued {
		w.logger.Info("Deposit detected",
			zap.String("sender", c.Sender),
			zap.String("amount", FormatAmount(units)),
			zap.String("hash", c.Hash))
	}
}
