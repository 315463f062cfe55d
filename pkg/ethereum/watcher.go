package ethereum

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/internal/metrics"
	apperrors "github.com/pawbridge/paw-middleware/pkg/app/errors"
	"github.com/pawbridge/paw-middleware/pkg/pawchain"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

const (
	retryMinDelay = 500 * time.Millisecond
	retryMaxDelay = 15 * time.Second
)

// SwapEnqueuer is the queue capability the watcher needs.
type SwapEnqueuer interface {
	EnqueueSwapToNative(ctx context.Context, job queue.SwapToNativeJob) (bool, error)
	EnqueueScan(ctx context.Context, job queue.ScanJob) (bool, error)
}

// CursorStore persists the last scanned EVM block.
type CursorStore interface {
	GetScanCursor(ctx context.Context) (uint64, error)
	AdvanceScanCursor(ctx context.Context, block uint64) error
}

// Watcher turns wPAW burns into swap-to-native jobs. Live events come
// from the subscription; a catch-up scan job walks the block range
// missed while the process was down.
type Watcher struct {
	client        TokenClient
	jobs          SwapEnqueuer
	cursor        CursorStore
	batchSize     uint64
	confirmations uint64
	logger        *zap.Logger

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewWatcher creates the EVM watcher.
func NewWatcher(client TokenClient, jobs SwapEnqueuer, cursor CursorStore, batchSize, confirmations uint64, logger *zap.Logger) *Watcher {
	if batchSize == 0 {
		batchSize = 1000
	}
	return &Watcher{
		client:        client,
		jobs:          jobs,
		cursor:        cursor,
		batchSize:     batchSize,
		confirmations: confirmations,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Start enqueues the catch-up scan and launches the live loop.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.enqueueCatchUp(ctx); err != nil {
		return err
	}

	w.wg.Add(1)
	go w.liveLoop(ctx)
	w.logger.Info("EVM watcher started")
	return nil
}

// Stop signals the live loop and waits for it.
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	w.logger.Info("EVM watcher stopped")
}

// enqueueCatchUp schedules a scan from the persisted cursor up to the
// last finalized block. Blocks still inside the confirmation window are
// left for the next run; the scan must not credit an unconfirmed burn.
func (w *Watcher) enqueueCatchUp(ctx context.Context) error {
	from, err := w.cursor.GetScanCursor(ctx)
	if err != nil {
		return err
	}

	latest, err := w.client.LatestBlock(ctx)
	if err != nil {
		return fmt.Errorf("get latest block: %w", err)
	}
	if latest <= w.confirmations {
		return nil
	}
	head := latest - w.confirmations
	if head <= from {
		return nil
	}

	enqueued, err := w.jobs.EnqueueScan(ctx, queue.ScanJob{From: from + 1, To: head})
	if err != nil {
		return err
	}
	if enqueued {
		w.logger.Info("Catch-up scan scheduled",
			zap.Uint64("from", from+1), zap.Uint64("to", head))
	}
	return nil
}

func (w *Watcher) liveLoop(ctx context.Context) {
	defer w.wg.Done()

	delay := retryMinDelay
	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		start := time.Now()
		err := w.client.WatchSwapEvents(ctx, func(event SwapEvent) {
			w.handleEvent(ctx, event)
		})
		if ctx.Err() != nil {
			return
		}
		w.logger.Warn("Swap event stream closed, restarting", zap.Error(err), zap.Duration("delay", delay))
		metrics.ErrorsTotal.WithLabelValues("evm_watcher", "stream").Inc()

		if time.Since(start) > retryMaxDelay {
			delay = retryMinDelay
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
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
}

// HandleScanJob processes an evm-scan queue job: it walks the range in
// batch-sized slices and advances the cursor after each slice. A retry
// starts after the cursor, not at the job's From, so only the failed
// suffix is fetched again.
func (w *Watcher) HandleScanJob(ctx context.Context, job queue.Job) error {
	var scan queue.ScanJob
	if err := json.Unmarshal(job.Payload, &scan); err != nil {
		return fmt.Errorf("decode scan job: %w", err)
	}

	start := scan.From
	if cursor, err := w.cursor.GetScanCursor(ctx); err != nil {
		return err
	} else if cursor+1 > start {
		start = cursor + 1
	}

	for from := start; from <= scan.To; from += w.batchSize {
		to := from + w.batchSize - 1
		if to > scan.To {
			to = scan.To
		}

		events, err := w.client.FilterSwapEvents(ctx, from, to)
		if err != nil {
			return apperrors.ExternalFailureError(fmt.Errorf("scan blocks %d..%d: %w", from, to, err))
		}

		for _, event := range events {
			if err := w.enqueueSwap(ctx, event); err != nil {
				return err
			}
		}

		if err := w.cursor.AdvanceScanCursor(ctx, to); err != nil {
			return err
		}
		metrics.LastScannedBlock.Set(float64(to))
	}

	w.logger.Info("Catch-up scan finished",
		zap.Uint64("from", scan.From), zap.Uint64("to", scan.To))
	return nil
}

// handleEvent processes one live burn: wait for finality, snapshot the
// remaining wrapped balance, then hand off to the queue.
func (w *Watcher) handleEvent(ctx context.Context, event SwapEvent) {
	metrics.EventsDetected.WithLabelValues("evm", "swap_to_native").Inc()

	if err := w.client.WaitConfirmations(ctx, event.BlockNumber); err != nil {
		w.logger.Error("Failed waiting for confirmations",
			zap.String("tx_hash", event.Hash), zap.Error(err))
		return
	}

	if err := w.enqueueSwap(ctx, event); err != nil {
		w.logger.Error("Failed to enqueue swap",
			zap.String("tx_hash", event.Hash), zap.Error(err))
	}
}

func (w *Watcher) enqueueSwap(ctx context.Context, event SwapEvent) error {
	wrappedBalance, err := w.client.WrappedBalance(ctx, event.EVMAddress)
	if err != nil {
		return apperrors.ExternalFailureError(fmt.Errorf("read wrapped balance: %w", err))
	}

	units := pawchain.UnitsFromWrappedRaw(event.AmountRaw)
	enqueued, err := w.jobs.EnqueueSwapToNative(ctx, queue.SwapToNativeJob{
		EVMAddress:     event.EVMAddress,
		Native:         event.Native,
		Amount:         pawchain.FormatAmount(units),
		WrappedBalance: pawchain.FormatAmount(pawchain.UnitsFromWrappedRaw(wrappedBalance)),
		Hash:           event.Hash,
		Timestamp:      event.Timestamp,
	})
	if err != nil {
		return err
	}
	if enqueued {
		w.logger.Info("Swap to native detected",
			zap.String("evm_address", event.EVMAddress),
			zap.String("native", event.Native),
			zap.String("amount", pawchain.FormatAmount(units)),
			zap.String("tx_hash", event.Hash))
	}
	return nil
}
