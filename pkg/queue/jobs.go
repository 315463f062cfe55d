package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// pendingWithdrawalPrefix marks withdrawal jobs waiting on hot wallet
// liquidity; GetPendingWithdrawalsAmount aggregates over it.
const pendingWithdrawalPrefix = "pending-withdrawal-"

// Job amounts are user-facing decimal PAW strings; workers parse them.
// Withdrawal and swap challenges embed the submitted string verbatim,
// so it must survive the queue unchanged.

// nativeDecimals converts decimal PAW amounts to atomic units when
// aggregating pending withdrawals.
const nativeDecimals = 9

// DepositJob is an observed inbound PAW transaction to the hot wallet.
type DepositJob struct {
	Sender    string `json:"sender"`
	Amount    string `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Hash      string `json:"hash"`
}

// WithdrawalJob is a user withdrawal request. Signature is empty on
// delayed retries; the first attempt already verified it.
type WithdrawalJob struct {
	Native     string `json:"native"`
	Amount     string `json:"amount"`
	EVMAddress string `json:"evmAddress"`
	Signature  string `json:"signature,omitempty"`
	Timestamp  int64  `json:"timestamp"`
	Attempt    int    `json:"attempt"`
}

// SwapToWrappedJob is a user PAW -> wPAW conversion request.
type SwapToWrappedJob struct {
	Native     string `json:"native"`
	Amount     string `json:"amount"`
	EVMAddress string `json:"evmAddress"`
	Signature  string `json:"signature"`
	Timestamp  int64  `json:"timestamp"`
}

// SwapToNativeJob is a wPAW burn observed on the EVM chain.
type SwapToNativeJob struct {
	EVMAddress     string `json:"evmAddress"`
	Native         string `json:"native"`
	Amount         string `json:"amount"`
	WrappedBalance string `json:"wrappedBalance"`
	Hash           string `json:"hash"`
	Timestamp      int64  `json:"timestamp"`
}

// ScanJob is an EVM catch-up block range.
type ScanJob struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// EnqueueDeposit schedules a deposit job keyed by sender and tx hash.
func (q *Queue) EnqueueDeposit(ctx context.Context, job DepositJob) (bool, error) {
	id := fmt.Sprintf("%s-%s-%s", TopicDeposit, job.Sender, job.Hash)
	return q.enqueue(ctx, TopicDeposit, id, job, 0, false)
}

// EnqueueWithdrawal schedules a withdrawal job keyed by address and timestamp.
func (q *Queue) EnqueueWithdrawal(ctx context.Context, job WithdrawalJob) (bool, error) {
	id := fmt.Sprintf("%s-%s-%d", TopicWithdrawal, job.Native, job.Timestamp)
	return q.enqueue(ctx, TopicWithdrawal, id, job, 0, false)
}

// EnqueuePendingWithdrawal schedules a delayed replacement for a
// withdrawal the hot wallet cannot cover yet. The delay grows with the
// attempt count; the replacement is removed if it finally fails.
func (q *Queue) EnqueuePendingWithdrawal(ctx context.Context, job WithdrawalJob) (bool, error) {
	job.Attempt++
	job.Signature = ""
	id := fmt.Sprintf("%s%s-%d-attempt-%d", pendingWithdrawalPrefix, job.Native, job.Timestamp, job.Attempt)
	delay := time.Duration(job.Attempt) * time.Minute
	return q.enqueue(ctx, TopicWithdrawal, id, job, delay, true)
}

// EnqueueSwapToWrapped schedules a swap job keyed by address and timestamp.
func (q *Queue) EnqueueSwapToWrapped(ctx context.Context, job SwapToWrappedJob) (bool, error) {
	id := fmt.Sprintf("%s-%s-%d", TopicSwapToWrapped, job.Native, job.Timestamp)
	return q.enqueue(ctx, TopicSwapToWrapped, id, job, 0, false)
}

// EnqueueSwapToNative schedules a burn-credit job keyed by EVM address and burn hash.
func (q *Queue) EnqueueSwapToNative(ctx context.Context, job SwapToNativeJob) (bool, error) {
	id := fmt.Sprintf("%s-%s-%s", TopicSwapToNative, job.EVMAddress, job.Hash)
	return q.enqueue(ctx, TopicSwapToNative, id, job, 0, false)
}

// EnqueueScan schedules an EVM catch-up scan over [from, to].
func (q *Queue) EnqueueScan(ctx context.Context, job ScanJob) (bool, error) {
	id := fmt.Sprintf("%s-%d-%d", TopicEVMScan, job.From, job.To)
	return q.enqueue(ctx, TopicEVMScan, id, job, 0, false)
}

// GetPendingWithdrawalsAmount sums the amounts of waiting and delayed
// pending-withdrawal jobs, in atomic units.
func (q *Queue) GetPendingWithdrawalsAmount(ctx context.Context) (*big.Int, error) {
	var daos []JobDao
	err := q.db.NewSelect().
		Model(&daos).
		Column("payload").
		Where("natural_id LIKE ? AND status = ?", pendingWithdrawalPrefix+"%", statusWaiting).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending withdrawals: %w", err)
	}

	total := big.NewInt(0)
	for i := range daos {
		var job WithdrawalJob
		if err := json.Unmarshal([]byte(daos[i].Payload), &job); err != nil {
			return nil, fmt.Errorf("decode pending withdrawal: %w", err)
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(job.Amount))
		if err != nil {
			return nil, fmt.Errorf("malformed pending withdrawal amount %q: %w", job.Amount, err)
		}
		total.Add(total, amount.Shift(nativeDecimals).BigInt())
	}
	return total, nil
}
