package queue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"

	apperrors "github.com/pawbridge/paw-middleware/pkg/app/errors"
	"github.com/pawbridge/paw-middleware/pkg/config"
	"github.com/pawbridge/paw-middleware/pkg/migrations/bridgedb"
	"github.com/pawbridge/paw-middleware/pkg/pgutil"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

func setupQueue(t *testing.T) (*queue.Queue, *bun.DB) {
	t.Helper()

	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	ctx := context.Background()
	migrator := migrate.NewMigrator(db, bridgedb.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	q := queue.New(db, config.QueueConfig{
		Attempts:     2,
		JobTimeout:   5 * time.Second,
		BackoffBase:  10 * time.Millisecond,
		PollInterval: 20 * time.Millisecond,
	}, zap.NewNop())
	return q, db
}

func jobStatus(t *testing.T, db *bun.DB, naturalID string) (string, bool) {
	t.Helper()

	dao := new(queue.JobDao)
	err := db.NewSelect().Model(dao).Where("natural_id = ?", naturalID).Scan(context.Background())
	if err != nil {
		return "", false
	}
	return dao.Status, true
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

type recordingListener struct {
	mu        sync.Mutex
	completed []queue.Job
	failed    []queue.Job
	errs      []error
}

func (l *recordingListener) OnCompleted(job queue.Job) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.completed = append(l.completed, job)
}

func (l *recordingListener) OnFailed(job queue.Job, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed = append(l.failed, job)
	l.errs = append(l.errs, err)
}

func (l *recordingListener) failedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.failed)
}

func (l *recordingListener) firstError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.errs) == 0 {
		return nil
	}
	return l.errs[0]
}

func TestEnqueueDeduplicatesOnNaturalID(t *testing.T) {
	q, db := setupQueue(t)
	ctx := context.Background()

	job := queue.DepositJob{Sender: "paw_alice", Amount: "1.5", Timestamp: 1000, Hash: "dep-1"}

	enqueued, err := q.EnqueueDeposit(ctx, job)
	require.NoError(t, err)
	require.True(t, enqueued)

	enqueued, err = q.EnqueueDeposit(ctx, job)
	require.NoError(t, err)
	assert.False(t, enqueued)

	count, err := db.NewSelect().Model((*queue.JobDao)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestWorkerCompletesJob(t *testing.T) {
	q, db := setupQueue(t)
	ctx := context.Background()

	var mu sync.Mutex
	var payloads []string
	q.RegisterProcessor(queue.TopicDeposit, func(_ context.Context, job queue.Job) error {
		mu.Lock()
		defer mu.Unlock()
		payloads = append(payloads, string(job.Payload))
		return nil
	})

	q.Start(ctx)
	defer q.Stop()

	_, err := q.EnqueueDeposit(ctx, queue.DepositJob{Sender: "paw_alice", Amount: "1", Timestamp: 1000, Hash: "dep-1"})
	require.NoError(t, err)

	naturalID := "deposit-paw_alice-dep-1"
	waitFor(t, 5*time.Second, func() bool {
		status, ok := jobStatus(t, db, naturalID)
		return ok && status == "completed"
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, payloads, 1)
	assert.Contains(t, payloads[0], `"hash":"dep-1"`)
}

func TestRetryableErrorRetriesThenFails(t *testing.T) {
	q, db := setupQueue(t)
	ctx := context.Background()

	listener := &recordingListener{}
	q.AddJobListener(listener)

	var mu sync.Mutex
	attempts := 0
	q.RegisterProcessor(queue.TopicDeposit, func(_ context.Context, _ queue.Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return apperrors.ExternalFailureError(fmt.Errorf("rpc down"))
	})

	q.Start(ctx)
	defer q.Stop()

	_, err := q.EnqueueDeposit(ctx, queue.DepositJob{Sender: "paw_alice", Amount: "1", Timestamp: 1000, Hash: "dep-1"})
	require.NoError(t, err)

	waitFor(t, 10*time.Second, func() bool { return listener.failedCount() > 0 })

	mu.Lock()
	got := attempts
	mu.Unlock()
	assert.Equal(t, 2, got)

	status, ok := jobStatus(t, db, "deposit-paw_alice-dep-1")
	require.True(t, ok)
	assert.Equal(t, "failed", status)
	assert.True(t, apperrors.Is(listener.firstError(), apperrors.CodeExternalFailure))
}

func TestNonRetryableErrorFailsImmediately(t *testing.T) {
	q, db := setupQueue(t)
	ctx := context.Background()

	listener := &recordingListener{}
	q.AddJobListener(listener)

	var mu sync.Mutex
	attempts := 0
	q.RegisterProcessor(queue.TopicWithdrawal, func(_ context.Context, _ queue.Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return apperrors.InvalidOwnerError(nil)
	})

	q.Start(ctx)
	defer q.Stop()

	_, err := q.EnqueueWithdrawal(ctx, queue.WithdrawalJob{
		Native: "paw_alice", Amount: "1", EVMAddress: "0x1", Signature: "0xsig", Timestamp: 1000,
	})
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool { return listener.failedCount() > 0 })

	mu.Lock()
	got := attempts
	mu.Unlock()
	assert.Equal(t, 1, got)

	status, ok := jobStatus(t, db, "withdrawal-paw_alice-1000")
	require.True(t, ok)
	assert.Equal(t, "failed", status)
}

func TestReplacedJobIsNotRetried(t *testing.T) {
	q, db := setupQueue(t)
	ctx := context.Background()

	listener := &recordingListener{}
	q.AddJobListener(listener)

	var mu sync.Mutex
	attempts := 0
	q.RegisterProcessor(queue.TopicWithdrawal, func(_ context.Context, _ queue.Job) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		return fmt.Errorf("hot wallet cannot cover 5 yet: %w", queue.ErrReplaced)
	})

	q.Start(ctx)
	defer q.Stop()

	_, err := q.EnqueueWithdrawal(ctx, queue.WithdrawalJob{
		Native: "paw_alice", Amount: "5", EVMAddress: "0x1", Signature: "0xsig", Timestamp: 1000,
	})
	require.NoError(t, err)

	waitFor(t, 5*time.Second, func() bool { return listener.failedCount() > 0 })

	mu.Lock()
	got := attempts
	mu.Unlock()
	assert.Equal(t, 1, got)

	status, ok := jobStatus(t, db, "withdrawal-paw_alice-1000")
	require.True(t, ok)
	assert.Equal(t, "failed", status)
}

func TestRemoveOnFailDeletesRow(t *testing.T) {
	q, db := setupQueue(t)
	ctx := context.Background()

	listener := &recordingListener{}
	q.AddJobListener(listener)

	q.RegisterProcessor(queue.TopicWithdrawal, func(_ context.Context, _ queue.Job) error {
		return apperrors.InvalidOwnerError(nil)
	})

	// A due replacement job that should vanish instead of lingering as failed.
	now := time.Now()
	_, err := db.NewInsert().Model(&queue.JobDao{
		NaturalID:    "pending-withdrawal-paw_alice-1000-attempt-1",
		Topic:        string(queue.TopicWithdrawal),
		Payload:      `{"native":"paw_alice","amount":"5","evmAddress":"0x1","timestamp":1000,"attempt":1}`,
		Status:       "waiting",
		MaxAttempts:  1,
		RunAt:        now,
		RemoveOnFail: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}).Exec(ctx)
	require.NoError(t, err)

	q.Start(ctx)
	defer q.Stop()

	waitFor(t, 5*time.Second, func() bool { return listener.failedCount() > 0 })

	waitFor(t, 2*time.Second, func() bool {
		_, ok := jobStatus(t, db, "pending-withdrawal-paw_alice-1000-attempt-1")
		return !ok
	})
}

func TestJobsProcessInOrder(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	q.RegisterProcessor(queue.TopicDeposit, func(_ context.Context, job queue.Job) error {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, job.NaturalID)
		return nil
	})

	for i := 1; i <= 3; i++ {
		_, err := q.EnqueueDeposit(ctx, queue.DepositJob{
			Sender: "paw_alice", Amount: "1", Timestamp: int64(i), Hash: fmt.Sprintf("dep-%d", i),
		})
		require.NoError(t, err)
	}

	q.Start(ctx)
	defer q.Stop()

	waitFor(t, 5*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 3
	})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"deposit-paw_alice-dep-1",
		"deposit-paw_alice-dep-2",
		"deposit-paw_alice-dep-3",
	}, order)
}

func TestGetPendingWithdrawalsAmount(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	total, err := q.GetPendingWithdrawalsAmount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0", total.String())

	_, err = q.EnqueuePendingWithdrawal(ctx, queue.WithdrawalJob{
		Native: "paw_alice", Amount: "2.5", EVMAddress: "0x1", Timestamp: 1000,
	})
	require.NoError(t, err)

	_, err = q.EnqueuePendingWithdrawal(ctx, queue.WithdrawalJob{
		Native: "paw_bob", Amount: "1", EVMAddress: "0x2", Timestamp: 2000,
	})
	require.NoError(t, err)

	// A regular withdrawal must not count towards the pending total.
	_, err = q.EnqueueWithdrawal(ctx, queue.WithdrawalJob{
		Native: "paw_carol", Amount: "100", EVMAddress: "0x3", Signature: "0xsig", Timestamp: 3000,
	})
	require.NoError(t, err)

	total, err = q.GetPendingWithdrawalsAmount(ctx)
	require.NoError(t, err)
	assert.Equal(t, "3500000000", total.String())
}
