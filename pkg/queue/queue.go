// Package queue implements a durable multi-topic job queue on Postgres.
// Jobs carry a natural id, so a duplicate enqueue is a no-op; each topic
// is drained by a single worker, which serializes per-entity mutations
// while topics run in parallel.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/pawbridge/paw-middleware/internal/metrics"
	apperrors "github.com/pawbridge/paw-middleware/pkg/app/errors"
	"github.com/pawbridge/paw-middleware/pkg/config"
)

// Topic identifies a job stream with its own worker.
type Topic string

const (
	TopicDeposit       Topic = "deposit"
	TopicWithdrawal    Topic = "withdrawal"
	TopicSwapToWrapped Topic = "swap-to-wrapped"
	TopicSwapToNative  Topic = "swap-to-native"
	TopicEVMScan       Topic = "evm-scan"
)

// Job statuses persisted in the queue_jobs table.
const (
	statusWaiting   = "waiting"
	statusActive    = "active"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// ErrReplaced marks a job that scheduled a replacement for itself; the
// worker fails the original so the replacement becomes authoritative.
var ErrReplaced = errors.New("job replaced by a delayed successor")

// completedRetention caps the number of completed rows kept per topic.
const completedRetention = 100_000

// JobDao maps to the 'queue_jobs' table.
type JobDao struct {
	bun.BaseModel `bun:"table:queue_jobs,alias:j"`
	ID            int64     `bun:"id,pk,autoincrement"`
	NaturalID     string    `bun:"natural_id,unique,notnull,type:varchar(255)"`
	Topic         string    `bun:"topic,notnull,type:varchar(32)"`
	Payload       string    `bun:"payload,notnull,type:jsonb"`
	Status        string    `bun:"status,notnull,type:varchar(16)"`
	Attempt       int       `bun:"attempt,notnull,default:0"`
	MaxAttempts   int       `bun:"max_attempts,notnull"`
	RunAt         time.Time `bun:"run_at,notnull"`
	RemoveOnFail  bool      `bun:"remove_on_fail,notnull,default:false"`
	LastError     string    `bun:"last_error,type:text"`
	CreatedAt     time.Time `bun:"created_at,nullzero,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,default:current_timestamp"`
}

// Job is what a processor receives.
type Job struct {
	NaturalID string
	Topic     Topic
	Payload   []byte
	Attempt   int
}

// ProcessorFunc handles one job. A retryable error (see apperrors) puts
// the job back with backoff; anything else fails it.
type ProcessorFunc func(ctx context.Context, job Job) error

// Listener observes terminal job outcomes.
type Listener interface {
	OnCompleted(job Job)
	OnFailed(job Job, err error)
}

// Queue schedules and drains jobs.
type Queue struct {
	db        *bun.DB
	logger    *zap.Logger
	cfg       config.QueueConfig
	listeners []Listener

	mu         sync.Mutex
	processors map[Topic]ProcessorFunc

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New creates a Queue. Register processors and listeners before Start.
func New(db *bun.DB, cfg config.QueueConfig, logger *zap.Logger) *Queue {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &Queue{
		db:         db,
		logger:     logger,
		cfg:        cfg,
		processors: make(map[Topic]ProcessorFunc),
		stopCh:     make(chan struct{}),
	}
}

// RegisterProcessor installs the handler for a topic.
func (q *Queue) RegisterProcessor(topic Topic, fn ProcessorFunc) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processors[topic] = fn
}

// AddJobListener subscribes to terminal job outcomes.
func (q *Queue) AddJobListener(l Listener) {
	q.listeners = append(q.listeners, l)
}

// Start launches one worker per registered topic.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	topics := make([]Topic, 0, len(q.processors))
	for topic := range q.processors {
		topics = append(topics, topic)
	}
	q.mu.Unlock()

	for _, topic := range topics {
		q.wg.Add(1)
		go q.worker(ctx, topic)
	}
	q.logger.Info("Queue workers started", zap.Int("topics", len(topics)))
}

// Stop signals workers and waits for in-flight jobs to finish.
func (q *Queue) Stop() {
	close(q.stopCh)
	q.wg.Wait()
	q.logger.Info("Queue workers stopped")
}

func (q *Queue) worker(ctx context.Context, topic Topic) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			for {
				processed, err := q.runNext(ctx, topic)
				if err != nil {
					q.logger.Error("Queue worker error", zap.String("topic", string(topic)), zap.Error(err))
					break
				}
				if !processed {
					break
				}
			}
		}
	}
}

// runNext claims and processes at most one due job for the topic.
func (q *Queue) runNext(ctx context.Context, topic Topic) (bool, error) {
	dao, err := q.claim(ctx, topic)
	if err != nil {
		return false, err
	}
	if dao == nil {
		return false, nil
	}

	job := Job{
		NaturalID: dao.NaturalID,
		Topic:     Topic(dao.Topic),
		Payload:   []byte(dao.Payload),
		Attempt:   dao.Attempt,
	}

	q.mu.Lock()
	fn := q.processors[topic]
	q.mu.Unlock()

	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	err = fn(jobCtx, job)
	cancel()

	if jobCtx.Err() != nil && err != nil {
		// A wall timeout converts to a retryable failure.
		err = apperrors.ExternalFailureError(fmt.Errorf("job timeout: %w", err))
	}

	if err == nil {
		if cerr := q.complete(ctx, dao); cerr != nil {
			return true, cerr
		}
		metrics.JobsTotal.WithLabelValues(string(topic), "completed").Inc()
		q.notifyCompleted(job)
		q.refreshDepth(ctx, topic)
		return true, nil
	}

	retryable := apperrors.IsRetryable(err) && !errors.Is(err, ErrReplaced)
	if retryable && dao.Attempt < dao.MaxAttempts {
		if rerr := q.reschedule(ctx, dao, err); rerr != nil {
			return true, rerr
		}
		metrics.JobsTotal.WithLabelValues(string(topic), "retried").Inc()
		return true, nil
	}

	if ferr := q.fail(ctx, dao, err); ferr != nil {
		return true, ferr
	}
	metrics.JobsTotal.WithLabelValues(string(topic), "failed").Inc()
	q.notifyFailed(job, err)
	q.refreshDepth(ctx, topic)
	return true, nil
}

// claim picks the oldest due job and marks it active, using
// FOR UPDATE SKIP LOCKED so concurrent pollers never double-claim.
func (q *Queue) claim(ctx context.Context, topic Topic) (*JobDao, error) {
	dao := new(JobDao)

	err := q.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		err := tx.NewSelect().
			Model(dao).
			Where("topic = ? AND status = ? AND run_at <= ?", string(topic), statusWaiting, time.Now()).
			OrderExpr("run_at ASC, created_at ASC, id ASC").
			Limit(1).
			For("UPDATE SKIP LOCKED").
			Scan(ctx)
		if err != nil {
			return err
		}

		dao.Status = statusActive
		dao.Attempt++
		dao.UpdatedAt = time.Now()
		_, err = tx.NewUpdate().
			Model(dao).
			Column("status", "attempt", "updated_at").
			WherePK().
			Exec(ctx)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return dao, nil
}

func (q *Queue) complete(ctx context.Context, dao *JobDao) error {
	_, err := q.db.NewUpdate().
		Model(dao).
		Set("status = ?", statusCompleted).
		Set("updated_at = ?", time.Now()).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return q.trimCompleted(ctx, dao.Topic)
}

func (q *Queue) reschedule(ctx context.Context, dao *JobDao, cause error) error {
	backoff := q.cfg.BackoffBase << (dao.Attempt - 1)
	_, err := q.db.NewUpdate().
		Model(dao).
		Set("status = ?", statusWaiting).
		Set("run_at = ?", time.Now().Add(backoff)).
		Set("last_error = ?", cause.Error()).
		Set("updated_at = ?", time.Now()).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	return nil
}

func (q *Queue) fail(ctx context.Context, dao *JobDao, cause error) error {
	if dao.RemoveOnFail {
		_, err := q.db.NewDelete().Model(dao).WherePK().Exec(ctx)
		if err != nil {
			return fmt.Errorf("remove failed job: %w", err)
		}
		return nil
	}

	_, err := q.db.NewUpdate().
		Model(dao).
		Set("status = ?", statusFailed).
		Set("last_error = ?", cause.Error()).
		Set("updated_at = ?", time.Now()).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

func (q *Queue) trimCompleted(ctx context.Context, topic string) error {
	_, err := q.db.ExecContext(ctx, `
		DELETE FROM queue_jobs
		WHERE topic = ? AND status = ? AND id NOT IN (
			SELECT id FROM queue_jobs
			WHERE topic = ? AND status = ?
			ORDER BY id DESC LIMIT ?
		)`, topic, statusCompleted, topic, statusCompleted, completedRetention)
	return err
}

func (q *Queue) refreshDepth(ctx context.Context, topic Topic) {
	count, err := q.db.NewSelect().
		Model((*JobDao)(nil)).
		Where("topic = ? AND status = ?", string(topic), statusWaiting).
		Count(ctx)
	if err != nil {
		return
	}
	metrics.QueueDepth.WithLabelValues(string(topic)).Set(float64(count))
}

func (q *Queue) notifyCompleted(job Job) {
	for _, l := range q.listeners {
		l.OnCompleted(job)
	}
}

func (q *Queue) notifyFailed(job Job, err error) {
	for _, l := range q.listeners {
		l.OnFailed(job, err)
	}
}

// enqueue inserts a job; a live row with the same natural id wins.
func (q *Queue) enqueue(ctx context.Context, topic Topic, naturalID string, payload any, delay time.Duration, removeOnFail bool) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal job payload: %w", err)
	}

	now := time.Now()
	res, err := q.db.NewInsert().
		Model(&JobDao{
			NaturalID:    naturalID,
			Topic:        string(topic),
			Payload:      string(raw),
			Status:       statusWaiting,
			MaxAttempts:  q.cfg.Attempts,
			RunAt:        now.Add(delay),
			RemoveOnFail: removeOnFail,
			CreatedAt:    now,
			UpdatedAt:    now,
		}).
		On("CONFLICT (natural_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", naturalID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}
