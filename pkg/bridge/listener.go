package bridge

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	apperrors "github.com/pawbridge/paw-middleware/pkg/app/errors"
	"github.com/pawbridge/paw-middleware/pkg/notify"
	"github.com/pawbridge/paw-middleware/pkg/queue"
)

// OnCompleted implements queue.Listener. Successful operations publish
// their own rich events from the processors; nothing to add here.
func (s *Service) OnCompleted(queue.Job) {}

// OnFailed implements queue.Listener: terminal job failures are pushed
// to the owning wallet's event stream.
func (s *Service) OnFailed(job queue.Job, err error) {
	if errors.Is(err, queue.ErrReplaced) {
		// The delayed successor carries the withdrawal on.
		return
	}

	native, ok := s.jobOwner(job)
	if !ok {
		s.logger.Error("Job failed",
			zap.String("job", job.NaturalID), zap.Error(err))
		return
	}

	svcErr := &apperrors.ServiceError{}
	message := "operation failed"
	if errors.As(err, &svcErr) {
		message = svcErr.Message
	}

	s.logger.Error("Job failed",
		zap.String("job", job.NaturalID),
		zap.String("native", native),
		zap.Error(err))
	s.events.Publish(native, notify.KindFailure, map[string]string{
		"operation": string(job.Topic),
		"code":      string(apperrors.CodeOf(err)),
		"message":   message,
	})
}

// jobOwner extracts the native address a job belongs to.
func (s *Service) jobOwner(job queue.Job) (string, bool) {
	switch job.Topic {
	case queue.TopicDeposit:
		var j queue.DepositJob
		if json.Unmarshal(job.Payload, &j) == nil && j.Sender != "" {
			return j.Sender, true
		}
	case queue.TopicWithdrawal:
		var j queue.WithdrawalJob
		if json.Unmarshal(job.Payload, &j) == nil && j.Native != "" {
			return j.Native, true
		}
	case queue.TopicSwapToWrapped:
		var j queue.SwapToWrappedJob
		if json.Unmarshal(job.Payload, &j) == nil && j.Native != "" {
			return j.Native, true
		}
	case queue.TopicSwapToNative:
		var j queue.SwapToNativeJob
		if json.Unmarshal(job.Payload, &j) == nil && j.Native != "" {
			return j.Native, true
		}
	}
	return "", false
}
