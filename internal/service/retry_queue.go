package service

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/shoptrail/shoptrail-worker/internal/models"
)

// TaskStore is the retry task persistence surface
type TaskStore interface {
	Create(ctx context.Context, task models.RetryTask) error
	ClaimDue(ctx context.Context, limit int, now time.Time) ([]models.RetryTask, error)
	Resolve(ctx context.Context, taskID string, status models.RetryTaskStatus, lastError *string) error
	Reschedule(ctx context.Context, taskID string, attempts int, nextAttemptAt time.Time, lastError *string) error
	CreateFailure(ctx context.Context, failure models.SyncFailure) (string, error)
	IncrementFailureRetryCount(ctx context.Context, failureID string) error
}

// RetryAction attempts the downstream operation the task stands for
type RetryAction interface {
	Execute(ctx context.Context, task models.RetryTask) error
}

// RetryQueue drains due retry tasks with exponential backoff. Claims use
// row locking, so multiple drain workers never double-process a task.
type RetryQueue struct {
	tasks  TaskStore
	action RetryAction

	maxAttempts int
	baseDelay   time.Duration
	backoffCap  int
	now         func() time.Time
}

func NewRetryQueue(tasks TaskStore, action RetryAction, maxAttempts int, baseDelay time.Duration, backoffCap int) *RetryQueue {
	return &RetryQueue{
		tasks:       tasks,
		action:      action,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		backoffCap:  backoffCap,
		now:         time.Now,
	}
}

// Enqueue records a failed downstream operation as an audit row plus a
// retry task due immediately
func (q *RetryQueue) Enqueue(ctx context.Context, shopID, entityType string, businessKey *string, payload models.JSONB, message string) error {
	failureID, err := q.tasks.CreateFailure(ctx, models.SyncFailure{
		ShopID:      shopID,
		EntityType:  entityType,
		BusinessKey: businessKey,
		Message:     message,
	})
	if err != nil {
		return fmt.Errorf("failed to record sync failure: %w", err)
	}
	task := models.RetryTask{
		ShopID:        shopID,
		EntityType:    entityType,
		BusinessKey:   businessKey,
		Payload:       payload,
		FailureID:     &failureID,
		Status:        models.RetryStatusPending,
		NextAttemptAt: q.now(),
	}
	if err := q.tasks.Create(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue retry task: %w", err)
	}
	return nil
}

// Drain claims up to limit due tasks and attempts each once. Per-task
// failures are absorbed into the task's own lifecycle; only a claim
// failure is returned as an error.
func (q *RetryQueue) Drain(ctx context.Context, limit int) (int, error) {
	tasks, err := q.tasks.ClaimDue(ctx, limit, q.now())
	if err != nil {
		return 0, fmt.Errorf("failed to claim retry tasks: %w", err)
	}

	processed := 0
	for _, task := range tasks {
		q.process(ctx, task)
		processed++
	}
	return processed, nil
}

func (q *RetryQueue) process(ctx context.Context, task models.RetryTask) {
	if task.BusinessKey == nil || *task.BusinessKey == "" {
		log.Printf("skipping retry task %s: no business key", task.ID)
		if err := q.tasks.Resolve(ctx, task.ID, models.RetryStatusSkipped, nil); err != nil {
			log.Printf("failed to mark retry task %s skipped: %v", task.ID, err)
		}
		return
	}

	err := q.action.Execute(ctx, task)
	if err == nil {
		log.Printf("retry task %s succeeded after %d attempts", task.ID, task.Attempts)
		if err := q.tasks.Resolve(ctx, task.ID, models.RetryStatusDone, nil); err != nil {
			log.Printf("failed to mark retry task %s done: %v", task.ID, err)
		}
		return
	}

	message := err.Error()
	attempts := task.Attempts + 1
	if attempts >= q.maxAttempts {
		log.Printf("retry task %s dead-lettered after %d attempts: %v", task.ID, attempts, err)
		if err := q.tasks.Resolve(ctx, task.ID, models.RetryStatusFailed, &message); err != nil {
			log.Printf("failed to mark retry task %s failed: %v", task.ID, err)
		}
		return
	}

	next := q.now().Add(q.backoff(attempts))
	log.Printf("retry task %s failed (attempt %d/%d), next attempt at %s: %v",
		task.ID, attempts, q.maxAttempts, next.UTC().Format(time.RFC3339), err)
	if err := q.tasks.Reschedule(ctx, task.ID, attempts, next, &message); err != nil {
		log.Printf("failed to reschedule retry task %s: %v", task.ID, err)
		return
	}
	if task.FailureID != nil {
		if err := q.tasks.IncrementFailureRetryCount(ctx, *task.FailureID); err != nil {
			log.Printf("failed to bump retry count on failure %s: %v", *task.FailureID, err)
		}
	}
}

// backoff is base * 2^attempts with the exponent capped, so the delay
// stops growing after backoffCap attempts
func (q *RetryQueue) backoff(attempts int) time.Duration {
	exponent := attempts
	if exponent > q.backoffCap {
		exponent = q.backoffCap
	}
	return time.Duration(float64(q.baseDelay) * math.Pow(2, float64(exponent)))
}
