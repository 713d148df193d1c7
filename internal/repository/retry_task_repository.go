package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shoptrail/shoptrail-worker/internal/models"
	"gorm.io/gorm"
)

type RetryTaskRepository struct {
	db *gorm.DB
}

func NewRetryTaskRepository(db *gorm.DB) *RetryTaskRepository {
	return &RetryTaskRepository{db: db}
}

// Create enqueues a new pending task
func (r *RetryTaskRepository) Create(ctx context.Context, task models.RetryTask) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.RetryStatusPending
	}
	if task.NextAttemptAt.IsZero() {
		task.NextAttemptAt = now
	}

	if err := r.db.WithContext(ctx).Create(&task).Error; err != nil {
		return fmt.Errorf("failed to create retry task: %w", err)
	}
	return nil
}

// claimSQL selects due pending tasks with SKIP LOCKED so concurrent
// drains never claim the same row, then flips them to processing in the
// same statement. Exclusive ownership holds once the surrounding
// transaction commits.
const claimSQL = `
UPDATE retry_task SET status = 'processing', updated_at = ?
WHERE id IN (
	SELECT id FROM retry_task
	WHERE status = 'pending' AND next_attempt_at <= ?
	ORDER BY next_attempt_at ASC
	LIMIT ?
	FOR UPDATE SKIP LOCKED
)
RETURNING id, shop_id, entity_type, business_key, payload, failure_id,
	status, attempts, next_attempt_at, last_error, created_at, updated_at, processed_at`

// ClaimDue transactionally claims up to limit pending tasks whose
// next_attempt_at has passed and returns them in processing state.
func (r *RetryTaskRepository) ClaimDue(ctx context.Context, limit int, now time.Time) ([]models.RetryTask, error) {
	var tasks []models.RetryTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Raw(claimSQL, now, now, limit).Scan(&tasks).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim retry tasks: %w", err)
	}
	return tasks, nil
}

// Resolve moves a claimed task to a terminal status (done, failed,
// skipped) and stamps processed_at
func (r *RetryTaskRepository) Resolve(ctx context.Context, taskID string, status models.RetryTaskStatus, lastError *string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.RetryTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":       status,
			"last_error":   lastError,
			"updated_at":   now,
			"processed_at": &now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to resolve retry task: %w", result.Error)
	}
	return nil
}

// Reschedule loops a claimed task back to pending with an increased
// attempt count and the next eligible time
func (r *RetryTaskRepository) Reschedule(ctx context.Context, taskID string, attempts int, nextAttemptAt time.Time, lastError *string) error {
	result := r.db.WithContext(ctx).Model(&models.RetryTask{}).
		Where("id = ?", taskID).
		Updates(map[string]interface{}{
			"status":          models.RetryStatusPending,
			"attempts":        attempts,
			"next_attempt_at": nextAttemptAt,
			"last_error":      lastError,
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to reschedule retry task: %w", result.Error)
	}
	return nil
}

// CreateFailure records a downstream operation failure for audit
func (r *RetryTaskRepository) CreateFailure(ctx context.Context, failure models.SyncFailure) (string, error) {
	if failure.ID == "" {
		failure.ID = uuid.New().String()
	}
	now := time.Now()
	failure.CreatedAt = now
	failure.UpdatedAt = now

	if err := r.db.WithContext(ctx).Create(&failure).Error; err != nil {
		return "", fmt.Errorf("failed to create sync failure: %w", err)
	}
	return failure.ID, nil
}

// IncrementFailureRetryCount bumps the audit retry counter on the
// originating failure record
func (r *RetryTaskRepository) IncrementFailureRetryCount(ctx context.Context, failureID string) error {
	result := r.db.WithContext(ctx).Model(&models.SyncFailure{}).
		Where("id = ?", failureID).
		Updates(map[string]interface{}{
			"retry_count": gorm.Expr("retry_count + 1"),
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to increment failure retry count: %w", result.Error)
	}
	return nil
}
