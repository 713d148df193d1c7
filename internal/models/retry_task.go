package models

import "time"

type RetryTaskStatus string

const (
	RetryStatusPending    RetryTaskStatus = "pending"    // Eligible for claim once next_attempt_at has passed
	RetryStatusProcessing RetryTaskStatus = "processing" // Claimed by exactly one drain worker
	RetryStatusDone       RetryTaskStatus = "done"       // Retry action succeeded
	RetryStatusFailed     RetryTaskStatus = "failed"     // Dead-lettered after max attempts
	RetryStatusSkipped    RetryTaskStatus = "skipped"    // Not a retryable shape (missing business key)
)

// RetryTask is one failed downstream operation awaiting retry.
// Lifecycle: pending -> processing -> {done | failed | skipped}, with
// processing -> pending on a retryable failure.
type RetryTask struct {
	ID            string          `gorm:"column:id;primaryKey"`
	ShopID        string          `gorm:"column:shop_id;index"`
	EntityType    string          `gorm:"column:entity_type"`
	BusinessKey   *string         `gorm:"column:business_key"`
	Payload       JSONB           `gorm:"column:payload;type:jsonb"`
	FailureID     *string         `gorm:"column:failure_id"`
	Status        RetryTaskStatus `gorm:"column:status;index"`
	Attempts      int             `gorm:"column:attempts"`
	NextAttemptAt time.Time       `gorm:"column:next_attempt_at;index"`
	LastError     *string         `gorm:"column:last_error"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
	ProcessedAt   *time.Time      `gorm:"column:processed_at"`
}

// TableName specifies the table name for GORM
func (RetryTask) TableName() string {
	return "retry_task"
}

// SyncFailure is the audit record of a downstream operation failure. Its
// retry_count tracks how many times the retry queue has re-attempted the
// operation, independently of the task's own attempt counter.
type SyncFailure struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ShopID      string    `gorm:"column:shop_id;index"`
	EntityType  string    `gorm:"column:entity_type"`
	BusinessKey *string   `gorm:"column:business_key"`
	Message     string    `gorm:"column:message"`
	RetryCount  int       `gorm:"column:retry_count"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

// TableName specifies the table name for GORM
func (SyncFailure) TableName() string {
	return "sync_failure"
}
