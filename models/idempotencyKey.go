package models

import "time"

type IdempotencyStatus string

const (
	IdempotencyStatusStarted   IdempotencyStatus = "STARTED"
	IdempotencyStatusSucceeded IdempotencyStatus = "SUCCEEDED"
	IdempotencyStatusFailed    IdempotencyStatus = "FAILED"
)

// IdempotencyKey makes background consumption durable: the learning pass
// records one key per consumed decision so a watermark reset or retry can
// never double-count a decision.
type IdempotencyKey struct {
	ID          int               `gorm:"primary_key" json:"id"`
	HandlerName string            `gorm:"uniqueIndex:idx_idem_handler_msg;size:64;not null" json:"handler_name"`
	MessageId   string            `gorm:"uniqueIndex:idx_idem_handler_msg;size:64;not null" json:"message_id"`
	Status      IdempotencyStatus `gorm:"size:16;not null" json:"status"`
	LastError   *string           `gorm:"type:text" json:"last_error"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}
