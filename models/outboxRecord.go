package models

import (
	"time"

	"gorm.io/datatypes"
)

// Outbox publish statuses for OutboxRecord.PublishStatus.
const (
	OutboxPublishStatusPending    = "PENDING"
	OutboxPublishStatusProcessing = "PROCESSING"
	OutboxPublishStatusSent       = "SENT"
	OutboxPublishStatusFailed     = "FAILED"
	OutboxPublishStatusDead       = "DEAD"
)

const (
	EventPaymentCompleted     = "mpesa.payment.completed"
	EventPaymentPendingReview = "mpesa.payment.pending_review"
	EventManualPayment        = "rent.payment.recorded"
)

// OutboxRecord is written in the same transaction as the change it describes and
// published after commit by the dispatcher.
type OutboxRecord struct {
	ID               int            `gorm:"primaryKey;autoIncrement;index:idx_outbox_dispatch,priority:3" json:"id"`
	EventType        string         `gorm:"size:64;not null" json:"event_type"`
	AggregateId      string         `gorm:"size:64;not null;index" json:"aggregate_id"`
	Payload          datatypes.JSON `json:"payload"`
	PublishStatus    string         `gorm:"size:20;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"` // PENDING|PROCESSING|SENT|FAILED|DEAD
	PublishedAt      *time.Time     `gorm:"index" json:"published_at"`
	PubSubMessageId  *string        `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int            `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time     `gorm:"index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time     `gorm:"index" json:"locked_at"`
	LockedBy         *string        `gorm:"size:100" json:"locked_by"`
	LastPublishError *string        `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string         `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxRecord) TableName() string {
	return "reconciliation_outbox"
}
