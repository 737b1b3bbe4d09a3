package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MpesaTransaction is the audit row for one inbound mobile-money notification.
// TransactionId is the provider's id and the idempotency key; a row is written
// exactly once and never updated by the reconciliation path.
type MpesaTransaction struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	TransactionId   string          `gorm:"size:64;not null;uniqueIndex" json:"transaction_id"`
	PhoneNumber     string          `gorm:"size:100" json:"phone_number"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount"`
	AccountNumber   string          `gorm:"size:100;index" json:"account_number"`
	TransactionDate time.Time       `gorm:"not null" json:"transaction_date"`
	TenantId        *string         `gorm:"size:36;index" json:"tenant_id"`
	RentRecordId    *string         `gorm:"size:36;index" json:"rent_record_id"`
	Status          InboundStatus   `gorm:"size:20;not null;index" json:"status"`
	Matched         bool            `gorm:"not null;default:false" json:"matched"`
	ErrorMessage    *string         `gorm:"type:text" json:"error_message"`
	OverpaidAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"overpaid_amount"`
	RawPayload      datatypes.JSON  `json:"raw_payload"`
	CorrelationId   string          `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt       time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}
