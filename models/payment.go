package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is an immutable money receipt applied to a rent record. A provider
// reference can back at most one payment per method.
type Payment struct {
	ID              string          `gorm:"primaryKey;size:36" json:"id"`
	RentRecordId    string          `gorm:"size:36;not null;index" json:"rent_record_id"`
	TenantId        string          `gorm:"size:36;not null;index" json:"tenant_id"`
	Amount          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentMethod   PaymentMethod   `gorm:"size:20;not null;index:uniq_payment_reference,unique,priority:1" json:"payment_method"`
	PaymentDate     time.Time       `gorm:"type:date;not null" json:"payment_date"`
	ReferenceNumber *string         `gorm:"size:64;index:uniq_payment_reference,unique,priority:2" json:"reference_number"`
	Notes           *string         `gorm:"type:text" json:"notes"`
	RecordedBy      *string         `gorm:"size:100" json:"recorded_by"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
