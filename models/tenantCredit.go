package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TenantCredit records an overpayment that is owed back to the tenant, either as
// credit towards a later month or as a refund.
type TenantCredit struct {
	ID                  string            `gorm:"primaryKey;size:36" json:"id"`
	TenantId            string            `gorm:"size:36;not null;index" json:"tenant_id"`
	RentRecordId        string            `gorm:"size:36;not null;index" json:"rent_record_id"`
	SourceTransactionId string            `gorm:"size:64;not null;uniqueIndex" json:"source_transaction_id"`
	Amount              decimal.Decimal   `gorm:"type:decimal(20,4);not null" json:"amount"`
	Disposition         CreditDisposition `gorm:"size:20;not null" json:"disposition"`
	Status              string            `gorm:"size:20;not null;default:open" json:"status"`
	CreatedAt           time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

const TenantCreditStatusOpen = "open"
