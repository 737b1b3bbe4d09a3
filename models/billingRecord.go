package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const PeriodLayout = "2006-01"

// BillingRecord is one tenant's rent obligation for one month.
// Version is bumped on every balance update; writers compare-and-swap on it.
type BillingRecord struct {
	ID         string          `gorm:"primaryKey;size:36" json:"id"`
	TenantId   string          `gorm:"size:36;not null;index:uniq_rent_tenant_period,unique,priority:1" json:"tenant_id"`
	UnitId     string          `gorm:"size:36;not null;index" json:"unit_id"`
	MonthYear  string          `gorm:"size:7;not null;index:uniq_rent_tenant_period,unique,priority:2" json:"month_year"`
	AmountDue  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount_due"`
	AmountPaid decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount_paid"`
	DueDate    time.Time       `gorm:"type:date;not null" json:"due_date"`
	Status     BillingStatus   `gorm:"size:20;not null;default:pending;index" json:"status"`
	Version    int             `gorm:"not null;default:1" json:"version"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (BillingRecord) TableName() string {
	return "rent_records"
}

// DeriveBillingStatus is the only place a record's status is computed from its totals.
func DeriveBillingStatus(amountDue, amountPaid decimal.Decimal) BillingStatus {
	switch {
	case amountPaid.GreaterThanOrEqual(amountDue):
		return BillingStatusPaid
	case amountPaid.IsPositive():
		return BillingStatusPartial
	default:
		return BillingStatusPending
	}
}

// PeriodKey is the YYYY-MM month a billing record is filed under, taken in loc.
func PeriodKey(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(PeriodLayout)
}

// Overpayment is the part of amountPaid above amountDue (never negative).
func Overpayment(amountDue, amountPaid decimal.Decimal) decimal.Decimal {
	if amountPaid.GreaterThan(amountDue) {
		return amountPaid.Sub(amountDue)
	}
	return decimal.Zero
}
