package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Unit is a rentable space. UnitNumber doubles as the account reference payers
// type into their mobile-money app.
type Unit struct {
	ID          string          `gorm:"primaryKey;size:36" json:"id"`
	PropertyId  string          `gorm:"size:36;not null;index" json:"property_id"`
	UnitNumber  string          `gorm:"size:50;not null;index" json:"unit_number"`
	MonthlyRent decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"monthly_rent"`
	Status      UnitStatus      `gorm:"size:20;not null;default:vacant" json:"status"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
