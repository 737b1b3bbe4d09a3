package models

import "time"

// Tenant is active while MoveOutDate is nil. A unit has at most one active tenant.
type Tenant struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	UserId      string     `gorm:"size:36;not null;index" json:"user_id"`
	UnitId      *string    `gorm:"size:36;index:idx_tenant_unit_active,priority:1" json:"unit_id"`
	MoveInDate  *time.Time `gorm:"type:date" json:"move_in_date"`
	MoveOutDate *time.Time `gorm:"type:date;index:idx_tenant_unit_active,priority:2" json:"move_out_date"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (t Tenant) IsActive() bool {
	return t.MoveOutDate == nil
}
