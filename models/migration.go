package models

import (
	"gorm.io/gorm"
)

func AllModels() []any {
	return []any{
		&Unit{}, &Tenant{}, &BillingRecord{},
		&Payment{}, &MpesaTransaction{}, &TenantCredit{},
		&OutboxRecord{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
