package repository

import (
	"context"
	"strings"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &GormStore{db: tx})
	})
}

func (s *GormStore) Units() UnitRepository                         { return gormUnits{db: s.db} }
func (s *GormStore) Tenants() TenantRepository                     { return gormTenants{db: s.db} }
func (s *GormStore) BillingRecords() BillingRecordRepository       { return gormBillingRecords{db: s.db} }
func (s *GormStore) Payments() PaymentRepository                   { return gormPayments{db: s.db} }
func (s *GormStore) MpesaTransactions() MpesaTransactionRepository { return gormMpesaTransactions{db: s.db} }
func (s *GormStore) TenantCredits() TenantCreditRepository         { return gormTenantCredits{db: s.db} }
func (s *GormStore) Outbox() OutboxRepository                      { return gormOutbox{db: s.db} }

type gormUnits struct{ db *gorm.DB }

func (r gormUnits) FindByCode(ctx context.Context, code string) (*models.Unit, error) {
	var units []models.Unit
	err := r.db.WithContext(ctx).
		Where("UPPER(unit_number) = ?", strings.ToUpper(strings.TrimSpace(code))).
		Order("id ASC").
		Limit(2).
		Find(&units).Error
	if err != nil {
		return nil, err
	}
	switch len(units) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &units[0], nil
	default:
		return nil, ErrMultipleMatches
	}
}

func (r gormUnits) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = models.NewID()
	}
	return r.db.WithContext(ctx).Create(unit).Error
}

type gormTenants struct{ db *gorm.DB }

func (r gormTenants) FindActiveByUnit(ctx context.Context, unitID string) (*models.Tenant, error) {
	var tenants []models.Tenant
	err := r.db.WithContext(ctx).
		Where("unit_id = ? AND move_out_date IS NULL", unitID).
		Order("id ASC").
		Limit(2).
		Find(&tenants).Error
	if err != nil {
		return nil, err
	}
	switch len(tenants) {
	case 0:
		return nil, ErrNotFound
	case 1:
		return &tenants[0], nil
	default:
		return nil, ErrMultipleMatches
	}
}

func (r gormTenants) Create(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = models.NewID()
	}
	return r.db.WithContext(ctx).Create(tenant).Error
}

type gormBillingRecords struct{ db *gorm.DB }

func (r gormBillingRecords) FindByTenantAndPeriod(ctx context.Context, tenantID string, period string) (*models.BillingRecord, error) {
	var rec models.BillingRecord
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND month_year = ?", tenantID, period).
		Take(&rec).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (r gormBillingRecords) GetByID(ctx context.Context, id string, forUpdate bool) (*models.BillingRecord, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var rec models.BillingRecord
	if err := q.Where("id = ?", id).Take(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

func (r gormBillingRecords) UpdateBalance(ctx context.Context, id string, amountPaid decimal.Decimal, status models.BillingStatus, expectedVersion int) error {
	res := r.db.WithContext(ctx).
		Model(&models.BillingRecord{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			"amount_paid": amountPaid,
			"status":      status,
			"version":     gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (r gormBillingRecords) Create(ctx context.Context, record *models.BillingRecord) error {
	if record.ID == "" {
		record.ID = models.NewID()
	}
	if record.Version == 0 {
		record.Version = 1
	}
	return r.db.WithContext(ctx).Create(record).Error
}

type gormPayments struct{ db *gorm.DB }

func (r gormPayments) Insert(ctx context.Context, payment *models.Payment) (string, error) {
	if payment.ID == "" {
		payment.ID = models.NewID()
	}
	if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return "", ErrDuplicate
		}
		return "", err
	}
	return payment.ID, nil
}

func (r gormPayments) ListByRentRecord(ctx context.Context, rentRecordID string) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("rent_record_id = ?", rentRecordID).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

type gormMpesaTransactions struct{ db *gorm.DB }

func (r gormMpesaTransactions) GetByTransactionID(ctx context.Context, transactionID string) (*models.MpesaTransaction, error) {
	var txn models.MpesaTransaction
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Take(&txn).Error; err != nil {
		return nil, notFound(err)
	}
	return &txn, nil
}

func (r gormMpesaTransactions) InsertIfAbsent(ctx context.Context, txn *models.MpesaTransaction) (bool, error) {
	if txn.ID == "" {
		txn.ID = models.NewID()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(txn)
	if res.Error != nil {
		if IsDuplicateKeyErr(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r gormMpesaTransactions) ListByStatus(ctx context.Context, status models.InboundStatus, limit, offset int) ([]models.MpesaTransaction, error) {
	var txns []models.MpesaTransaction
	q := r.db.WithContext(ctx).Order("created_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	err := q.Find(&txns).Error
	return txns, err
}

type gormTenantCredits struct{ db *gorm.DB }

func (r gormTenantCredits) Insert(ctx context.Context, credit *models.TenantCredit) error {
	if credit.ID == "" {
		credit.ID = models.NewID()
	}
	if credit.Status == "" {
		credit.Status = models.TenantCreditStatusOpen
	}
	if err := r.db.WithContext(ctx).Create(credit).Error; err != nil {
		if IsDuplicateKeyErr(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

func (r gormTenantCredits) ListByTenant(ctx context.Context, tenantID string) ([]models.TenantCredit, error) {
	var credits []models.TenantCredit
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC").
		Find(&credits).Error
	return credits, err
}
