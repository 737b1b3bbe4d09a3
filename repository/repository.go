package repository

import (
	"context"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/shopspring/decimal"
)

type UnitRepository interface {
	// FindByCode matches unit_number case-insensitively. ErrNotFound when
	// nothing matches, ErrMultipleMatches when the code is ambiguous.
	FindByCode(ctx context.Context, code string) (*models.Unit, error)
	Create(ctx context.Context, unit *models.Unit) error
}

type TenantRepository interface {
	// FindActiveByUnit returns the single tenant with no move-out date.
	FindActiveByUnit(ctx context.Context, unitID string) (*models.Tenant, error)
	Create(ctx context.Context, tenant *models.Tenant) error
}

type BillingRecordRepository interface {
	FindByTenantAndPeriod(ctx context.Context, tenantID string, period string) (*models.BillingRecord, error)
	// GetByID with forUpdate takes a row lock for the rest of the transaction.
	GetByID(ctx context.Context, id string, forUpdate bool) (*models.BillingRecord, error)
	// UpdateBalance writes only when the stored version equals expectedVersion
	// and bumps it; otherwise ErrVersionConflict.
	UpdateBalance(ctx context.Context, id string, amountPaid decimal.Decimal, status models.BillingStatus, expectedVersion int) error
	Create(ctx context.Context, record *models.BillingRecord) error
}

type PaymentRepository interface {
	Insert(ctx context.Context, payment *models.Payment) (string, error)
	ListByRentRecord(ctx context.Context, rentRecordID string) ([]models.Payment, error)
}

type MpesaTransactionRepository interface {
	GetByTransactionID(ctx context.Context, transactionID string) (*models.MpesaTransaction, error)
	// InsertIfAbsent reports false, with no error, when the transaction id is already stored.
	InsertIfAbsent(ctx context.Context, txn *models.MpesaTransaction) (bool, error)
	ListByStatus(ctx context.Context, status models.InboundStatus, limit, offset int) ([]models.MpesaTransaction, error)
}

type TenantCreditRepository interface {
	Insert(ctx context.Context, credit *models.TenantCredit) error
	ListByTenant(ctx context.Context, tenantID string) ([]models.TenantCredit, error)
}

type ClaimParams struct {
	Now          time.Time
	StaleBefore  time.Time
	Limit        int
	DispatcherID string
	MaxAttempts  int
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, rec *models.OutboxRecord) error
	// ClaimDue moves due rows to PROCESSING for this dispatcher. Rows past
	// MaxAttempts go DEAD and are not returned.
	ClaimDue(ctx context.Context, p ClaimParams) ([]models.OutboxRecord, error)
	MarkSent(ctx context.Context, id int, messageID string, at time.Time) error
	MarkFailed(ctx context.Context, id int, errMsg string, nextAttemptAt *time.Time, dead bool) error
}

type Repositories interface {
	Units() UnitRepository
	Tenants() TenantRepository
	BillingRecords() BillingRecordRepository
	Payments() PaymentRepository
	MpesaTransactions() MpesaTransactionRepository
	TenantCredits() TenantCreditRepository
	Outbox() OutboxRepository
}

// Store is a Repositories that can also run a unit of work atomically.
// Everything fn writes through tx commits together or not at all.
type Store interface {
	Repositories
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}
