package workflow

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/mpesa"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC)

var errInjected = errors.New("injected failure")

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type fixture struct {
	store  *repository.MemoryStore
	unit   models.Unit
	tenant models.Tenant
	record models.BillingRecord
}

// newFixture seeds one unit with an active tenant and a rent record for the
// month of testNow.
func newFixture(t *testing.T, unitCode string, due int64) *fixture {
	t.Helper()
	store := repository.NewMemoryStore()
	f := &fixture{store: store}
	f.unit, f.tenant, f.record = seedOccupiedUnit(t, store, unitCode, due)
	return f
}

func seedOccupiedUnit(t *testing.T, store repository.Store, unitCode string, due int64) (models.Unit, models.Tenant, models.BillingRecord) {
	t.Helper()
	ctx := context.Background()
	unit := &models.Unit{PropertyId: "prop-1", UnitNumber: unitCode, MonthlyRent: decimal.NewFromInt(due), Status: models.UnitStatusOccupied}
	require.NoError(t, store.Units().Create(ctx, unit))
	moveIn := testNow.AddDate(0, -6, 0)
	tenant := &models.Tenant{UserId: "user-" + unitCode, UnitId: &unit.ID, MoveInDate: &moveIn}
	require.NoError(t, store.Tenants().Create(ctx, tenant))
	rec := &models.BillingRecord{
		TenantId:   tenant.ID,
		UnitId:     unit.ID,
		MonthYear:  models.PeriodKey(testNow, time.UTC),
		AmountDue:  decimal.NewFromInt(due),
		AmountPaid: decimal.Zero,
		DueDate:    time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
		Status:     models.BillingStatusPending,
	}
	require.NoError(t, store.BillingRecords().Create(ctx, rec))
	return *unit, *tenant, *rec
}

func (f *fixture) currentRecord(t *testing.T) models.BillingRecord {
	t.Helper()
	rec, err := f.store.BillingRecords().GetByID(context.Background(), f.record.ID, false)
	require.NoError(t, err)
	return *rec
}

func (f *fixture) payments(t *testing.T) []models.Payment {
	t.Helper()
	p, err := f.store.Payments().ListByRentRecord(context.Background(), f.record.ID)
	require.NoError(t, err)
	return p
}

func (f *fixture) audit(t *testing.T, transID string) *models.MpesaTransaction {
	t.Helper()
	row, err := f.store.MpesaTransactions().GetByTransactionID(context.Background(), transID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	require.NoError(t, err)
	return row
}

func (f *fixture) auditCount(t *testing.T) int {
	t.Helper()
	rows, err := f.store.MpesaTransactions().ListByStatus(context.Background(), "", 0, 0)
	require.NoError(t, err)
	return len(rows)
}

func newTestReconciler(store repository.Store) *Reconciler {
	return &Reconciler{
		Store:             store,
		Logger:            quietLogger(),
		LockTTL:           time.Second,
		Location:          time.UTC,
		Overpayment:       models.OverpaymentAccept,
		MaxBalanceRetries: DefaultBalanceRetries,
	}
}

// callback builds a transaction the way the webhook does.
func callback(transID, account, amount string) mpesa.Transaction {
	cb := mpesa.C2BCallback{
		TransactionType: "Pay Bill",
		TransID:         mpesa.FlexString(transID),
		TransTime:       "20240115093000",
		TransAmount:     mpesa.FlexString(amount),
		BillRefNumber:   mpesa.FlexString(account),
		MSISDN:          "254712345678",
	}
	return mpesa.Normalize(cb, nil, mpesa.NormalizeOptions{Location: time.UTC, PhoneRegion: "KE", ReceivedAt: testNow})
}

// faultStore fails the named repository step inside transactions, the first
// `times` times it is reached.
type faultStore struct {
	*repository.MemoryStore

	mu      sync.Mutex
	step    string
	times   int
	reached map[string]int
}

const (
	stepUpdateBalance = "update_balance"
	stepInsertPayment = "insert_payment"
	stepInsertCredit  = "insert_credit"
	stepEnqueue       = "enqueue"
	stepInsertAudit   = "insert_audit"
)

func newFaultStore(inner *repository.MemoryStore, step string, times int) *faultStore {
	return &faultStore{MemoryStore: inner, step: step, times: times, reached: map[string]int{}}
}

func (s *faultStore) trip(step string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reached[step]++
	if step == s.step && s.times > 0 {
		s.times--
		return errInjected
	}
	return nil
}

func (s *faultStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	return s.MemoryStore.RunInTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return fn(ctx, faultRepos{Repositories: tx, s: s})
	})
}

type faultRepos struct {
	repository.Repositories
	s *faultStore
}

func (r faultRepos) BillingRecords() repository.BillingRecordRepository {
	return faultBilling{BillingRecordRepository: r.Repositories.BillingRecords(), s: r.s}
}
func (r faultRepos) Payments() repository.PaymentRepository {
	return faultPayments{PaymentRepository: r.Repositories.Payments(), s: r.s}
}
func (r faultRepos) TenantCredits() repository.TenantCreditRepository {
	return faultCredits{TenantCreditRepository: r.Repositories.TenantCredits(), s: r.s}
}
func (r faultRepos) Outbox() repository.OutboxRepository {
	return faultOutbox{OutboxRepository: r.Repositories.Outbox(), s: r.s}
}
func (r faultRepos) MpesaTransactions() repository.MpesaTransactionRepository {
	return faultMpesa{MpesaTransactionRepository: r.Repositories.MpesaTransactions(), s: r.s}
}

type faultBilling struct {
	repository.BillingRecordRepository
	s *faultStore
}

func (r faultBilling) UpdateBalance(ctx context.Context, id string, amountPaid decimal.Decimal, status models.BillingStatus, expectedVersion int) error {
	if err := r.s.trip(stepUpdateBalance); err != nil {
		return err
	}
	return r.BillingRecordRepository.UpdateBalance(ctx, id, amountPaid, status, expectedVersion)
}

type faultPayments struct {
	repository.PaymentRepository
	s *faultStore
}

func (r faultPayments) Insert(ctx context.Context, p *models.Payment) (string, error) {
	if err := r.s.trip(stepInsertPayment); err != nil {
		return "", err
	}
	return r.PaymentRepository.Insert(ctx, p)
}

type faultCredits struct {
	repository.TenantCreditRepository
	s *faultStore
}

func (r faultCredits) Insert(ctx context.Context, c *models.TenantCredit) error {
	if err := r.s.trip(stepInsertCredit); err != nil {
		return err
	}
	return r.TenantCreditRepository.Insert(ctx, c)
}

type faultOutbox struct {
	repository.OutboxRepository
	s *faultStore
}

func (r faultOutbox) Enqueue(ctx context.Context, rec *models.OutboxRecord) error {
	if err := r.s.trip(stepEnqueue); err != nil {
		return err
	}
	return r.OutboxRepository.Enqueue(ctx, rec)
}

type faultMpesa struct {
	repository.MpesaTransactionRepository
	s *faultStore
}

func (r faultMpesa) InsertIfAbsent(ctx context.Context, txn *models.MpesaTransaction) (bool, error) {
	if err := r.s.trip(stepInsertAudit); err != nil {
		return false, err
	}
	return r.MpesaTransactionRepository.InsertIfAbsent(ctx, txn)
}

// conflictStore makes the first `conflicts` balance updates lose the version race.
type conflictStore struct {
	*repository.MemoryStore
	mu        sync.Mutex
	conflicts int
	updates   int
}

func (s *conflictStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	return s.MemoryStore.RunInTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		return fn(ctx, conflictRepos{Repositories: tx, s: s})
	})
}

type conflictRepos struct {
	repository.Repositories
	s *conflictStore
}

func (r conflictRepos) BillingRecords() repository.BillingRecordRepository {
	return conflictBilling{BillingRecordRepository: r.Repositories.BillingRecords(), s: r.s}
}

type conflictBilling struct {
	repository.BillingRecordRepository
	s *conflictStore
}

func (r conflictBilling) UpdateBalance(ctx context.Context, id string, amountPaid decimal.Decimal, status models.BillingStatus, expectedVersion int) error {
	r.s.mu.Lock()
	r.s.updates++
	lose := r.s.updates <= r.s.conflicts
	r.s.mu.Unlock()
	if lose {
		return repository.ErrVersionConflict
	}
	return r.BillingRecordRepository.UpdateBalance(ctx, id, amountPaid, status, expectedVersion)
}
