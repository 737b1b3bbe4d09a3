package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/shopspring/decimal"
)

type memoryState struct {
	units     map[string]models.Unit
	tenants   map[string]models.Tenant
	records   map[string]models.BillingRecord
	payments  map[string]models.Payment
	mpesa     map[string]models.MpesaTransaction // by transaction id
	credits   map[string]models.TenantCredit
	outbox    []models.OutboxRecord
	outboxSeq int
}

func newMemoryState() *memoryState {
	return &memoryState{
		units:    map[string]models.Unit{},
		tenants:  map[string]models.Tenant{},
		records:  map[string]models.BillingRecord{},
		payments: map[string]models.Payment{},
		mpesa:    map[string]models.MpesaTransaction{},
		credits:  map[string]models.TenantCredit{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		units:     make(map[string]models.Unit, len(s.units)),
		tenants:   make(map[string]models.Tenant, len(s.tenants)),
		records:   make(map[string]models.BillingRecord, len(s.records)),
		payments:  make(map[string]models.Payment, len(s.payments)),
		mpesa:     make(map[string]models.MpesaTransaction, len(s.mpesa)),
		credits:   make(map[string]models.TenantCredit, len(s.credits)),
		outbox:    append([]models.OutboxRecord(nil), s.outbox...),
		outboxSeq: s.outboxSeq,
	}
	for k, v := range s.units {
		c.units[k] = v
	}
	for k, v := range s.tenants {
		c.tenants[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.mpesa {
		c.mpesa[k] = v
	}
	for k, v := range s.credits {
		c.credits[k] = v
	}
	return c
}

// MemoryStore keeps everything in process. Transactions are serialized and run
// against a private copy that replaces the live state on commit, so a failed
// unit of work leaves nothing behind.
//
// Writes made through the store itself (not the tx handle) from inside RunInTx
// will deadlock.
type MemoryStore struct {
	txMu  sync.Mutex
	mu    sync.RWMutex
	state *memoryState
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: newMemoryState(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	work := s.state.clone()
	s.mu.RUnlock()

	if err := fn(ctx, &memRepos{store: s, tx: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = work
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) live() *memRepos { return &memRepos{store: s} }

func (s *MemoryStore) Units() UnitRepository                         { return memUnits{s.live()} }
func (s *MemoryStore) Tenants() TenantRepository                     { return memTenants{s.live()} }
func (s *MemoryStore) BillingRecords() BillingRecordRepository       { return memBillingRecords{s.live()} }
func (s *MemoryStore) Payments() PaymentRepository                   { return memPayments{s.live()} }
func (s *MemoryStore) MpesaTransactions() MpesaTransactionRepository { return memMpesaTransactions{s.live()} }
func (s *MemoryStore) TenantCredits() TenantCreditRepository         { return memTenantCredits{s.live()} }
func (s *MemoryStore) Outbox() OutboxRepository                      { return memOutbox{s.live()} }

// memRepos either works on a transaction's private copy (tx != nil) or on the
// live state under the store's locks.
type memRepos struct {
	store *MemoryStore
	tx    *memoryState
}

func (r *memRepos) Units() UnitRepository                         { return memUnits{r} }
func (r *memRepos) Tenants() TenantRepository                     { return memTenants{r} }
func (r *memRepos) BillingRecords() BillingRecordRepository       { return memBillingRecords{r} }
func (r *memRepos) Payments() PaymentRepository                   { return memPayments{r} }
func (r *memRepos) MpesaTransactions() MpesaTransactionRepository { return memMpesaTransactions{r} }
func (r *memRepos) TenantCredits() TenantCreditRepository         { return memTenantCredits{r} }
func (r *memRepos) Outbox() OutboxRepository                      { return memOutbox{r} }

func (r *memRepos) read(ctx context.Context, fn func(st *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return fn(r.store.state)
}

// write outside a transaction behaves like a one-statement transaction: it
// waits for any running unit of work so the commit swap cannot drop it.
func (r *memRepos) write(ctx context.Context, fn func(st *memoryState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.tx != nil {
		return fn(r.tx)
	}
	r.store.txMu.Lock()
	defer r.store.txMu.Unlock()
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	return fn(r.store.state)
}

func (r *memRepos) now() time.Time { return r.store.now() }

type memUnits struct{ *memRepos }

func (r memUnits) FindByCode(ctx context.Context, code string) (*models.Unit, error) {
	code = strings.TrimSpace(code)
	var out *models.Unit
	err := r.read(ctx, func(st *memoryState) error {
		var found []models.Unit
		for _, u := range st.units {
			if strings.EqualFold(u.UnitNumber, code) {
				found = append(found, u)
			}
		}
		switch len(found) {
		case 0:
			return ErrNotFound
		case 1:
			out = &found[0]
			return nil
		default:
			return ErrMultipleMatches
		}
	})
	return out, err
}

func (r memUnits) Create(ctx context.Context, unit *models.Unit) error {
	if unit.ID == "" {
		unit.ID = models.NewID()
	}
	return r.write(ctx, func(st *memoryState) error {
		if _, ok := st.units[unit.ID]; ok {
			return ErrDuplicate
		}
		now := r.now()
		unit.CreatedAt, unit.UpdatedAt = now, now
		st.units[unit.ID] = *unit
		return nil
	})
}

type memTenants struct{ *memRepos }

func (r memTenants) FindActiveByUnit(ctx context.Context, unitID string) (*models.Tenant, error) {
	var out *models.Tenant
	err := r.read(ctx, func(st *memoryState) error {
		var found []models.Tenant
		for _, t := range st.tenants {
			if t.UnitId != nil && *t.UnitId == unitID && t.IsActive() {
				found = append(found, t)
			}
		}
		switch len(found) {
		case 0:
			return ErrNotFound
		case 1:
			out = &found[0]
			return nil
		default:
			return ErrMultipleMatches
		}
	})
	return out, err
}

func (r memTenants) Create(ctx context.Context, tenant *models.Tenant) error {
	if tenant.ID == "" {
		tenant.ID = models.NewID()
	}
	return r.write(ctx, func(st *memoryState) error {
		if _, ok := st.tenants[tenant.ID]; ok {
			return ErrDuplicate
		}
		now := r.now()
		tenant.CreatedAt, tenant.UpdatedAt = now, now
		st.tenants[tenant.ID] = *tenant
		return nil
	})
}

type memBillingRecords struct{ *memRepos }

func (r memBillingRecords) FindByTenantAndPeriod(ctx context.Context, tenantID string, period string) (*models.BillingRecord, error) {
	var out *models.BillingRecord
	err := r.read(ctx, func(st *memoryState) error {
		for _, rec := range st.records {
			if rec.TenantId == tenantID && rec.MonthYear == period {
				rec := rec
				out = &rec
				return nil
			}
		}
		return ErrNotFound
	})
	return out, err
}

// forUpdate is a no-op here: transactions are already serialized.
func (r memBillingRecords) GetByID(ctx context.Context, id string, forUpdate bool) (*models.BillingRecord, error) {
	var out *models.BillingRecord
	err := r.read(ctx, func(st *memoryState) error {
		rec, ok := st.records[id]
		if !ok {
			return ErrNotFound
		}
		out = &rec
		return nil
	})
	return out, err
}

func (r memBillingRecords) UpdateBalance(ctx context.Context, id string, amountPaid decimal.Decimal, status models.BillingStatus, expectedVersion int) error {
	return r.write(ctx, func(st *memoryState) error {
		rec, ok := st.records[id]
		if !ok || rec.Version != expectedVersion {
			return ErrVersionConflict
		}
		rec.AmountPaid = amountPaid
		rec.Status = status
		rec.Version++
		rec.UpdatedAt = r.now()
		st.records[id] = rec
		return nil
	})
}

func (r memBillingRecords) Create(ctx context.Context, record *models.BillingRecord) error {
	if record.ID == "" {
		record.ID = models.NewID()
	}
	if record.Version == 0 {
		record.Version = 1
	}
	if record.Status == "" {
		record.Status = models.DeriveBillingStatus(record.AmountDue, record.AmountPaid)
	}
	return r.write(ctx, func(st *memoryState) error {
		for _, rec := range st.records {
			if rec.ID == record.ID || (rec.TenantId == record.TenantId && rec.MonthYear == record.MonthYear) {
				return ErrDuplicate
			}
		}
		now := r.now()
		record.CreatedAt, record.UpdatedAt = now, now
		st.records[record.ID] = *record
		return nil
	})
}

type memPayments struct{ *memRepos }

func (r memPayments) Insert(ctx context.Context, payment *models.Payment) (string, error) {
	if payment.ID == "" {
		payment.ID = models.NewID()
	}
	err := r.write(ctx, func(st *memoryState) error {
		if payment.ReferenceNumber != nil {
			for _, p := range st.payments {
				if p.PaymentMethod == payment.PaymentMethod && p.ReferenceNumber != nil && *p.ReferenceNumber == *payment.ReferenceNumber {
					return ErrDuplicate
				}
			}
		}
		if _, ok := st.payments[payment.ID]; ok {
			return ErrDuplicate
		}
		payment.CreatedAt = r.now()
		st.payments[payment.ID] = *payment
		return nil
	})
	if err != nil {
		return "", err
	}
	return payment.ID, nil
}

func (r memPayments) ListByRentRecord(ctx context.Context, rentRecordID string) ([]models.Payment, error) {
	var out []models.Payment
	err := r.read(ctx, func(st *memoryState) error {
		for _, p := range st.payments {
			if p.RentRecordId == rentRecordID {
				out = append(out, p)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

type memMpesaTransactions struct{ *memRepos }

func (r memMpesaTransactions) GetByTransactionID(ctx context.Context, transactionID string) (*models.MpesaTransaction, error) {
	var out *models.MpesaTransaction
	err := r.read(ctx, func(st *memoryState) error {
		txn, ok := st.mpesa[transactionID]
		if !ok {
			return ErrNotFound
		}
		out = &txn
		return nil
	})
	return out, err
}

func (r memMpesaTransactions) InsertIfAbsent(ctx context.Context, txn *models.MpesaTransaction) (bool, error) {
	if txn.ID == "" {
		txn.ID = models.NewID()
	}
	inserted := false
	err := r.write(ctx, func(st *memoryState) error {
		if _, ok := st.mpesa[txn.TransactionId]; ok {
			return nil
		}
		txn.CreatedAt = r.now()
		st.mpesa[txn.TransactionId] = *txn
		inserted = true
		return nil
	})
	return inserted, err
}

func (r memMpesaTransactions) ListByStatus(ctx context.Context, status models.InboundStatus, limit, offset int) ([]models.MpesaTransaction, error) {
	var out []models.MpesaTransaction
	err := r.read(ctx, func(st *memoryState) error {
		for _, txn := range st.mpesa {
			if status == "" || txn.Status == status {
				out = append(out, txn)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].TransactionId < out[j].TransactionId
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memTenantCredits struct{ *memRepos }

func (r memTenantCredits) Insert(ctx context.Context, credit *models.TenantCredit) error {
	if credit.ID == "" {
		credit.ID = models.NewID()
	}
	if credit.Status == "" {
		credit.Status = models.TenantCreditStatusOpen
	}
	return r.write(ctx, func(st *memoryState) error {
		for _, c := range st.credits {
			if c.SourceTransactionId == credit.SourceTransactionId {
				return ErrDuplicate
			}
		}
		credit.CreatedAt = r.now()
		st.credits[credit.ID] = *credit
		return nil
	})
}

func (r memTenantCredits) ListByTenant(ctx context.Context, tenantID string) ([]models.TenantCredit, error) {
	var out []models.TenantCredit
	err := r.read(ctx, func(st *memoryState) error {
		for _, c := range st.credits {
			if c.TenantId == tenantID {
				out = append(out, c)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, err
}

type memOutbox struct{ *memRepos }

func (r memOutbox) Enqueue(ctx context.Context, rec *models.OutboxRecord) error {
	if rec.PublishStatus == "" {
		rec.PublishStatus = models.OutboxPublishStatusPending
	}
	return r.write(ctx, func(st *memoryState) error {
		st.outboxSeq++
		rec.ID = st.outboxSeq
		now := r.now()
		rec.CreatedAt, rec.UpdatedAt = now, now
		st.outbox = append(st.outbox, *rec)
		return nil
	})
}

func (r memOutbox) ClaimDue(ctx context.Context, p ClaimParams) ([]models.OutboxRecord, error) {
	var claimed []models.OutboxRecord
	err := r.write(ctx, func(st *memoryState) error {
		for i := range st.outbox {
			if p.Limit > 0 && len(claimed) >= p.Limit {
				break
			}
			rec := &st.outbox[i]
			if !outboxDue(rec, p) {
				continue
			}
			if p.MaxAttempts > 0 && rec.PublishAttempts >= p.MaxAttempts {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", p.MaxAttempts)
				rec.PublishStatus = models.OutboxPublishStatusDead
				rec.LastPublishError = &msg
				rec.NextAttemptAt, rec.LockedAt, rec.LockedBy = nil, nil, nil
				continue
			}
			now := p.Now
			by := p.DispatcherID
			rec.PublishStatus = models.OutboxPublishStatusProcessing
			rec.LockedAt = &now
			rec.LockedBy = &by
			rec.PublishAttempts++
			rec.LastPublishError = nil
			rec.NextAttemptAt = nil
			rec.UpdatedAt = r.now()
			claimed = append(claimed, *rec)
		}
		return nil
	})
	return claimed, err
}

func outboxDue(rec *models.OutboxRecord, p ClaimParams) bool {
	switch rec.PublishStatus {
	case models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed:
		return rec.NextAttemptAt == nil || !rec.NextAttemptAt.After(p.Now)
	case models.OutboxPublishStatusProcessing:
		return rec.LockedAt != nil && !rec.LockedAt.After(p.StaleBefore)
	}
	return false
}

func (r memOutbox) MarkSent(ctx context.Context, id int, messageID string, at time.Time) error {
	return r.write(ctx, func(st *memoryState) error {
		for i := range st.outbox {
			if st.outbox[i].ID != id {
				continue
			}
			rec := &st.outbox[i]
			rec.PublishStatus = models.OutboxPublishStatusSent
			rec.PublishedAt = &at
			rec.PubSubMessageId = &messageID
			rec.LockedAt, rec.LockedBy, rec.NextAttemptAt = nil, nil, nil
			rec.UpdatedAt = r.now()
			return nil
		}
		return ErrNotFound
	})
}

func (r memOutbox) MarkFailed(ctx context.Context, id int, errMsg string, nextAttemptAt *time.Time, dead bool) error {
	return r.write(ctx, func(st *memoryState) error {
		for i := range st.outbox {
			if st.outbox[i].ID != id {
				continue
			}
			rec := &st.outbox[i]
			rec.PublishStatus = models.OutboxPublishStatusFailed
			rec.NextAttemptAt = nextAttemptAt
			if dead {
				rec.PublishStatus = models.OutboxPublishStatusDead
				rec.NextAttemptAt = nil
			}
			rec.LastPublishError = &errMsg
			rec.LockedAt, rec.LockedBy = nil, nil
			rec.UpdatedAt = r.now()
			return nil
		}
		return ErrNotFound
	})
}

// OutboxSnapshot returns a copy of every outbox row, oldest first.
func (s *MemoryStore) OutboxSnapshot() []models.OutboxRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.OutboxRecord(nil), s.state.outbox...)
}
