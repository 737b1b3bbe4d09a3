package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/repository"
)

// MatchResult carries whatever was resolved before the first failing step.
// Reason is empty only when all three lookups succeeded.
type MatchResult struct {
	Unit          *models.Unit
	Tenant        *models.Tenant
	BillingRecord *models.BillingRecord
	Period        string
	Reason        string
}

func (m MatchResult) Matched() bool {
	return m.Reason == "" && m.BillingRecord != nil
}

func (m MatchResult) TenantID() *string {
	if m.Tenant == nil {
		return nil
	}
	id := m.Tenant.ID
	return &id
}

func (m MatchResult) RentRecordID() *string {
	if m.BillingRecord == nil {
		return nil
	}
	id := m.BillingRecord.ID
	return &id
}

// MatchPayment resolves account reference -> unit -> active tenant -> the
// tenant's rent record for the month containing now (taken in loc). Lookups
// that find nothing end in a Reason; only storage failures return an error.
func MatchPayment(ctx context.Context, repos repository.Repositories, accountRef string, now time.Time, loc *time.Location) (MatchResult, error) {
	res := MatchResult{Period: models.PeriodKey(now, loc)}

	unit, err := repos.Units().FindByCode(ctx, accountRef)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		res.Reason = fmt.Sprintf("unit not found: %s", accountRef)
		return res, nil
	case errors.Is(err, repository.ErrMultipleMatches):
		res.Reason = fmt.Sprintf("ambiguous account reference, several units match: %s", accountRef)
		return res, nil
	case err != nil:
		return res, fmt.Errorf("find unit %q: %w", accountRef, err)
	}
	res.Unit = unit

	tenant, err := repos.Tenants().FindActiveByUnit(ctx, unit.ID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		res.Reason = fmt.Sprintf("no active tenant for unit: %s", accountRef)
		return res, nil
	case errors.Is(err, repository.ErrMultipleMatches):
		res.Reason = fmt.Sprintf("multiple active tenants for unit: %s", accountRef)
		return res, nil
	case err != nil:
		return res, fmt.Errorf("find active tenant for unit %s: %w", unit.ID, err)
	}
	res.Tenant = tenant

	record, err := repos.BillingRecords().FindByTenantAndPeriod(ctx, tenant.ID, res.Period)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		res.Reason = fmt.Sprintf("no rent record for current month: %s", res.Period)
		return res, nil
	case err != nil:
		return res, fmt.Errorf("find rent record for tenant %s period %s: %w", tenant.ID, res.Period, err)
	}
	res.BillingRecord = record
	return res, nil
}
