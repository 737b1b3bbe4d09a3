package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/shopspring/decimal"
)

const DefaultBalanceRetries = 5

var ErrRetriesExhausted = errors.New("balance update retries exhausted")

// BalanceChange describes one successful ApplyPayment.
type BalanceChange struct {
	Record       models.BillingRecord
	PreviousPaid decimal.Decimal
	// Overpaid is the part of this payment that went above the amount due.
	Overpaid decimal.Decimal
	Attempts int
}

// ApplyPayment adds amount to the record's paid total and recomputes its
// status, compare-and-swapping on the record version. After a conflict it
// re-reads the record under a row lock and tries again, up to maxRetries times.
func ApplyPayment(ctx context.Context, tx repository.Repositories, snapshot *models.BillingRecord, amount decimal.Decimal, maxRetries int) (BalanceChange, error) {
	if snapshot == nil {
		return BalanceChange{}, errors.New("apply payment: no rent record")
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	rec := *snapshot
	for attempt := 1; ; attempt++ {
		newPaid := rec.AmountPaid.Add(amount)
		status := models.DeriveBillingStatus(rec.AmountDue, newPaid)

		err := tx.BillingRecords().UpdateBalance(ctx, rec.ID, newPaid, status, rec.Version)
		if err == nil {
			change := BalanceChange{
				PreviousPaid: rec.AmountPaid,
				Overpaid: models.Overpayment(rec.AmountDue, newPaid).
					Sub(models.Overpayment(rec.AmountDue, rec.AmountPaid)),
				Attempts: attempt,
			}
			rec.AmountPaid = newPaid
			rec.Status = status
			rec.Version++
			change.Record = rec
			return change, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			return BalanceChange{}, fmt.Errorf("update balance of rent record %s: %w", rec.ID, err)
		}
		if attempt > maxRetries {
			return BalanceChange{}, fmt.Errorf("%w: rent record %s, %d attempts", ErrRetriesExhausted, rec.ID, attempt)
		}

		fresh, err := tx.BillingRecords().GetByID(ctx, rec.ID, true)
		if err != nil {
			return BalanceChange{}, fmt.Errorf("re-read rent record %s: %w", rec.ID, err)
		}
		rec = *fresh
	}
}

// paymentDate is the calendar date of t in loc, as stored in a date column.
func paymentDate(t time.Time, loc *time.Location) time.Time {
	if loc != nil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
