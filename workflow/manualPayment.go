package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	ErrInvalidPayment     = errors.New("invalid payment")
	ErrDuplicateReference = errors.New("payment reference already recorded")
)

// ManualPayment is a payment keyed in by staff (cash, bank transfer, or a
// mobile-money receipt resolved from the review queue).
type ManualPayment struct {
	RentRecordID    string
	Amount          decimal.Decimal
	Method          models.PaymentMethod
	PaymentDate     time.Time
	ReferenceNumber *string
	Notes           *string
	RecordedBy      string
}

// PaymentRecorder applies manual payments through the same version-checked
// balance update the webhook uses.
type PaymentRecorder struct {
	Store             repository.Store
	Logger            *logrus.Logger
	MaxBalanceRetries int
	EmitEvents        bool
}

func NewPaymentRecorder(store repository.Store, logger *logrus.Logger) *PaymentRecorder {
	return &PaymentRecorder{
		Store:             store,
		Logger:            logger,
		MaxBalanceRetries: config.BalanceUpdateMaxRetries(),
		EmitEvents:        config.ReconciliationEventsTopic() != "",
	}
}

// maxReferenceLength matches the payments.reference_number column.
const maxReferenceLength = 64

// normalize trims the optional text fields. A blank reference is no reference:
// receipts without one must not collide on the per-method unique index.
func (p ManualPayment) normalize() ManualPayment {
	p.ReferenceNumber = trimmedOrNil(p.ReferenceNumber)
	p.Notes = trimmedOrNil(p.Notes)
	p.RecordedBy = strings.TrimSpace(p.RecordedBy)
	return p
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func (p ManualPayment) validate() error {
	if strings.TrimSpace(p.RentRecordID) == "" {
		return fmt.Errorf("%w: rent record is required", ErrInvalidPayment)
	}
	if !p.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}
	if !p.Method.IsValid() {
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidPayment, p.Method)
	}
	if p.PaymentDate.IsZero() {
		return fmt.Errorf("%w: payment date is required", ErrInvalidPayment)
	}
	if p.ReferenceNumber != nil && len(*p.ReferenceNumber) > maxReferenceLength {
		return fmt.Errorf("%w: reference number longer than %d characters", ErrInvalidPayment, maxReferenceLength)
	}
	return nil
}

func (pr *PaymentRecorder) Record(ctx context.Context, in ManualPayment) (*models.Payment, *models.BillingRecord, error) {
	in = in.normalize()
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	var (
		payment *models.Payment
		record  models.BillingRecord
	)
	err := pr.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		current, err := tx.BillingRecords().GetByID(ctx, in.RentRecordID, false)
		if err != nil {
			return err
		}
		change, err := ApplyPayment(ctx, tx, current, in.Amount, pr.MaxBalanceRetries)
		if err != nil {
			return err
		}
		record = change.Record

		payment = &models.Payment{
			RentRecordId:    current.ID,
			TenantId:        current.TenantId,
			Amount:          in.Amount,
			PaymentMethod:   in.Method,
			PaymentDate:     paymentDate(in.PaymentDate, nil),
			ReferenceNumber: in.ReferenceNumber,
			Notes:           in.Notes,
		}
		if in.RecordedBy != "" {
			by := in.RecordedBy
			payment.RecordedBy = &by
		}
		if _, err := tx.Payments().Insert(ctx, payment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return ErrDuplicateReference
			}
			return err
		}

		if !pr.EmitEvents {
			return nil
		}
		paid, due := record.AmountPaid, record.AmountDue
		tenantID, recordID := current.TenantId, current.ID
		return enqueueEvent(ctx, tx, payment.ID, PaymentEvent{
			EventType:      models.EventManualPayment,
			Matched:        true,
			Amount:         in.Amount,
			TenantID:       &tenantID,
			RentRecordID:   &recordID,
			PaymentID:      payment.ID,
			PaymentMethod:  in.Method,
			BillingStatus:  record.Status,
			AmountPaid:     &paid,
			AmountDue:      &due,
			OverpaidAmount: change.Overpaid,
			OccurredAt:     in.PaymentDate,
		})
	})
	if err != nil {
		return nil, nil, err
	}

	logger := pr.Logger
	if logger == nil {
		logger = config.GetLogger()
	}
	logger.WithFields(logrus.Fields{
		"field":          "PaymentRecorder",
		"rent_record_id": record.ID,
		"payment_id":     payment.ID,
		"method":         in.Method,
		"billing_status": record.Status,
		"correlation_id": correlationID(ctx),
	}).Info("manual payment recorded")
	return payment, &record, nil
}
