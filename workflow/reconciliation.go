package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/rentals_backend/config"
	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/mpesa"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/mmdatafocus/rentals_backend/workflow")

type Outcome string

const (
	OutcomeApplied       Outcome = "applied"
	OutcomePendingReview Outcome = "pending_review"
	OutcomeDuplicate     Outcome = "duplicate"
)

type Result struct {
	Outcome       Outcome
	TransactionID string
	TenantID      *string
	RentRecordID  *string
	Reason        string
	BillingStatus models.BillingStatus
	Overpaid      decimal.Decimal
	Attempts      int
}

// errAlreadyProcessed aborts a unit of work whose audit row lost the race to a
// concurrent delivery of the same transaction.
var errAlreadyProcessed = errors.New("transaction already processed")

// Reconciler turns one normalized callback into either an applied payment or a
// pending-review audit row, exactly once per provider transaction id.
type Reconciler struct {
	Store             repository.Store
	Logger            *logrus.Logger
	Locker            TransactionLocker
	LockTTL           time.Duration
	Location          *time.Location
	Overpayment       models.OverpaymentPolicy
	MaxBalanceRetries int
	EmitEvents        bool
}

func NewReconciler(store repository.Store, logger *logrus.Logger) *Reconciler {
	return &Reconciler{
		Store:             store,
		Logger:            logger,
		LockTTL:           config.CallbackLockTTL(),
		Location:          config.ProviderLocation(),
		Overpayment:       models.ParseOverpaymentPolicy(config.OverpaymentPolicy()),
		MaxBalanceRetries: config.BalanceUpdateMaxRetries(),
		EmitEvents:        config.ReconciliationEventsTopic() != "",
	}
}

func (r *Reconciler) logger() *logrus.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return config.GetLogger()
}

// Reconcile processes txn as of now. The returned error is reserved for
// storage failures that prevented recording the payment at all.
func (r *Reconciler) Reconcile(ctx context.Context, txn mpesa.Transaction, now time.Time) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "mpesa.reconcile", trace.WithAttributes(
		attribute.String("mpesa.trans_id", txn.TransactionID),
		attribute.String("mpesa.account_reference", txn.AccountReference),
	))
	defer func() {
		span.SetAttributes(attribute.String("mpesa.outcome", string(res.Outcome)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if txn.TransactionID == "" {
		return Result{}, mpesa.ErrMissingTransactionID
	}

	release := r.lockTransaction(ctx, txn.TransactionID)
	defer release()

	if _, err := r.Store.MpesaTransactions().GetByTransactionID(ctx, txn.TransactionID); err == nil {
		return r.duplicate(ctx, txn), nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return Result{}, fmt.Errorf("duplicate check for %s: %w", txn.TransactionID, err)
	}

	if txn.Problem != "" {
		return r.recordForReview(ctx, txn, MatchResult{}, txn.Problem)
	}

	match, err := MatchPayment(ctx, r.Store, txn.AccountReference, now, r.Location)
	if err != nil {
		return Result{}, err
	}
	if !match.Matched() {
		return r.recordForReview(ctx, txn, match, match.Reason)
	}

	res, err = r.applyMatched(ctx, txn, match)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, errAlreadyProcessed) {
		return r.duplicate(ctx, txn), nil
	}
	if _, gerr := r.Store.MpesaTransactions().GetByTransactionID(ctx, txn.TransactionID); gerr == nil {
		return r.duplicate(ctx, txn), nil
	}

	config.LogError(r.logger(), "workflow", "Reconcile", "apply matched payment", txn.TransactionID, err)
	res, fallbackErr := r.recordForReview(ctx, txn, match, "ledger update failed: "+err.Error())
	if fallbackErr != nil {
		return Result{}, errors.Join(err, fallbackErr)
	}
	return res, nil
}

func (r *Reconciler) applyMatched(ctx context.Context, txn mpesa.Transaction, match MatchResult) (Result, error) {
	var res Result
	err := r.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		change, err := ApplyPayment(ctx, tx, match.BillingRecord, txn.Amount, r.MaxBalanceRetries)
		if err != nil {
			return err
		}

		ref := txn.TransactionID
		notes := fmt.Sprintf("mobile money payment from %s", txn.Phone)
		payment := &models.Payment{
			RentRecordId:    change.Record.ID,
			TenantId:        match.Tenant.ID,
			Amount:          txn.Amount,
			PaymentMethod:   models.PaymentMethodMobileMoney,
			PaymentDate:     paymentDate(txn.OccurredAt, r.Location),
			ReferenceNumber: &ref,
			Notes:           &notes,
		}
		if _, err := tx.Payments().Insert(ctx, payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		if change.Overpaid.IsPositive() {
			if err := r.handleOverpayment(ctx, tx, txn, match, change.Overpaid); err != nil {
				return err
			}
		}

		audit := r.auditRow(ctx, txn, match, models.InboundStatusCompleted, "")
		audit.Matched = true
		audit.OverpaidAmount = change.Overpaid

		if r.EmitEvents {
			paid, due := change.Record.AmountPaid, change.Record.AmountDue
			if err := enqueueEvent(ctx, tx, txn.TransactionID, PaymentEvent{
				EventType:      models.EventPaymentCompleted,
				TransactionID:  txn.TransactionID,
				Status:         models.InboundStatusCompleted,
				Matched:        true,
				Amount:         txn.Amount,
				AccountNumber:  txn.AccountReference,
				PhoneNumber:    txn.Phone,
				TenantID:       match.TenantID(),
				RentRecordID:   match.RentRecordID(),
				PaymentID:      payment.ID,
				PaymentMethod:  payment.PaymentMethod,
				BillingStatus:  change.Record.Status,
				AmountPaid:     &paid,
				AmountDue:      &due,
				OverpaidAmount: change.Overpaid,
				OccurredAt:     txn.OccurredAt,
			}); err != nil {
				return fmt.Errorf("enqueue event: %w", err)
			}
		}

		inserted, err := tx.MpesaTransactions().InsertIfAbsent(ctx, audit)
		if err != nil {
			return fmt.Errorf("insert mpesa transaction: %w", err)
		}
		if !inserted {
			return errAlreadyProcessed
		}

		res = Result{
			Outcome:       OutcomeApplied,
			TransactionID: txn.TransactionID,
			TenantID:      match.TenantID(),
			RentRecordID:  match.RentRecordID(),
			BillingStatus: change.Record.Status,
			Overpaid:      change.Overpaid,
			Attempts:      change.Attempts,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	r.logger().WithFields(logrus.Fields{
		"field":          "Reconciler",
		"transaction_id": txn.TransactionID,
		"rent_record_id": *res.RentRecordID,
		"billing_status": res.BillingStatus,
		"overpaid":       res.Overpaid.String(),
		"attempts":       res.Attempts,
		"correlation_id": correlationID(ctx),
	}).Info("mpesa payment applied")
	return res, nil
}

func (r *Reconciler) handleOverpayment(ctx context.Context, tx repository.Repositories, txn mpesa.Transaction, match MatchResult, excess decimal.Decimal) error {
	var disposition models.CreditDisposition
	switch r.Overpayment {
	case models.OverpaymentCreditForward:
		disposition = models.CreditDispositionForward
	case models.OverpaymentRefund:
		disposition = models.CreditDispositionRefund
	default:
		return nil
	}
	err := tx.TenantCredits().Insert(ctx, &models.TenantCredit{
		TenantId:            match.Tenant.ID,
		RentRecordId:        match.BillingRecord.ID,
		SourceTransactionId: txn.TransactionID,
		Amount:              excess,
		Disposition:         disposition,
		Status:              models.TenantCreditStatusOpen,
	})
	if err != nil {
		return fmt.Errorf("insert tenant credit: %w", err)
	}
	return nil
}

// recordForReview writes the audit row alone. No balances move.
func (r *Reconciler) recordForReview(ctx context.Context, txn mpesa.Transaction, match MatchResult, reason string) (Result, error) {
	audit := r.auditRow(ctx, txn, match, models.InboundStatusPendingReview, reason)

	err := r.Store.RunInTx(ctx, func(ctx context.Context, tx repository.Repositories) error {
		inserted, err := tx.MpesaTransactions().InsertIfAbsent(ctx, audit)
		if err != nil {
			return fmt.Errorf("insert mpesa transaction: %w", err)
		}
		if !inserted {
			return errAlreadyProcessed
		}
		if !r.EmitEvents {
			return nil
		}
		return enqueueEvent(ctx, tx, txn.TransactionID, PaymentEvent{
			EventType:     models.EventPaymentPendingReview,
			TransactionID: txn.TransactionID,
			Status:        models.InboundStatusPendingReview,
			Amount:        txn.Amount,
			AccountNumber: txn.AccountReference,
			PhoneNumber:   txn.Phone,
			TenantID:      match.TenantID(),
			RentRecordID:  match.RentRecordID(),
			ErrorMessage:  audit.ErrorMessage,
			OccurredAt:    txn.OccurredAt,
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return r.duplicate(ctx, txn), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("record %s for review: %w", txn.TransactionID, err)
	}

	r.logger().WithFields(logrus.Fields{
		"field":          "Reconciler",
		"transaction_id": txn.TransactionID,
		"account_number": txn.AccountReference,
		"reason":         reason,
		"correlation_id": correlationID(ctx),
	}).Warn("mpesa payment needs manual review")

	return Result{
		Outcome:       OutcomePendingReview,
		TransactionID: txn.TransactionID,
		TenantID:      match.TenantID(),
		RentRecordID:  match.RentRecordID(),
		Reason:        reason,
	}, nil
}

func (r *Reconciler) auditRow(ctx context.Context, txn mpesa.Transaction, match MatchResult, status models.InboundStatus, reason string) *models.MpesaTransaction {
	row := &models.MpesaTransaction{
		TransactionId:   txn.TransactionID,
		PhoneNumber:     txn.Phone,
		Amount:          txn.Amount,
		AccountNumber:   txn.AccountReference,
		TransactionDate: txn.OccurredAt.UTC(),
		TenantId:        match.TenantID(),
		RentRecordId:    match.RentRecordID(),
		Status:          status,
		RawPayload:      txn.RawPayload,
		CorrelationId:   correlationID(ctx),
	}
	if reason != "" {
		msg := reason
		row.ErrorMessage = &msg
	}
	return row
}

func (r *Reconciler) duplicate(ctx context.Context, txn mpesa.Transaction) Result {
	r.logger().WithFields(logrus.Fields{
		"field":          "Reconciler",
		"transaction_id": txn.TransactionID,
		"correlation_id": correlationID(ctx),
	}).Info("mpesa transaction already processed")
	return Result{Outcome: OutcomeDuplicate, TransactionID: txn.TransactionID}
}

func correlationID(ctx context.Context) string {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	return cid
}
