package workflow

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mmdatafocus/rentals_backend/models"
	"github.com/mmdatafocus/rentals_backend/repository"
	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/shopspring/decimal"
)

// PaymentEvent is the body of every reconciliation event on the outbox.
type PaymentEvent struct {
	EventType      string               `json:"event_type"`
	TransactionID  string               `json:"transaction_id,omitempty"`
	Status         models.InboundStatus `json:"status,omitempty"`
	Matched        bool                 `json:"matched"`
	Amount         decimal.Decimal      `json:"amount"`
	AccountNumber  string               `json:"account_number,omitempty"`
	PhoneNumber    string               `json:"phone_number,omitempty"`
	TenantID       *string              `json:"tenant_id,omitempty"`
	RentRecordID   *string              `json:"rent_record_id,omitempty"`
	PaymentID      string               `json:"payment_id,omitempty"`
	PaymentMethod  models.PaymentMethod `json:"payment_method,omitempty"`
	BillingStatus  models.BillingStatus `json:"billing_status,omitempty"`
	AmountPaid     *decimal.Decimal     `json:"amount_paid,omitempty"`
	AmountDue      *decimal.Decimal     `json:"amount_due,omitempty"`
	OverpaidAmount decimal.Decimal      `json:"overpaid_amount"`
	ErrorMessage   *string              `json:"error_message,omitempty"`
	OccurredAt     time.Time            `json:"occurred_at"`
	CorrelationID  string               `json:"correlation_id,omitempty"`
}

func enqueueEvent(ctx context.Context, tx repository.Repositories, aggregateID string, ev PaymentEvent) error {
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	ev.CorrelationID = cid
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return tx.Outbox().Enqueue(ctx, &models.OutboxRecord{
		EventType:     ev.EventType,
		AggregateId:   aggregateID,
		Payload:       payload,
		PublishStatus: models.OutboxPublishStatusPending,
		CorrelationId: cid,
	})
}
