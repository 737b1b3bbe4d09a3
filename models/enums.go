package models

import "github.com/google/uuid"

type UnitStatus string

const (
	UnitStatusVacant      UnitStatus = "vacant"
	UnitStatusOccupied    UnitStatus = "occupied"
	UnitStatusMaintenance UnitStatus = "maintenance"
)

type BillingStatus string

const (
	BillingStatusPending BillingStatus = "pending"
	BillingStatusPartial BillingStatus = "partial"
	BillingStatusPaid    BillingStatus = "paid"
	BillingStatusOverdue BillingStatus = "overdue"
)

type PaymentMethod string

const (
	PaymentMethodCash         PaymentMethod = "cash"
	PaymentMethodMobileMoney  PaymentMethod = "mobile_money"
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodMobileMoney, PaymentMethodBankTransfer:
		return true
	}
	return false
}

type InboundStatus string

const (
	InboundStatusCompleted     InboundStatus = "completed"
	InboundStatusPendingReview InboundStatus = "pending_review"
)

type OverpaymentPolicy string

const (
	OverpaymentAccept        OverpaymentPolicy = "accept"
	OverpaymentCreditForward OverpaymentPolicy = "credit_forward"
	OverpaymentRefund        OverpaymentPolicy = "refund"
)

// ParseOverpaymentPolicy maps a config value to a policy; unknown values accept.
func ParseOverpaymentPolicy(s string) OverpaymentPolicy {
	switch OverpaymentPolicy(s) {
	case OverpaymentCreditForward, OverpaymentRefund:
		return OverpaymentPolicy(s)
	}
	return OverpaymentAccept
}

type CreditDisposition string

const (
	CreditDispositionForward CreditDisposition = "credit_forward"
	CreditDispositionRefund  CreditDisposition = "refund_due"
)

func NewID() string {
	return uuid.NewString()
}
