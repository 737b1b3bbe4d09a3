package mpesa

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmdatafocus/rentals_backend/utils"
	"github.com/shopspring/decimal"
)

// TransTimeLayout is the provider's YYYYMMDDHHmmss stamp, in its local time.
const TransTimeLayout = "20060102150405"

// Column widths of the audit row.
const (
	MaxAccountReferenceLength = 100
	MaxPhoneLength            = 100
)

// maxAmount is the first value that no longer fits decimal(20,4).
var maxAmount = decimal.New(1, 16)

// Transaction is a callback reduced to what reconciliation needs. A non-empty
// Problem means the payment cannot be applied automatically and goes to review.
type Transaction struct {
	TransactionID    string
	Amount           decimal.Decimal
	AccountReference string
	Phone            string
	OccurredAt       time.Time
	RawPayload       []byte
	Problem          string
}

type NormalizeOptions struct {
	Location    *time.Location
	PhoneRegion string
	// ReceivedAt stands in for OccurredAt when TransTime is unusable.
	ReceivedAt time.Time
}

func ParseTransTime(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(TransTimeLayout, strings.TrimSpace(s), loc)
}

func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("missing amount")
	}
	return decimal.NewFromString(s)
}

func NormalizeAccountReference(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func clamp(s string, n int) (string, bool) {
	if utf8.RuneCountInString(s) <= n {
		return s, false
	}
	return string([]rune(s)[:n]), true
}

// Normalize never fails: problems with the business fields are reported in
// Transaction.Problem so the payment is still recorded.
func Normalize(cb C2BCallback, raw []byte, opts NormalizeOptions) Transaction {
	if len(raw) == 0 {
		raw, _ = json.Marshal(cb)
	}
	account, accountClamped := clamp(NormalizeAccountReference(cb.BillRefNumber.String()), MaxAccountReferenceLength)
	phone, _ := clamp(utils.NormalizeMSISDN(cb.MSISDN.String(), opts.PhoneRegion), MaxPhoneLength)
	txn := Transaction{
		TransactionID:    strings.TrimSpace(cb.TransID.String()),
		AccountReference: account,
		Phone:            phone,
		RawPayload:       raw,
	}

	var problems []string
	if accountClamped {
		problems = append(problems, fmt.Sprintf("account reference longer than %d characters", MaxAccountReferenceLength))
	}

	amount, err := ParseAmount(cb.TransAmount.String())
	switch {
	case err != nil:
		amountText, _ := clamp(cb.TransAmount.String(), 32)
		problems = append(problems, fmt.Sprintf("invalid amount: %q", amountText))
	case !amount.IsPositive():
		if amount.Abs().LessThan(maxAmount) {
			txn.Amount = amount
		}
		problems = append(problems, fmt.Sprintf("non-positive amount: %s", amount.String()))
	case amount.GreaterThanOrEqual(maxAmount):
		problems = append(problems, fmt.Sprintf("amount out of range: %s", amount.String()))
	default:
		txn.Amount = amount
	}

	occurredAt, err := ParseTransTime(cb.TransTime.String(), opts.Location)
	if err != nil {
		transTime, _ := clamp(cb.TransTime.String(), 32)
		problems = append(problems, fmt.Sprintf("invalid transaction time: %q", transTime))
		occurredAt = opts.ReceivedAt
		if occurredAt.IsZero() {
			occurredAt = time.Now()
		}
	}
	txn.OccurredAt = occurredAt

	if txn.AccountReference == "" {
		problems = append(problems, "missing account reference")
	}

	txn.Problem = strings.Join(problems, "; ")
	return txn
}

// Malformed builds the review-only transaction for a callback whose body was
// JSON with a readable TransID but could not be decoded in full.
func Malformed(transID string, raw []byte, receivedAt time.Time, cause error) Transaction {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	problem := "malformed payload"
	if cause != nil {
		detail, _ := clamp(strings.TrimPrefix(cause.Error(), ErrMalformedPayload.Error()+": "), 200)
		problem += ": " + detail
	}
	return Transaction{
		TransactionID: strings.TrimSpace(transID),
		OccurredAt:    receivedAt,
		RawPayload:    raw,
		Problem:       problem,
	}
}
