package mpesa

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// MaxTransactionIDLength matches the audit table's transaction_id column.
const MaxTransactionIDLength = 64

var (
	ErrMalformedPayload     = errors.New("malformed callback payload")
	ErrMissingTransactionID = errors.New("callback has no TransID")
	ErrInvalidTransactionID = errors.New("callback TransID is too long")
)

var validate = validator.New()

// FlexString accepts a JSON string or a JSON number. The provider has sent
// amounts, MSISDNs and timestamps both ways.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// C2BCallback is the customer-to-business confirmation body. Only TransID,
// TransTime, TransAmount, BillRefNumber and MSISDN drive reconciliation; the
// rest is kept for the audit snapshot.
type C2BCallback struct {
	TransactionType   FlexString `json:"TransactionType,omitempty"`
	TransID           FlexString `json:"TransID" validate:"required,max=64"`
	TransTime         FlexString `json:"TransTime"`
	TransAmount       FlexString `json:"TransAmount"`
	BusinessShortCode FlexString `json:"BusinessShortCode,omitempty"`
	BillRefNumber     FlexString `json:"BillRefNumber"`
	InvoiceNumber     FlexString `json:"InvoiceNumber,omitempty"`
	OrgAccountBalance FlexString `json:"OrgAccountBalance,omitempty"`
	ThirdPartyTransID FlexString `json:"ThirdPartyTransID,omitempty"`
	MSISDN            FlexString `json:"MSISDN"`
	FirstName         FlexString `json:"FirstName,omitempty"`
	MiddleName        FlexString `json:"MiddleName,omitempty"`
	LastName          FlexString `json:"LastName,omitempty"`
}

// Ack is the body the provider expects back.
type Ack struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

var Accepted = Ack{ResultCode: 0, ResultDesc: "Accepted"}

// Decode parses a callback body. It fails only when the body is not JSON or
// carries no usable transaction id; bad business fields are left for
// Normalize. When the body is JSON but some field has an unexpected shape, the
// error wraps ErrMalformedPayload and the returned callback still carries the
// TransID if one could be read, so the payment can be parked for review.
func Decode(body []byte) (C2BCallback, error) {
	var cb C2BCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		cb = C2BCallback{}
		var idOnly struct {
			TransID FlexString `json:"TransID"`
		}
		if json.Unmarshal(body, &idOnly) == nil {
			if id := strings.TrimSpace(idOnly.TransID.String()); id != "" && utf8.RuneCountInString(id) <= MaxTransactionIDLength {
				cb = C2BCallback{TransID: FlexString(id)}
			}
		}
		return cb, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	cb.TransID = FlexString(strings.TrimSpace(cb.TransID.String()))
	if err := validate.Struct(cb); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			if verrs[0].Tag() == "max" {
				return cb, ErrInvalidTransactionID
			}
			return cb, ErrMissingTransactionID
		}
		return cb, err
	}
	return cb, nil
}
