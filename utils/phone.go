package utils

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// NormalizeMSISDN returns the E.164 form of a payer MSISDN when it parses as a
// valid number. Masked or hashed values (the provider does both) come back
// trimmed and otherwise untouched.
func NormalizeMSISDN(raw, defaultRegion string) string {
	s := strings.TrimSpace(raw)
	digits := strings.TrimPrefix(s, "+")
	if digits == "" || !isAllDigits(digits) {
		return s
	}

	var (
		p   *libphonenumber.PhoneNumber
		err error
	)
	if strings.HasPrefix(digits, "0") && defaultRegion != "" {
		p, err = libphonenumber.Parse(digits, defaultRegion)
	} else {
		p, err = libphonenumber.Parse("+"+digits, "")
	}
	if err != nil || !libphonenumber.IsValidNumber(p) {
		return s
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
