package config

import (
	"os"
	"strings"
	"time"
	_ "time/tzdata"
)

const defaultProviderTimezone = "Africa/Nairobi"

// ProviderLocation is the civil timezone the mobile-money provider stamps
// TransTime in. It also decides which billing month "now" falls in.
//
// Set via env:
// - MPESA_TIMEZONE=Africa/Nairobi
func ProviderLocation() *time.Location {
	name := strings.TrimSpace(os.Getenv("MPESA_TIMEZONE"))
	if name == "" {
		name = defaultProviderTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		GetLogger().WithField("timezone", name).Warn("unknown MPESA_TIMEZONE; falling back to " + defaultProviderTimezone)
		loc, _ = time.LoadLocation(defaultProviderTimezone)
	}
	return loc
}

// PhoneDefaultRegion is used for payer numbers sent in national format.
func PhoneDefaultRegion() string {
	if v := strings.TrimSpace(os.Getenv("MPESA_PHONE_REGION")); v != "" {
		return strings.ToUpper(v)
	}
	return "KE"
}

// OverpaymentPolicy returns accept, credit_forward or refund.
//
// Set via env:
// - OVERPAYMENT_POLICY=accept
func OverpaymentPolicy() string {
	return strings.ToLower(strings.TrimSpace(os.Getenv("OVERPAYMENT_POLICY")))
}

// BalanceUpdateMaxRetries bounds the re-read-and-retry loop on a version conflict.
func BalanceUpdateMaxRetries() int {
	return intFromEnv("BALANCE_UPDATE_MAX_RETRIES", 5)
}

// CallbackLockTTL is how long a per-transaction Redis lock is held at most.
func CallbackLockTTL() time.Duration {
	return time.Duration(intFromEnv("MPESA_CALLBACK_LOCK_TTL_SECONDS", 30)) * time.Second
}

// UseMemoryStore runs the service against the in-process store (local demos only).
func UseMemoryStore() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("USE_MEMORY_STORE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
