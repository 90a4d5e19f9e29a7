package enums

import "fmt"

// LedgerEntryStatus categorizes a billing ledger entry.
type LedgerEntryStatus string

const (
	LedgerEntryStatusPaid           LedgerEntryStatus = "paid"
	LedgerEntryStatusRefunded       LedgerEntryStatus = "refunded"
	LedgerEntryStatusDisputeCreated LedgerEntryStatus = "dispute_created"
	LedgerEntryStatusPaymentFailed  LedgerEntryStatus = "payment_failed"
)

var validLedgerEntryStatuses = []LedgerEntryStatus{
	LedgerEntryStatusPaid,
	LedgerEntryStatusRefunded,
	LedgerEntryStatusDisputeCreated,
	LedgerEntryStatusPaymentFailed,
}

// String implements fmt.Stringer.
func (s LedgerEntryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s LedgerEntryStatus) IsValid() bool {
	for _, candidate := range validLedgerEntryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLedgerEntryStatus converts raw input into a LedgerEntryStatus.
func ParseLedgerEntryStatus(value string) (LedgerEntryStatus, error) {
	for _, candidate := range validLedgerEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry status %q", value)
}
