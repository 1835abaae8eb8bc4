package enums

import "fmt"

// CancelReason distinguishes who is unwinding the order and therefore whether the
// authorization is canceled or the captured funds are refunded.
type CancelReason string

const (
	CancelReasonChefRejected  CancelReason = "chef_rejected"
	CancelReasonExpired       CancelReason = "expired"
	CancelReasonUserCancelled CancelReason = "user_cancelled"
)

var validCancelReasons = []CancelReason{
	CancelReasonChefRejected,
	CancelReasonExpired,
	CancelReasonUserCancelled,
}

// String implements fmt.Stringer.
func (c CancelReason) String() string {
	return string(c)
}

// IsValid reports whether the value is a known CancelReason.
func (c CancelReason) IsValid() bool {
	for _, candidate := range validCancelReasons {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCancelReason converts raw input into a CancelReason.
func ParseCancelReason(value string) (CancelReason, error) {
	for _, candidate := range validCancelReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid cancel reason %q", value)
}
