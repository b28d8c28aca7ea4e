package billing

import "errors"

var (
	// ErrInvalidSetting is returned when a tariff setting is present but cannot
	// be used (non-numeric, negative, or out of order).
	ErrInvalidSetting = errors.New("invalid tariff setting")

	// ErrInvalidBillingDay is returned when a billing start or end day is not
	// an integer in 1..31.
	ErrInvalidBillingDay = errors.New("invalid billing day")
)

// IsConfigError reports whether err was caused by a malformed configuration.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidSetting) || errors.Is(err, ErrInvalidBillingDay)
}
