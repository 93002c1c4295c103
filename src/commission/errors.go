package commission

import "errors"

// Validation failures. Every one of them means the caller passed bad input;
// none is transient, so none should be retried.
var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidRate         = errors.New("invalid rate")
	ErrInvalidProbability  = errors.New("invalid probability")
	ErrInvalidPartnerCount = errors.New("invalid partner count")
	ErrInvalidWeights      = errors.New("invalid split weights")
	ErrUnknownScheme       = errors.New("unknown commission scheme")
)

// ErrInvalidSchedule is returned by New when the rate schedule itself is
// malformed. It is a configuration error, not a request error.
var ErrInvalidSchedule = errors.New("invalid rate schedule")

var validationErrors = []error{
	ErrInvalidAmount,
	ErrInvalidRate,
	ErrInvalidProbability,
	ErrInvalidPartnerCount,
	ErrInvalidWeights,
	ErrUnknownScheme,
}

// IsValidationError reports whether err was caused by invalid caller input.
func IsValidationError(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
