package commission

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Money is a non-negative amount in the working currency, held as whole cents.
type Money int64

// MaxAmount is the largest amount accepted as input. Up to it a float64
// still resolves individual cents, and its value in cents fits in Money with
// ample headroom for aggregation.
const MaxAmount = 1e13

var (
	maxCents = decimal.NewFromInt(math.MaxInt64)
	minCents = decimal.NewFromInt(math.MinInt64)
)

// NewMoney rounds x half away from zero to the nearest cent.
func NewMoney(x float64) (Money, error) {
	if err := ValidateAmount(x); err != nil {
		return 0, err
	}
	return fromDecimal(decimal.NewFromFloat(x))
}

// fromDecimal is the single rounding point for every amount the engine returns.
// decimal.Round rounds half away from zero. Values whose cents do not fit in
// int64 are rejected rather than wrapped.
func fromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(2).Shift(2)
	if cents.GreaterThan(maxCents) || cents.LessThan(minCents) {
		return 0, fmt.Errorf("%w: %s is out of range", ErrInvalidAmount, d.String())
	}
	return Money(cents.IntPart()), nil
}

func (m Money) Cents() int64 { return int64(m) }

func (m Money) Decimal() decimal.Decimal { return decimal.New(int64(m), -2) }

// Float64 returns the closest float64 to the amount, e.g. 33333.34.
func (m Money) Float64() float64 {
	f, _ := m.Decimal().Float64()
	return f
}

func (m Money) String() string { return m.Decimal().StringFixed(2) }

// MarshalJSON writes the amount as a bare JSON number with two decimals.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalJSON accepts a JSON number or a quoted decimal string.
func (m *Money) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = unquoted
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if d.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, d)
	}
	v, err := fromDecimal(d)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Sum adds amounts exactly. Cents are already rounded so no rounding applies.
// Use it for amounts known to fit, such as the shares of one split; Total
// checks for overflow.
func Sum(amounts []Money) Money {
	var total Money
	for _, a := range amounts {
		total += a
	}
	return total
}

// Total adds non-negative amounts, failing instead of overflowing.
func Total(amounts []Money) (Money, error) {
	var total Money
	for i, a := range amounts {
		if a < 0 {
			return 0, fmt.Errorf("%w: amounts[%d] is negative", ErrInvalidAmount, i)
		}
		if a > math.MaxInt64-total {
			return 0, fmt.Errorf("%w: total exceeds the representable range", ErrInvalidAmount)
		}
		total += a
	}
	return total, nil
}

// ValidateAmount rejects NaN, infinities, negative values and anything above
// MaxAmount. Zero is valid.
func ValidateAmount(x float64) error {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return fmt.Errorf("%w: %v is not a finite number", ErrInvalidAmount, x)
	}
	if x < 0 {
		return fmt.Errorf("%w: %v is negative", ErrInvalidAmount, x)
	}
	if x > MaxAmount {
		return fmt.Errorf("%w: %v exceeds %v", ErrInvalidAmount, x, float64(MaxAmount))
	}
	return nil
}

// ValidateRate rejects rates outside [0, 1].
func ValidateRate(r float64) error {
	if math.IsNaN(r) || r < 0 || r > 1 {
		return fmt.Errorf("%w: %v is outside [0, 1]", ErrInvalidRate, r)
	}
	return nil
}

// ValidateProbability rejects probabilities outside [0, 100].
func ValidateProbability(p float64) error {
	if math.IsNaN(p) || p < 0 || p > 100 {
		return fmt.Errorf("%w: %v is outside [0, 100]", ErrInvalidProbability, p)
	}
	return nil
}
