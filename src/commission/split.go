package commission

import (
	"fmt"
	"math"
	"slices"

	"github.com/shopspring/decimal"
)

// WeightTolerance is how far the split weights may sum away from 1.0.
const WeightTolerance = 1e-4

// SplitEven divides total into n parts. Every part gets the cent-floored
// share total/n and the last part additionally takes whatever remains, so
// the parts always add back up to round(total). Only the last part can differ
// from the others.
func (e *Engine) SplitEven(total float64, n int) ([]Money, error) {
	if err := ValidateAmount(total); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPartnerCount, n)
	}

	t := decimal.NewFromFloat(total)
	quot, _ := t.Shift(2).QuoRem(decimal.NewFromInt(int64(n)), 0)
	base := Money(quot.IntPart())
	remainder, err := fromDecimal(t.Sub(base.Decimal().Mul(decimal.NewFromInt(int64(n)))))
	if err != nil {
		return nil, err
	}

	parts := make([]Money, n)
	for i := range parts {
		parts[i] = base
	}
	parts[n-1] += remainder
	return parts, nil
}

// SplitCustom returns round(total * w) for each weight. Each share is rounded
// on its own, so the shares can add up to a cent more or less than
// round(total); use SplitCustomExact when the sum must reconcile.
func (e *Engine) SplitCustom(total float64, weights []float64) ([]Money, error) {
	if err := ValidateAmount(total); err != nil {
		return nil, err
	}
	if err := validateWeights(weights); err != nil {
		return nil, err
	}

	t := decimal.NewFromFloat(total)
	shares := make([]Money, len(weights))
	for i, w := range weights {
		share, err := fromDecimal(t.Mul(decimal.NewFromFloat(w)))
		if err != nil {
			return nil, err
		}
		shares[i] = share
	}
	return shares, nil
}

// SplitCustomExact splits round(total) in proportion to weights using the
// largest-remainder method: each share gets the floor of its exact cent
// value, then the leftover cents go one at a time to the shares with the
// largest fractional remainders, earlier shares winning ties. The shares
// always add up to round(total).
func (e *Engine) SplitCustomExact(total float64, weights []float64) ([]Money, error) {
	if err := ValidateAmount(total); err != nil {
		return nil, err
	}
	if err := validateWeights(weights); err != nil {
		return nil, err
	}

	rounded, err := fromDecimal(decimal.NewFromFloat(total))
	if err != nil {
		return nil, err
	}
	target := decimal.NewFromInt(rounded.Cents())
	weightSum := decimal.Zero
	ws := make([]decimal.Decimal, len(weights))
	for i, w := range weights {
		ws[i] = decimal.NewFromFloat(w)
		weightSum = weightSum.Add(ws[i])
	}

	shares := make([]Money, len(weights))
	remainders := make([]decimal.Decimal, len(weights))
	var assigned Money
	for i, w := range ws {
		q, r := target.Mul(w).QuoRem(weightSum, 0)
		shares[i] = Money(q.IntPart())
		remainders[i] = r
		assigned += shares[i]
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return remainders[b].Cmp(remainders[a])
	})

	leftover := Money(target.IntPart()) - assigned
	for i := 0; leftover > 0; i++ {
		shares[order[i%len(order)]]++
		leftover--
	}
	return shares, nil
}

func validateWeights(weights []float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: no weights", ErrInvalidWeights)
	}
	sum := 0.0
	for i, w := range weights {
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
			return fmt.Errorf("%w: weights[%d] = %v", ErrInvalidWeights, i, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > WeightTolerance {
		return fmt.Errorf("%w: weights sum to %v, want 1", ErrInvalidWeights, sum)
	}
	return nil
}
