// Package commission computes commission amounts for deals: flat-rate,
// tiered-bracket, partner-specific and probability-weighted schemes, plus
// aggregation and splitting across recipients.
//
// All arithmetic is exact decimal. Each returned amount is rounded half away
// from zero to the cent exactly once, at the point of return. An Engine is
// immutable after New and safe for concurrent use.
package commission

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type tier struct {
	bracket   TierBracket
	ceiling   decimal.Decimal
	rate      decimal.Decimal
	unbounded bool
}

// Engine is a stateless calculator over a fixed rate schedule.
type Engine struct {
	cfg   Config
	tiers []tier
}

// New validates cfg and builds an engine over a private copy of it.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{cfg: cfg.Clone()}
	for _, b := range e.cfg.Tiers {
		t := tier{
			bracket:   b,
			rate:      decimal.NewFromFloat(b.Rate),
			unbounded: b.Unbounded(),
		}
		if !t.unbounded {
			t.ceiling = decimal.NewFromFloat(b.UpperBound)
		}
		e.tiers = append(e.tiers, t)
	}
	return e, nil
}

// Schedule returns a copy of the configuration the engine was built with.
func (e *Engine) Schedule() Config { return e.cfg.Clone() }

// DefaultRate returns the configured flat rate for scheme.
func (e *Engine) DefaultRate(scheme Scheme) (float64, error) {
	r, ok := e.cfg.SchemeRates[scheme]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
	}
	return r, nil
}

// PartnerRate returns the partner's override, or the referral rate when the
// partner has none.
func (e *Engine) PartnerRate(partnerID string) float64 {
	if r, ok := e.cfg.PartnerRates[partnerID]; ok {
		return r
	}
	return e.cfg.SchemeRates[SchemeReferral]
}

// FlatRate returns round(amount * rate). A nil rate means the scheme's
// configured default.
func (e *Engine) FlatRate(amount float64, scheme Scheme, rate *float64) (Money, error) {
	if err := ValidateAmount(amount); err != nil {
		return 0, err
	}
	var r float64
	if rate != nil {
		r = *rate
	} else {
		var err error
		if r, err = e.DefaultRate(scheme); err != nil {
			return 0, err
		}
	}
	if err := ValidateRate(r); err != nil {
		return 0, err
	}
	return flat(amount, r)
}

// Partner applies the partner's rate, falling back to the referral default.
func (e *Engine) Partner(amount float64, partnerID string) (Money, error) {
	if err := ValidateAmount(amount); err != nil {
		return 0, err
	}
	return flat(amount, e.PartnerRate(partnerID))
}

func flat(amount, rate float64) (Money, error) {
	return fromDecimal(decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate)))
}

// Tiered applies the progressive bracket schedule: each slice of amount is
// paid only at the rate of the bracket it falls in.
func (e *Engine) Tiered(amount float64) (Money, error) {
	res, err := e.TieredBreakdown(amount)
	if err != nil {
		return 0, err
	}
	return res.Total, nil
}

// TierSlice is the part of a deal that fell inside one bracket.
type TierSlice struct {
	Bracket    TierBracket `json:"bracket"`
	Taxable    Money       `json:"taxable"`
	Commission Money       `json:"commission"`
}

// TierResult is a tiered computation with its per-bracket slices. Total is
// rounded once from the unrounded sum of slices, so it can differ by a cent
// from the sum of the individually rounded slice commissions.
type TierResult struct {
	Slices []TierSlice `json:"slices"`
	Total  Money       `json:"total"`
}

// TieredBreakdown is Tiered with the per-bracket slices it was built from.
// Brackets the amount never reaches are omitted.
func (e *Engine) TieredBreakdown(amount float64) (TierResult, error) {
	if err := ValidateAmount(amount); err != nil {
		return TierResult{}, err
	}

	remaining := decimal.NewFromFloat(amount)
	prevCeiling := decimal.Zero
	total := decimal.Zero
	var slices []TierSlice

	for _, t := range e.tiers {
		if !remaining.IsPositive() {
			break
		}
		slice := remaining
		if !t.unbounded {
			slice = decimal.Min(remaining, t.ceiling.Sub(prevCeiling))
		}
		paid := slice.Mul(t.rate)
		total = total.Add(paid)
		remaining = remaining.Sub(slice)
		prevCeiling = t.ceiling

		taxable, err := fromDecimal(slice)
		if err != nil {
			return TierResult{}, err
		}
		paidCents, err := fromDecimal(paid)
		if err != nil {
			return TierResult{}, err
		}
		slices = append(slices, TierSlice{
			Bracket:    t.bracket,
			Taxable:    taxable,
			Commission: paidCents,
		})
	}

	rounded, err := fromDecimal(total)
	if err != nil {
		return TierResult{}, err
	}
	return TierResult{Slices: slices, Total: rounded}, nil
}

// Weighted scales amount by a closing probability given in percent.
func (e *Engine) Weighted(amount, probability float64) (Money, error) {
	if err := ValidateAmount(amount); err != nil {
		return 0, err
	}
	if err := ValidateProbability(probability); err != nil {
		return 0, err
	}
	v := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(probability)).Shift(-2)
	return fromDecimal(v)
}

// Aggregate sums amounts at full precision and rounds the total once.
func (e *Engine) Aggregate(amounts []float64) (Money, error) {
	total := decimal.Zero
	for i, a := range amounts {
		if err := ValidateAmount(a); err != nil {
			return 0, fmt.Errorf("amounts[%d]: %w", i, err)
		}
		total = total.Add(decimal.NewFromFloat(a))
	}
	return fromDecimal(total)
}
