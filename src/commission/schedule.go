package commission

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Scheme names a flat-rate commission plan.
type Scheme string

const (
	SchemeReferral Scheme = "referral"
	SchemeReseller Scheme = "reseller"
	SchemeMSP      Scheme = "msp"
)

// TierBracket is one band of a progressive schedule. The portion of a deal
// between the previous bracket's UpperBound and this one is paid at Rate.
// The top bracket has UpperBound +Inf.
type TierBracket struct {
	UpperBound float64 `yaml:"upper_bound"`
	Rate       float64 `yaml:"rate"`
}

// Unbounded reports whether the bracket extends to infinity.
func (b TierBracket) Unbounded() bool { return math.IsInf(b.UpperBound, 1) }

type tierBracketJSON struct {
	UpperBound *float64 `json:"upper_bound"`
	Rate       float64  `json:"rate"`
}

// MarshalJSON encodes an unbounded bracket with "upper_bound": null, since
// JSON has no infinity.
func (b TierBracket) MarshalJSON() ([]byte, error) {
	out := tierBracketJSON{Rate: b.Rate}
	if !b.Unbounded() {
		ub := b.UpperBound
		out.UpperBound = &ub
	}
	return json.Marshal(out)
}

func (b *TierBracket) UnmarshalJSON(data []byte) error {
	var in tierBracketJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	b.Rate = in.Rate
	b.UpperBound = math.Inf(1)
	if in.UpperBound != nil {
		b.UpperBound = *in.UpperBound
	}
	return nil
}

// Config is the rate schedule an Engine is built from.
type Config struct {
	SchemeRates  map[Scheme]float64 `yaml:"schemes" json:"schemes"`
	Tiers        []TierBracket      `yaml:"tiers" json:"tiers"`
	PartnerRates map[string]float64 `yaml:"partners" json:"partners"`
}

// DefaultConfig returns the standard schedule: referral 15%, reseller 30%,
// MSP 25%, and tiers of 10% up to 100k, 15% up to 500k, 20% above.
func DefaultConfig() Config {
	return Config{
		SchemeRates: map[Scheme]float64{
			SchemeReferral: 0.15,
			SchemeReseller: 0.30,
			SchemeMSP:      0.25,
		},
		Tiers: []TierBracket{
			{UpperBound: 100000, Rate: 0.10},
			{UpperBound: 500000, Rate: 0.15},
			{UpperBound: math.Inf(1), Rate: 0.20},
		},
		PartnerRates: map[string]float64{},
	}
}

// Validate checks the schedule. The referral rate is mandatory because it is
// the fallback for partners without an override.
func (c Config) Validate() error {
	if _, ok := c.SchemeRates[SchemeReferral]; !ok {
		return fmt.Errorf("%w: missing %q scheme rate", ErrInvalidSchedule, SchemeReferral)
	}
	for scheme, r := range c.SchemeRates {
		if strings.TrimSpace(string(scheme)) == "" {
			return fmt.Errorf("%w: empty scheme name", ErrInvalidSchedule)
		}
		if err := ValidateRate(r); err != nil {
			return fmt.Errorf("%w: scheme %q: %v", ErrInvalidSchedule, scheme, err)
		}
	}

	if len(c.Tiers) == 0 {
		return fmt.Errorf("%w: no tier brackets", ErrInvalidSchedule)
	}
	prev := 0.0
	for i, b := range c.Tiers {
		if err := ValidateRate(b.Rate); err != nil {
			return fmt.Errorf("%w: tier %d: %v", ErrInvalidSchedule, i, err)
		}
		last := i == len(c.Tiers)-1
		switch {
		case last && !b.Unbounded():
			return fmt.Errorf("%w: top tier must be unbounded, got %v", ErrInvalidSchedule, b.UpperBound)
		case !last && b.Unbounded():
			return fmt.Errorf("%w: tier %d is unbounded but is not the last", ErrInvalidSchedule, i)
		case !last && (math.IsNaN(b.UpperBound) || b.UpperBound <= prev):
			return fmt.Errorf("%w: tier %d upper bound %v must exceed %v", ErrInvalidSchedule, i, b.UpperBound, prev)
		}
		prev = b.UpperBound
	}

	for id, r := range c.PartnerRates {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: empty partner id", ErrInvalidSchedule)
		}
		if err := ValidateRate(r); err != nil {
			return fmt.Errorf("%w: partner %q: %v", ErrInvalidSchedule, id, err)
		}
	}
	return nil
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := Config{
		SchemeRates:  make(map[Scheme]float64, len(c.SchemeRates)),
		Tiers:        make([]TierBracket, len(c.Tiers)),
		PartnerRates: make(map[string]float64, len(c.PartnerRates)),
	}
	for k, v := range c.SchemeRates {
		out.SchemeRates[k] = v
	}
	copy(out.Tiers, c.Tiers)
	for k, v := range c.PartnerRates {
		out.PartnerRates[k] = v
	}
	return out
}

// WithPartnerRates returns a copy whose partner table is c's overlaid by
// overrides.
func (c Config) WithPartnerRates(overrides map[string]float64) Config {
	out := c.Clone()
	for id, r := range overrides {
		out.PartnerRates[id] = r
	}
	return out
}
