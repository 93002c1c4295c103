package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"

	"github.com/username/commissions/src/commission"
	"gopkg.in/yaml.v3"
)

// LoadRateSchedule reads the rate schedule YAML at path. A missing file yields
// commission.DefaultConfig(). Sections left out of the file keep their
// defaults; the top tier is written as `upper_bound: .inf`.
//
//	schemes:
//	  referral: 0.15
//	  reseller: 0.30
//	tiers:
//	  - {upper_bound: 100000, rate: 0.10}
//	  - {upper_bound: .inf, rate: 0.20}
//	partners:
//	  acme: 0.22
func LoadRateSchedule(path string) (commission.Config, error) {
	cfg := commission.DefaultConfig()

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Printf("Rate schedule %s not found, using built-in defaults", path)
		return cfg, nil
	}
	if err != nil {
		return commission.Config{}, fmt.Errorf("read rate schedule: %w", err)
	}

	return ParseRateSchedule(raw)
}

// ParseRateSchedule decodes a rate schedule document over the defaults and
// validates the result.
func ParseRateSchedule(raw []byte) (commission.Config, error) {
	cfg := commission.DefaultConfig()

	var f commission.Config
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return commission.Config{}, fmt.Errorf("parse rate schedule: %w", err)
	}
	for scheme, r := range f.SchemeRates {
		cfg.SchemeRates[scheme] = r
	}
	if len(f.Tiers) > 0 {
		cfg.Tiers = f.Tiers
	}
	for id, r := range f.PartnerRates {
		cfg.PartnerRates[id] = r
	}

	if err := cfg.Validate(); err != nil {
		return commission.Config{}, err
	}
	return cfg, nil
}
