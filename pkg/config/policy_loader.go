package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/pakt"
)

// PolicyFile is the YAML form of the ledger policy. Absent fields keep their
// defaults.
type PolicyFile struct {
	Duration            string  `yaml:"duration,omitempty"`
	MaxStakeByLevel     []int64 `yaml:"max_stake_by_level,omitempty"`
	InterestRateByLevel []int64 `yaml:"interest_rate_by_level,omitempty"`
	BurnInterestRatio   *int64  `yaml:"burn_interest_ratio,omitempty"`
	// UnlockFee is a decimal in native units, e.g. "0.1".
	UnlockFee     string `yaml:"unlock_fee,omitempty"`
	GoalTypeCount *uint8 `yaml:"goal_type_count,omitempty"`
}

// LoadPolicy reads path and applies it over the default policy.
func LoadPolicy(path string) (pakt.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pakt.Policy{}, fmt.Errorf("load policy %q: %w", path, err)
	}
	var f PolicyFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return pakt.Policy{}, fmt.Errorf("parse policy %q: %w", path, err)
	}
	p, err := f.Apply(pakt.DefaultPolicy())
	if err != nil {
		return pakt.Policy{}, fmt.Errorf("policy %q: %w", path, err)
	}
	return p, nil
}

// Apply overlays the file onto base and validates the result.
func (f PolicyFile) Apply(base pakt.Policy) (pakt.Policy, error) {
	p := base
	if f.Duration != "" {
		d, err := time.ParseDuration(f.Duration)
		if err != nil {
			return pakt.Policy{}, fmt.Errorf("duration: %w", err)
		}
		p.Duration = d
	}
	if f.MaxStakeByLevel != nil {
		t, err := levelTable("max_stake_by_level", f.MaxStakeByLevel)
		if err != nil {
			return pakt.Policy{}, err
		}
		p.MaxStakeByLevel = t
	}
	if f.InterestRateByLevel != nil {
		t, err := levelTable("interest_rate_by_level", f.InterestRateByLevel)
		if err != nil {
			return pakt.Policy{}, err
		}
		p.InterestRateByLevel = t
	}
	if f.BurnInterestRatio != nil {
		p.BurnInterestRatio = *f.BurnInterestRatio
	}
	if f.UnlockFee != "" {
		fee, err := finance.ParseTokens(f.UnlockFee, 18)
		if err != nil {
			return pakt.Policy{}, fmt.Errorf("unlock_fee: %w", err)
		}
		p.UnlockFee = fee
	}
	if f.GoalTypeCount != nil {
		p.GoalTypeCount = *f.GoalTypeCount
	}
	if err := p.Validate(); err != nil {
		return pakt.Policy{}, err
	}
	return p, nil
}

func levelTable(field string, values []int64) (pakt.LevelTable, error) {
	var t pakt.LevelTable
	if len(values) != len(t) {
		return t, fmt.Errorf("%s: want %d entries, got %d", field, len(t), len(values))
	}
	copy(t[:], values)
	return t, nil
}
