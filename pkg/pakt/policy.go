package pakt

import (
	"errors"
	"math/big"
	"time"

	"github.com/alexbensimon/pakt/pkg/finance"
)

// LevelCount is the length of per-level tables. Index 0 is unused.
const LevelCount = int(MaxLevel) + 1

// RateDenominator scales interest rates: a rate of 10 means 10/1000.
const RateDenominator = 1000

const (
	DefaultDuration          = 7 * 24 * time.Hour
	DefaultBurnInterestRatio = 2
)

// LevelTable holds one value per level.
type LevelTable [LevelCount]int64

var (
	defaultMaxStake = LevelTable{0, 100, 200, 300, 400, 500}
	defaultRates    = LevelTable{0, 8, 9, 10, 11, 12}
)

// ErrNegativeParameter is returned by setters given a negative value.
var ErrNegativeParameter = errors.New("pakt: policy parameters must not be negative")

// Policy holds the global, admin-mutable parameters. Settlement reads the
// current policy, so changes apply to outstanding pakts at their next
// settlement.
type Policy struct {
	Duration time.Duration `json:"duration"`
	// MaxStakeByLevel is in whole tokens.
	MaxStakeByLevel     LevelTable `json:"max_stake_by_level"`
	InterestRateByLevel LevelTable `json:"interest_rate_by_level"`
	BurnInterestRatio   int64      `json:"burn_interest_ratio"`
	// UnlockFee is in native base units.
	UnlockFee     *big.Int `json:"unlock_fee"`
	GoalTypeCount uint8    `json:"goal_type_count"`
}

// DefaultUnlockFee is 0.1 native units.
func DefaultUnlockFee() *big.Int {
	return new(big.Int).Div(finance.Unit(18), big.NewInt(10))
}

func DefaultPolicy() Policy {
	return Policy{
		Duration:            DefaultDuration,
		MaxStakeByLevel:     defaultMaxStake,
		InterestRateByLevel: defaultRates,
		BurnInterestRatio:   DefaultBurnInterestRatio,
		UnlockFee:           DefaultUnlockFee(),
		GoalTypeCount:       DefaultGoalTypeCount,
	}
}

func (p Policy) clone() Policy {
	p.UnlockFee = finance.Copy(p.UnlockFee)
	return p
}

// Validate rejects negative parameters and a non-positive duration.
func (p Policy) Validate() error {
	if p.Duration <= 0 {
		return errors.New("pakt: duration must be positive")
	}
	if p.BurnInterestRatio < 0 || p.UnlockFee == nil || p.UnlockFee.Sign() < 0 {
		return ErrNegativeParameter
	}
	if err := validateTable(p.MaxStakeByLevel); err != nil {
		return err
	}
	return validateTable(p.InterestRateByLevel)
}

func validateTable(t LevelTable) error {
	for _, v := range t {
		if v < 0 {
			return ErrNegativeParameter
		}
	}
	return nil
}

// maxStake returns the cap for level in base units.
func (p Policy) maxStake(level Level, decimals uint8) *big.Int {
	if int(level) >= LevelCount {
		return new(big.Int)
	}
	return finance.Whole(p.MaxStakeByLevel[level], decimals)
}

// interest computes amount * rate[level] / RateDenominator. Levels outside
// the table earn nothing.
func (p Policy) interest(amount *big.Int, level Level) *big.Int {
	if int(level) >= LevelCount {
		return new(big.Int)
	}
	return finance.MulDiv(amount, p.InterestRateByLevel[level], RateDenominator)
}
