package pakt

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/alexbensimon/pakt/pkg/finance"
)

// GoalType is the category of a pakt. Custom pakts are self-attested; every
// other type is verified automatically from fitness data.
type GoalType uint8

const (
	GoalCustom GoalType = iota
	GoalSteps
	GoalActive
	GoalMeditation
)

// DefaultGoalTypeCount is the number of goal types handled out of the box.
const DefaultGoalTypeCount = 4

func (g GoalType) IsCustom() bool { return g == GoalCustom }

func (g GoalType) String() string {
	switch g {
	case GoalCustom:
		return "custom"
	case GoalSteps:
		return "steps"
	case GoalActive:
		return "active"
	case GoalMeditation:
		return "meditation"
	}
	return fmt.Sprintf("goal-type-%d", uint8(g))
}

// Level is a difficulty tier. Automatic pakts use 1..MaxLevel; level 0 is
// reserved and ignored for custom pakts.
type Level uint8

// MaxLevel is the highest difficulty tier.
const MaxLevel Level = 5

// Status is the derived lifecycle state of a pakt.
type Status string

const (
	StatusActive         Status = "active"
	StatusVerified       Status = "verified"
	StatusSettledSuccess Status = "settled_success"
	StatusSettledFail    Status = "settled_fail"
)

// Pakt is one time-boxed staked commitment. Pakts are never removed from a
// wallet's list; settlement only clears Active.
type Pakt struct {
	GoalType    GoalType  `json:"goal_type"`
	Level       Level     `json:"level"`
	Amount      *big.Int  `json:"amount"`
	Description string    `json:"description"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Active      bool      `json:"active"`
	Success     bool      `json:"success"`
}

func (p Pakt) Status() Status {
	switch {
	case p.Active && p.Success:
		return StatusVerified
	case p.Active:
		return StatusActive
	case p.Success:
		return StatusSettledSuccess
	default:
		return StatusSettledFail
	}
}

// Finished reports whether the current window has elapsed at now.
func (p Pakt) Finished(now time.Time) bool {
	return !now.Before(p.EndTime)
}

// Streak is the number of duration windows the pakt covers, rounded to the
// nearest window.
func (p Pakt) Streak(duration time.Duration) int {
	if duration <= 0 {
		return 0
	}
	return int(math.Round(float64(p.EndTime.Sub(p.StartTime)) / float64(duration)))
}

func (p Pakt) clone() Pakt {
	p.Amount = finance.Copy(p.Amount)
	return p
}
