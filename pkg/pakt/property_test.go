//go:build property
// +build property

package pakt

import (
	"math/big"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"
)

// Property: for any valid automatic stake, creation moves exactly amount from
// the wallet into custody.
func TestCreatePaktConservesTokens(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("creation moves exactly the stake into custody", prop.ForAll(
		func(level uint8, whole int64) bool {
			f := newFixture(t)
			lvl := Level(level)
			amount := tokens(whole)
			f.link(userAddr, 1)
			f.approve(userAddr, amount)

			userBefore := f.tok.BalanceOf(userAddr)
			custodyBefore := f.tok.BalanceOf(f.m.Address())
			_, err := f.m.CreatePakt(f.ctx, userAddr, GoalSteps, lvl, amount, "")
			if err != nil {
				return false
			}
			userDelta := new(big.Int).Sub(userBefore, f.tok.BalanceOf(userAddr))
			custodyDelta := new(big.Int).Sub(f.tok.BalanceOf(f.m.Address()), custodyBefore)
			return userDelta.Cmp(amount) == 0 && custodyDelta.Cmp(amount) == 0
		},
		gen.UInt8Range(1, 5),
		gen.Int64Range(1, 100),
	))

	properties.TestingRun(t)
}

// Property: failing a pakt burns exactly min(interest*ratio, amount) and
// refunds the rest.
func TestFailPaktBurnsInterestMultiple(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("fail burns interest times ratio", prop.ForAll(
		func(level uint8, whole int64, ratio int64) bool {
			f := newFixture(t)
			if err := f.m.SetBurnInterestRatio(f.ctx, adminAddr, ratio); err != nil {
				return false
			}
			lvl := Level(level)
			amount := tokens(whole)
			idx := f.create(userAddr, GoalActive, lvl, amount)
			f.expire()

			supply := f.tok.TotalSupply()
			balance := f.tok.BalanceOf(userAddr)
			if err := f.m.FailPakt(f.ctx, userAddr, idx); err != nil {
				return false
			}

			burn := new(big.Int).Mul(f.m.ComputeInterest(amount, lvl), big.NewInt(ratio))
			if burn.Cmp(amount) > 0 {
				burn = amount
			}
			burned := new(big.Int).Sub(supply, f.tok.TotalSupply())
			refunded := new(big.Int).Sub(f.tok.BalanceOf(userAddr), balance)
			return burned.Cmp(burn) == 0 && refunded.Cmp(new(big.Int).Sub(amount, burn)) == 0
		},
		gen.UInt8Range(1, 5),
		gen.Int64Range(1, 100),
		gen.Int64Range(0, 200),
	))

	properties.TestingRun(t)
}

// Property: extension always pushes endTime by exactly one duration, no
// matter how late it happens.
func TestExtendAddsOneDuration(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("extension adds exactly one duration", prop.ForAll(
		func(lateHours int64, extensions int) bool {
			f := newFixture(t)
			idx := f.create(userAddr, GoalSteps, 5, tokens(10))
			for i := 0; i < extensions; i++ {
				before, err := f.m.Pakt(userAddr, idx)
				if err != nil {
					return false
				}
				f.clock.Set(before.EndTime.Add(hours(lateHours)))
				f.approve(userAddr, tokens(1))
				if err := f.m.ExtendPakt(f.ctx, userAddr, idx, tokens(1)); err != nil {
					return false
				}
				after, err := f.m.Pakt(userAddr, idx)
				if err != nil || !after.EndTime.Equal(before.EndTime.Add(DefaultDuration)) {
					return false
				}
			}
			return true
		},
		gen.Int64Range(0, 500),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

// Property: a second link with a used wallet or source id never changes state.
func TestLinkAtMostOnce(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("links are write-once on both sides", prop.ForAll(
		func(first, second int64) bool {
			f := newFixture(t)
			f.link(userAddr, first)

			errWallet := f.m.LinkWallet(f.ctx, verifierAddr, userAddr, big.NewInt(second))
			errSource := f.m.LinkWallet(f.ctx, verifierAddr, otherAddr, big.NewInt(first))

			id, _ := f.m.SourceIDOf(userAddr)
			_, otherLinked := f.m.SourceIDOf(otherAddr)
			return errWallet != nil && errSource != nil && id.Int64() == first && !otherLinked
		},
		gen.Int64Range(1, 1<<40),
		gen.Int64Range(1, 1<<40),
	))

	properties.TestingRun(t)
}

func TestPropertyFixtureSanity(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, tokens(10_000), f.m.Reserve())
}

func hours(n int64) time.Duration { return time.Duration(n) * time.Hour }
