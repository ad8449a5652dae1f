package pakt

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/token"
)

// Withdraw pays the collected unlock fees to the caller. Admin only. If the
// payment fails the fees stay in the ledger.
func (m *Manager) Withdraw(ctx context.Context, caller identity.Address) error {
	return m.run(ctx, "withdraw", caller, func(ctx context.Context) error {
		if err := m.roles.Require(authz.RoleAdmin, caller); err != nil {
			return err
		}
		amount := finance.Copy(m.fees)
		if err := m.native.Send(ctx, caller, amount); err != nil {
			m.logger.Warn("fee payout failed", "to", caller.Hex(), "amount", amount.String(), "error", err)
			return errAmount(KindFailedTransfer, amount)
		}
		m.fees.SetInt64(0)
		m.emit(ctx, events.FundsWithdrawn, caller, events.NoIndex, map[string]string{
			"amount": amount.String(),
		})
		return nil
	})
}

// DepositNative credits native currency to an account's book balance. Admin
// only. It records value that reached the ledger from outside, such as a
// wallet top up confirmed by the payment gateway.
func (m *Manager) DepositNative(ctx context.Context, caller, to identity.Address, amount *big.Int) error {
	amount = finance.Copy(amount)
	return m.run(ctx, "deposit_native", caller, func(ctx context.Context) error {
		if err := m.roles.Require(authz.RoleAdmin, caller); err != nil {
			return err
		}
		if to.IsZero() {
			return token.ErrZeroAddress
		}
		if amount.Sign() <= 0 {
			return errIncorrectAmount(0, amount)
		}
		if err := m.native.Send(ctx, to, amount); err != nil {
			m.logger.Warn("native deposit failed", "to", to.Hex(), "amount", amount.String(), "error", err)
			return errAmount(KindFailedTransfer, amount)
		}
		m.emit(ctx, events.NativeDeposited, to, events.NoIndex, map[string]string{
			"to":     to.Hex(),
			"amount": amount.String(),
		})
		return nil
	})
}

// FundReserve moves tokens from caller into the interest reserve.
func (m *Manager) FundReserve(ctx context.Context, caller identity.Address, amount *big.Int) error {
	amount = finance.Copy(amount)
	return m.run(ctx, "fund_reserve", caller, func(ctx context.Context) error {
		if amount.Sign() <= 0 {
			return errIncorrectAmount(0, amount)
		}
		if err := m.pullLocked(ctx, caller, amount); err != nil {
			return err
		}
		m.emit(ctx, events.ReserveFunded, caller, events.NoIndex, map[string]string{
			"amount": amount.String(),
		})
		return nil
	})
}

func (m *Manager) SetGoalTypeCount(ctx context.Context, caller identity.Address, count uint8) error {
	return m.setPolicy(ctx, caller, "goal_type_count", strconv.Itoa(int(count)), func(p *Policy) error {
		p.GoalTypeCount = count
		return nil
	})
}

func (m *Manager) SetMaxStakeByLevel(ctx context.Context, caller identity.Address, table LevelTable) error {
	return m.setPolicy(ctx, caller, "max_stake_by_level", formatTable(table), func(p *Policy) error {
		if err := validateTable(table); err != nil {
			return err
		}
		p.MaxStakeByLevel = table
		return nil
	})
}

func (m *Manager) SetInterestRateByLevel(ctx context.Context, caller identity.Address, table LevelTable) error {
	return m.setPolicy(ctx, caller, "interest_rate_by_level", formatTable(table), func(p *Policy) error {
		if err := validateTable(table); err != nil {
			return err
		}
		p.InterestRateByLevel = table
		return nil
	})
}

func (m *Manager) SetBurnInterestRatio(ctx context.Context, caller identity.Address, ratio int64) error {
	return m.setPolicy(ctx, caller, "burn_interest_ratio", strconv.FormatInt(ratio, 10), func(p *Policy) error {
		if ratio < 0 {
			return ErrNegativeParameter
		}
		p.BurnInterestRatio = ratio
		return nil
	})
}

func (m *Manager) SetUnlockFee(ctx context.Context, caller identity.Address, fee *big.Int) error {
	fee = finance.Copy(fee)
	return m.setPolicy(ctx, caller, "unlock_fee", fee.String(), func(p *Policy) error {
		if fee.Sign() < 0 {
			return ErrNegativeParameter
		}
		p.UnlockFee = fee
		return nil
	})
}

func (m *Manager) setPolicy(ctx context.Context, caller identity.Address, param, value string, apply func(*Policy) error) error {
	return m.run(ctx, "set_"+param, caller, func(ctx context.Context) error {
		if err := m.roles.Require(authz.RoleAdmin, caller); err != nil {
			return err
		}
		next := m.policy.clone()
		if err := apply(&next); err != nil {
			return err
		}
		m.policy = next
		m.emit(ctx, events.PolicyUpdated, caller, events.NoIndex, map[string]string{
			"parameter": param,
			"value":     value,
		})
		return nil
	})
}

func formatTable(t LevelTable) string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// GrantRole adds account to role on the ledger. The caller must administer role.
func (m *Manager) GrantRole(ctx context.Context, caller identity.Address, role authz.Role, account identity.Address) error {
	return m.run(ctx, "grant_role", caller, func(ctx context.Context) error {
		changed, err := m.roles.Grant(caller, role, account)
		if err != nil {
			return err
		}
		if changed {
			m.emitRole(ctx, events.RoleGranted, caller, role, account)
		}
		return nil
	})
}

// RevokeRole removes account from role on the ledger.
func (m *Manager) RevokeRole(ctx context.Context, caller identity.Address, role authz.Role, account identity.Address) error {
	return m.run(ctx, "revoke_role", caller, func(ctx context.Context) error {
		changed, err := m.roles.Revoke(caller, role, account)
		if err != nil {
			return err
		}
		if changed {
			m.emitRole(ctx, events.RoleRevoked, caller, role, account)
		}
		return nil
	})
}

// RenounceRole drops the caller's own membership of role.
func (m *Manager) RenounceRole(ctx context.Context, caller identity.Address, role authz.Role) error {
	return m.run(ctx, "renounce_role", caller, func(ctx context.Context) error {
		changed, err := m.roles.Renounce(caller, role, caller)
		if err != nil {
			return err
		}
		if changed {
			m.emitRole(ctx, events.RoleRevoked, caller, role, caller)
		}
		return nil
	})
}

func (m *Manager) emitRole(ctx context.Context, name events.Name, caller identity.Address, role authz.Role, account identity.Address) {
	m.emit(ctx, name, account, events.NoIndex, map[string]string{
		"role":    string(role),
		"account": account.Hex(),
		"sender":  caller.Hex(),
	})
}

// ApplyPolicy replaces the whole policy. Admin only. Used by boot-time
// policy files.
func (m *Manager) ApplyPolicy(ctx context.Context, caller identity.Address, p Policy) error {
	return m.setPolicy(ctx, caller, "policy", describePolicy(p), func(next *Policy) error {
		if err := p.Validate(); err != nil {
			return err
		}
		*next = p.clone()
		return nil
	})
}

func describePolicy(p Policy) string {
	return fmt.Sprintf("duration=%s max=%s rates=%s burn=%d fee=%s types=%d",
		p.Duration, formatTable(p.MaxStakeByLevel), formatTable(p.InterestRateByLevel),
		p.BurnInterestRatio, finance.Copy(p.UnlockFee), p.GoalTypeCount)
}
