package pakt

import (
	"context"
	"math/big"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/token"
)

// Outcome labels on PaktEnded events.
const (
	OutcomeSuccess = "success"
	OutcomeFail    = "fail"
)

// LinkWallet binds wallet to an external identity. Verifier only. Each side
// of the link can be set once.
func (m *Manager) LinkWallet(ctx context.Context, caller, wallet identity.Address, sourceID *big.Int) error {
	return m.run(ctx, "link_wallet", caller, func(ctx context.Context) error {
		if err := m.roles.Require(authz.RoleVerifier, caller); err != nil {
			return err
		}
		if sourceID == nil || sourceID.Sign() <= 0 {
			return &Error{Kind: KindInvalidSourceID, SourceID: finance.Copy(sourceID)}
		}
		if _, linked := m.walletToSource[wallet]; linked {
			return &Error{Kind: KindWalletAlreadyLinked, Wallet: wallet}
		}
		key := sourceID.String()
		if _, linked := m.sourceToWallet[key]; linked {
			return &Error{Kind: KindSourceIDAlreadyLinked, SourceID: finance.Copy(sourceID)}
		}

		m.walletToSource[wallet] = finance.Copy(sourceID)
		m.sourceToWallet[key] = wallet
		m.emit(ctx, events.WalletAndSourceIDLinked, wallet, events.NoIndex, map[string]string{
			"source_id": key,
		})
		return nil
	})
}

// CreatePakt stakes amount on a new pakt and returns its index.
func (m *Manager) CreatePakt(ctx context.Context, caller identity.Address, goalType GoalType, level Level, amount *big.Int, description string) (int, error) {
	amount = finance.Copy(amount)
	index := -1
	err := m.run(ctx, "create_pakt", caller, func(ctx context.Context) error {
		if _, linked := m.walletToSource[caller]; !linked {
			return &Error{Kind: KindNoSourceIDLinked, Wallet: caller}
		}
		if goalType >= GoalType(m.policy.GoalTypeCount) {
			return &Error{Kind: KindUnhandledGoalType, GoalType: goalType}
		}
		if m.activeTypes[caller][goalType] {
			return &Error{Kind: KindDuplicateActiveGoalType, GoalType: goalType}
		}
		if goalType.IsCustom() {
			level = 0
		}
		if err := m.checkAmountLocked(goalType, level, amount, amount); err != nil {
			return err
		}
		if err := m.pullLocked(ctx, caller, amount); err != nil {
			return err
		}

		now := m.clock.Now().UTC()
		p := Pakt{
			GoalType:  goalType,
			Level:     level,
			Amount:    amount,
			StartTime: now,
			EndTime:   now.Add(m.policy.Duration),
			Active:    true,
		}
		if goalType.IsCustom() {
			p.Description = normalizeDescription(description)
		}
		m.pakts[caller] = append(m.pakts[caller], p)
		index = len(m.pakts[caller]) - 1
		if m.activeTypes[caller] == nil {
			m.activeTypes[caller] = make(map[GoalType]bool)
		}
		m.activeTypes[caller][goalType] = true
		m.locked.Add(m.locked, amount)

		m.emit(ctx, events.PaktCreated, caller, index, map[string]string{
			"goal_type": strconv.Itoa(int(goalType)),
			"level":     strconv.Itoa(int(level)),
			"amount":    amount.String(),
		})
		return nil
	})
	if err != nil {
		return -1, err
	}
	return index, nil
}

// ExtendPakt tops up an elapsed, still active pakt and pushes its window
// forward by one duration. The new total must satisfy the creation bound.
func (m *Manager) ExtendPakt(ctx context.Context, caller identity.Address, index int, added *big.Int) error {
	added = finance.Copy(added)
	return m.run(ctx, "extend_pakt", caller, func(ctx context.Context) error {
		p, err := m.lookupLocked(caller, index)
		if err != nil {
			return err
		}
		if !p.Active {
			return reject(KindMustBeActive)
		}
		if !p.Finished(m.clock.Now()) {
			return reject(KindNotFinishedYet)
		}
		if added.Sign() <= 0 {
			return errIncorrectAmount(p.Level, added)
		}
		total := new(big.Int).Add(p.Amount, added)
		if err := m.checkAmountLocked(p.GoalType, p.Level, total, added); err != nil {
			return err
		}
		if err := m.pullLocked(ctx, caller, added); err != nil {
			return err
		}

		p.Amount = total
		p.EndTime = p.EndTime.Add(m.policy.Duration)
		p.Success = false
		m.locked.Add(m.locked, added)

		m.emit(ctx, events.PaktExtended, caller, index, map[string]string{
			"added":  added.String(),
			"amount": total.String(),
		})
		return nil
	})
}

// MarkVerified attests that an automatic pakt's goal was reached. Verifier
// only. Funds stay locked until the owner calls UnlockFunds.
func (m *Manager) MarkVerified(ctx context.Context, caller, wallet identity.Address, index int) error {
	return m.run(ctx, "mark_verified", caller, func(ctx context.Context) error {
		if err := m.roles.Require(authz.RoleVerifier, caller); err != nil {
			return err
		}
		p, err := m.lookupLocked(wallet, index)
		if err != nil {
			return err
		}
		if !p.Active {
			return reject(KindMustBeActive)
		}
		if p.GoalType.IsCustom() {
			return reject(KindMustNotBeCustom)
		}
		if !p.Finished(m.clock.Now()) {
			return reject(KindNotFinishedYet)
		}

		p.Success = true
		m.emit(ctx, events.PaktVerified, wallet, index, map[string]string{
			"verifier": caller.Hex(),
		})
		return nil
	})
}

// UnlockFunds settles a verified, elapsed pakt. value is the native currency
// paid with the call and must equal the unlock fee exactly; it is collected
// from the caller's native balance. The owner receives the stake plus
// interest drawn from the reserve.
func (m *Manager) UnlockFunds(ctx context.Context, caller identity.Address, index int, value *big.Int) error {
	value = finance.Copy(value)
	return m.run(ctx, "unlock_funds", caller, func(ctx context.Context) error {
		if value.Cmp(m.policy.UnlockFee) != 0 {
			return errAmount(KindNeedToPayFee, m.policy.UnlockFee)
		}
		p, err := m.lookupLocked(caller, index)
		if err != nil {
			return err
		}
		if !p.Active {
			return reject(KindMustBeActive)
		}
		if !p.Success {
			return reject(KindGoalNotReached)
		}
		if !p.Finished(m.clock.Now()) {
			return reject(KindNotFinishedYet)
		}

		interest := m.policy.interest(p.Amount, p.Level)
		if interest.Cmp(m.reserveLocked()) > 0 {
			return errAmount(KindInsufficientReserve, interest)
		}
		payout := new(big.Int).Add(p.Amount, interest)
		err = m.token.Update(ctx, func(tx *token.Tx) error {
			if err := tx.Transfer(m.address, caller, payout); err != nil {
				return err
			}
			// Last, so a short native balance leaves the transfer unapplied.
			if err := m.native.Collect(ctx, caller, value); err != nil {
				m.logger.Warn("unlock fee collection failed", "from", caller.Hex(), "fee", value.String(), "error", err)
				return errAmount(KindNeedToPayFee, value)
			}
			return nil
		})
		if err != nil {
			return err
		}

		m.clearActiveLocked(caller, p)
		m.fees.Add(m.fees, value)
		m.emit(ctx, events.PaktEnded, caller, index, map[string]string{
			"outcome":  OutcomeSuccess,
			"paid":     payout.String(),
			"interest": interest.String(),
			"fee":      value.String(),
		})
		return nil
	})
}

// FailPakt settles an elapsed automatic pakt as failed. The owner gets back
// the stake minus burnInterestRatio times the interest, which is burned.
func (m *Manager) FailPakt(ctx context.Context, caller identity.Address, index int) error {
	return m.run(ctx, "fail_pakt", caller, func(ctx context.Context) error {
		p, err := m.lookupLocked(caller, index)
		if err != nil {
			return err
		}
		if !p.Active {
			return reject(KindMustBeActive)
		}
		if p.GoalType.IsCustom() {
			return reject(KindMustNotBeCustom)
		}
		if !p.Finished(m.clock.Now()) {
			return reject(KindNotFinishedYet)
		}

		interest := m.policy.interest(p.Amount, p.Level)
		burn := finance.Min(new(big.Int).Mul(interest, big.NewInt(m.policy.BurnInterestRatio)), p.Amount)
		refund := new(big.Int).Sub(p.Amount, burn)
		err = m.token.Update(ctx, func(tx *token.Tx) error {
			if burn.Sign() > 0 {
				if err := tx.Burn(m.address, burn); err != nil {
					return err
				}
			}
			return tx.Transfer(m.address, caller, refund)
		})
		if err != nil {
			return err
		}

		p.Success = false
		m.clearActiveLocked(caller, p)
		m.emit(ctx, events.PaktEnded, caller, index, map[string]string{
			"outcome": OutcomeFail,
			"paid":    refund.String(),
			"burned":  burn.String(),
		})
		return nil
	})
}

// EndCustomPakt settles an elapsed custom pakt on the owner's word. Success
// returns the full stake; failure burns it.
func (m *Manager) EndCustomPakt(ctx context.Context, caller identity.Address, index int, success bool) error {
	return m.run(ctx, "end_custom_pakt", caller, func(ctx context.Context) error {
		p, err := m.lookupLocked(caller, index)
		if err != nil {
			return err
		}
		if !p.Active {
			return reject(KindMustBeActive)
		}
		if !p.GoalType.IsCustom() {
			return reject(KindMustBeCustom)
		}
		if !p.Finished(m.clock.Now()) {
			return reject(KindNotFinishedYet)
		}

		amount := finance.Copy(p.Amount)
		err = m.token.Update(ctx, func(tx *token.Tx) error {
			if success {
				return tx.Transfer(m.address, caller, amount)
			}
			return tx.Burn(m.address, amount)
		})
		if err != nil {
			return err
		}

		p.Success = success
		m.clearActiveLocked(caller, p)
		attrs := map[string]string{"outcome": OutcomeFail, "burned": amount.String(), "paid": "0"}
		if success {
			attrs = map[string]string{"outcome": OutcomeSuccess, "burned": "0", "paid": amount.String()}
		}
		m.emit(ctx, events.PaktEnded, caller, index, attrs)
		return nil
	})
}

func normalizeDescription(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
