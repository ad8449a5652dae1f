package token

import (
	"math/big"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
)

type allowanceKey struct {
	owner, spender identity.Address
}

// Tx stages token mutations. Reads see staged values; nothing reaches the
// token until the enclosing Update returns nil.
type Tx struct {
	t          *Token
	balances   map[identity.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	supply     *big.Int
	pending    []events.Event
}

func (tx *Tx) BalanceOf(account identity.Address) *big.Int {
	if v, ok := tx.balances[account]; ok {
		return finance.Copy(v)
	}
	return finance.Copy(tx.t.balances[account])
}

func (tx *Tx) Allowance(owner, spender identity.Address) *big.Int {
	k := allowanceKey{owner, spender}
	if v, ok := tx.allowances[k]; ok {
		return finance.Copy(v)
	}
	return finance.Copy(tx.t.allowances[k])
}

func (tx *Tx) TotalSupply() *big.Int {
	if tx.supply != nil {
		return finance.Copy(tx.supply)
	}
	return finance.Copy(tx.t.totalSupply)
}

// Transfer moves amount from one account to another.
func (tx *Tx) Transfer(from, to identity.Address, amount *big.Int) error {
	if err := tx.checkMove(amount); err != nil {
		return err
	}
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}
	bal := tx.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return &InsufficientBalanceError{Account: from, Balance: bal, Needed: finance.Copy(amount)}
	}
	tx.balances[from] = bal.Sub(bal, amount)
	toBal := tx.BalanceOf(to)
	tx.balances[to] = toBal.Add(toBal, amount)
	tx.emit(events.Transfer, from, map[string]string{
		"from": from.Hex(), "to": to.Hex(), "amount": amount.String(),
	})
	return nil
}

// TransferFrom moves amount from owner to recipient using spender's allowance.
func (tx *Tx) TransferFrom(spender, owner, recipient identity.Address, amount *big.Int) error {
	if err := tx.spendAllowance(owner, spender, amount); err != nil {
		return err
	}
	return tx.Transfer(owner, recipient, amount)
}

// Approve sets spender's allowance over owner's balance.
func (tx *Tx) Approve(owner, spender identity.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if owner.IsZero() || spender.IsZero() {
		return ErrZeroAddress
	}
	tx.allowances[allowanceKey{owner, spender}] = finance.Copy(amount)
	tx.emit(events.Approval, owner, map[string]string{
		"owner": owner.Hex(), "spender": spender.Hex(), "amount": amount.String(),
	})
	return nil
}

// Mint creates amount for to. The caller must hold the minter role.
func (tx *Tx) Mint(caller, to identity.Address, amount *big.Int) error {
	if err := tx.t.roles.Require(authz.RoleMinter, caller); err != nil {
		return err
	}
	if err := tx.checkMove(amount); err != nil {
		return err
	}
	if to.IsZero() {
		return ErrZeroAddress
	}
	bal := tx.BalanceOf(to)
	tx.balances[to] = bal.Add(bal, amount)
	supply := tx.TotalSupply()
	tx.supply = supply.Add(supply, amount)
	tx.emit(events.Transfer, to, map[string]string{
		"from": identity.ZeroAddress.Hex(), "to": to.Hex(), "amount": amount.String(),
	})
	return nil
}

// Burn destroys amount of caller's own balance. The caller must hold the
// minter role.
func (tx *Tx) Burn(caller identity.Address, amount *big.Int) error {
	if err := tx.t.roles.Require(authz.RoleMinter, caller); err != nil {
		return err
	}
	return tx.burn(caller, amount)
}

// BurnFrom destroys amount of owner's balance using caller's allowance. The
// caller must hold the minter role.
func (tx *Tx) BurnFrom(caller, owner identity.Address, amount *big.Int) error {
	if err := tx.t.roles.Require(authz.RoleMinter, caller); err != nil {
		return err
	}
	if err := tx.spendAllowance(owner, caller, amount); err != nil {
		return err
	}
	return tx.burn(owner, amount)
}

func (tx *Tx) burn(from identity.Address, amount *big.Int) error {
	if err := tx.checkMove(amount); err != nil {
		return err
	}
	bal := tx.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return &InsufficientBalanceError{Account: from, Balance: bal, Needed: finance.Copy(amount)}
	}
	tx.balances[from] = bal.Sub(bal, amount)
	supply := tx.TotalSupply()
	tx.supply = supply.Sub(supply, amount)
	tx.emit(events.Transfer, from, map[string]string{
		"from": from.Hex(), "to": identity.ZeroAddress.Hex(), "amount": amount.String(),
	})
	return nil
}

func (tx *Tx) spendAllowance(owner, spender identity.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	allowed := tx.Allowance(owner, spender)
	if allowed.Cmp(amount) < 0 {
		return &InsufficientAllowanceError{Owner: owner, Spender: spender, Allowance: allowed, Needed: finance.Copy(amount)}
	}
	tx.allowances[allowanceKey{owner, spender}] = allowed.Sub(allowed, amount)
	return nil
}

func (tx *Tx) checkMove(amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if tx.t.paused {
		return ErrPaused
	}
	return nil
}

func (tx *Tx) emit(name events.Name, wallet identity.Address, attrs map[string]string) {
	tx.pending = append(tx.pending, events.New(source, name, wallet, events.NoIndex, attrs))
}
