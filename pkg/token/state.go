package token

import (
	"fmt"
	"math/big"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
)

// AllowanceEntry is one persisted allowance.
type AllowanceEntry struct {
	Owner   identity.Address `json:"owner"`
	Spender identity.Address `json:"spender"`
	Amount  *big.Int         `json:"amount"`
}

// State is the complete persisted form of a token.
type State struct {
	Name        string                        `json:"name"`
	Symbol      string                        `json:"symbol"`
	Decimals    uint8                         `json:"decimals"`
	TotalSupply *big.Int                      `json:"total_supply"`
	Balances    map[identity.Address]*big.Int `json:"balances"`
	Allowances  []AllowanceEntry              `json:"allowances"`
	Paused      bool                          `json:"paused"`
	Roles       []authz.Grant                 `json:"roles"`
}

// Snapshot exports the token state.
func (t *Token) Snapshot() State {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s := State{
		Name:        t.name,
		Symbol:      t.symbol,
		Decimals:    t.decimals,
		TotalSupply: finance.Copy(t.totalSupply),
		Balances:    make(map[identity.Address]*big.Int, len(t.balances)),
		Paused:      t.paused,
		Roles:       t.roles.Grants(),
	}
	for a, v := range t.balances {
		s.Balances[a] = finance.Copy(v)
	}
	for k, v := range t.allowances {
		s.Allowances = append(s.Allowances, AllowanceEntry{Owner: k.owner, Spender: k.spender, Amount: finance.Copy(v)})
	}
	return s
}

// Restore replaces the token state. Balances must sum to the total supply.
func (t *Token) Restore(s State) error {
	sum := new(big.Int)
	for _, v := range s.Balances {
		if v == nil || v.Sign() < 0 {
			return fmt.Errorf("token: restore: %w", ErrInvalidAmount)
		}
		sum.Add(sum, v)
	}
	if sum.Cmp(finance.Copy(s.TotalSupply)) != 0 {
		return fmt.Errorf("token: restore: balances sum to %s but total supply is %s", sum, s.TotalSupply)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.name, t.symbol, t.decimals = s.Name, s.Symbol, s.Decimals
	t.totalSupply = finance.Copy(s.TotalSupply)
	t.balances = make(map[identity.Address]*big.Int, len(s.Balances))
	for a, v := range s.Balances {
		if v.Sign() > 0 {
			t.balances[a] = finance.Copy(v)
		}
	}
	t.allowances = make(map[allowanceKey]*big.Int, len(s.Allowances))
	for _, e := range s.Allowances {
		if e.Amount != nil && e.Amount.Sign() > 0 {
			t.allowances[allowanceKey{e.Owner, e.Spender}] = finance.Copy(e.Amount)
		}
	}
	t.paused = s.Paused
	t.roles.Restore(s.Roles)
	return nil
}
