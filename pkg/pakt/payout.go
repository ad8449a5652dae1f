package pakt

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
)

// NativeBook holds the native currency side of the ledger: unlock fees are
// collected from it and withdrawn fees are paid into it.
type NativeBook interface {
	Send(ctx context.Context, to identity.Address, amount *big.Int) error
	Collect(ctx context.Context, from identity.Address, amount *big.Int) error
	BalanceOf(account identity.Address) *big.Int
}

// persistentBook is a NativeBook whose balances travel with the ledger
// snapshot.
type persistentBook interface {
	Balances() map[identity.Address]*big.Int
	RestoreBalances(balances map[identity.Address]*big.Int)
}

// Vault is an in-memory native currency book. Accounts marked as rejecting
// refuse every payment, like contracts without a receive hook.
type Vault struct {
	mu        sync.Mutex
	balances  map[identity.Address]*big.Int
	rejecting map[identity.Address]bool
}

func NewVault() *Vault {
	return &Vault{
		balances:  make(map[identity.Address]*big.Int),
		rejecting: make(map[identity.Address]bool),
	}
}

// Reject makes account refuse payments.
func (v *Vault) Reject(account identity.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rejecting[account] = true
}

func (v *Vault) Send(_ context.Context, to identity.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("pakt: invalid native amount %v", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.rejecting[to] {
		return fmt.Errorf("pakt: %s does not accept native payments", to.Hex())
	}
	bal := finance.Copy(v.balances[to])
	v.balances[to] = bal.Add(bal, amount)
	return nil
}

// Collect debits amount from an account, failing when the balance is short.
func (v *Vault) Collect(_ context.Context, from identity.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("pakt: invalid native amount %v", amount)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	bal := finance.Copy(v.balances[from])
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("pakt: %s holds %s native, needs %s", from.Hex(), bal, amount)
	}
	bal.Sub(bal, amount)
	if bal.Sign() == 0 {
		delete(v.balances, from)
		return nil
	}
	v.balances[from] = bal
	return nil
}

func (v *Vault) BalanceOf(account identity.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return finance.Copy(v.balances[account])
}

// Balances returns a copy of every non-zero balance.
func (v *Vault) Balances() map[identity.Address]*big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[identity.Address]*big.Int, len(v.balances))
	for a, b := range v.balances {
		out[a] = finance.Copy(b)
	}
	return out
}

// RestoreBalances replaces every balance. Rejecting accounts are kept.
func (v *Vault) RestoreBalances(balances map[identity.Address]*big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances = make(map[identity.Address]*big.Int, len(balances))
	for a, b := range balances {
		if b != nil && b.Sign() > 0 {
			v.balances[a] = finance.Copy(b)
		}
	}
}
