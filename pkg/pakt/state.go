package pakt

import (
	"fmt"
	"math/big"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/finance"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/token"
)

// Link is one persisted wallet to source id binding.
type Link struct {
	Wallet   identity.Address `json:"wallet"`
	SourceID *big.Int         `json:"source_id"`
}

// State is the complete persisted form of the ledger. Locked principal and
// the active type flags are derived from Pakts on restore.
type State struct {
	Address        identity.Address              `json:"address"`
	Policy         Policy                        `json:"policy"`
	Links          []Link                        `json:"links"`
	Pakts          map[identity.Address][]Pakt   `json:"pakts"`
	FeeBalance     *big.Int                      `json:"fee_balance"`
	NativeBalances map[identity.Address]*big.Int `json:"native_balances,omitempty"`
	Roles          []authz.Grant                 `json:"roles"`
}

// Snapshot exports the ledger state.
func (m *Manager) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Checkpoint exports the ledger and its token with no ledger operation in
// between.
func (m *Manager) Checkpoint() (State, token.State) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked(), m.token.Snapshot()
}

func (m *Manager) snapshotLocked() State {
	s := State{
		Address:    m.address,
		Policy:     m.policy.clone(),
		Pakts:      make(map[identity.Address][]Pakt, len(m.pakts)),
		FeeBalance: finance.Copy(m.fees),
		Roles:      m.roles.Grants(),
	}
	if book, ok := m.native.(persistentBook); ok {
		s.NativeBalances = book.Balances()
	}
	for w, id := range m.walletToSource {
		s.Links = append(s.Links, Link{Wallet: w, SourceID: finance.Copy(id)})
	}
	for w, list := range m.pakts {
		out := make([]Pakt, len(list))
		for i, p := range list {
			out[i] = p.clone()
		}
		s.Pakts[w] = out
	}
	return s
}

// Restore replaces the ledger state with s after checking its invariants.
func (m *Manager) Restore(s State) error {
	if err := s.Policy.Validate(); err != nil {
		return fmt.Errorf("pakt: restore: %w", err)
	}

	walletToSource := make(map[identity.Address]*big.Int, len(s.Links))
	sourceToWallet := make(map[string]identity.Address, len(s.Links))
	for _, l := range s.Links {
		if l.SourceID == nil || l.SourceID.Sign() <= 0 {
			return fmt.Errorf("pakt: restore: wallet %s has an invalid source id", l.Wallet.Hex())
		}
		key := l.SourceID.String()
		if _, dup := walletToSource[l.Wallet]; dup {
			return fmt.Errorf("pakt: restore: wallet %s linked twice", l.Wallet.Hex())
		}
		if _, dup := sourceToWallet[key]; dup {
			return fmt.Errorf("pakt: restore: source id %s linked twice", key)
		}
		walletToSource[l.Wallet] = finance.Copy(l.SourceID)
		sourceToWallet[key] = l.Wallet
	}

	pakts := make(map[identity.Address][]Pakt, len(s.Pakts))
	active := make(map[identity.Address]map[GoalType]bool)
	locked := new(big.Int)
	for w, list := range s.Pakts {
		out := make([]Pakt, len(list))
		for i, p := range list {
			out[i] = p.clone()
			if !p.Active {
				continue
			}
			if active[w] == nil {
				active[w] = make(map[GoalType]bool)
			}
			if active[w][p.GoalType] {
				return fmt.Errorf("pakt: restore: wallet %s has two active pakts of goal type %d", w.Hex(), p.GoalType)
			}
			active[w][p.GoalType] = true
			locked.Add(locked, out[i].Amount)
		}
		pakts[w] = out
	}
	for a, b := range s.NativeBalances {
		if b == nil || b.Sign() < 0 {
			return fmt.Errorf("pakt: restore: account %s has an invalid native balance", a.Hex())
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !s.Address.IsZero() {
		m.address = s.Address
	}
	m.policy = s.Policy.clone()
	m.walletToSource = walletToSource
	m.sourceToWallet = sourceToWallet
	m.pakts = pakts
	m.activeTypes = active
	m.locked = locked
	m.fees = finance.Copy(s.FeeBalance)
	if book, ok := m.native.(persistentBook); ok {
		book.RestoreBalances(s.NativeBalances)
	}
	m.roles.Restore(s.Roles)
	return nil
}
