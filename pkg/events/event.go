// Package events carries ledger and token events to the relay, the
// presentation layer, and the journal. Events are sequenced and hash-chained
// so a replayed journal can be checked for gaps or tampering.
package events

import (
	"time"

	"github.com/alexbensimon/pakt/pkg/identity"
)

// Name identifies an event type.
type Name string

const (
	WalletAndSourceIDLinked Name = "WalletAndSourceIdLinked"
	PaktCreated             Name = "PaktCreated"
	PaktExtended            Name = "PaktExtended"
	PaktVerified            Name = "PaktVerified"
	PaktEnded               Name = "PaktEnded"
	ReserveFunded           Name = "ReserveFunded"
	FundsWithdrawn          Name = "FundsWithdrawn"
	NativeDeposited         Name = "NativeDeposited"
	PolicyUpdated           Name = "PolicyUpdated"
	RoleGranted             Name = "RoleGranted"
	RoleRevoked             Name = "RoleRevoked"
	Transfer                Name = "Transfer"
	Approval                Name = "Approval"
	Paused                  Name = "Paused"
	Unpaused                Name = "Unpaused"
)

// NoIndex marks events that do not refer to a commitment.
const NoIndex = -1

// Event is one state change. Wallet is the account the event concerns;
// Attrs holds event-specific values rendered as strings (amounts in base units).
type Event struct {
	ID        string            `json:"id"`
	Sequence  uint64            `json:"sequence"`
	Name      Name              `json:"name"`
	Source    string            `json:"source"`
	Wallet    identity.Address  `json:"wallet"`
	Index     int               `json:"index"`
	Attrs     map[string]string `json:"attrs,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	PrevHash  string            `json:"prev_hash"`
	Hash      string            `json:"hash"`
}

// New builds an unsealed event.
func New(source string, name Name, wallet identity.Address, index int, attrs map[string]string) Event {
	return Event{
		Name:   name,
		Source: source,
		Wallet: wallet,
		Index:  index,
		Attrs:  attrs,
	}
}

// Concerns reports whether e involves wallet, either as its subject or via
// the from/to/account attributes of token and role events.
func (e Event) Concerns(wallet identity.Address) bool {
	if e.Wallet == wallet {
		return true
	}
	hex := wallet.Hex()
	for _, k := range []string{"from", "to", "account", "spender"} {
		if e.Attrs[k] == hex {
			return true
		}
	}
	return false
}
