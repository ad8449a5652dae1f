package api

import (
	"math/big"
	"net/http"

	"github.com/alexbensimon/pakt/pkg/httpx"
	"github.com/alexbensimon/pakt/pkg/identity"
)

func (s *Server) tokenInfo(w http.ResponseWriter, _ *http.Request) {
	tok := s.ledger.Token()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"name":        tok.Name(),
		"symbol":      tok.Symbol(),
		"decimals":    tok.Decimals(),
		"totalSupply": amountString(tok.TotalSupply()),
		"paused":      tok.Paused(),
	})
}

func (s *Server) balance(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"wallet":  wallet.Hex(),
		"balance": amountString(s.ledger.Token().BalanceOf(wallet)),
	})
}

// nativeBalance reports the account's native currency, which pays unlock fees.
func (s *Server) nativeBalance(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"wallet":  wallet.Hex(),
		"balance": amountString(s.ledger.NativeBalance(wallet)),
	})
}

func (s *Server) allowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := pathAddress(w, r, "owner")
	if !ok {
		return
	}
	spender, ok := pathAddress(w, r, "spender")
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"owner":     owner.Hex(),
		"spender":   spender.Hex(),
		"allowance": amountString(s.ledger.Token().Allowance(owner, spender)),
	})
}

// movement is the body of approve, transfer, mint, burn and native deposits.
// Account is the spender of an approval and the recipient otherwise; burn
// ignores it.
type movement struct {
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, true, func(m moveArgs) error {
		return s.ledger.Token().Approve(r.Context(), m.caller, m.account, m.amount)
	})
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, true, func(m moveArgs) error {
		return s.ledger.Token().Transfer(r.Context(), m.caller, m.account, m.amount)
	})
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, true, func(m moveArgs) error {
		return s.ledger.Token().Mint(r.Context(), m.caller, m.account, m.amount)
	})
}

func (s *Server) burn(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, false, func(m moveArgs) error {
		return s.ledger.Token().Burn(r.Context(), m.caller, m.amount)
	})
}

func (s *Server) pause(w http.ResponseWriter, r *http.Request) {
	account, ok := caller(w, r)
	if !ok {
		return
	}
	s.done(w, s.ledger.Token().Pause(r.Context(), account))
}

func (s *Server) unpause(w http.ResponseWriter, r *http.Request) {
	account, ok := caller(w, r)
	if !ok {
		return
	}
	s.done(w, s.ledger.Token().Unpause(r.Context(), account))
}

type moveArgs struct {
	caller  identity.Address
	account identity.Address
	amount  *big.Int
}

func (s *Server) move(w http.ResponseWriter, r *http.Request, needAccount bool, fn func(moveArgs) error) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req movement
	if !decode(w, r, &req) {
		return
	}
	args := moveArgs{caller: from}
	if needAccount {
		if args.account, ok = parseAddress(w, "account", req.Account); !ok {
			return
		}
	}
	if args.amount, ok = parseAmount(w, "amount", req.Amount); !ok {
		return
	}
	s.done(w, fn(args))
}
