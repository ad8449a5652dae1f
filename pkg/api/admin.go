package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/httpx"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/pakt"
)

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	s.done(w, s.ledger.Withdraw(r.Context(), admin))
}

func (s *Server) fundReserve(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	s.done(w, s.ledger.FundReserve(r.Context(), from, amount))
}

func (s *Server) depositNative(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, true, func(m moveArgs) error {
		return s.ledger.DepositNative(r.Context(), m.caller, m.account, m.amount)
	})
}

func (s *Server) setGoalTypeCount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value uint8 `json:"value"`
	}
	s.adminSet(w, r, &req, func(ctx context.Context, admin identity.Address) error {
		return s.ledger.SetGoalTypeCount(ctx, admin, req.Value)
	})
}

func (s *Server) setMaxStake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value []int64 `json:"value"`
	}
	s.adminSet(w, r, &req, func(ctx context.Context, admin identity.Address) error {
		table, ok := levelTable(w, req.Value)
		if !ok {
			return errWritten
		}
		return s.ledger.SetMaxStakeByLevel(ctx, admin, table)
	})
}

func (s *Server) setInterestRates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value []int64 `json:"value"`
	}
	s.adminSet(w, r, &req, func(ctx context.Context, admin identity.Address) error {
		table, ok := levelTable(w, req.Value)
		if !ok {
			return errWritten
		}
		return s.ledger.SetInterestRateByLevel(ctx, admin, table)
	})
}

func (s *Server) setBurnRatio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value int64 `json:"value"`
	}
	s.adminSet(w, r, &req, func(ctx context.Context, admin identity.Address) error {
		return s.ledger.SetBurnInterestRatio(ctx, admin, req.Value)
	})
}

func (s *Server) setUnlockFee(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Value string `json:"value"`
	}
	s.adminSet(w, r, &req, func(ctx context.Context, admin identity.Address) error {
		fee, ok := parseAmount(w, "value", req.Value)
		if !ok {
			return errWritten
		}
		return s.ledger.SetUnlockFee(ctx, admin, fee)
	})
}

func (s *Server) grantRole(w http.ResponseWriter, r *http.Request) {
	s.roleChange(w, r, s.ledger.GrantRole)
}

func (s *Server) revokeRole(w http.ResponseWriter, r *http.Request) {
	s.roleChange(w, r, s.ledger.RevokeRole)
}

type roleFunc func(ctx context.Context, caller identity.Address, role authz.Role, account identity.Address) error

func (s *Server) roleChange(w http.ResponseWriter, r *http.Request, fn roleFunc) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	role, ok := pathRole(w, r)
	if !ok {
		return
	}
	var req struct {
		Account string `json:"account"`
	}
	if !decode(w, r, &req) {
		return
	}
	account, ok := parseAddress(w, "account", req.Account)
	if !ok {
		return
	}
	s.done(w, fn(r.Context(), admin, role, account))
}

// adminSet decodes dst and applies a policy setter as the caller. The ledger
// enforces the admin role.
func (s *Server) adminSet(w http.ResponseWriter, r *http.Request, dst any, apply func(ctx context.Context, admin identity.Address) error) {
	admin, ok := caller(w, r)
	if !ok {
		return
	}
	if !decode(w, r, dst) {
		return
	}
	if err := apply(r.Context(), admin); !errors.Is(err, errWritten) {
		s.done(w, err)
	}
}

func levelTable(w http.ResponseWriter, values []int64) (pakt.LevelTable, bool) {
	var t pakt.LevelTable
	if len(values) != len(t) {
		httpx.WriteBadRequest(w, fmt.Sprintf("value must list exactly %d levels", len(t)))
		return t, false
	}
	copy(t[:], values)
	return t, true
}
