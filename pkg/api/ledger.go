package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/httpx"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/pakt"
)

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	wallet, ok := caller(w, r)
	if !ok {
		return
	}
	resp := map[string]any{
		"wallet":  wallet.Hex(),
		"balance": amountString(s.ledger.Token().BalanceOf(wallet)),
	}
	if id, linked := s.ledger.SourceIDOf(wallet); linked {
		resp["sourceId"] = id.String()
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (s *Server) linkWallet(w http.ResponseWriter, r *http.Request) {
	verifier, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		Wallet   string `json:"wallet"`
		SourceID string `json:"sourceId"`
	}
	if !decode(w, r, &req) {
		return
	}
	wallet, ok := parseAddress(w, "wallet", req.Wallet)
	if !ok {
		return
	}
	sourceID, err := identity.ParseSourceID(req.SourceID)
	if err != nil {
		httpx.WriteBadRequest(w, "sourceId: "+err.Error())
		return
	}
	s.done(w, s.ledger.LinkWallet(r.Context(), verifier, wallet, sourceID))
}

func (s *Server) sourceOf(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	id, linked := s.ledger.SourceIDOf(wallet)
	if !linked {
		httpx.WriteNotFound(w, "wallet has no linked source id")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"wallet": wallet.Hex(), "sourceId": id.String()})
}

func (s *Server) walletOf(w http.ResponseWriter, r *http.Request) {
	sourceID, err := identity.ParseSourceID(chi.URLParam(r, "sourceID"))
	if err != nil {
		httpx.WriteBadRequest(w, "sourceId: "+err.Error())
		return
	}
	wallet, linked := s.ledger.WalletOf(sourceID)
	if !linked {
		httpx.WriteNotFound(w, "source id is not linked")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"wallet": wallet.Hex(), "sourceId": sourceID.String()})
}

func (s *Server) listPakts(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	now := s.cfg.Clock.Now()
	list := s.ledger.Pakts(wallet)
	out := make([]paktView, len(list))
	for i, p := range list {
		out[i] = s.viewPakt(i, p, now)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"wallet": wallet.Hex(), "pakts": out})
}

func (s *Server) getPakt(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	p, err := s.ledger.Pakt(wallet, index)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s.viewPakt(index, p, s.cfg.Clock.Now()))
}

func (s *Server) goalTypeActive(w http.ResponseWriter, r *http.Request) {
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	goalType, ok := parseUint8(w, "goalType", chi.URLParam(r, "goalType"))
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{
		"active": s.ledger.IsGoalTypeActive(wallet, pakt.GoalType(goalType)),
	})
}

func (s *Server) markVerified(w http.ResponseWriter, r *http.Request) {
	verifier, ok := caller(w, r)
	if !ok {
		return
	}
	wallet, ok := pathAddress(w, r, "wallet")
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	s.done(w, s.ledger.MarkVerified(r.Context(), verifier, wallet, index))
}

func (s *Server) createPakt(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	var req struct {
		GoalType    uint8  `json:"goalType"`
		Level       uint8  `json:"level"`
		Amount      string `json:"amount"`
		Description string `json:"description"`
	}
	if !decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, "amount", req.Amount)
	if !ok {
		return
	}
	index, err := s.ledger.CreatePakt(r.Context(), owner, pakt.GoalType(req.GoalType), pakt.Level(req.Level), amount, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	p, err := s.ledger.Pakt(owner, index)
	if err != nil {
		writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, s.viewPakt(index, p, s.cfg.Clock.Now()))
}

func (s *Server) extendPakt(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
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
	s.done(w, s.ledger.ExtendPakt(r.Context(), owner, index, amount))
}

// unlockFunds takes the native payment as the body's value, which must equal
// the current unlock fee.
func (s *Server) unlockFunds(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req struct {
		Value string `json:"value"`
	}
	if !decode(w, r, &req) {
		return
	}
	value, ok := parseAmount(w, "value", req.Value)
	if !ok {
		return
	}
	s.done(w, s.ledger.UnlockFunds(r.Context(), owner, index, value))
}

func (s *Server) failPakt(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	s.done(w, s.ledger.FailPakt(r.Context(), owner, index))
}

func (s *Server) endCustomPakt(w http.ResponseWriter, r *http.Request) {
	owner, ok := caller(w, r)
	if !ok {
		return
	}
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var req struct {
		Success bool `json:"success"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.done(w, s.ledger.EndCustomPakt(r.Context(), owner, index, req.Success))
}

func (s *Server) ledgerInfo(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"address":         s.ledger.Address().Hex(),
		"feeBalance":      amountString(s.ledger.FeeBalance()),
		"lockedPrincipal": amountString(s.ledger.LockedPrincipal()),
		"reserve":         amountString(s.ledger.Reserve()),
	})
}

func (s *Server) policy(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, viewPolicy(s.ledger.Policy()))
}

// interest previews the settlement interest for ?amount=&level= under the
// current policy.
func (s *Server) interest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, ok := parseAmount(w, "amount", q.Get("amount"))
	if !ok {
		return
	}
	level, ok := parseUint8(w, "level", q.Get("level"))
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"amount":   amount.String(),
		"interest": amountString(s.ledger.ComputeInterest(amount, pakt.Level(level))),
	})
}

func (s *Server) roleMembers(w http.ResponseWriter, r *http.Request) {
	role, ok := pathRole(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"role":    string(role),
		"members": addressList(s.ledger.RoleMembers(role)),
	})
}

func (s *Server) renounceRole(w http.ResponseWriter, r *http.Request) {
	account, ok := caller(w, r)
	if !ok {
		return
	}
	role, ok := pathRole(w, r)
	if !ok {
		return
	}
	s.done(w, s.ledger.RenounceRole(r.Context(), account, role))
}

func pathRole(w http.ResponseWriter, r *http.Request) (authz.Role, bool) {
	role, err := authz.ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.WriteBadRequest(w, err.Error())
		return "", false
	}
	return role, true
}
