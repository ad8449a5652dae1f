package api

import (
	"errors"
	"net/http"

	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/httpx"
	"github.com/alexbensimon/pakt/pkg/pakt"
	"github.com/alexbensimon/pakt/pkg/token"
)

// errWritten tells a wrapping handler its callback already wrote a response.
var errWritten = errors.New("api: response already written")

// kindStatus maps ledger rejections that are not plain 422s.
var kindStatus = map[pakt.Kind]int{
	pakt.KindPaktNotFound:            http.StatusNotFound,
	pakt.KindWalletAlreadyLinked:     http.StatusConflict,
	pakt.KindSourceIDAlreadyLinked:   http.StatusConflict,
	pakt.KindDuplicateActiveGoalType: http.StatusConflict,
	pakt.KindNeedToPayFee:            http.StatusPaymentRequired,
}

// writeError renders err as a Problem Detail. Unrecognized errors become an
// opaque 500.
func writeError(w http.ResponseWriter, err error) {
	var (
		perr  *pakt.Error
		role  *authz.MissingRoleError
		bal   *token.InsufficientBalanceError
		allow *token.InsufficientAllowanceError
	)
	switch {
	case errors.As(err, &perr):
		status, ok := kindStatus[perr.Kind]
		if !ok {
			status = http.StatusUnprocessableEntity
		}
		httpx.WriteProblem(w, &httpx.ProblemDetail{
			Title:  "Ledger Rejected",
			Status: status,
			Detail: perr.Error(),
			Kind:   perr.Kind.String(),
			Params: perr.Params(),
		})
	case errors.As(err, &role):
		httpx.WriteProblem(w, &httpx.ProblemDetail{
			Title:  "Forbidden",
			Status: http.StatusForbidden,
			Detail: role.Error(),
			Kind:   "MissingRole",
			Params: map[string]any{"role": string(role.Role), "account": role.Account.Hex()},
		})
	case errors.Is(err, authz.ErrRenounceForOther):
		httpx.WriteForbidden(w, err.Error())
	case errors.As(err, &bal):
		httpx.WriteProblem(w, &httpx.ProblemDetail{
			Title:  "Insufficient Balance",
			Status: http.StatusUnprocessableEntity,
			Detail: bal.Error(),
			Kind:   "InsufficientBalance",
			Params: map[string]any{"account": bal.Account.Hex(), "balance": bal.Balance.String(), "needed": bal.Needed.String()},
		})
	case errors.As(err, &allow):
		httpx.WriteProblem(w, &httpx.ProblemDetail{
			Title:  "Insufficient Allowance",
			Status: http.StatusUnprocessableEntity,
			Detail: allow.Error(),
			Kind:   "InsufficientAllowance",
			Params: map[string]any{"owner": allow.Owner.Hex(), "spender": allow.Spender.Hex(), "allowance": allow.Allowance.String(), "needed": allow.Needed.String()},
		})
	case errors.Is(err, token.ErrPaused), errors.Is(err, token.ErrNotPaused):
		httpx.WriteConflict(w, err.Error())
	case errors.Is(err, token.ErrZeroAddress), errors.Is(err, token.ErrInvalidAmount), errors.Is(err, pakt.ErrNegativeParameter):
		httpx.WriteBadRequest(w, err.Error())
	default:
		httpx.WriteInternal(w, err)
	}
}
