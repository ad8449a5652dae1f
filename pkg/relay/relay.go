// Package relay implements the verifier webhook. It authenticates the
// caller's Google account, cross-checks it against the wallet's link, and
// calls the ledger as the verifier when the checks pass.
package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/alexbensimon/pakt/pkg/credentials"
	"github.com/alexbensimon/pakt/pkg/fitness"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/observability"
	"github.com/alexbensimon/pakt/pkg/pakt"
)

// Actions.
const (
	ActionLinkSourceID     = "LINK_SOURCE_ID"
	ActionVerifyCommitment = "VERIFY_COMMITMENT"
	actionVerifyPakt       = "VERIFY_PAKT"
)

// Messages returned with 403.
const (
	MsgWalletLinked     = "This wallet has already been linked to a Google account."
	MsgSourceLinked     = "This Google account has already been linked to another wallet."
	MsgIdentityMismatch = "The Google account used is not the one linked to the user wallet."
	MsgPaktNotFound     = "Pakt not found."
	MsgPaktInactive     = "Pakt is not active."
	MsgPaktCustom       = "Custom pakts are verified by their owner."
	MsgPaktNotFinished  = "Pakt is not finished yet."
	MsgManualInput      = "Remove manual input to be able to use Pakt."
	MsgGoalNotReached   = "Goal not reached."
	MsgGoalUnsupported  = "This goal type cannot be verified with Google Fit data."
	msgInvalidRequest   = "Invalid request."
	msgUpstreamFailure  = "Could not reach Google. Please try again."
	msgInternalFailure  = "Verification failed."
)

const maxBody = 64 << 10

// Ledger is the part of the ledger the relay drives.
type Ledger interface {
	SourceIDOf(wallet identity.Address) (*big.Int, bool)
	WalletOf(sourceID *big.Int) (identity.Address, bool)
	Pakt(wallet identity.Address, index int) (pakt.Pakt, error)
	LinkWallet(ctx context.Context, caller, wallet identity.Address, sourceID *big.Int) error
	MarkVerified(ctx context.Context, caller, wallet identity.Address, index int) error
}

// Authenticator resolves an authorization code to a Google account.
type Authenticator interface {
	Authenticate(ctx context.Context, code string) (*credentials.Session, error)
}

// Measurer computes the daily average achievement over a period.
type Measurer interface {
	Measure(ctx context.Context, goalType pakt.GoalType, start, end time.Time, accessToken string) (int64, error)
}

// Evaluator decides whether a measurement meets the goal.
type Evaluator interface {
	Evaluate(goalType pakt.GoalType, level pakt.Level, result int64) (bool, error)
}

// Tracker records one relay call. observability.Provider satisfies it.
type Tracker interface {
	TrackOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error))
}

// Config wires a Handler.
type Config struct {
	Ledger    Ledger
	Auth      Authenticator
	Fitness   Measurer
	Evaluator Evaluator
	// Verifier is the account holding the verifier role on the ledger.
	Verifier identity.Address
	Clock    pakt.Clock
	Tracker  Tracker
	Logger   *slog.Logger
}

// Handler serves POST /webhook/verifier.
type Handler struct {
	cfg    Config
	schema *jsonschema.Schema
	logger *slog.Logger
}

func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Ledger == nil || cfg.Auth == nil || cfg.Fitness == nil || cfg.Evaluator == nil {
		return nil, errors.New("relay: ledger, auth, fitness and evaluator are required")
	}
	if cfg.Verifier.IsZero() {
		return nil, errors.New("relay: verifier address required")
	}
	if cfg.Clock == nil {
		cfg.Clock = pakt.SystemClock{}
	}
	schema, err := compileSchema()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{cfg: cfg, schema: schema, logger: logger.With("component", "relay")}, nil
}

// Request is the webhook payload. PaktOwner and PaktIndex are accepted as
// aliases of WalletAddress and CommitmentIndex.
type Request struct {
	Action          string `json:"action"`
	AuthCode        string `json:"authCode"`
	WalletAddress   string `json:"walletAddress,omitempty"`
	PaktOwner       string `json:"paktOwner,omitempty"`
	CommitmentIndex *int   `json:"commitmentIndex,omitempty"`
	PaktIndex       *int   `json:"paktIndex,omitempty"`
}

func (r Request) wallet() string {
	if r.WalletAddress != "" {
		return r.WalletAddress
	}
	return r.PaktOwner
}

func (r Request) index() int {
	if r.CommitmentIndex != nil {
		return *r.CommitmentIndex
	}
	if r.PaktIndex != nil {
		return *r.PaktIndex
	}
	return -1
}

// outcome is the HTTP result of one call.
type outcome struct {
	status int
	body   string
	err    error
}

func ok() outcome                  { return outcome{status: http.StatusOK, body: "OK"} }
func forbidden(msg string) outcome { return outcome{status: http.StatusForbidden, body: msg} }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.decode(r.Body)
	var out outcome
	if err != nil {
		out = outcome{status: http.StatusForbidden, body: msgInvalidRequest, err: err}
	} else {
		out = h.handle(r.Context(), req)
	}

	if out.err != nil {
		h.logger.WarnContext(r.Context(), "verifier webhook rejected",
			"action", req.Action, "wallet", req.wallet(), "status", out.status, "error", out.err)
	} else if out.status != http.StatusOK {
		h.logger.InfoContext(r.Context(), "verifier webhook refused",
			"action", req.Action, "wallet", req.wallet(), "reason", out.body)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(out.status)
	_, _ = io.WriteString(w, out.body)
}

func (h *Handler) decode(body io.Reader) (Request, error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBody))
	if err != nil {
		return Request{}, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return Request{}, fmt.Errorf("malformed json: %w", err)
	}
	if err := h.schema.Validate(doc); err != nil {
		return Request{}, fmt.Errorf("schema: %w", err)
	}
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	if req.Action == actionVerifyPakt {
		req.Action = ActionVerifyCommitment
	}
	return req, nil
}

func (h *Handler) handle(ctx context.Context, req Request) (out outcome) {
	if h.cfg.Tracker != nil {
		var done func(error)
		ctx, done = h.cfg.Tracker.TrackOperation(ctx, "relay."+req.Action,
			observability.RelayOperation(req.Action)...)
		defer func() {
			done(out.err)
		}()
	}

	wallet, err := identity.ParseAddress(req.wallet())
	if err != nil {
		return outcome{status: http.StatusForbidden, body: msgInvalidRequest, err: err}
	}
	session, err := h.cfg.Auth.Authenticate(ctx, req.AuthCode)
	if err != nil {
		return outcome{status: http.StatusBadGateway, body: msgUpstreamFailure, err: err}
	}

	switch req.Action {
	case ActionLinkSourceID:
		return h.link(ctx, wallet, session)
	default:
		return h.verify(ctx, wallet, req.index(), session)
	}
}

func (h *Handler) link(ctx context.Context, wallet identity.Address, s *credentials.Session) outcome {
	if _, linked := h.cfg.Ledger.SourceIDOf(wallet); linked {
		return forbidden(MsgWalletLinked)
	}
	if _, linked := h.cfg.Ledger.WalletOf(s.SourceID); linked {
		return forbidden(MsgSourceLinked)
	}
	if err := h.cfg.Ledger.LinkWallet(ctx, h.cfg.Verifier, wallet, s.SourceID); err != nil {
		return h.ledgerFailure(err)
	}
	return ok()
}

func (h *Handler) verify(ctx context.Context, wallet identity.Address, index int, s *credentials.Session) outcome {
	linked, found := h.cfg.Ledger.SourceIDOf(wallet)
	if !found || linked.Cmp(s.SourceID) != 0 {
		return forbidden(MsgIdentityMismatch)
	}
	p, err := h.cfg.Ledger.Pakt(wallet, index)
	if err != nil {
		return forbidden(MsgPaktNotFound)
	}
	switch {
	case !p.Active:
		return forbidden(MsgPaktInactive)
	case p.GoalType.IsCustom():
		return forbidden(MsgPaktCustom)
	case !p.Finished(h.cfg.Clock.Now()):
		return forbidden(MsgPaktNotFinished)
	}

	result, err := h.cfg.Fitness.Measure(ctx, p.GoalType, p.StartTime, p.EndTime, s.AccessToken)
	switch {
	case errors.Is(err, fitness.ErrManualInput):
		return forbidden(MsgManualInput)
	case errors.Is(err, fitness.ErrUnsupportedGoalType):
		return forbidden(MsgGoalUnsupported)
	case err != nil:
		return outcome{status: http.StatusBadGateway, body: msgUpstreamFailure, err: err}
	}
	passed, err := h.cfg.Evaluator.Evaluate(p.GoalType, p.Level, result)
	switch {
	case errors.Is(err, fitness.ErrUnsupportedGoalType):
		return forbidden(MsgGoalUnsupported)
	case err != nil:
		return outcome{status: http.StatusInternalServerError, body: msgInternalFailure, err: err}
	}
	if !passed {
		return forbidden(MsgGoalNotReached)
	}

	if err := h.cfg.Ledger.MarkVerified(ctx, h.cfg.Verifier, wallet, index); err != nil {
		return h.ledgerFailure(err)
	}
	h.logger.InfoContext(ctx, "pakt verified", "wallet", wallet.Hex(), "index", index, "result", result)
	return ok()
}

// ledgerFailure maps a rejected ledger call. State can change between the
// relay's own checks and the call.
func (h *Handler) ledgerFailure(err error) outcome {
	var le *pakt.Error
	if errors.As(err, &le) {
		msg := le.Error()
		switch le.Kind {
		case pakt.KindWalletAlreadyLinked:
			msg = MsgWalletLinked
		case pakt.KindSourceIDAlreadyLinked:
			msg = MsgSourceLinked
		case pakt.KindMustBeActive:
			msg = MsgPaktInactive
		case pakt.KindNotFinishedYet:
			msg = MsgPaktNotFinished
		}
		return outcome{status: http.StatusForbidden, body: msg, err: err}
	}
	return outcome{status: http.StatusInternalServerError, body: msgInternalFailure, err: err}
}
