// Package api is the HTTP surface the presentation layer talks to. Every
// mutating route acts as the wallet bound to the caller's bearer token.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alexbensimon/pakt/pkg/auth"
	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/httpx"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/observability"
	"github.com/alexbensimon/pakt/pkg/pakt"
)

// History replays persisted events that concern a wallet, either as the
// subject or as a counterparty, with a sequence above after.
type History interface {
	ListConcerning(ctx context.Context, wallet identity.Address, after uint64) ([]events.Event, error)
}

// Config wires a Server. Ledger and Validator are required.
type Config struct {
	Ledger    *pakt.Manager
	Validator auth.Validator
	// Relay serves POST /webhook/verifier when set.
	Relay   http.Handler
	Bus     *events.Bus
	History History
	// Health reports dependency failures on /health.
	Health   func(ctx context.Context) error
	Limiter  *RateLimiter
	Provider *observability.Provider
	// Clock decides whether a pakt has finished. Defaults to the system clock.
	Clock  pakt.Clock
	Logger *slog.Logger
}

type Server struct {
	cfg    Config
	ledger *pakt.Manager
	router chi.Router
	logger *slog.Logger
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Ledger == nil {
		return nil, errors.New("api: ledger is required")
	}
	if cfg.Validator == nil {
		return nil, errors.New("api: token validator is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = pakt.SystemClock{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		ledger: cfg.Ledger,
		logger: logger.With("component", "api"),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(httpx.RequestID)
	if s.cfg.Provider != nil {
		r.Use(s.cfg.Provider.HTTPMiddleware)
	}
	if s.cfg.Limiter != nil {
		r.Use(s.cfg.Limiter.Middleware)
	}
	r.Use(auth.NewMiddleware(s.cfg.Validator))

	r.Get("/health", s.health)
	if s.cfg.Relay != nil {
		r.Handle("/webhook/verifier", s.cfg.Relay)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Get("/me", s.me)
		api.Get("/events", s.streamEvents)

		api.Post("/links", s.linkWallet)
		api.Get("/sources/{sourceID}/wallet", s.walletOf)

		api.Route("/wallets/{wallet}", func(wr chi.Router) {
			wr.Get("/source", s.sourceOf)
			wr.Get("/pakts", s.listPakts)
			wr.Get("/pakts/{index}", s.getPakt)
			wr.Post("/pakts/{index}/verify", s.markVerified)
			wr.Get("/goal-types/{goalType}/active", s.goalTypeActive)
		})

		api.Route("/me/pakts", func(pr chi.Router) {
			pr.Post("/", s.createPakt)
			pr.Post("/{index}/extend", s.extendPakt)
			pr.Post("/{index}/unlock", s.unlockFunds)
			pr.Post("/{index}/fail", s.failPakt)
			pr.Post("/{index}/end", s.endCustomPakt)
		})

		api.Get("/ledger", s.ledgerInfo)
		api.Get("/policy", s.policy)
		api.Get("/interest", s.interest)
		api.Get("/roles/{role}", s.roleMembers)
		api.Post("/roles/{role}/renounce", s.renounceRole)

		api.Route("/token", func(tr chi.Router) {
			tr.Get("/", s.tokenInfo)
			tr.Get("/balances/{wallet}", s.balance)
			tr.Get("/allowances/{owner}/{spender}", s.allowance)
			tr.Post("/approve", s.approve)
			tr.Post("/transfer", s.transfer)
			tr.Post("/mint", s.mint)
			tr.Post("/burn", s.burn)
			tr.Post("/pause", s.pause)
			tr.Post("/unpause", s.unpause)
		})

		api.Get("/native/balances/{wallet}", s.nativeBalance)

		api.Route("/admin", func(ar chi.Router) {
			ar.Post("/withdraw", s.withdraw)
			ar.Post("/reserve", s.fundReserve)
			ar.Post("/native/deposit", s.depositNative)
			ar.Put("/policy/goal-type-count", s.setGoalTypeCount)
			ar.Put("/policy/max-stake-by-level", s.setMaxStake)
			ar.Put("/policy/interest-rate-by-level", s.setInterestRates)
			ar.Put("/policy/burn-interest-ratio", s.setBurnRatio)
			ar.Put("/policy/unlock-fee", s.setUnlockFee)
			ar.Post("/roles/{role}/grant", s.grantRole)
			ar.Post("/roles/{role}/revoke", s.revokeRole)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Health != nil {
		if err := s.cfg.Health(r.Context()); err != nil {
			s.logger.Warn("health check failed", "error", err)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// caller returns the authenticated wallet, writing a 401 when absent.
func caller(w http.ResponseWriter, r *http.Request) (identity.Address, bool) {
	wallet, err := auth.WalletFrom(r.Context())
	if err != nil {
		httpx.WriteUnauthorized(w, "")
		return identity.ZeroAddress, false
	}
	return wallet, true
}

// done writes the outcome of a mutation with no result body.
func (s *Server) done(w http.ResponseWriter, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
