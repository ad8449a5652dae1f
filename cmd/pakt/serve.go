package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alexbensimon/pakt/pkg/api"
	"github.com/alexbensimon/pakt/pkg/archive"
	"github.com/alexbensimon/pakt/pkg/authz"
	"github.com/alexbensimon/pakt/pkg/config"
	"github.com/alexbensimon/pakt/pkg/credentials"
	"github.com/alexbensimon/pakt/pkg/events"
	"github.com/alexbensimon/pakt/pkg/fitness"
	"github.com/alexbensimon/pakt/pkg/identity"
	"github.com/alexbensimon/pakt/pkg/observability"
	"github.com/alexbensimon/pakt/pkg/pakt"
	"github.com/alexbensimon/pakt/pkg/relay"
	"github.com/alexbensimon/pakt/pkg/store"
	"github.com/alexbensimon/pakt/pkg/token"
	"github.com/alexbensimon/pakt/pkg/util/resiliency"
)

const shutdownTimeout = 10 * time.Second

// node is one wired ledger process.
type node struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.SQLStore
	emitter      *events.Emitter
	token        *token.Token
	ledger       *pakt.Manager
	bus          *events.Bus
	checkpointer *store.Checkpointer
	provider     *observability.Provider
	redis        *redis.Client
	limiter      *api.RateLimiter
	handler      http.Handler
	// ready is set once state is restored; only then may close snapshot it.
	ready bool
}

func runServer(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	fmt.Fprintf(stdout, "%sPakt ledger starting...%s\n", ColorBold+ColorBlue, ColorReset)
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)
	announceLiteMode(cfg, stdout)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := bootstrap(ctx, cfg, stdout, logger)
	if err != nil {
		return err
	}

	workers, cancelWorkers := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		n.checkpointer.Run(workers, n.ledger, n.emitter)
		close(done)
	}()
	go n.limiter.Run(workers)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           n.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Warn("http shutdown", "error", serr)
	}
	cancelWorkers()
	<-done
	return errors.Join(err, n.close(shutdownCtx))
}

// bootstrap opens storage, restores the last snapshot and wires every
// component behind one HTTP handler.
func bootstrap(ctx context.Context, cfg *config.Config, stdout io.Writer, logger *slog.Logger) (*node, error) {
	admin, err := identity.ParseAddress(cfg.AdminAddress)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_ADDRESS: %w", err)
	}

	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.DataDir)
	if err != nil {
		return nil, err
	}
	n := &node{cfg: cfg, logger: logger, store: st, bus: events.NewBus()}
	ok := false
	defer func() {
		if !ok {
			_ = n.close(context.Background())
		}
	}()

	sinks := events.Multi{events.Journal(st), n.bus}
	if cfg.RedisURL != "" {
		n.redis, err = events.DialRedis(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, events.NewRedisPublisher(n.redis, events.DefaultChannel))
	}
	n.checkpointer = store.NewCheckpointer(st, store.DefaultCheckpointDelay)
	sinks = append(sinks, n.checkpointer.Sink())

	n.emitter = events.NewEmitter(sinks)
	last, err := st.Last(ctx)
	switch {
	case err == nil:
		n.emitter.Resume(last.Sequence, last.Hash)
	case !errors.Is(err, store.ErrJournalEmpty):
		return nil, err
	}

	obs := observability.DefaultConfig()
	obs.Enabled = cfg.OTelEnabled
	obs.OTLPEndpoint = cfg.OTelEndpoint
	if cfg.Production {
		obs.Environment = "production"
	}
	if n.provider, err = observability.New(ctx, obs); err != nil {
		return nil, err
	}

	if err := n.restoreOrDeploy(ctx, admin); err != nil {
		return nil, err
	}
	if err := n.grantServiceRoles(ctx, admin); err != nil {
		return nil, err
	}

	keys, err := loadKeySet(cfg, stdout)
	if err != nil {
		return nil, err
	}
	relayHandler, err := n.newRelay()
	if err != nil {
		return nil, err
	}

	n.limiter = api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	server, err := api.NewServer(api.Config{
		Ledger:    n.ledger,
		Validator: identity.NewTokenManager(keys),
		Relay:     relayHandler,
		Bus:       n.bus,
		History:   st,
		Health:    st.Ping,
		Limiter:   n.limiter,
		Provider:  n.provider,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	n.handler = server
	n.ready = true
	ok = true
	return n, nil
}

// restoreOrDeploy rebuilds the token and ledger from the newest snapshot,
// or deploys fresh ones on first boot. The policy file only seeds a fresh
// ledger; afterwards the persisted policy is authoritative.
func (n *node) restoreOrDeploy(ctx context.Context, admin identity.Address) error {
	snap, err := n.store.LoadSnapshot(ctx)
	if err != nil && !errors.Is(err, store.ErrNoSnapshot) {
		return err
	}

	tokCfg := token.DefaultConfig(admin)
	if snap != nil {
		tokCfg.InitialSupply = nil
	}
	if n.token, err = token.New(tokCfg, n.emitter); err != nil {
		return err
	}

	opts := []pakt.Option{
		pakt.WithEmitter(n.emitter),
		pakt.WithObserver(n.provider),
		pakt.WithLogger(n.logger.With("component", "pakt")),
	}
	if snap == nil && n.cfg.PolicyFile != "" {
		policy, err := config.LoadPolicy(n.cfg.PolicyFile)
		if err != nil {
			return err
		}
		opts = append(opts, pakt.WithPolicy(policy))
	}
	if n.ledger, err = pakt.New(n.token, admin, opts...); err != nil {
		return err
	}

	if snap == nil {
		n.logger.Info("deployed fresh ledger", "admin", admin.Hex(), "ledger", n.ledger.Address().Hex())
		return nil
	}
	if n.cfg.PolicyFile != "" {
		n.logger.Info("policy file ignored, ledger restored from snapshot", "path", n.cfg.PolicyFile)
	}
	if err := n.token.Restore(snap.Token); err != nil {
		return fmt.Errorf("restore token: %w", err)
	}
	if err := n.ledger.Restore(snap.Ledger); err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	if head, _ := n.emitter.Head(); head > snap.Sequence {
		n.logger.Warn("journal is ahead of the newest snapshot", "snapshot", snap.Sequence, "journal", head)
	}
	n.logger.Info("restored ledger", "sequence", snap.Sequence, "taken_at", snap.TakenAt)
	return nil
}

// grantServiceRoles lets the ledger mint and burn and installs the
// configured verifier. Both are no-ops once granted.
func (n *node) grantServiceRoles(ctx context.Context, admin identity.Address) error {
	if !n.token.HasRole(authz.RoleMinter, n.ledger.Address()) {
		if err := n.token.GrantRole(ctx, admin, authz.RoleMinter, n.ledger.Address()); err != nil {
			return fmt.Errorf("grant ledger minter: %w", err)
		}
	}
	if n.cfg.VerifierAddress == "" {
		return nil
	}
	verifier, err := identity.ParseAddress(n.cfg.VerifierAddress)
	if err != nil {
		return fmt.Errorf("VERIFIER_ADDRESS: %w", err)
	}
	if !n.ledger.HasRole(authz.RoleVerifier, verifier) {
		if err := n.ledger.GrantRole(ctx, admin, authz.RoleVerifier, verifier); err != nil {
			return fmt.Errorf("grant verifier: %w", err)
		}
	}
	return nil
}

// newRelay builds the verifier webhook. Without a verifier address the
// webhook is not mounted.
func (n *node) newRelay() (http.Handler, error) {
	if n.cfg.VerifierAddress == "" {
		n.logger.Warn("VERIFIER_ADDRESS not set, verifier webhook disabled")
		return nil, nil
	}
	verifier, err := identity.ParseAddress(n.cfg.VerifierAddress)
	if err != nil {
		return nil, fmt.Errorf("VERIFIER_ADDRESS: %w", err)
	}
	evaluator, err := fitness.NewGoalEvaluator(nil)
	if err != nil {
		return nil, err
	}
	oauth := credentials.NewGoogleOAuth(n.cfg.GoogleClientID, n.cfg.GoogleClientSecret, n.cfg.GoogleRedirectURI,
		credentials.WithHTTPClient(resiliency.NewClient("google-oauth")))
	fit := fitness.NewClient(fitness.WithHTTPClient(resiliency.NewClient("google-fit")))
	h, err := relay.NewHandler(relay.Config{
		Ledger:    n.ledger,
		Auth:      oauth,
		Fitness:   fit,
		Evaluator: evaluator,
		Verifier:  verifier,
		Tracker:   n.provider,
		Logger:    n.logger,
	})
	if err != nil {
		return nil, err
	}
	return h, nil
}

// close saves a final snapshot, archives it when configured and releases
// every connection.
func (n *node) close(ctx context.Context) error {
	var errs []error
	if n.ready {
		snap, err := n.checkpointer.Save(ctx, n.ledger, n.emitter)
		if err != nil {
			errs = append(errs, fmt.Errorf("final snapshot: %w", err))
		} else if n.cfg.ArchiveURL != "" {
			if _, err := archiveSnapshot(ctx, n.cfg.ArchiveURL, snap); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if n.provider != nil {
		errs = append(errs, n.provider.Shutdown(ctx))
	}
	if n.redis != nil {
		errs = append(errs, n.redis.Close())
	}
	errs = append(errs, n.store.Close())
	return errors.Join(errs...)
}

// archiveSnapshot uploads snap and returns its object key.
func archiveSnapshot(ctx context.Context, url string, snap store.Snapshot) (string, error) {
	data, err := store.Encode(snap)
	if err != nil {
		return "", err
	}
	arc, err := archive.Open(ctx, url)
	if err != nil {
		return "", err
	}
	defer arc.Close()
	key := archive.SnapshotKey(snap.Sequence, data)
	if err := arc.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("archive snapshot: %w", err)
	}
	slog.Info("snapshot archived", "key", key, "sequence", snap.Sequence)
	return key, nil
}
