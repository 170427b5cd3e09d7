package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/token_ledger/internal/account"
	"github.com/congo-pay/token_ledger/internal/allowlist"
	"github.com/congo-pay/token_ledger/internal/auth"
	"github.com/congo-pay/token_ledger/internal/balance"
	"github.com/congo-pay/token_ledger/internal/config"
	"github.com/congo-pay/token_ledger/internal/counterpart"
	"github.com/congo-pay/token_ledger/internal/events"
	"github.com/congo-pay/token_ledger/internal/infra"
	"github.com/congo-pay/token_ledger/internal/ledger"
	"github.com/congo-pay/token_ledger/internal/metadata"
	"github.com/congo-pay/token_ledger/internal/metrics"
	"github.com/congo-pay/token_ledger/internal/routes"
	"github.com/congo-pay/token_ledger/internal/runtime"
	"github.com/congo-pay/token_ledger/internal/token"
)

const (
	devOwner       = "owner.near"
	devTotalSupply = "1000000000000000000000000000"
)

// Server wraps the Fiber application, the executor and shared dependencies.
type Server struct {
	app    *fiber.App
	cfg    config.Config
	exec   *runtime.Executor
	token  *token.Service
	issuer *auth.Issuer
	logger *slog.Logger
}

// New opens the token instance, initializing it on first start, and wires
// the HTTP routes. db and cache may be nil in development.
func New(ctx context.Context, cfg config.Config, db *pgxpool.Pool, cache *redis.Client, logger *slog.Logger) (*Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var ledgerBackend ledger.Ledger
	if db != nil {
		if err := infra.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		ledgerBackend = ledger.NewPostgresLedger(db)
	} else {
		ledgerBackend = ledger.NewInMemory()
	}

	allow, err := newAllowlist(cfg, db, cache)
	if err != nil {
		return nil, err
	}
	dispatcher, err := newDispatcher(cfg, logger)
	if err != nil {
		return nil, err
	}

	exec, err := runtime.New(runtime.Config{
		Account:    cfg.ContractAccount,
		Dispatcher: dispatcher,
		Logger:     logger,
		Metrics:    m,
		GasTime:    cfg.GasTime,
	})
	if err != nil {
		return nil, err
	}

	svc, err := openToken(ctx, cfg, token.Deps{
		Ledger:    ledgerBackend,
		Allowlist: allow,
		Executor:  exec,
		Emitter:   events.NewLogEmitter(logger),
		Metrics:   m,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	issuer, err := auth.NewIssuer(cfg.JWTSecret, cfg.AppName, cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	})
	if err := routes.Setup(app, routes.Deps{
		Cfg:      cfg,
		DB:       db,
		Cache:    cache,
		Logger:   logger,
		Token:    svc,
		Issuer:   issuer,
		Registry: reg,
	}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg, exec: exec, token: svc, issuer: issuer, logger: logger}, nil
}

func openToken(ctx context.Context, cfg config.Config, deps token.Deps) (*token.Service, error) {
	params := token.Params{
		Contract:         cfg.ContractAccount,
		Owner:            cfg.OwnerAccount,
		TotalSupply:      cfg.TotalSupply,
		StorageBytePrice: cfg.StorageBytePrice,
	}

	svc, err := token.Open(ctx, params, deps)
	if err == nil {
		return svc, nil
	}
	if !errors.Is(err, ledger.ErrNotInitialized) {
		return nil, fmt.Errorf("open token: %w", err)
	}

	if params.Owner == "" || params.TotalSupply.IsZero() {
		if !cfg.IsDev() {
			return nil, errors.New("OWNER_ACCOUNT and TOTAL_SUPPLY must be set to initialize the token")
		}
		if params.Owner == "" {
			params.Owner = account.MustParse(devOwner)
		}
		if params.TotalSupply.IsZero() {
			params.TotalSupply = balance.MustParse(devTotalSupply)
		}
	}
	if params.Metadata, err = metadata.LoadFile(cfg.MetadataFile); err != nil {
		return nil, err
	}
	return token.Initialize(ctx, params, deps)
}

func newAllowlist(cfg config.Config, db *pgxpool.Pool, cache *redis.Client) (allowlist.Store, error) {
	switch cfg.AllowlistBackend {
	case config.AllowlistMemory:
		return allowlist.NewMemory(), nil
	case config.AllowlistPostgres:
		if db == nil {
			return nil, errors.New("ALLOWLIST_BACKEND=postgres requires DATABASE_URL")
		}
		return allowlist.NewPostgresStore(db), nil
	case config.AllowlistRedis:
		if cache == nil {
			return nil, errors.New("ALLOWLIST_BACKEND=redis requires REDIS_URL")
		}
		return allowlist.NewRedisStore(cache), nil
	}

	switch {
	case db != nil:
		return allowlist.NewPostgresStore(db), nil
	case cache != nil:
		return allowlist.NewRedisStore(cache), nil
	default:
		return allowlist.NewMemory(), nil
	}
}

func newDispatcher(cfg config.Config, logger *slog.Logger) (runtime.Dispatcher, error) {
	if cfg.CounterpartURL != "" {
		return counterpart.NewHTTPDispatcher(cfg.CounterpartURL, logger)
	}
	logger.Warn("COUNTERPART_URL not set, using simulated counterpart", "outcome", cfg.CounterpartStubOutcome)
	return counterpart.NewStatic(counterpart.Outcome(cfg.CounterpartStubOutcome), 0), nil
}

// Token exposes the token instance.
func (s *Server) Token() *token.Service { return s.token }

// Issuer exposes the caller token issuer.
func (s *Server) Issuer() *auth.Issuer { return s.issuer }

// Run serves HTTP and runs the executor until ctx is cancelled. On shutdown
// the listener stops first, then the executor drains in-flight callbacks.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	execCtx, stopExec := context.WithCancel(context.Background())
	defer stopExec()

	g.Go(func() error {
		return s.exec.Run(execCtx)
	})
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", s.cfg.Address())
		return s.app.Listen(s.cfg.Address())
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownPeriod)
		defer cancel()

		err := s.app.ShutdownWithContext(shutdownCtx)
		stopExec()
		select {
		case <-s.exec.Done():
		case <-shutdownCtx.Done():
			s.logger.Warn("executor drain exceeded shutdown timeout")
		}
		return err
	})

	return g.Wait()
}
