package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"painchain/internal/federation"
	identityhandler "painchain/internal/identity/handler"
	identityservice "painchain/internal/identity/service"
	"painchain/internal/identity/session"
	federatedstore "painchain/internal/identity/store/federated"
	sessionstore "painchain/internal/identity/store/session"
	userstore "painchain/internal/identity/store/user"
	"painchain/internal/identity/token"
	invitationhandler "painchain/internal/invitation/handler"
	invitationservice "painchain/internal/invitation/service"
	invitationstore "painchain/internal/invitation/store"
	"painchain/internal/platform/config"
	"painchain/internal/platform/database"
	"painchain/internal/platform/httpserver"
	"painchain/internal/platform/logger"
	"painchain/internal/platform/metrics"
	redisplatform "painchain/internal/platform/redis"
	"painchain/internal/seeder"
	tenantresolver "painchain/internal/tenant/resolver"
	tenantstore "painchain/internal/tenant/store"
	httptransport "painchain/internal/transport/http"
	"painchain/migrations"
	"painchain/pkg/clock"
)

// main wires the dependency graph and owns the process lifecycle. Business
// logic lives in the internal service packages.
func main() {
	_ = godotenv.Load()

	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()
	clk := clock.System{}

	log.Info("initializing auth core",
		"addr", cfg.Addr,
		"basic_auth", cfg.BasicAuthEnabled,
		"registration", cfg.RegistrationAllowed,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Store selection: Postgres when DATABASE_URL is set, in-memory otherwise.
	// Sessions can additionally move to Redis when REDIS_ADDR is set.
	var (
		users       identityservice.UserStore
		tenants     interface {
			tenantresolver.TenantStore
			identityservice.TenantReader
		}
		sessions    session.Store
		invitations invitationservice.Store
		federated   identityservice.FederatedStore
		healthCheck func(ctx context.Context) error
	)

	dbCfg := database.DefaultConfig()
	dbCfg.URL = cfg.DatabaseURL
	pool, err := database.New(dbCfg)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		if err := database.Migrate(ctx, pool.DB(), migrations.FS); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		users = userstore.NewPostgres(pool.DB())
		tenants = tenantstore.NewPostgres(pool.DB())
		sessions = sessionstore.NewPostgres(pool.DB())
		invitations = invitationstore.NewPostgres(pool.DB())
		federated = federatedstore.NewPostgres(pool.DB())
		healthCheck = pool.Health
		defer pool.Close()
		log.Info("using postgres stores")
	} else {
		users = userstore.NewMemory()
		tenants = tenantstore.NewMemory()
		sessions = sessionstore.NewMemory()
		invitations = invitationstore.NewMemory()
		federated = federatedstore.NewMemory()
		log.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisplatform.New(cfg.RedisAddr)
		if err != nil {
			log.Error("redis connection failed", "error", err)
			os.Exit(1)
		}
		sessions = sessionstore.NewRedis(rdb)
		defer rdb.Close()
		log.Info("using redis session store", "addr", cfg.RedisAddr)
	}

	seed := seeder.New(users, tenants, clk, log)
	if err := seed.Seed(ctx, seeder.Params{
		Email:        cfg.SeedOwnerEmail,
		Password:     cfg.SeedOwnerPassword,
		Organization: cfg.SeedOwnerOrg,
	}); err != nil {
		log.Error("seeding failed", "error", err)
		os.Exit(1)
	}

	tokens := token.New(cfg.SigningSecret, cfg.TokenTTL, clk)
	ledger := session.NewLedger(sessions, cfg.TokenTTL,
		session.WithLogger(log),
		session.WithMetrics(m),
	)
	invitationSvc := invitationservice.New(invitations, tenants,
		invitationservice.WithLogger(log),
		invitationservice.WithMetrics(m),
		invitationservice.WithTTL(cfg.InvitationTTL),
	)
	resolver := tenantresolver.New(tenants, invitationSvc,
		tenantresolver.WithLogger(log),
		tenantresolver.WithMetrics(m),
	)

	identityOpts := []identityservice.Option{
		identityservice.WithLogger(log),
		identityservice.WithMetrics(m),
		identityservice.WithMethods(cfg.BasicAuthEnabled, cfg.RegistrationAllowed),
	}
	if cfg.ProvidersFile != "" {
		registry, err := federation.LoadRegistry(cfg.ProvidersFile)
		if err != nil {
			log.Error("provider registry load failed", "error", err, "path", cfg.ProvidersFile)
			os.Exit(1)
		}
		codec, err := federation.NewTransitCodec(cfg.SigningSecret, cfg.TransitStateTTL, clk)
		if err != nil {
			log.Error("transit codec init failed", "error", err)
			os.Exit(1)
		}
		orch := federation.NewOrchestrator(registry, codec, federation.NewClient(cfg.ProviderHTTPTimeout),
			federation.WithLogger(log),
			federation.WithMetrics(m),
		)
		identityOpts = append(identityOpts, identityservice.WithFederation(orch))
		log.Info("federated login enabled", "providers", len(registry.Enabled()))
	}

	identitySvc := identityservice.New(users, federated, tenants, resolver, invitationSvc, tokens, ledger, identityOpts...)

	router := httptransport.NewRouter(httptransport.Deps{
		Identity:    identityhandler.New(identitySvc, log, cfg.FrontendURL),
		Invitations: invitationhandler.New(invitationSvc, log),
		TokenParser: httptransport.NewIdentityParser(tokens),
		Sessions:    ledger,
		Metrics:     m,
		Logger:      log,
		HealthCheck: healthCheck,
	})

	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.SessionCleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if _, err := ledger.DeleteExpired(gctx); err != nil {
					log.Error("session cleanup failed", "error", err)
				}
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
