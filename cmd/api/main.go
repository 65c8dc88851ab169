package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/fastprodman/creditledger/internal/api"
	"github.com/fastprodman/creditledger/internal/auth"
	"github.com/fastprodman/creditledger/internal/infra/logging"
	"github.com/fastprodman/creditledger/internal/infra/pgutils"
	"github.com/fastprodman/creditledger/internal/infra/redisutil"
	"github.com/fastprodman/creditledger/internal/repos/credits"
	memcredits "github.com/fastprodman/creditledger/internal/repos/credits/memory"
	pgcredits "github.com/fastprodman/creditledger/internal/repos/credits/postgres"
	rediscredits "github.com/fastprodman/creditledger/internal/repos/credits/redis"
	"github.com/fastprodman/creditledger/internal/services/eligibility"
	"github.com/fastprodman/creditledger/internal/services/ledger"
	"github.com/fastprodman/creditledger/internal/services/refund"
	"github.com/fastprodman/creditledger/pkg/envconf"
	"github.com/fastprodman/creditledger/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg, envconf.WithConfigFile(os.Getenv("APP_CONFIG_FILE")))
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = cfg.validate()
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	log := logging.SetupJSON("creditledger-api", cfg.LogLevel)
	queue := shutdownqueue.New(log)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := queue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	store, err := openStore(ctx, cfg, queue)
	if err != nil {
		return err
	}

	// --- Services ---
	ledgerSvc := ledger.New(store,
		ledger.WithStartingCredits(cfg.Ledger.StartingCredits),
		ledger.WithMaxBalance(cfg.Ledger.MaxBalance),
		ledger.WithMaxRetries(cfg.Ledger.MaxRetries),
		ledger.WithLogger(log),
	)

	svc := api.Services{
		Ledger: ledgerSvc,
		Eligibility: eligibility.New(ledgerSvc,
			eligibility.WithSessionCost(cfg.Ledger.SessionCost),
			eligibility.WithLogger(log),
		),
		Refunds: refund.New(ledgerSvc, log),
	}

	var jwtOpts []auth.JWTOption
	if cfg.Auth.JWTIssuer != "" {
		jwtOpts = append(jwtOpts, auth.WithIssuer(cfg.Auth.JWTIssuer))
	}

	resolver, err := auth.NewJWTResolver(cfg.Auth.JWTSecret, jwtOpts...)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, api.NewRouter(svc, resolver, log))

	queue.Add("http server", func(c context.Context) error {
		log.Info("shutting down http server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		serr := srv.ListenAndServe()
		// http.ErrServerClosed is the normal path during Shutdown
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	})

	log.Info("api started", slog.Uint64("port", uint64(cfg.Port)), slog.String("store", cfg.StoreDriver))

	<-gctx.Done()

	// on a signal the deferred queue stops the server
	if ctx.Err() != nil {
		return nil
	}

	return g.Wait()
}

func openStore(ctx context.Context, cfg *apiConfig, queue *shutdownqueue.Queue) (credits.Store, error) {
	switch cfg.StoreDriver {
	case driverPostgres:
		db, err := pgutils.OpenDB(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}

		queue.Add("postgres pool", func(context.Context) error { return db.Close() })

		return pgcredits.New(db), nil
	case driverRedis:
		rdb, err := redisutil.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis: %w", err)
		}

		queue.Add("redis client", func(context.Context) error { return rdb.Close() })

		return rediscredits.New(rdb), nil
	default:
		return memcredits.New(), nil
	}
}
