package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	cfhttp "github.com/Strob0t/EscrowBoard/internal/adapter/http"
	ledgeradapter "github.com/Strob0t/EscrowBoard/internal/adapter/ledger"
	cfnats "github.com/Strob0t/EscrowBoard/internal/adapter/nats"
	cfotel "github.com/Strob0t/EscrowBoard/internal/adapter/otel"
	"github.com/Strob0t/EscrowBoard/internal/adapter/ws"
	"github.com/Strob0t/EscrowBoard/internal/config"
	"github.com/Strob0t/EscrowBoard/internal/logger"
	"github.com/Strob0t/EscrowBoard/internal/middleware"
	"github.com/Strob0t/EscrowBoard/internal/port/eventbus"
	"github.com/Strob0t/EscrowBoard/internal/port/messagequeue"
	"github.com/Strob0t/EscrowBoard/internal/resilience"
	"github.com/Strob0t/EscrowBoard/internal/service"
)

const (
	shutdownTimeout     = 10 * time.Second
	rateCleanupInterval = 5 * time.Minute
	rateMaxIdle         = 10 * time.Minute
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the board HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

// serve wires the board and runs the HTTP server until ctx is canceled.
func serve(ctx context.Context, cfg *config.Config) error {
	log, closer := logger.New(cfg.Logging)
	defer closer.Close()
	slog.SetDefault(log)

	shutdownOTEL, err := cfotel.Setup(ctx, cfotel.Config{
		Enabled:     cfg.OTEL.Enabled,
		Endpoint:    cfg.OTEL.Endpoint,
		ServiceName: cfg.Logging.Service,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownOTEL(context.Background()); err != nil {
			slog.Error("otel shutdown", "error", err)
		}
	}()

	// NATS is optional: without it events stay in-process and the cache is local.
	var (
		queue           *cfnats.Queue
		cacheKV, idemKV jetstream.KeyValue
	)
	if cfg.NATS.URL != "" {
		queue, err = cfnats.Connect(ctx, cfg.NATS.URL, cfg.NATS.Stream)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Error("nats drain", "error", err)
			}
		}()
		if cacheKV, err = queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL); err != nil {
			return err
		}
		if idemKV, err = queue.KeyValue(ctx, cfg.Idempotency.Bucket, cfg.Idempotency.TTL); err != nil {
			return err
		}
	}

	readCache, closeCache, err := newCache(cfg, cacheKV)
	if err != nil {
		return err
	}
	defer closeCache()

	be, err := openBackend(ctx, cfg, readCache)
	if err != nil {
		return err
	}
	defer be.close()

	ledger, err := newLedger(ctx, cfg)
	if err != nil {
		return err
	}

	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return err
	}

	board := service.NewBoardService(be.store, ledger, be.arbiters, &cfg.Board)
	reader := service.NewTaskReader(be.store, readCache, cfg.Cache.TaskTTL)
	board.SetReader(reader)
	board.SetMetrics(metrics)

	// With NATS, the feed and the task cache follow the stream so every
	// replica sees every replica's commits; without it the hub receives
	// events in-process.
	hub := ws.NewHub(cfg.Server.CORSOrigin)
	var publisher eventbus.Publisher = hub
	health := be.health
	health["ledger"] = ledgerHealth(ledger)
	if queue != nil {
		publisher = cfnats.NewEventPublisher(queue)
		for name, handler := range map[string]messagequeue.Handler{
			"feed relay":       hub.Relay,
			"task cache evict": reader.HandleEvent,
		} {
			stop, err := queue.Subscribe(ctx, messagequeue.SubjectAll, handler)
			if err != nil {
				return fmt.Errorf("subscribe %s: %w", name, err)
			}
			defer stop()
		}
		health["nats"] = func(context.Context) error {
			if !queue.IsConnected() {
				return errors.New("nats disconnected")
			}
			return nil
		}
	}
	board.SetPublisher(publisher)

	limiter := middleware.NewRateLimiter(cfg.Rate.RequestsPerSecond, cfg.Rate.Burst)
	stopCleanup := limiter.StartCleanup(rateCleanupInterval, rateMaxIdle)
	defer stopCleanup()

	r := chi.NewRouter()
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cfotel.HTTPMiddleware(cfg.Logging.Service))

	routes := cfhttp.RouteConfig{RateLimit: limiter.Handler, Feed: hub.HandleWS}
	if idemKV != nil {
		routes.Idempotency = idemKV
	}
	cfhttp.MountRoutes(r, &cfhttp.Handlers{Board: board, Health: health}, routes)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", addr, "backend", cfg.Board.Backend, "custody", board.Custody())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// ledgerHealth reports the ledger as unhealthy while its breaker is open.
func ledgerHealth(l *ledgeradapter.Guarded) cfhttp.HealthCheck {
	return func(context.Context) error {
		if l.State() == resilience.StateOpen {
			return errors.New("ledger circuit open")
		}
		return nil
	}
}
