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
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/farzanaafroz998-source/FASTgo/internal/advisor"
	"github.com/farzanaafroz998-source/FASTgo/internal/backend"
	"github.com/farzanaafroz998-source/FASTgo/internal/cache"
	"github.com/farzanaafroz998-source/FASTgo/internal/commands"
	"github.com/farzanaafroz998-source/FASTgo/internal/config"
	"github.com/farzanaafroz998-source/FASTgo/internal/dispatch"
	"github.com/farzanaafroz998-source/FASTgo/internal/eta"
	"github.com/farzanaafroz998-source/FASTgo/internal/geo"
	httpapi "github.com/farzanaafroz998-source/FASTgo/internal/http"
	"github.com/farzanaafroz998-source/FASTgo/internal/ingest"
	"github.com/farzanaafroz998-source/FASTgo/internal/lifecycle"
	"github.com/farzanaafroz998-source/FASTgo/internal/logging"
	"github.com/farzanaafroz998-source/FASTgo/internal/matcher"
	"github.com/farzanaafroz998-source/FASTgo/internal/observability"
	"github.com/farzanaafroz998-source/FASTgo/internal/payments"
	"github.com/farzanaafroz998-source/FASTgo/internal/shift"
	"github.com/farzanaafroz998-source/FASTgo/internal/state"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, err := config.LoadServerConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.ServerConfig, logger *slog.Logger) error {
	store := state.New(cfg.Mode())

	hub := dispatch.NewHub(logger)
	defer hub.Close()
	store.Subscribe(hub)
	store.Subscribe(state.ObserverFunc(func(c state.Change) {
		if c.Kind == state.ChangeSync && c.Sync != nil {
			v := 0.0
			if c.Sync.Degraded {
				v = 1
			}
			observability.SyncDegraded.Set(v)
		}
	}))

	var (
		riders geo.Geo = geo.NewIndex()
		rc     *redis.Client
	)
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		riders = geo.NewRedisGeo(rc, cfg.RedisGeoKey, cfg.GeoRadiusM)
	}
	store.Subscribe(geo.Mirror(riders, geo.DefaultMirrorTimeout, logger))

	var est eta.Estimator = eta.StraightLine{SpeedMps: cfg.DefaultSpeedMps}
	if cfg.OSRMEndpoint != "" {
		est = eta.Fallback{Primary: eta.NewOSRMClient(cfg.OSRMEndpoint), Secondary: est}
	}
	est = eta.NewCached(est, cache.NewTTL[string, float64](time.Minute))

	var (
		cmds       commands.Commands
		readyCheck []func(context.Context) error
	)
	if cfg.Mode() == commands.ModeLive {
		if cfg.RunMigrations {
			if err := backend.Migrate(cfg.PGDSN); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}
		pg, err := backend.NewPostgres(cfg.PGDSN, logger)
		if err != nil {
			return err
		}
		defer pg.Close()
		readyCheck = append(readyCheck, pg.Ping)

		opts := commands.LiveOptions{
			Retry:    commands.RetryPolicy{Attempts: cfg.WriteRetryAttempts, Delay: cfg.WriteRetryDelay},
			Timeout:  cfg.WriteThroughTimeout,
			Currency: cfg.StripeCurrency,
		}
		if cfg.StripeAPIKey != "" {
			opts.Payments = payments.NewStripeClient(cfg.StripeAPIKey)
		}
		if len(cfg.KafkaBrokers) > 0 {
			kp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
			defer kp.Close()
			opts.Publisher = kp
		}
		cmds = commands.NewLive(pg, store, logger, opts)

		ing := ingest.NewIngestor(pg, store, logger)
		ingestCtx, stopIngest := context.WithCancel(ctx)
		ingestDone := make(chan struct{})
		go func() {
			defer close(ingestDone)
			_ = ing.Run(ingestCtx)
		}()
		defer func() {
			stopIngest()
			<-ingestDone
		}()
	} else {
		cmds = commands.NewMemory(store, logger)
		logger.Warn("PG_DSN not set, running in mock mode: nothing is persisted")
	}
	if rc != nil {
		readyCheck = append(readyCheck, func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	}

	shifts := shift.NewManager(cmds.UpdateRiderLocation, func(riderID string) {
		if err := riders.Remove(context.Background(), riderID); err != nil {
			logger.Warn("geo remove failed", "rider_id", riderID, "error", err)
		}
	}, logger)
	defer shifts.Close()

	var genClient advisor.Client
	if cfg.GeminiAPIKey != "" {
		g, err := advisor.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Warn("advisor disabled", "error", err)
		} else {
			genClient = g
		}
	}

	srv := httpapi.NewServer(httpapi.Deps{
		Commands: cmds,
		Store:    store,
		Shifts:   shifts,
		Matcher: &matcher.Service{
			Geo:            riders,
			ETA:            est,
			TopN:           cfg.MatcherTopN,
			LoadPenaltySec: cfg.LoadPenaltySec,
			Load: func(riderID string) int {
				return len(lifecycle.ActiveForRider(store.Orders(), riderID))
			},
		},
		Advisor: advisor.New(genClient, cfg.AdvisorTTL, logger),
		Hub:     hub,
		ETA:     est,
		Ready: func(ctx context.Context) error {
			var errs []error
			for _, check := range readyCheck {
				errs = append(errs, check(ctx))
			}
			return errors.Join(errs...)
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("fastgo listening", "addr", cfg.HTTPAddr, "mode", cmds.Mode())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
