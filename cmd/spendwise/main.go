package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwise/internal/amqp"
	"spendwise/internal/auth"
	"spendwise/internal/backend"
	"spendwise/internal/cache"
	"spendwise/internal/cli"
	"spendwise/internal/config"
	apphttp "spendwise/internal/http"
	"spendwise/internal/ledger"
	"spendwise/internal/log"
	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/realtime"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg := cli.MustLoadConfig()
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting spendwise", log.FieldOperation, log.OpStartup, log.FieldBackend, cfg.DataBackend)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	factory := backend.NewFactory(logger)
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := factory.CreateStore(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Store close failed", log.FieldError, err)
		}
	}()

	accounts, err := factory.CreateAccounts(bcfg, res.Store)
	if err != nil {
		return err
	}

	// Without a broker, writes signal this instance's hub directly. With one,
	// every instance hears every write through its own queue, and a failed
	// publish still refreshes local listeners.
	hub := realtime.NewHub()
	var (
		notifier ledger.Notifier = hub
		broker   *amqp.Client
	)
	if cfg.AMQPURL != "" {
		broker, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return err
		}
		defer broker.Close()
		notifier = amqp.NewFallbackNotifier(broker, hub, logger)
	}

	sessions := auth.NewSessions(cfg.SessionTTL)
	caches := cache.NewManager(logger)
	caches.Register(sessions.Cache())

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		CleanupInterval:   5 * time.Minute,
	})

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:               ":" + cfg.Port,
		Location:           loc,
		SecureCookies:      cfg.SessionCookieSecure,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, apphttp.Deps{
		Accounts: accounts,
		Sessions: sessions,
		Ledger:   ledger.New(res.Store, notifier, ledger.WithLogger(logger)),
		Reader:   res.Store,
		Listener: realtime.NewListener(res.Store, hub, logger),
		Pinger:   res.Store,
		Limiter:  limiter,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("Shutting down HTTP server", log.FieldOperation, log.OpShutdown)
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return caches.Run(gctx, time.Minute) })
	g.Go(func() error { return limiter.Run(gctx) })

	if broker != nil {
		g.Go(func() error {
			err := broker.Consume(gctx, amqp.QueueOptions{}, hub.Notify)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	return g.Wait()
}
