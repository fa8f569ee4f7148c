package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tg_payment_link_bot/internal/access"
	"tg_payment_link_bot/internal/bot"
	"tg_payment_link_bot/internal/config"
	"tg_payment_link_bot/internal/health"
	"tg_payment_link_bot/internal/link"
	"tg_payment_link_bot/internal/logging"
	"tg_payment_link_bot/internal/session"
	"tg_payment_link_bot/internal/stripe"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	healthShutdownTimeout   = 5 * time.Second
	telegramShutdownTimeout = 10 * time.Second
)

func main() {
	configOnly := flag.Bool("config-only", false, "load and print configuration then exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logging.Error("configuration error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.Setup(cfg)
	if err != nil {
		logging.Error("logger setup error", logging.Fields{"error": err})
		fmt.Fprintf(os.Stderr, "logger setup error: %v\n", err)
		os.Exit(1)
	}

	if *configOnly {
		logging.Info("configuration check", logging.Fields{"event": "config_only"})
		fmt.Println("configuration check: ok")
		fmt.Println(config.FormatRedacted(cfg))
		return
	}

	logger.WithFields(logging.Fields{
		"event":    "startup",
		"currency": cfg.Currency,
	}).Info("configuration loaded")

	policy, err := access.LoadPolicy(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("access list load error")
		fmt.Fprintf(os.Stderr, "access list load error: %v\n", err)
		os.Exit(1)
	}

	logger.WithFields(logging.Fields{
		"event":            "access_ready",
		"whitelist_size":   policy.WhitelistSize(),
		"blacklist_size":   policy.BlacklistSize(),
		"only_whitelisted": cfg.OnlyWhitelisted,
	}).Info("access lists loaded")

	stripeClient, err := stripe.NewClient(cfg, logger)
	if err != nil {
		logger.WithError(err).Error("stripe client setup error")
		fmt.Fprintf(os.Stderr, "stripe client setup error: %v\n", err)
		os.Exit(1)
	}

	var sessions session.Store
	var mongoSessions *session.MongoStore

	if cfg.SessionsInMongo() {
		connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
		mongoSessions, err = session.NewMongoStore(connectCtx, cfg)
		cancel()
		if err != nil {
			logger.WithError(err).Error("mongo connection error")
			fmt.Fprintf(os.Stderr, "mongo connection error: %v\n", err)
			os.Exit(1)
		}

		indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
		if err := mongoSessions.EnsureIndexes(indexCtx); err != nil {
			cancelIndexes()
			logger.WithError(err).Error("mongo index setup error")
			fmt.Fprintf(os.Stderr, "mongo index setup error: %v\n", err)
			os.Exit(1)
		}
		cancelIndexes()

		sessions = mongoSessions
		logger.WithField("event", "sessions_mongo").Info("using mongo-backed session store")
	} else {
		sessions = session.NewMemoryStore()
		logger.WithField("event", "sessions_memory").Info("using in-memory session store")
	}

	issuer := link.NewIssuer(stripeClient, cfg.Currency, logger)
	handlers := bot.NewHandlers(policy, sessions, stripeClient, issuer, logger)

	tgClient, err := bot.NewClient(cfg, handlers, logger)
	if err != nil {
		logger.WithError(err).Error("telegram client setup error")
		fmt.Fprintf(os.Stderr, "telegram client setup error: %v\n", err)
		os.Exit(1)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	healthOpts := make([]health.Option, 0, 1)
	if mongoSessions != nil {
		healthOpts = append(healthOpts, health.WithSessionChecker(mongoSessions))
	}

	healthServer := health.NewServer(cfg.HTTPPort, stripeClient, logger, healthOpts...)
	go func() {
		if err := healthServer.ListenAndServe(); err != nil {
			logger.WithError(err).Error("health server error")
		}
	}()

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})

	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, stopping telegram polling")
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	healthCtx, cancelHealth := context.WithTimeout(context.Background(), healthShutdownTimeout)
	if err := healthServer.Shutdown(healthCtx); err != nil {
		logger.WithError(err).Error("health server shutdown error")
	}
	cancelHealth()

	if mongoSessions != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
		if err := mongoSessions.Close(shutdownCtx); err != nil {
			logger.WithError(err).Error("mongo disconnect error")
		} else {
			logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
		}
		cancelShutdown()
	}

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}
