package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"ai_trade_gateway/internal/auth"
	"ai_trade_gateway/internal/config"
	"ai_trade_gateway/internal/domain"
	"ai_trade_gateway/internal/feature/admin"
	"ai_trade_gateway/internal/feature/user"
	"ai_trade_gateway/internal/feature/whitelist"
	"ai_trade_gateway/internal/health"
	"ai_trade_gateway/internal/httpapi"
	"ai_trade_gateway/internal/logging"
	"ai_trade_gateway/internal/metrics"
	"ai_trade_gateway/internal/session"
	"ai_trade_gateway/internal/store"
	"ai_trade_gateway/internal/telegram"
)

const (
	mongoConnectTimeout     = 10 * time.Second
	mongoIndexTimeout       = 5 * time.Second
	mongoDisconnectTimeout  = 5 * time.Second
	adminBootstrapTimeout   = 5 * time.Second
	httpShutdownTimeout     = 10 * time.Second
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
		"event":     "startup",
		"mongo_db":  cfg.MongoDB,
		"http_port": cfg.HTTPPort,
		"admins":    len(cfg.AdminIDs),
	}).Info("configuration loaded")

	connectCtx, cancel := context.WithTimeout(context.Background(), mongoConnectTimeout)
	mongoManager, err := store.NewManager(connectCtx, cfg)
	cancel()
	if err != nil {
		fatal(logger, "mongo connection error", err)
	}

	logger.WithField("event", "mongo_connect").Info("connected to mongo")

	indexCtx, cancelIndexes := context.WithTimeout(context.Background(), mongoIndexTimeout)
	err = mongoManager.EnsureBaseIndexes(indexCtx)
	cancelIndexes()
	if err != nil {
		fatal(logger, "mongo index setup error", err)
	}

	logger.WithField("event", "mongo_indexes").Info("ensured base mongo indexes")

	adminRegistrar := admin.NewRegistrar(mongoManager.Users(), logging.Component("admin"))
	adminCtx, cancelAdmin := context.WithTimeout(context.Background(), adminBootstrapTimeout)
	err = adminRegistrar.EnsureAdmins(adminCtx, cfg.AdminIDs)
	cancelAdmin()
	if err != nil {
		fatal(logger, "admin bootstrap error", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	codec, err := session.NewCodec(cfg.SessionSecret, cfg.SessionTTL)
	if err != nil {
		fatal(logger, "session codec error", err)
	}

	userRegistrar := user.NewRegistrar(mongoManager.Users(), logging.Component("user"))
	userRepository := domain.NewUserRepository(mongoManager.Users())
	whitelistService := whitelist.NewService(userRepository, logging.Component("whitelist"))
	statsProvider := store.NewStatsProvider(mongoManager.Users())

	authorizer, err := auth.NewAuthorizer(auth.Config{
		BotToken:      cfg.TelegramToken,
		MaxAge:        cfg.AuthMaxAge,
		LookupTimeout: cfg.WhitelistTimeout,
	}, whitelistService, codec,
		auth.WithLogger(logging.Component("auth")),
		auth.WithMetrics(recorder),
		auth.WithToucher(userRegistrar),
	)
	if err != nil {
		fatal(logger, "authorizer setup error", err)
	}

	rateLimiter := httpapi.NewRateLimiter(cfg.AuthRateLimit, logging.Component("ratelimit"))
	defer rateLimiter.Stop()

	router := httpapi.NewRouter(httpapi.RouterDeps{
		Authorizer:        authorizer,
		Sessions:          codec,
		Health:            health.NewHandler(mongoManager, logging.Component("health")),
		Metrics:           metrics.Handler(registry),
		Recorder:          recorder,
		RateLimiter:       rateLimiter,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		Logger:            logging.Component("httpapi"),
	})
	httpServer := httpapi.NewServer(cfg.HTTPPort, router, logging.Component("httpapi"))

	tgClient, err := telegram.NewClient(cfg, logging.Component("telegram"),
		telegram.WithUserRegistrar(userRegistrar),
		telegram.WithWhitelist(whitelistService),
		telegram.WithStatsProvider(statsProvider),
	)
	if err != nil {
		fatal(logger, "telegram client setup error", err)
	}

	logger.WithField("event", "telegram_ready").Info("telegram client initialized")

	signalCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- httpServer.ListenAndServe()
	}()

	telegramCtx, cancelTelegram := context.WithCancel(context.Background())
	tgDone := make(chan struct{})
	go func() {
		tgClient.Start(telegramCtx)
		close(tgDone)
	}()

	select {
	case <-signalCtx.Done():
		logger.WithField("event", "shutdown_signal").Info("received termination signal, shutting down")
	case err := <-httpErr:
		if err != nil {
			logger.WithField("event", "http_failed").WithError(err).Error("http server stopped unexpectedly")
		} else {
			logger.WithField("event", "http_stopped_early").Warn("http server stopped before shutdown signal")
		}
	case <-tgDone:
		logger.WithField("event", "telegram_stopped_early").Warn("telegram client stopped before shutdown signal")
	}

	httpCtx, cancelHTTP := context.WithTimeout(context.Background(), httpShutdownTimeout)
	if err := httpServer.Shutdown(httpCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	cancelHTTP()

	cancelTelegram()

	waitCtx, cancelWait := context.WithTimeout(context.Background(), telegramShutdownTimeout)
	select {
	case <-tgDone:
	case <-waitCtx.Done():
		logger.WithField("event", "telegram_shutdown_timeout").Warn("timed out waiting for telegram client to stop")
	}
	cancelWait()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), mongoDisconnectTimeout)
	if err := mongoManager.Close(shutdownCtx); err != nil {
		logger.WithError(err).Error("mongo disconnect error")
	} else {
		logger.WithField("event", "mongo_disconnect").Info("mongo client disconnected")
	}
	cancelShutdown()

	logger.WithField("event", "shutdown_complete").Info("shutdown complete")
}

func fatal(logger *logrus.Entry, msg string, err error) {
	logger.WithError(err).Error(msg)
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}
