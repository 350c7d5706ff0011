package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fanpay/internal/config"
	"fanpay/internal/domain/ports/adapter"
	"fanpay/internal/infra/adapters/collab"
	payAdapters "fanpay/internal/infra/adapters/payment"
	pg "fanpay/internal/infra/db/postgres"
	"fanpay/internal/infra/logging"
	"fanpay/internal/infra/metrics"
	red "fanpay/internal/infra/redis"
	"fanpay/internal/infra/sched"
	"fanpay/internal/infra/web"
	"fanpay/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect")
	}
	defer pool.Close()
	go pg.ReportPoolStats(ctx, pool, 15*time.Second)

	tm := pg.NewTxManager(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	subRepo := pg.NewSubscriptionRepo(pool)
	walletRepo := pg.NewWalletRepo(pool)
	payoutRepo := pg.NewPayoutRepo(pool)
	settingsRepo := pg.NewSettingsRepo(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	eventCache := red.NewEventCache(redisClient)

	// ---- Payment providers ----
	providers := map[string]adapter.PaymentProvider{}
	if cfg.Providers.MercadoPago.AccessToken != "" || cfg.Runtime.Dev {
		providers["mercadopago"] = payAdapters.NewMercadoPago(cfg.Providers.MercadoPago, cfg.Server.BaseURL, cfg.Server.FrontendURL, cfg.Runtime.Dev)
	}
	if cfg.Providers.NOWPayments.APIKey != "" || cfg.Runtime.Dev {
		providers["nowpayments"] = payAdapters.NewNOWPayments(cfg.Providers.NOWPayments, cfg.Server.BaseURL, cfg.Server.FrontendURL, cfg.Runtime.Dev)
	}
	if cfg.Providers.PayPal.ClientID != "" || cfg.Runtime.Dev {
		providers["paypal"] = payAdapters.NewPayPal(cfg.Providers.PayPal, cfg.Server.FrontendURL, cfg.Runtime.Dev)
	}
	if len(providers) == 0 {
		logger.Fatal().Msg("no payment provider configured")
	}
	for name := range providers {
		logger.Info().Str("provider", name).Msg("payment provider enabled")
	}
	providerLookup := func(name string) (adapter.PaymentProvider, bool) {
		p, ok := providers[name]
		return p, ok
	}

	// ---- Collaborators ----
	notifier := collab.NewRedisNotifier(redisClient, cfg.Collaborators.NotifyChannel, logger)
	var content adapter.ContentGateway
	if cfg.Collaborators.ContentURL != "" {
		content = collab.NewHTTPContentGateway(cfg.Collaborators.ContentURL, logger)
	} else {
		logger.Warn().Msg("collaborators.content_url not set, PPV pricing uses a static stub")
		content = collab.NewStaticContentGateway("dev-creator", 100, logger)
	}
	var profile adapter.ProfileUpdater
	if cfg.Collaborators.ProfileURL != "" {
		profile = collab.NewHTTPProfileUpdater(cfg.Collaborators.ProfileURL, logger)
	} else {
		profile = collab.NewNoopProfileUpdater(logger)
	}

	// ---- Use cases ----
	settingsUC := usecase.NewSettingsUseCase(settingsRepo, logger)
	ledgerUC := usecase.NewLedgerUseCase(walletRepo, paymentRepo, settingsUC, content, notifier, tm, logger)
	subUC := usecase.NewSubscriptionUseCase(subRepo, paymentRepo, profile, providerLookup, tm, logger)
	reconcileUC := usecase.NewReconcileUseCase(paymentRepo, ledgerUC, subUC, notifier, content, profile, eventCache, providerLookup, logger)
	checkoutUC := usecase.NewCheckoutUseCase(paymentRepo, subUC, reconcileUC, providers, logger)
	withdrawalUC := usecase.NewWithdrawalUseCase(payoutRepo, walletRepo, ledgerUC, settingsUC, notifier, tm, logger)

	// ---- HTTP API ----
	auth := web.NewAuthManager(cfg.Auth.JWTSecret, cfg.Auth.AdminIDs)
	srv := web.NewServer(checkoutUC, reconcileUC, subUC, ledgerUC, withdrawalUC, settingsUC, auth, rateLimiter, logger)
	apiServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info().Str("addr", apiServer.Addr).Msg("api listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("api server stopped")
			cancel()
		}
	}()

	// ---- Metrics ----
	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Metrics.Port), Handler: metricsMux}
	go func() {
		logger.Info().Str("addr", metricsServer.Addr).Msg("metrics listening")
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server stopped")
		}
	}()

	// ---- Background workers ----
	expiry := sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, subUC, logger)
	go func() { _ = expiry.Run(ctx) }()
	reconciler := sched.NewPaymentReconciler(reconcileUC, cfg.Scheduler.ReconcileInterval, cfg.Scheduler.ReconcileMinAge, logger)
	go func() { _ = reconciler.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown")
	}
	_ = metricsServer.Shutdown(shutdownCtx)
}
