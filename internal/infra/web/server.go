package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"fanpay/internal/infra/redis"
	"fanpay/internal/usecase"
)

type Server struct {
	checkoutUC   usecase.CheckoutUseCase
	reconcileUC  usecase.ReconcileUseCase
	subUC        usecase.SubscriptionUseCase
	ledgerUC     usecase.LedgerUseCase
	withdrawalUC usecase.WithdrawalUseCase
	settingsUC   usecase.SettingsUseCase
	auth         *AuthManager
	limiter      *redis.RateLimiter
	log          *zerolog.Logger
}

func NewServer(
	checkoutUC usecase.CheckoutUseCase,
	reconcileUC usecase.ReconcileUseCase,
	subUC usecase.SubscriptionUseCase,
	ledgerUC usecase.LedgerUseCase,
	withdrawalUC usecase.WithdrawalUseCase,
	settingsUC usecase.SettingsUseCase,
	auth *AuthManager,
	limiter *redis.RateLimiter,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "web").Logger()
	return &Server{
		checkoutUC:   checkoutUC,
		reconcileUC:  reconcileUC,
		subUC:        subUC,
		ledgerUC:     ledgerUC,
		withdrawalUC: withdrawalUC,
		settingsUC:   settingsUC,
		auth:         auth,
		limiter:      limiter,
		log:          &l,
	}
}

// Router assembles the full HTTP surface. Webhooks carry provider
// signatures instead of user tokens; everything else requires a token.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(traceMiddleware(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/payments", func(r chi.Router) {
			r.Get("/providers", s.handleProviders)
			r.Get("/packages", s.handlePackages)
			r.Post("/webhook/{provider}", s.handleWebhook)

			r.Group(func(r chi.Router) {
				r.Use(s.auth.requireUser)
				r.Use(rateLimitMiddleware(s.limiter, 30, time.Minute, s.log))
				r.Post("/checkout/coins", s.handleBuyCoins)
				r.Get("/status/{id}", s.handlePaymentStatus)
				r.Get("/history", s.handlePaymentHistory)
				r.Post("/paypal/capture", s.handlePayPalCapture)
			})
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Use(s.auth.requireUser)
			r.Use(rateLimitMiddleware(s.limiter, 30, time.Minute, s.log))
			r.Post("/", s.handleSubscribe)
			r.Get("/", s.handleListSubscriptions)
			r.Delete("/{id}", s.handleCancelSubscription)
			r.Get("/access/{creatorId}", s.handleCheckAccess)
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Use(s.auth.requireUser)
			r.Use(rateLimitMiddleware(s.limiter, 60, time.Minute, s.log))
			r.Get("/", s.handleWallet)
			r.Get("/transactions", s.handleWalletTransactions)
			r.Post("/tip", s.handleTip)
			r.Post("/ppv/unlock", s.handleUnlockPPV)
		})

		r.Route("/withdrawals", func(r chi.Router) {
			r.Use(s.auth.requireUser)
			r.Use(rateLimitMiddleware(s.limiter, 10, time.Minute, s.log))
			r.Get("/earnings", s.handleEarnings)
			r.Get("/assess", s.handleAssess)
			r.Post("/", s.handleRequestWithdrawal)
			r.Get("/", s.handleListWithdrawals)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.requireAdmin)
			r.Get("/payouts", s.handleAdminListPayouts)
			r.Post("/payouts/{id}/approve", s.handleAdminApprovePayout)
			r.Post("/payouts/{id}/reject", s.handleAdminRejectPayout)
			r.Post("/payouts/{id}/complete", s.handleAdminCompletePayout)
			r.Post("/rewards", s.handleAdminReward)
			r.Post("/subscriptions/expire", s.handleAdminExpireSubscriptions)
			r.Get("/settings", s.handleAdminGetSettings)
			r.Put("/settings", s.handleAdminUpdateSettings)
		})
	})

	return r
}
