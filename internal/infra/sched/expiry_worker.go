package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fanpay/internal/infra/metrics"
	"fanpay/internal/usecase"
)

// ExpiryWorker periodically sweeps overdue non-renewing subscriptions
// into the expired state via the use case.
type ExpiryWorker struct {
	interval time.Duration
	subs     usecase.SubscriptionUseCase
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, subs usecase.SubscriptionUseCase, logger *zerolog.Logger) *ExpiryWorker {
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpiryWorker{
		interval: interval,
		subs:     subs,
		log:      &exprLog,
	}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.subs.ExpireOverdue(ctx)
			if err != nil {
				metrics.IncJobRun("subscription_expiry", "error")
				w.log.Error().Err(err).Msg("expiry sweep failed")
				continue
			}
			metrics.IncJobRun("subscription_expiry", "ok")
			if n > 0 {
				w.log.Info().Int("count", n).Msg("subscriptions expired")
			}
		}
	}
}
