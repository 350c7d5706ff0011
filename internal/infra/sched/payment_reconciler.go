package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fanpay/internal/infra/metrics"
	"fanpay/internal/usecase"
)

// PaymentReconciler periodically scans for stale pending payments and asks
// the reconcile use case to poll the provider for their final state. This
// covers webhooks that were lost or a process that crashed mid-settlement.
type PaymentReconciler struct {
	reconcile  usecase.ReconcileUseCase
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending payment must be to retry
	log        *zerolog.Logger
}

func NewPaymentReconciler(reconcile usecase.ReconcileUseCase, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	recLog := logger.With().Str("component", "PaymentReconciler").Logger()
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	return &PaymentReconciler{
		reconcile:  reconcile,
		interval:   interval,
		staleAfter: staleAfter,
		log:        &recLog,
	}
}

func (w *PaymentReconciler) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting payment reconciler")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping payment reconciler")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.reconcile.ReconcilePending(ctx, w.staleAfter, 200)
			if err != nil {
				metrics.IncJobRun("payment_reconcile", "error")
				w.log.Error().Err(err).Msg("reconcile sweep failed")
				continue
			}
			metrics.IncJobRun("payment_reconcile", "ok")
			if n > 0 {
				w.log.Info().Int("count", n).Msg("stale payments reconciled")
			}
		}
	}
}
