package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/adapter"
	"fanpay/internal/domain/ports/repository"
	"fanpay/internal/infra/metrics"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// SubscriptionUseCase drives the subscription state machine. Transitions
// into and out of `active` come from the reconciliation engine (confirmed
// provider events); user-initiated cancellation is graceful and the expiry
// sweep finishes it.
type SubscriptionUseCase interface {
	// Begin creates or reuses the (fan, creator) row in `pending`, or
	// activates immediately for a zero price.
	Begin(ctx context.Context, fanID, creatorID string, tierID *string, price decimal.Decimal, provider string) (*model.Subscription, error)
	// Activate moves pending → active on a confirmed first payment or an
	// authorized preapproval, opening a one-month billing period.
	Activate(ctx context.Context, subID string, providerSubID *string, paidAmount decimal.Decimal) (*model.Subscription, error)
	// RecurringAuthorized resolves by preapproval id and activates.
	RecurringAuthorized(ctx context.Context, preapprovalID string, paidAmount decimal.Decimal) error
	// RecurringCharged extends the current period by one month on an
	// approved recurring charge and records the completed payment.
	// providerTxID is the provider's charge id; each charge extends the
	// period at most once however often it is delivered.
	RecurringCharged(ctx context.Context, preapprovalID, providerTxID string, outcome adapter.Outcome, amount decimal.Decimal) error
	// ProviderStateChanged applies provider-reported pause/cancel.
	ProviderStateChanged(ctx context.Context, preapprovalID string, state string) error
	// Cancel is the user-initiated graceful cancel: access survives until
	// the paid period ends.
	Cancel(ctx context.Context, subID, fanID string) (*model.Subscription, error)
	// ExpireOverdue flips overdue non-renewing rows to expired. Returns the
	// number of rows expired.
	ExpireOverdue(ctx context.Context) (int, error)

	ListByFan(ctx context.Context, fanID string) ([]*model.Subscription, error)
	HasAccess(ctx context.Context, fanID, creatorID string) (bool, error)
}

type subscriptionUC struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	profile  adapter.ProfileUpdater
	provider func(name string) (adapter.PaymentProvider, bool)
	tm       repository.TransactionManager
	log      *zerolog.Logger
}

func NewSubscriptionUseCase(
	subs repository.SubscriptionRepository,
	payments repository.PaymentRepository,
	profile adapter.ProfileUpdater,
	providerLookup func(name string) (adapter.PaymentProvider, bool),
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *subscriptionUC {
	l := logger.With().Str("component", "SubscriptionUC").Logger()
	return &subscriptionUC{subs: subs, payments: payments, profile: profile, provider: providerLookup, tm: tm, log: &l}
}

func (u *subscriptionUC) Begin(ctx context.Context, fanID, creatorID string, tierID *string, price decimal.Decimal, provider string) (*model.Subscription, error) {
	if fanID == creatorID {
		return nil, domain.ErrSelfOperation
	}
	existing, err := u.subs.FindByPair(ctx, nil, fanID, creatorID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.HasAccess(time.Now()) {
		return nil, domain.ErrAlreadySubscribed
	}

	now := time.Now()
	s := &model.Subscription{
		ID:        newUUID(),
		FanID:     fanID,
		CreatorID: creatorID,
		TierID:    tierID,
		Status:    model.SubscriptionStatusPending,
		PricePaid: price,
		Currency:  "BRL",
		Provider:  provider,
		AutoRenew: true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Upsert reuses a previously cancelled/expired row for the same pair.
	if err := u.subs.Upsert(ctx, nil, s); err != nil {
		return nil, err
	}

	if price.IsZero() {
		return u.Activate(ctx, s.ID, nil, decimal.Zero)
	}
	return s, nil
}

func (u *subscriptionUC) Activate(ctx context.Context, subID string, providerSubID *string, paidAmount decimal.Decimal) (*model.Subscription, error) {
	var out *model.Subscription
	activated := false
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		s, err := u.subs.FindByID(ctx, tx, subID)
		if err != nil {
			return err
		}
		if s.Status == model.SubscriptionStatusActive {
			// Concurrent webhook already activated this row.
			out = s
			return nil
		}
		now := time.Now()
		end := now.AddDate(0, 1, 0)
		s.Status = model.SubscriptionStatusActive
		s.CurrentPeriodStart = &now
		s.CurrentPeriodEnd = &end
		s.CancelledAt = nil
		s.AutoRenew = true
		if providerSubID != nil {
			s.ProviderSubID = providerSubID
		}
		if !paidAmount.IsZero() {
			s.PricePaid = paidAmount
		}
		s.UpdatedAt = now
		if err := u.subs.Save(ctx, tx, s); err != nil {
			return err
		}
		out = s
		activated = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Side effects only on the delivery that actually transitioned the row;
	// redelivered webhooks must not inflate counters or earnings.
	if activated {
		u.accrue(ctx, out, +1)
		metrics.IncSubscriptionTransition("active")
	}
	return out, nil
}

// accrue pushes subscriber-count and net earnings to the profile
// collaborator. Fire-and-forget: profile counters are derived state.
func (u *subscriptionUC) accrue(ctx context.Context, s *model.Subscription, subscriberDelta int) {
	if u.profile == nil {
		return
	}
	if subscriberDelta != 0 {
		u.profile.SubscriberDelta(ctx, s.CreatorID, subscriberDelta)
	}
	if subscriberDelta > 0 && !s.PricePaid.IsZero() {
		net := s.PricePaid.Sub(s.PricePaid.Mul(model.FeeSubscription))
		u.profile.EarningsAccrued(ctx, s.CreatorID, net.StringFixed(2), s.Currency)
	}
}

func (u *subscriptionUC) RecurringAuthorized(ctx context.Context, preapprovalID string, paidAmount decimal.Decimal) error {
	s, err := u.subs.FindByProviderSubID(ctx, nil, preapprovalID)
	if err != nil {
		return err
	}
	_, err = u.Activate(ctx, s.ID, &preapprovalID, paidAmount)
	return err
}

func (u *subscriptionUC) RecurringCharged(ctx context.Context, preapprovalID, providerTxID string, outcome adapter.Outcome, amount decimal.Decimal) error {
	if outcome != adapter.OutcomeApproved {
		u.log.Info().Str("preapproval", preapprovalID).Str("outcome", string(outcome)).
			Msg("recurring charge not approved, period unchanged")
		return nil
	}
	var sub *model.Subscription
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		s, err := u.subs.FindByProviderSubID(ctx, tx, preapprovalID)
		if err != nil {
			return err
		}
		if providerTxID != "" {
			// The charge id gates redelivery: once a payment row carries it,
			// this delivery already extended the period.
			_, err := u.payments.FindByProviderTxID(ctx, tx, s.Provider, providerTxID)
			if err == nil {
				u.log.Debug().Str("preapproval", preapprovalID).Str("charge", providerTxID).
					Msg("recurring charge already recorded")
				return nil
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}
		now := time.Now()
		base := now
		if s.CurrentPeriodEnd != nil && s.CurrentPeriodEnd.After(now) {
			base = *s.CurrentPeriodEnd
		}
		end := base.AddDate(0, 1, 0)
		s.Status = model.SubscriptionStatusActive
		s.CurrentPeriodEnd = &end
		s.UpdatedAt = now
		if err := u.subs.Save(ctx, tx, s); err != nil {
			return err
		}

		fee := amount.Mul(model.FeeSubscription)
		p := &model.Payment{
			ID:              newUUID(),
			PayerID:         s.FanID,
			RecipientID:     &s.CreatorID,
			Kind:            model.PaymentKindSubscription,
			Amount:          amount,
			Currency:        s.Currency,
			PlatformFee:     fee,
			RecipientAmount: amount.Sub(fee),
			Provider:        s.Provider,
			Status:          model.PaymentStatusCompleted,
			Metadata:        map[string]any{"subscriptionId": s.ID, "preapprovalId": preapprovalID, "renewal": true},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if providerTxID != "" {
			p.ProviderTxID = &providerTxID
		}
		if err := u.payments.Save(ctx, tx, p); err != nil {
			return err
		}
		sub = s
		return nil
	})
	if err != nil {
		return err
	}
	if sub == nil {
		// Redelivered charge, nothing changed.
		return nil
	}
	if u.profile != nil && !amount.IsZero() {
		net := amount.Sub(amount.Mul(model.FeeSubscription))
		u.profile.EarningsAccrued(ctx, sub.CreatorID, net.StringFixed(2), sub.Currency)
	}
	metrics.IncSubscriptionTransition("renewed")
	return nil
}

func (u *subscriptionUC) ProviderStateChanged(ctx context.Context, preapprovalID string, state string) error {
	s, err := u.subs.FindByProviderSubID(ctx, nil, preapprovalID)
	if err != nil {
		return err
	}
	now := time.Now()
	switch state {
	case "paused":
		if s.Status != model.SubscriptionStatusActive {
			return nil
		}
		s.Status = model.SubscriptionStatusPaused
	case "cancelled":
		// A graceful cancel already in effect keeps access until period end.
		if s.CancelledAt != nil {
			return nil
		}
		if s.Status != model.SubscriptionStatusActive && s.Status != model.SubscriptionStatusPending {
			return nil
		}
		s.Status = model.SubscriptionStatusCancelled
		s.CancelledAt = &now
		s.AutoRenew = false
		u.accrue(ctx, s, -1)
	default:
		u.log.Warn().Str("state", state).Str("preapproval", preapprovalID).Msg("unknown recurring state")
		return nil
	}
	s.UpdatedAt = now
	if err := u.subs.Save(ctx, nil, s); err != nil {
		return err
	}
	metrics.IncSubscriptionTransition(string(s.Status))
	return nil
}

func (u *subscriptionUC) Cancel(ctx context.Context, subID, fanID string) (*model.Subscription, error) {
	s, err := u.subs.FindByID(ctx, nil, subID)
	if err != nil {
		return nil, err
	}
	if s.FanID != fanID {
		return nil, domain.ErrNotFound
	}
	now := time.Now()
	s.CancelledAt = &now
	s.AutoRenew = false
	s.UpdatedAt = now
	// Status stays active: the fan keeps access until CurrentPeriodEnd and
	// the sweep flips the row to expired afterwards.
	if err := u.subs.Save(ctx, nil, s); err != nil {
		return nil, err
	}

	if s.ProviderSubID != nil && u.provider != nil {
		if prov, ok := u.provider(s.Provider); ok {
			if err := prov.CancelRecurring(ctx, *s.ProviderSubID); err != nil {
				// Provider-side teardown is retried by support tooling; the
				// local graceful cancel already took effect.
				u.log.Error().Err(err).Str("subscription", s.ID).Msg("recurring cancel at provider failed")
			}
		}
	}
	metrics.IncSubscriptionTransition("cancel_requested")
	return s, nil
}

func (u *subscriptionUC) ExpireOverdue(ctx context.Context) (int, error) {
	now := time.Now()
	overdue, err := u.subs.ListOverdue(ctx, nil, now, 500)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	expired := 0
	for _, s := range overdue {
		s.Status = model.SubscriptionStatusExpired
		s.UpdatedAt = now
		if err := u.subs.Save(ctx, nil, s); err != nil {
			u.log.Error().Err(err).Str("subscription", s.ID).Msg("expire failed")
			continue
		}
		u.accrue(ctx, s, -1)
		expired++
	}
	if expired > 0 {
		metrics.IncSubscriptionsExpired(expired)
	}
	return expired, nil
}

func (u *subscriptionUC) ListByFan(ctx context.Context, fanID string) ([]*model.Subscription, error) {
	return u.subs.ListByFan(ctx, nil, fanID)
}

func (u *subscriptionUC) HasAccess(ctx context.Context, fanID, creatorID string) (bool, error) {
	s, err := u.subs.FindByPair(ctx, nil, fanID, creatorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.HasAccess(time.Now()), nil
}
