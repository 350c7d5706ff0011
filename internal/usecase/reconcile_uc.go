package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/adapter"
	"fanpay/internal/domain/ports/repository"
	"fanpay/internal/infra/metrics"
)

// EventDeduper short-circuits webhook redelivery before the database is
// touched. MarkProcessed reports true the first time a key is seen within
// the TTL window. A deduper failure must not drop events, so callers treat
// errors as "not seen" and fall through to the database gate.
type EventDeduper interface {
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// dedupTTL bounds how long a provider event id is remembered. Providers
// redeliver for at most a few days; the conditional-update gate catches
// anything older.
const dedupTTL = 72 * time.Hour

var _ ReconcileUseCase = (*reconcileUC)(nil)

// ReconcileUseCase is the single write path from provider events to
// payment finality. Whatever the delivery channel (webhook, capture call,
// poller), every settlement funnels through ApplyEvent so the idempotency
// gate and the completion side effects exist exactly once.
type ReconcileUseCase interface {
	// HandleWebhook authenticates, parses, dedups and applies one inbound
	// webhook delivery. The caller returns 200 to the provider whenever the
	// payload was authenticated, regardless of the apply outcome.
	HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) error

	// ApplyEvent applies a normalized event. Safe to call any number of
	// times with the same event.
	ApplyEvent(ctx context.Context, ev *adapter.WebhookEvent) error

	// ReconcilePending polls the provider for payments stuck in `pending`
	// and applies whatever outcome the provider reports. Returns the number
	// of payments that changed state.
	ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// completionStrategy defines what settling a payment of one kind means.
// requiredMeta names the metadata keys onCompleted cannot run without;
// a payment missing them is finalized but flagged for manual review.
type completionStrategy struct {
	requiredMeta []string
	onCompleted  func(ctx context.Context, u *reconcileUC, p *model.Payment) error
}

type reconcileUC struct {
	payments repository.PaymentRepository
	ledger   LedgerUseCase
	subs     SubscriptionUseCase
	notifier adapter.Notifier
	content  adapter.ContentGateway
	profile  adapter.ProfileUpdater
	dedup    EventDeduper
	provider func(name string) (adapter.PaymentProvider, bool)

	strategies map[model.PaymentKind]completionStrategy
	log        *zerolog.Logger
}

func NewReconcileUseCase(
	payments repository.PaymentRepository,
	ledger LedgerUseCase,
	subs SubscriptionUseCase,
	notifier adapter.Notifier,
	content adapter.ContentGateway,
	profile adapter.ProfileUpdater,
	dedup EventDeduper,
	providerLookup func(name string) (adapter.PaymentProvider, bool),
	logger *zerolog.Logger,
) *reconcileUC {
	l := logger.With().Str("component", "ReconcileUC").Logger()
	u := &reconcileUC{
		payments: payments,
		ledger:   ledger,
		subs:     subs,
		notifier: notifier,
		content:  content,
		profile:  profile,
		dedup:    dedup,
		provider: providerLookup,
		log:      &l,
	}
	u.strategies = map[model.PaymentKind]completionStrategy{
		model.PaymentKindCurrencyPurchase: {
			requiredMeta: []string{"packageId", "coins"},
			onCompleted:  completeCoinPurchase,
		},
		model.PaymentKindSubscription: {
			requiredMeta: []string{"subscriptionId"},
			onCompleted:  completeSubscriptionPayment,
		},
		model.PaymentKindPayPerView: {
			requiredMeta: []string{"postId"},
			onCompleted:  completePPVPayment,
		},
	}
	return u
}

func (u *reconcileUC) HandleWebhook(ctx context.Context, providerName string, header http.Header, body []byte) error {
	prov, ok := u.provider(providerName)
	if !ok {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidArgument, providerName)
	}
	if err := prov.VerifyWebhook(header, body); err != nil {
		metrics.IncWebhookReceived(providerName, "invalid_signature")
		return err
	}
	ev, err := prov.ParseWebhook(ctx, header, body)
	if err != nil {
		metrics.IncWebhookReceived(providerName, "parse_error")
		return err
	}
	if ev == nil {
		metrics.IncWebhookReceived(providerName, "ignored")
		return nil
	}

	if key := eventDedupKey(ev); key != "" && u.dedup != nil {
		first, derr := u.dedup.MarkProcessed(ctx, key, dedupTTL)
		if derr != nil {
			u.log.Warn().Err(derr).Str("key", key).Msg("event cache unavailable, relying on db gate")
		} else if !first {
			metrics.IncWebhookReceived(providerName, "duplicate")
			u.log.Debug().Str("key", key).Msg("duplicate delivery dropped")
			return nil
		}
	}

	metrics.IncWebhookReceived(providerName, "accepted")
	return u.ApplyEvent(ctx, ev)
}

// eventDedupKey identifies one provider delivery. Keyed by the provider's
// transaction id plus the reported outcome, so a legitimate later
// transition (pending then approved) is not swallowed.
func eventDedupKey(ev *adapter.WebhookEvent) string {
	id := ev.ProviderTxID
	if id == "" {
		id = ev.PreapprovalID
	}
	if id == "" {
		return ""
	}
	return "webhook:" + ev.Provider + ":" + id + ":" + string(ev.Outcome) + ":" + ev.RecurringStatus
}

func (u *reconcileUC) ApplyEvent(ctx context.Context, ev *adapter.WebhookEvent) error {
	switch ev.Kind {
	case adapter.EventRecurringAuthorized:
		return u.applyRecurringAuthorized(ctx, ev)
	case adapter.EventRecurringStatusChanged:
		return u.subs.ProviderStateChanged(ctx, ev.PreapprovalID, ev.RecurringStatus)
	case adapter.EventPaymentStatusChanged:
		return u.applyPaymentStatus(ctx, ev)
	default:
		u.log.Warn().Str("kind", string(ev.Kind)).Msg("event kind not handled")
		return nil
	}
}

func (u *reconcileUC) applyRecurringAuthorized(ctx context.Context, ev *adapter.WebhookEvent) error {
	err := u.subs.RecurringAuthorized(ctx, ev.PreapprovalID, ev.Amount)
	if errors.Is(err, domain.ErrNotFound) {
		// Preapproval id unknown yet: the charge-creation response that
		// stores it may still be in flight. The provider will redeliver.
		u.log.Warn().Str("preapproval", ev.PreapprovalID).Msg("preapproval not yet linked")
		return err
	}
	return err
}

func (u *reconcileUC) applyPaymentStatus(ctx context.Context, ev *adapter.WebhookEvent) error {
	status, final := outcomeToStatus(ev.Outcome)
	if !final {
		// Intermediate provider states carry no transition for us.
		return nil
	}

	p, err := u.payments.FindByID(ctx, nil, ev.Reference)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			if ev.PreapprovalID != "" && status == model.PaymentStatusCompleted {
				// A recurring charge has no pre-created payment row; it
				// settles against the subscription instead.
				return u.subs.RecurringCharged(ctx, ev.PreapprovalID, ev.ProviderTxID, ev.Outcome, ev.Amount)
			}
			// Orphan event: nothing of ours matches the reference. Ack and
			// drop, a retry storm gains nothing.
			metrics.IncWebhookReceived(ev.Provider, "orphan")
			u.log.Warn().Str("reference", ev.Reference).Str("provider", ev.Provider).
				Msg("event references no known payment")
			return nil
		}
		return err
	}

	extraMeta := map[string]any{}
	if !ev.Amount.IsZero() && !ev.Amount.Equal(p.Amount) {
		// Never silently accept a provider-reported amount that diverges
		// from what we charged. Finalize, but flag for review.
		extraMeta["amountMismatch"] = true
		extraMeta["reportedAmount"] = ev.Amount.String()
		metrics.IncAmountMismatch(ev.Provider)
		u.log.Error().Str("payment", p.ID).
			Str("expected", p.Amount.String()).Str("reported", ev.Amount.String()).
			Msg("provider amount mismatch")
	}

	var providerTxID *string
	if ev.ProviderTxID != "" {
		providerTxID = &ev.ProviderTxID
	}
	won, err := u.payments.FinalizeIfPending(ctx, nil, p.ID, status, providerTxID, extraMeta)
	if err != nil {
		return err
	}
	if !won {
		if p.Kind == model.PaymentKindSubscription && ev.PreapprovalID != "" &&
			ev.ProviderTxID != "" && status == model.PaymentStatusCompleted {
			// MercadoPago propagates the preapproval's external_reference to
			// every authorized charge, so a monthly renewal arrives carrying
			// the reference of the long-completed first payment. The charge
			// id distinguishes it from a redelivery of that first payment.
			return u.subs.RecurringCharged(ctx, ev.PreapprovalID, ev.ProviderTxID, ev.Outcome, ev.Amount)
		}
		// Already finalized by an earlier delivery or the poller.
		u.log.Debug().Str("payment", p.ID).Str("status", string(status)).Msg("already finalized")
		return nil
	}
	metrics.IncPaymentFinalized(ev.Provider, string(status))

	if status != model.PaymentStatusCompleted {
		return nil
	}
	p.Status = status
	p.ProviderTxID = providerTxID
	return u.runCompletion(ctx, p)
}

// runCompletion executes the per-kind settlement effects after the
// finalize gate was won. Effects are idempotent by reference id, so a
// crash between finalize and here is repaired by the consistency sweep.
func (u *reconcileUC) runCompletion(ctx context.Context, p *model.Payment) error {
	strat, ok := u.strategies[p.Kind]
	if !ok {
		u.log.Error().Str("payment", p.ID).Str("kind", string(p.Kind)).Msg("no completion strategy")
		return nil
	}
	for _, key := range strat.requiredMeta {
		if p.MetaString(key) == "" && p.Metadata[key] == nil {
			u.log.Error().Str("payment", p.ID).Str("missing", key).
				Msg("completed payment missing metadata, manual review required")
			return nil
		}
	}
	if err := strat.onCompleted(ctx, u, p); err != nil {
		// The payment is final; the effect is retried out of band.
		u.log.Error().Err(err).Str("payment", p.ID).Msg("completion side effect failed")
		return err
	}
	return nil
}

func completeCoinPurchase(ctx context.Context, u *reconcileUC, p *model.Payment) error {
	coins := metaInt64(p.Metadata, "coins")
	if coins <= 0 {
		return fmt.Errorf("%w: payment %s carries no coin amount", domain.ErrInvalidArgument, p.ID)
	}
	ref := p.ID
	if _, err := u.ledger.Credit(ctx, p.PayerID, coins, model.TxTypePurchase, &ref,
		"Coin purchase "+p.MetaString("packageId")); err != nil {
		return err
	}
	if u.notifier != nil {
		label := p.MetaString("packageId")
		if pkg, ok := model.FindCoinPackage(label); ok {
			label = pkg.Label
		}
		u.notifier.CoinsPurchased(ctx, p.PayerID, coins, label)
	}
	return nil
}

func completeSubscriptionPayment(ctx context.Context, u *reconcileUC, p *model.Payment) error {
	var providerSubID *string
	if pre := p.MetaString("preapprovalId"); pre != "" {
		providerSubID = &pre
	}
	_, err := u.subs.Activate(ctx, p.MetaString("subscriptionId"), providerSubID, p.Amount)
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Error().Str("payment", p.ID).Msg("completed payment references unknown subscription")
		return nil
	}
	return err
}

func completePPVPayment(ctx context.Context, u *reconcileUC, p *model.Payment) error {
	postID := p.MetaString("postId")
	if u.content != nil {
		u.content.Unlocked(ctx, postID, p.PayerID)
	}
	if u.profile != nil && p.RecipientID != nil && !p.RecipientAmount.IsZero() {
		u.profile.EarningsAccrued(ctx, *p.RecipientID, p.RecipientAmount.StringFixed(2), p.Currency)
	}
	return nil
}

// outcomeToStatus maps a normalized outcome onto the payment state
// machine. The second return is false for outcomes that are not terminal.
func outcomeToStatus(o adapter.Outcome) (model.PaymentStatus, bool) {
	switch o {
	case adapter.OutcomeApproved:
		return model.PaymentStatusCompleted, true
	case adapter.OutcomeDeclined:
		return model.PaymentStatusFailed, true
	case adapter.OutcomeRefunded:
		return model.PaymentStatusRefunded, true
	case adapter.OutcomeExpired:
		return model.PaymentStatusExpired, true
	default:
		return "", false
	}
}

func (u *reconcileUC) ReconcilePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	pending, err := u.payments.ListPendingOlderThan(ctx, nil, cutoff, limit)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	changed := 0
	for _, p := range pending {
		if p.ProviderTxID == nil {
			// Nothing pollable: the charge never reached the provider, or
			// the buyer abandoned a checkout before a payment existed.
			// Give up after a day.
			if time.Since(p.CreatedAt) > 24*time.Hour {
				if err := u.payments.UpdateStatus(ctx, nil, p.ID, model.PaymentStatusExpired, nil); err != nil {
					u.log.Error().Err(err).Str("payment", p.ID).Msg("expire of orphan pending failed")
					continue
				}
				changed++
			}
			continue
		}
		prov, ok := u.provider(p.Provider)
		if !ok {
			continue
		}
		outcome, err := prov.FetchStatus(ctx, *p.ProviderTxID)
		if err != nil {
			u.log.Warn().Err(err).Str("payment", p.ID).Msg("status poll failed")
			continue
		}
		if _, final := outcomeToStatus(outcome); !final {
			continue
		}
		if err := u.ApplyEvent(ctx, &adapter.WebhookEvent{
			Provider:     p.Provider,
			Kind:         adapter.EventPaymentStatusChanged,
			Reference:    p.ID,
			ProviderTxID: *p.ProviderTxID,
			Outcome:      outcome,
			Amount:       p.Amount,
		}); err != nil {
			u.log.Error().Err(err).Str("payment", p.ID).Msg("poll-driven apply failed")
			continue
		}
		changed++
	}
	return changed, nil
}

// metaInt64 reads a numeric metadata field tolerating the types JSON
// round-trips produce.
func metaInt64(meta map[string]any, key string) int64 {
	switch v := meta[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
