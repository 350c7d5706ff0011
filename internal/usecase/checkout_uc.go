package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/adapter"
	"fanpay/internal/domain/ports/repository"
	"fanpay/internal/infra/metrics"
)

// OrderCapturer is implemented by providers whose flow needs an explicit
// server-side capture after buyer approval (PayPal orders).
type OrderCapturer interface {
	CaptureOrder(ctx context.Context, orderID string) (adapter.Outcome, string, error)
}

// ProviderInfo is the public description of a configured provider.
type ProviderInfo struct {
	Name    string   `json:"name"`
	Methods []string `json:"methods"`
	Sandbox bool     `json:"sandbox"`
}

// Checkout is the result of initiating a charge.
type Checkout struct {
	PaymentID     string `json:"paymentId"`
	Provider      string `json:"provider"`
	CheckoutURL   string `json:"checkoutUrl,omitempty"`
	ProviderTxID  string `json:"providerTxId,omitempty"`
	PreapprovalID string `json:"preapprovalId,omitempty"`
	Sandbox       bool   `json:"sandbox"`
}

var _ CheckoutUseCase = (*checkoutUC)(nil)

// CheckoutUseCase initiates charges at payment providers. Every initiation
// writes the pending payment record before the provider is contacted, so a
// provider timeout never loses the intent.
type CheckoutUseCase interface {
	Providers(ctx context.Context) []ProviderInfo
	Packages(ctx context.Context) []model.CoinPackage

	// BuyCoins creates a pending currency_purchase payment and a provider
	// charge for the named package.
	BuyCoins(ctx context.Context, userID, packageID, providerName, method string) (*Checkout, error)

	// StartSubscription opens a (fan, creator) subscription and, for a
	// non-zero price, a recurring charge at the provider.
	StartSubscription(ctx context.Context, fanID, creatorID string, tierID *string, price decimal.Decimal, providerName string) (*Checkout, error)

	// PaymentStatus returns a payment visible to userID.
	PaymentStatus(ctx context.Context, userID, paymentID string) (*model.Payment, error)

	// History lists the user's payments, newest first.
	History(ctx context.Context, userID string, limit int) ([]*model.Payment, error)

	// CaptureOrder performs the explicit capture step for providers that
	// need one, then settles through the reconciliation engine.
	CaptureOrder(ctx context.Context, userID, paymentID string) (*model.Payment, error)
}

type checkoutUC struct {
	payments  repository.PaymentRepository
	subs      SubscriptionUseCase
	reconcile ReconcileUseCase
	providers map[string]adapter.PaymentProvider
	log       *zerolog.Logger
}

func NewCheckoutUseCase(
	payments repository.PaymentRepository,
	subs SubscriptionUseCase,
	reconcile ReconcileUseCase,
	providers map[string]adapter.PaymentProvider,
	logger *zerolog.Logger,
) *checkoutUC {
	l := logger.With().Str("component", "CheckoutUC").Logger()
	return &checkoutUC{payments: payments, subs: subs, reconcile: reconcile, providers: providers, log: &l}
}

func (u *checkoutUC) Providers(ctx context.Context) []ProviderInfo {
	out := make([]ProviderInfo, 0, len(u.providers))
	for _, p := range u.providers {
		out = append(out, ProviderInfo{Name: p.Name(), Methods: p.Methods(), Sandbox: p.Sandbox()})
	}
	return out
}

func (u *checkoutUC) Packages(ctx context.Context) []model.CoinPackage {
	return model.CoinPackages()
}

func (u *checkoutUC) provider(name string) (adapter.PaymentProvider, error) {
	p, ok := u.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidArgument, name)
	}
	return p, nil
}

func (u *checkoutUC) BuyCoins(ctx context.Context, userID, packageID, providerName, method string) (*Checkout, error) {
	pkg, ok := model.FindCoinPackage(packageID)
	if !ok {
		return nil, fmt.Errorf("%w: unknown package %q", domain.ErrInvalidArgument, packageID)
	}
	prov, err := u.provider(providerName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	fee := pkg.Price.Mul(model.FeePurchase)
	p := &model.Payment{
		ID:          newUUID(),
		PayerID:     userID,
		Kind:        model.PaymentKindCurrencyPurchase,
		Amount:      pkg.Price,
		Currency:    "BRL",
		PlatformFee: fee,
		Provider:    providerName,
		Status:      model.PaymentStatusPending,
		Metadata: map[string]any{
			"packageId": pkg.ID,
			"coins":     pkg.TotalCoins(),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	// Record first, contact the provider second. A provider failure leaves a
	// pending row the reconciler can expire.
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, err
	}

	charge, err := prov.CreateCharge(ctx, adapter.ChargeRequest{
		Reference:   p.ID,
		Amount:      pkg.Price,
		Currency:    "BRL",
		Description: fmt.Sprintf("%s (%d FanCoins)", pkg.Label, pkg.TotalCoins()),
		Method:      method,
		PayerID:     userID,
		Metadata:    p.Metadata,
	})
	if err != nil {
		return nil, u.chargeFailed(ctx, p, err)
	}
	u.recordCharge(ctx, p, charge)
	metrics.IncCheckoutInitiated(providerName, string(p.Kind))

	return &Checkout{
		PaymentID:    p.ID,
		Provider:     providerName,
		CheckoutURL:  charge.CheckoutURL,
		ProviderTxID: charge.ProviderTxID,
		Sandbox:      charge.Sandbox,
	}, nil
}

// chargeFailed translates a provider error into the payment's fate:
// a rejection fails the record, an outage leaves it pending for retry.
func (u *checkoutUC) chargeFailed(ctx context.Context, p *model.Payment, err error) error {
	if errors.Is(err, domain.ErrProviderRejected) {
		if uerr := u.payments.UpdateStatus(ctx, nil, p.ID, model.PaymentStatusFailed, nil); uerr != nil {
			u.log.Error().Err(uerr).Str("payment", p.ID).Msg("failed to mark payment failed")
		}
		return err
	}
	u.log.Warn().Err(err).Str("payment", p.ID).Str("provider", p.Provider).
		Msg("provider unavailable, payment left pending")
	if errors.Is(err, domain.ErrProviderUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
}

// recordCharge writes the provider's identifiers back onto the pending
// row. It never touches the status: a webhook can land and finalize the
// payment before this runs, and that result must not be overwritten.
func (u *checkoutUC) recordCharge(ctx context.Context, p *model.Payment, charge adapter.Charge) {
	var txid *string
	if charge.ProviderTxID != "" {
		txid = &charge.ProviderTxID
		p.ProviderTxID = &charge.ProviderTxID
	}
	meta := map[string]any{}
	if charge.ProviderRef != "" {
		meta["providerRef"] = charge.ProviderRef
		p.Metadata["providerRef"] = charge.ProviderRef
	}
	if charge.PreapprovalID != "" {
		meta["preapprovalId"] = charge.PreapprovalID
		p.Metadata["preapprovalId"] = charge.PreapprovalID
	}
	if txid == nil && len(meta) == 0 {
		return
	}
	if err := u.payments.AttachProviderCharge(ctx, nil, p.ID, txid, meta); err != nil {
		u.log.Error().Err(err).Str("payment", p.ID).Msg("failed to store provider charge ids")
	}
}

func (u *checkoutUC) StartSubscription(ctx context.Context, fanID, creatorID string, tierID *string, price decimal.Decimal, providerName string) (*Checkout, error) {
	if price.IsNegative() {
		return nil, fmt.Errorf("%w: negative price", domain.ErrInvalidArgument)
	}

	// Zero-price tiers activate immediately, no provider involved.
	if price.IsZero() {
		s, err := u.subs.Begin(ctx, fanID, creatorID, tierID, price, "none")
		if err != nil {
			return nil, err
		}
		return &Checkout{PaymentID: s.ID, Provider: "none"}, nil
	}

	prov, err := u.provider(providerName)
	if err != nil {
		return nil, err
	}
	s, err := u.subs.Begin(ctx, fanID, creatorID, tierID, price, providerName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	fee := price.Mul(model.FeeSubscription)
	p := &model.Payment{
		ID:              newUUID(),
		PayerID:         fanID,
		RecipientID:     &creatorID,
		Kind:            model.PaymentKindSubscription,
		Amount:          price,
		Currency:        "BRL",
		PlatformFee:     fee,
		RecipientAmount: price.Sub(fee),
		Provider:        providerName,
		Status:          model.PaymentStatusPending,
		Metadata: map[string]any{
			"subscriptionId": s.ID,
			"creatorId":      creatorID,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := u.payments.Save(ctx, nil, p); err != nil {
		return nil, err
	}

	charge, err := prov.CreateCharge(ctx, adapter.ChargeRequest{
		Reference:   p.ID,
		Amount:      price,
		Currency:    "BRL",
		Description: fmt.Sprintf("Subscription to creator %s", creatorID),
		Recurring:   true,
		PayerID:     fanID,
		Metadata:    p.Metadata,
	})
	if err != nil {
		return nil, u.chargeFailed(ctx, p, err)
	}
	u.recordCharge(ctx, p, charge)
	metrics.IncCheckoutInitiated(providerName, string(p.Kind))

	return &Checkout{
		PaymentID:     p.ID,
		Provider:      providerName,
		CheckoutURL:   charge.CheckoutURL,
		ProviderTxID:  charge.ProviderTxID,
		PreapprovalID: charge.PreapprovalID,
		Sandbox:       charge.Sandbox,
	}, nil
}

func (u *checkoutUC) PaymentStatus(ctx context.Context, userID, paymentID string) (*model.Payment, error) {
	p, err := u.payments.FindByID(ctx, nil, paymentID)
	if err != nil {
		return nil, err
	}
	if p.PayerID != userID {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

func (u *checkoutUC) History(ctx context.Context, userID string, limit int) ([]*model.Payment, error) {
	return u.payments.ListByUser(ctx, nil, userID, limit)
}

func (u *checkoutUC) CaptureOrder(ctx context.Context, userID, paymentID string) (*model.Payment, error) {
	p, err := u.PaymentStatus(ctx, userID, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Terminal() {
		return p, nil
	}
	prov, err := u.provider(p.Provider)
	if err != nil {
		return nil, err
	}
	capturer, ok := prov.(OrderCapturer)
	if !ok {
		return nil, fmt.Errorf("%w: provider %q has no capture step", domain.ErrInvalidArgument, p.Provider)
	}
	if p.ProviderTxID == nil {
		return nil, fmt.Errorf("%w: payment has no provider order", domain.ErrInvalidArgument)
	}

	outcome, captureID, err := capturer.CaptureOrder(ctx, *p.ProviderTxID)
	if err != nil {
		return nil, err
	}
	// Settle through the same path webhooks take, so the idempotency gate
	// and completion side effects stay in one place.
	if err := u.reconcile.ApplyEvent(ctx, &adapter.WebhookEvent{
		Provider:     p.Provider,
		Kind:         adapter.EventPaymentStatusChanged,
		Reference:    p.ID,
		ProviderTxID: captureID,
		Outcome:      outcome,
		Amount:       p.Amount,
	}); err != nil {
		return nil, err
	}
	return u.payments.FindByID(ctx, nil, p.ID)
}
