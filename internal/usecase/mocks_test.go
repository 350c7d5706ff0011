//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fanpay/internal/domain"
	"fanpay/internal/domain/model"
	"fanpay/internal/domain/ports/adapter"
	"fanpay/internal/domain/ports/repository"
)

// newTestLogger creates a silent zerolog.Logger so test output stays clean.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs the function immediately without a real transaction. Assign
// WithTxFunc to verify transactional behavior in specific tests.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Payment repository ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	data map[string]*model.Payment

	SaveFunc             func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	FinalizeIfPendingFn  func(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, providerTxID *string, extraMeta map[string]any) (bool, error)
	ListPendingOlderFunc func(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{data: map[string]*model.Payment{}}
}

func copyPayment(p *model.Payment) *model.Payment {
	cp := *p
	if p.Metadata != nil {
		cp.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[p.ID] = copyPayment(p)
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyPayment(p), nil
}

func (r *MockPaymentRepo) FindByProviderTxID(ctx context.Context, tx repository.Tx, provider, providerTxID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.Provider == provider && p.ProviderTxID != nil && *p.ProviderTxID == providerTxID {
			return copyPayment(p), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, providerTxID *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	if providerTxID != nil {
		p.ProviderTxID = providerTxID
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (r *MockPaymentRepo) AttachProviderCharge(ctx context.Context, tx repository.Tx, id string, providerTxID *string, extraMeta map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return domain.ErrNotFound
	}
	if providerTxID != nil {
		p.ProviderTxID = providerTxID
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	for k, v := range extraMeta {
		p.Metadata[k] = v
	}
	p.UpdatedAt = time.Now()
	return nil
}

func (r *MockPaymentRepo) FinalizeIfPending(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, providerTxID *string, extraMeta map[string]any) (bool, error) {
	if r.FinalizeIfPendingFn != nil {
		return r.FinalizeIfPendingFn(ctx, tx, id, status, providerTxID, extraMeta)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	if providerTxID != nil {
		p.ProviderTxID = providerTxID
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	for k, v := range extraMeta {
		p.Metadata[k] = v
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

func (r *MockPaymentRepo) HasCompletedPPV(ctx context.Context, tx repository.Tx, userID, postID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.PayerID == userID && p.Kind == model.PaymentKindPayPerView &&
			p.Status == model.PaymentStatusCompleted && p.MetaString("postId") == postID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	if r.ListPendingOlderFunc != nil {
		return r.ListPendingOlderFunc(ctx, tx, olderThan, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			out = append(out, copyPayment(p))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MockPaymentRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.data {
		if p.PayerID == userID {
			out = append(out, copyPayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Subscription repository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	data map[string]*model.Subscription

	SaveFunc func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{data: map[string]*model.Subscription{}}
}

func copySub(s *model.Subscription) *model.Subscription {
	cp := *s
	return &cp
}

func (r *MockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.data {
		if existing.FanID == s.FanID && existing.CreatorID == s.CreatorID {
			s.ID = existing.ID
			r.data[s.ID] = copySub(s)
			return nil
		}
	}
	r.data[s.ID] = copySub(s)
	return nil
}

func (r *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[s.ID]; !ok {
		return domain.ErrNotFound
	}
	r.data[s.ID] = copySub(s)
	return nil
}

func (r *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copySub(s), nil
}

func (r *MockSubscriptionRepo) FindByPair(ctx context.Context, tx repository.Tx, fanID, creatorID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data {
		if s.FanID == fanID && s.CreatorID == creatorID {
			return copySub(s), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) FindByProviderSubID(ctx context.Context, tx repository.Tx, providerSubID string) (*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.data {
		if s.ProviderSubID != nil && *s.ProviderSubID == providerSubID {
			return copySub(s), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockSubscriptionRepo) ListByFan(ctx context.Context, tx repository.Tx, fanID string) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.data {
		if s.FanID == fanID {
			out = append(out, copySub(s))
		}
	}
	return out, nil
}

func (r *MockSubscriptionRepo) ListOverdue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.data {
		if s.RenewalDue(now) {
			out = append(out, copySub(s))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---- Wallet repository ----

type MockWalletRepo struct {
	mu      sync.Mutex
	wallets map[string]*model.Wallet
	txs     []*model.WalletTransaction
}

var _ repository.WalletRepository = (*MockWalletRepo)(nil)

func NewMockWalletRepo() *MockWalletRepo {
	return &MockWalletRepo{wallets: map[string]*model.Wallet{}}
}

// Seed installs a wallet with a known balance and age for tests.
func (r *MockWalletRepo) Seed(userID string, balance, totalEarned int64, createdAt time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wallets[userID] = &model.Wallet{
		UserID: userID, Balance: balance, TotalEarned: totalEarned,
		CreatedAt: createdAt, UpdatedAt: createdAt,
	}
}

func (r *MockWalletRepo) GetOrCreate(ctx context.Context, tx repository.Tx, userID string) (*model.Wallet, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.wallets[userID]
	if !ok {
		w = &model.Wallet{UserID: userID, CreatedAt: time.Now(), UpdatedAt: time.Now()}
		r.wallets[userID] = w
	}
	cp := *w
	return &cp, nil
}

func (r *MockWalletRepo) Save(ctx context.Context, tx repository.Tx, w *model.Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *w
	r.wallets[w.UserID] = &cp
	return nil
}

func (r *MockWalletRepo) AppendTransaction(ctx context.Context, tx repository.Tx, t *model.WalletTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.txs = append(r.txs, &cp)
	return nil
}

func (r *MockWalletRepo) ListTransactions(ctx context.Context, tx repository.Tx, userID string, limit int) ([]*model.WalletTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.WalletTransaction
	for i := len(r.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.txs[i].UserID == userID {
			cp := *r.txs[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockWalletRepo) SumTransactions(ctx context.Context, tx repository.Tx, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, t := range r.txs {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	return sum, nil
}

// ---- Payout repository ----

type MockPayoutRepo struct {
	mu   sync.Mutex
	data map[string]*model.Payout
}

var _ repository.PayoutRepository = (*MockPayoutRepo)(nil)

func NewMockPayoutRepo() *MockPayoutRepo {
	return &MockPayoutRepo{data: map[string]*model.Payout{}}
}

func copyPayout(p *model.Payout) *model.Payout {
	cp := *p
	return &cp
}

func (r *MockPayoutRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[p.ID] = copyPayout(p)
	return nil
}

func (r *MockPayoutRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyPayout(p), nil
}

func (r *MockPayoutRepo) CountSince(ctx context.Context, tx repository.Tx, creatorID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.data {
		if p.CreatorID == creatorID && p.Status != model.PayoutStatusRejected && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *MockPayoutRepo) SumFiatSince(ctx context.Context, tx repository.Tx, creatorID string, since time.Time) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, p := range r.data {
		if p.CreatorID == creatorID && p.Status != model.PayoutStatusRejected && !p.CreatedAt.Before(since) {
			sum = sum.Add(p.FiatAmount)
		}
	}
	return sum, nil
}

func (r *MockPayoutRepo) HasCompletedSince(ctx context.Context, tx repository.Tx, creatorID string, since time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.data {
		if p.CreatorID == creatorID && p.Status == model.PayoutStatusCompleted &&
			p.ProcessedAt != nil && !p.ProcessedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (r *MockPayoutRepo) SumCompletedFiat(ctx context.Context, tx repository.Tx, creatorID string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := decimal.Zero
	for _, p := range r.data {
		if p.CreatorID == creatorID && p.Status == model.PayoutStatusCompleted {
			sum = sum.Add(p.FiatAmount)
		}
	}
	return sum, nil
}

func (r *MockPayoutRepo) ListByCreator(ctx context.Context, tx repository.Tx, creatorID string, limit int) ([]*model.Payout, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payout
	for _, p := range r.data {
		if p.CreatorID == creatorID {
			out = append(out, copyPayout(p))
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *MockPayoutRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.PayoutStatus, limit, offset int) ([]*model.Payout, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*model.Payout
	for _, p := range r.data {
		if p.Status == status {
			all = append(all, copyPayout(p))
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

// ---- Settings repository ----

type MockSettingsRepo struct {
	mu   sync.Mutex
	data map[string]string
}

var _ repository.SettingsRepository = (*MockSettingsRepo)(nil)

func NewMockSettingsRepo() *MockSettingsRepo {
	return &MockSettingsRepo{data: map[string]string{}}
}

func (r *MockSettingsRepo) Get(ctx context.Context, tx repository.Tx, key string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.data[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (r *MockSettingsRepo) Set(ctx context.Context, tx repository.Tx, key, value, updatedBy string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key] = value
	return nil
}

func (r *MockSettingsRepo) All(ctx context.Context, tx repository.Tx) (map[string]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out, nil
}

// ---- Payment provider ----

type MockProvider struct {
	NameVal    string
	MethodsVal []string
	SandboxVal bool

	CreateChargeFunc    func(ctx context.Context, req adapter.ChargeRequest) (adapter.Charge, error)
	FetchStatusFunc     func(ctx context.Context, providerTxID string) (adapter.Outcome, error)
	VerifyWebhookFunc   func(header http.Header, body []byte) error
	ParseWebhookFunc    func(ctx context.Context, header http.Header, body []byte) (*adapter.WebhookEvent, error)
	CancelRecurringFunc func(ctx context.Context, preapprovalID string) error
	CaptureOrderFunc    func(ctx context.Context, orderID string) (adapter.Outcome, string, error)

	CancelledPreapprovals []string
}

var _ adapter.PaymentProvider = (*MockProvider)(nil)

func (m *MockProvider) Name() string      { return m.NameVal }
func (m *MockProvider) Methods() []string { return m.MethodsVal }
func (m *MockProvider) Sandbox() bool     { return m.SandboxVal }

func (m *MockProvider) CreateCharge(ctx context.Context, req adapter.ChargeRequest) (adapter.Charge, error) {
	if m.CreateChargeFunc != nil {
		return m.CreateChargeFunc(ctx, req)
	}
	return adapter.Charge{ProviderTxID: "prov-tx-1", CheckoutURL: "https://pay.example/checkout"}, nil
}

func (m *MockProvider) FetchStatus(ctx context.Context, providerTxID string) (adapter.Outcome, error) {
	if m.FetchStatusFunc != nil {
		return m.FetchStatusFunc(ctx, providerTxID)
	}
	return adapter.OutcomePending, nil
}

func (m *MockProvider) VerifyWebhook(header http.Header, body []byte) error {
	if m.VerifyWebhookFunc != nil {
		return m.VerifyWebhookFunc(header, body)
	}
	return nil
}

func (m *MockProvider) ParseWebhook(ctx context.Context, header http.Header, body []byte) (*adapter.WebhookEvent, error) {
	if m.ParseWebhookFunc != nil {
		return m.ParseWebhookFunc(ctx, header, body)
	}
	return nil, nil
}

func (m *MockProvider) CaptureOrder(ctx context.Context, orderID string) (adapter.Outcome, string, error) {
	if m.CaptureOrderFunc != nil {
		return m.CaptureOrderFunc(ctx, orderID)
	}
	return adapter.OutcomeApproved, "capture-" + orderID, nil
}

func (m *MockProvider) CancelRecurring(ctx context.Context, preapprovalID string) error {
	if m.CancelRecurringFunc != nil {
		return m.CancelRecurringFunc(ctx, preapprovalID)
	}
	m.CancelledPreapprovals = append(m.CancelledPreapprovals, preapprovalID)
	return nil
}

// ---- Collaborator doubles ----

type MockNotifier struct {
	mu        sync.Mutex
	Purchases []string // userID
	Tips      []string // creatorID
	Payouts   []string // payoutID
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) CoinsPurchased(ctx context.Context, userID string, coins int64, packageLabel string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Purchases = append(m.Purchases, userID)
}

func (m *MockNotifier) TipReceived(ctx context.Context, creatorID, fromUserID string, coins int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tips = append(m.Tips, creatorID)
}

func (m *MockNotifier) PayoutDecided(ctx context.Context, creatorID, payoutID string, approved bool, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Payouts = append(m.Payouts, payoutID)
}

type MockContentGateway struct {
	mu           sync.Mutex
	PPVPriceFunc func(ctx context.Context, postID string) (string, int64, error)
	Unlocks      []string // postID
}

var _ adapter.ContentGateway = (*MockContentGateway)(nil)

func (m *MockContentGateway) PPVPrice(ctx context.Context, postID string) (string, int64, error) {
	if m.PPVPriceFunc != nil {
		return m.PPVPriceFunc(ctx, postID)
	}
	return "", 0, domain.ErrNotFound
}

func (m *MockContentGateway) Unlocked(ctx context.Context, postID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Unlocks = append(m.Unlocks, postID)
}

type MockProfileUpdater struct {
	mu       sync.Mutex
	Deltas   map[string]int
	Earnings []string // "creatorID:amount"
}

var _ adapter.ProfileUpdater = (*MockProfileUpdater)(nil)

func NewMockProfileUpdater() *MockProfileUpdater {
	return &MockProfileUpdater{Deltas: map[string]int{}}
}

func (m *MockProfileUpdater) SubscriberDelta(ctx context.Context, creatorID string, delta int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deltas[creatorID] += delta
}

func (m *MockProfileUpdater) EarningsAccrued(ctx context.Context, creatorID string, amount string, currency string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Earnings = append(m.Earnings, creatorID+":"+amount)
}

// ---- Event deduper ----

type MockDeduper struct {
	mu   sync.Mutex
	seen map[string]bool
	Err  error
}

func NewMockDeduper() *MockDeduper {
	return &MockDeduper{seen: map[string]bool{}}
}

func (m *MockDeduper) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return false, m.Err
	}
	if m.seen[key] {
		return false, nil
	}
	m.seen[key] = true
	return true, nil
}
