package collab

import (
	"context"

	"github.com/rs/zerolog"

	"fanpay/internal/domain/ports/adapter"
)

var (
	_ adapter.Notifier       = (*NoopNotifier)(nil)
	_ adapter.ContentGateway = (*StaticContentGateway)(nil)
	_ adapter.ProfileUpdater = (*NoopProfileUpdater)(nil)
)

// NoopNotifier logs notifications instead of delivering them. Used in dev
// mode and in tests.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	nl := logger.With().Str("component", "NoopNotifier").Logger()
	return &NoopNotifier{log: &nl}
}

func (n *NoopNotifier) CoinsPurchased(ctx context.Context, userID string, coins int64, packageLabel string) {
	n.log.Info().Str("user_id", userID).Int64("coins", coins).Str("package", packageLabel).Msg("coins purchased")
}

func (n *NoopNotifier) TipReceived(ctx context.Context, creatorID, fromUserID string, coins int64) {
	n.log.Info().Str("creator_id", creatorID).Str("from", fromUserID).Int64("coins", coins).Msg("tip received")
}

func (n *NoopNotifier) PayoutDecided(ctx context.Context, creatorID, payoutID string, approved bool, reason string) {
	n.log.Info().Str("creator_id", creatorID).Str("payout_id", payoutID).Bool("approved", approved).Str("reason", reason).Msg("payout decided")
}

// StaticContentGateway serves a fixed PPV price for every post. Dev mode
// only; there is no content service to ask.
type StaticContentGateway struct {
	CreatorID  string
	PriceCoins int64
	log        *zerolog.Logger
}

func NewStaticContentGateway(creatorID string, priceCoins int64, logger *zerolog.Logger) *StaticContentGateway {
	cl := logger.With().Str("component", "StaticContentGateway").Logger()
	return &StaticContentGateway{CreatorID: creatorID, PriceCoins: priceCoins, log: &cl}
}

func (g *StaticContentGateway) PPVPrice(ctx context.Context, postID string) (string, int64, error) {
	return g.CreatorID, g.PriceCoins, nil
}

func (g *StaticContentGateway) Unlocked(ctx context.Context, postID, userID string) {
	g.log.Info().Str("post_id", postID).Str("user_id", userID).Msg("post unlocked")
}

// NoopProfileUpdater drops profile updates on the floor, logging at debug.
type NoopProfileUpdater struct {
	log *zerolog.Logger
}

func NewNoopProfileUpdater(logger *zerolog.Logger) *NoopProfileUpdater {
	pl := logger.With().Str("component", "NoopProfileUpdater").Logger()
	return &NoopProfileUpdater{log: &pl}
}

func (p *NoopProfileUpdater) SubscriberDelta(ctx context.Context, creatorID string, delta int) {
	p.log.Debug().Str("creator_id", creatorID).Int("delta", delta).Msg("subscriber delta")
}

func (p *NoopProfileUpdater) EarningsAccrued(ctx context.Context, creatorID string, amount string, currency string) {
	p.log.Debug().Str("creator_id", creatorID).Str("amount", amount).Str("currency", currency).Msg("earnings accrued")
}
