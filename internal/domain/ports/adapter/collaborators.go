package adapter

import "context"

// Notifier delivers user-facing notifications. Delivery is fire-and-forget:
// a failed notification never rolls back the ledger operation that
// triggered it.
type Notifier interface {
	CoinsPurchased(ctx context.Context, userID string, coins int64, packageLabel string)
	TipReceived(ctx context.Context, creatorID, fromUserID string, coins int64)
	PayoutDecided(ctx context.Context, creatorID, payoutID string, approved bool, reason string)
}

// ContentGateway is the post/feed collaborator. The settlement core only
// signals unlocks; post storage and ranking live elsewhere.
type ContentGateway interface {
	// PPVPrice returns the creator and unlock price in coins for a PPV post.
	// Returns domain.ErrNotFound for unknown posts and domain.ErrInvalidArgument
	// for posts that are not pay-per-view.
	PPVPrice(ctx context.Context, postID string) (creatorID string, priceCoins int64, err error)
	// Unlocked signals that a fan paid for access to a post.
	Unlocked(ctx context.Context, postID, userID string)
}

// ProfileUpdater is the creator-profile collaborator consuming
// subscriber-count and earnings updates.
type ProfileUpdater interface {
	SubscriberDelta(ctx context.Context, creatorID string, delta int)
	EarningsAccrued(ctx context.Context, creatorID string, amount string, currency string)
}
