package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// Subscription is the single row per (fan, creator) pair. Re-subscribing
// reuses the row; the unique pairing is what keeps concurrent webhook
// delivery from creating duplicates.
type Subscription struct {
	ID                 string
	FanID              string
	CreatorID          string
	TierID             *string
	Status             SubscriptionStatus
	PricePaid          decimal.Decimal
	Currency           string
	Provider           string
	ProviderSubID      *string // provider preapproval / recurring-billing id
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelledAt        *time.Time
	AutoRenew          bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// HasAccess reports whether the fan currently has subscriber access.
// A gracefully cancelled subscription keeps access until the paid period ends.
func (s *Subscription) HasAccess(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if s.CurrentPeriodEnd == nil {
		return true
	}
	return now.Before(*s.CurrentPeriodEnd)
}

// RenewalDue reports whether the expiry sweep should flip this row to expired.
func (s *Subscription) RenewalDue(now time.Time) bool {
	return s.Status == SubscriptionStatusActive &&
		!s.AutoRenew &&
		s.CurrentPeriodEnd != nil &&
		now.After(*s.CurrentPeriodEnd)
}
