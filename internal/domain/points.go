package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PointsEntry is an immutable, append-only record of one points grant.
// The sum of all entries for a user always equals the wallet's TotalPoints;
// both are written in the same transaction.
type PointsEntry struct {
	ID             int64
	UserID         string          // Recipient of the grant
	Points         decimal.Decimal // May be fractional
	Type           GrantType
	Volume         decimal.Decimal // Source trade volume; zero for signup grants
	MarketID       string          // Empty for signup grants
	MarketTitle    string          // Empty for signup grants
	ReferredUserID string          // Set only for referral-derived grants
	Description    string
	CreatedAt      time.Time
}
