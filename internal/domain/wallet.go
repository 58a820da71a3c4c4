package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet is the identity and ledger record for a bot user.
type Wallet struct {
	ID            int64             // Unique identifier (from DB)
	UserID        string            // Stable external user identifier
	Handle        string            // Display handle (may be empty)
	Address       string            // On-chain address
	CredentialRef string            // Opaque reference to the encrypted signing credential
	Settings      map[string]string // Free-form user settings (opaque to the core)
	ReferralCode  string            // Globally unique, stored uppercase
	ReferredBy    string            // Referral code of the referrer, empty if none
	TotalPoints   decimal.Decimal   // Cumulative points, kept in sync with points_history
	TotalVolume   decimal.Decimal   // Cumulative mirrored trade volume
	CreatedAt     time.Time
}

// ReferralStats summarizes a user's referral activity.
type ReferralStats struct {
	ReferralCode   string
	ReferredBy     string
	TotalPoints    decimal.Decimal
	TotalVolume    decimal.Decimal
	ReferralCount  int             // Number of users who signed up with this user's code
	ReferralPoints decimal.Decimal // Points earned from referral_trade and referral_signup grants
}

// Referral is one referred user as seen by the referrer.
type Referral struct {
	Handle      string
	TotalPoints decimal.Decimal
	TotalVolume decimal.Decimal
	JoinedAt    time.Time
}
