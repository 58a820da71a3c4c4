package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sreeduggirala/polytrade/internal/domain"
)

// WalletRepository stores and retrieves user wallets and the referral graph.
type WalletRepository interface {
	// CreateWallet saves a new wallet and returns its assigned ID.
	// Fails with ErrDuplicateEntry if the user ID or referral code is taken.
	CreateWallet(ctx context.Context, w *domain.Wallet) (int64, error)
	// FindByUserID retrieves a wallet by its stable user identifier.
	// Returns nil, nil if not found.
	FindByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	// FindByReferralCode retrieves a wallet by referral code (case-insensitive).
	// Returns nil, nil if not found.
	FindByReferralCode(ctx context.Context, code string) (*domain.Wallet, error)
	// SetReferralCode replaces a user's referral code.
	// Fails with ErrDuplicateEntry if another wallet already holds the code.
	SetReferralCode(ctx context.Context, userID, code string) error
	// SetReferredBy records who referred the user. Fails with
	// ErrAlreadyReferred if a referrer is already set.
	SetReferredBy(ctx context.Context, userID, code string) error
	// UpdateSettings replaces the wallet's settings map.
	UpdateSettings(ctx context.Context, userID string, settings map[string]string) error
	// ListReferrals returns users referred by the given user, most recent
	// signups first, up to limit.
	ListReferrals(ctx context.Context, userID string, limit int) ([]*domain.Referral, error)
}

// PointsGrant is one atomic grant request: the history entry is inserted and
// the recipient wallet's running totals are incremented in one transaction.
type PointsGrant struct {
	UserID         string
	Points         decimal.Decimal
	Type           domain.GrantType
	Volume         decimal.Decimal // Added to the wallet's total volume when non-zero
	MarketID       string
	MarketTitle    string
	ReferredUserID string
	Description    string
}

// LedgerRepository is the transactional points ledger.
type LedgerRepository interface {
	// GrantPoints applies a set of grants atomically. When claim is non-nil
	// the trade key is claimed in the same transaction; if the key was
	// already claimed nothing is written and ErrDuplicateTrade is returned.
	GrantPoints(ctx context.Context, claim *domain.TradeKey, grants []PointsGrant) error
	// IsTradeProcessed reports whether a trade key has already been claimed.
	IsTradeProcessed(ctx context.Context, key domain.TradeKey) (bool, error)
	// PointsHistory returns a user's grants, newest first, up to limit.
	PointsHistory(ctx context.Context, userID string, limit int) ([]*domain.PointsEntry, error)
	// SumPoints returns the sum of all history entries for a user.
	SumPoints(ctx context.Context, userID string) (decimal.Decimal, error)
	// ReferralStats aggregates a user's referral code, totals and
	// referral-derived earnings.
	ReferralStats(ctx context.Context, userID string) (*domain.ReferralStats, error)
}

// OrderRepository records mirror order submissions and their outcomes.
type OrderRepository interface {
	// CreateOrder saves a finalized mirror order and returns its assigned ID.
	CreateOrder(ctx context.Context, o *domain.MirrorOrder) (int64, error)
	// FindOrdersByUser retrieves the most recent orders for a user, up to limit.
	FindOrdersByUser(ctx context.Context, userID string, limit int) ([]*domain.MirrorOrder, error)
	// HasOrderForTrade reports whether an order outcome was already recorded
	// for the given trade key. The durable counterpart of the feed's
	// in-memory dedup: it survives restarts and seen-set eviction.
	HasOrderForTrade(ctx context.Context, key domain.TradeKey) (bool, error)
	// CountOrdersToday counts orders submitted today for a user. Skipped
	// orders were never sent and do not count.
	CountOrdersToday(ctx context.Context, userID string) (int, error)
}
