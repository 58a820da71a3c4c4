// Package points computes and durably records point grants from trade
// events and referral signups.
package points

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"
	"github.com/sreeduggirala/polytrade/internal/referral"
)

const descriptionTitleLimit = 50

// Engine is the points accrual engine. Every grant goes through the ledger's
// atomic grant-and-increment, keyed so that replaying the same trigger never
// grants twice.
type Engine struct {
	wallets  ports.WalletRepository
	ledger   ports.LedgerRepository
	notifier ports.Notifier
	logger   ports.Logger
}

// New creates a points engine. The notifier may be nil.
func New(wallets ports.WalletRepository, ledger ports.LedgerRepository, notifier ports.Notifier, logger ports.Logger) (*Engine, error) {
	if wallets == nil || ledger == nil || logger == nil {
		return nil, fmt.Errorf("missing required dependencies for points engine")
	}
	return &Engine{wallets: wallets, ledger: ledger, notifier: notifier, logger: logger}, nil
}

// RecordTrade grants points for one trade event attributed to userID: the
// own-trade grant, plus the referral-trade grant to the user's referrer when
// one exists (one level only, no recursion). All grants for the event commit
// in a single transaction keyed by the event's dedup key; reprocessing the
// same event is a warned no-op.
func (e *Engine) RecordTrade(ctx context.Context, userID string, ev *domain.TradeEvent) error {
	op := "RecordTrade"

	wallet, err := e.wallets.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if wallet == nil {
		return fmt.Errorf("%s: user %s: %w", op, userID, ports.ErrNotFound)
	}

	grants := []ports.PointsGrant{{
		UserID:      userID,
		Points:      referral.TradePoints(ev.Volume),
		Type:        domain.GrantTrade,
		Volume:      ev.Volume,
		MarketID:    ev.MarketID,
		MarketTitle: ev.MarketTitle,
		Description: "Trade on " + truncate(ev.MarketTitle, descriptionTitleLimit),
	}}

	if wallet.ReferredBy != "" {
		referrer, err := e.wallets.FindByReferralCode(ctx, wallet.ReferredBy)
		if err != nil {
			return fmt.Errorf("%s: resolving referrer: %w", op, err)
		}
		if referrer == nil {
			// Should be impossible with the FK in place; refuse to guess.
			return fmt.Errorf("%s: referrer code %s for user %s: %w", op, wallet.ReferredBy, userID, ports.ErrNotFound)
		}
		grants = append(grants, ports.PointsGrant{
			UserID:         referrer.UserID,
			Points:         referral.ReferralTradePoints(ev.Volume),
			Type:           domain.GrantReferralTrade,
			Volume:         ev.Volume,
			MarketID:       ev.MarketID,
			MarketTitle:    ev.MarketTitle,
			ReferredUserID: userID,
			Description:    "Referral trade on " + truncate(ev.MarketTitle, descriptionTitleLimit),
		})
	}

	key := ev.Key()
	if err := e.ledger.GrantPoints(ctx, &key, grants); err != nil {
		if errors.Is(err, ports.ErrDuplicateTrade) {
			e.logger.Warn(ctx, op+": trade already granted, skipping", map[string]interface{}{
				"sourceWallet": key.SourceWallet, "txHash": key.TxHash})
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	e.notifyGrants(ctx, grants)
	return nil
}

// RegisterReferral records that newUserID signed up with the given referral
// code and grants the referrer the one-time signup bonus. Self-referral and
// second referrers are rejected; replaying an already-registered pair does
// not re-grant the bonus.
func (e *Engine) RegisterReferral(ctx context.Context, newUserID, code string) error {
	op := "RegisterReferral"

	code, err := referral.NormalizeCode(code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	referrer, err := e.wallets.FindByReferralCode(ctx, code)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if referrer == nil {
		return fmt.Errorf("%s: code %s: %w", op, code, ports.ErrInvalidCode)
	}
	if referrer.UserID == newUserID {
		return fmt.Errorf("%s: user %s: %w", op, newUserID, ports.ErrSelfReferral)
	}

	if err := e.wallets.SetReferredBy(ctx, newUserID, code); err != nil {
		if !errors.Is(err, ports.ErrAlreadyReferred) {
			return fmt.Errorf("%s: %w", op, err)
		}
		// The pair may already be recorded with the bonus grant still
		// pending after a crash; fall through and let the unique index
		// decide, but only for the same referrer.
		existing, ferr := e.wallets.FindByUserID(ctx, newUserID)
		if ferr != nil {
			return fmt.Errorf("%s: %w", op, ferr)
		}
		if existing == nil || existing.ReferredBy != code {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	bonus := ports.PointsGrant{
		UserID:         referrer.UserID,
		Points:         referral.SignupBonus(),
		Type:           domain.GrantReferralSignup,
		ReferredUserID: newUserID,
		Description:    "Referred new user",
	}
	if err := e.ledger.GrantPoints(ctx, nil, []ports.PointsGrant{bonus}); err != nil {
		if errors.Is(err, ports.ErrDuplicateEntry) {
			e.logger.Warn(ctx, op+": signup bonus already granted", map[string]interface{}{
				"referrer": referrer.UserID, "newUser": newUserID})
			return nil
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	e.notifyGrants(ctx, []ports.PointsGrant{bonus})
	e.logger.Info(ctx, op+": referral registered", map[string]interface{}{
		"referrer": referrer.UserID, "newUser": newUserID, "code": code})
	return nil
}

// SetCustomCode replaces a user's generated referral code with a chosen one
// and returns the canonical form. Existing referrals follow the new code;
// codes already held by another user are rejected with ErrCodeTaken.
func (e *Engine) SetCustomCode(ctx context.Context, userID, code string) (string, error) {
	op := "SetCustomCode"

	normalized, err := referral.NormalizeCode(code)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if err := e.wallets.SetReferralCode(ctx, userID, normalized); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	e.logger.Info(ctx, op+": referral code customized", map[string]interface{}{
		"userID": userID, "code": normalized})
	return normalized, nil
}

func (e *Engine) notifyGrants(ctx context.Context, grants []ports.PointsGrant) {
	if e.notifier == nil {
		return
	}
	now := time.Now().UTC()
	for _, g := range grants {
		e.notifier.PointsGranted(ctx, &domain.PointsEntry{
			UserID:         g.UserID,
			Points:         g.Points,
			Type:           g.Type,
			Volume:         g.Volume,
			MarketID:       g.MarketID,
			MarketTitle:    g.MarketTitle,
			ReferredUserID: g.ReferredUserID,
			Description:    g.Description,
			CreatedAt:      now,
		})
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
