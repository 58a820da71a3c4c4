// Package app wires the feed, mirror and points components into one
// runnable copy-trading service.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sreeduggirala/polytrade/config"
	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/feed"
	"github.com/sreeduggirala/polytrade/internal/mirror"
	"github.com/sreeduggirala/polytrade/internal/points"
	"github.com/sreeduggirala/polytrade/internal/ports"
	"github.com/sreeduggirala/polytrade/internal/referral"
	"github.com/sreeduggirala/polytrade/internal/utils"
)

// Retries when a freshly generated referral code loses a race with a
// concurrent signup.
const maxOnboardAttempts = 3

// TradeStream is a push source of trade candidates, such as the live
// websocket feed. It is optional; polling alone is sufficient.
type TradeStream interface {
	Start(ctx context.Context)
	Stop()
}

// CopyTradingService orchestrates the copy-trading bot: it runs the polling
// session (and optional live stream) into the dedup filter, and consumes the
// filtered event stream with two independent pipelines — order mirroring and
// points accrual. A mirror failure never blocks points, and vice versa.
type CopyTradingService struct {
	cfg     *config.Config
	logger  ports.Logger
	filter  *feed.Filter
	session *feed.Session
	stream  TradeStream // may be nil
	mirror  *mirror.Engine
	points  *points.Engine
	wallets ports.WalletRepository
	ledger  ports.LedgerRepository
}

// ServiceConfig holds the assembled components for the service.
type ServiceConfig struct {
	Cfg     *config.Config
	Logger  ports.Logger
	Filter  *feed.Filter
	Session *feed.Session
	Stream  TradeStream // may be nil when the live stream is disabled
	Mirror  *mirror.Engine
	Points  *points.Engine
	Wallets ports.WalletRepository
	Ledger  ports.LedgerRepository
}

// NewCopyTradingService creates a new application service instance.
func NewCopyTradingService(sc ServiceConfig) (*CopyTradingService, error) {
	// Validate dependencies
	if sc.Cfg == nil || sc.Logger == nil || sc.Filter == nil || sc.Session == nil ||
		sc.Mirror == nil || sc.Points == nil || sc.Wallets == nil || sc.Ledger == nil {
		return nil, fmt.Errorf("missing required dependencies for CopyTradingService")
	}
	return &CopyTradingService{
		cfg:     sc.Cfg,
		logger:  sc.Logger,
		filter:  sc.Filter,
		session: sc.Session,
		stream:  sc.Stream,
		mirror:  sc.Mirror,
		points:  sc.Points,
		wallets: sc.Wallets,
		ledger:  sc.Ledger,
	}, nil
}

// Start runs the service until the context is cancelled or a shutdown signal
// arrives, then drains both consumer pipelines before returning.
func (s *CopyTradingService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting Copy Trading Service...")

	// Create a context that can be canceled by signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// The bot user must exist before any order can be submitted on its
	// behalf; points for observed trades are attributed to it as well.
	botWallet, err := s.wallets.FindByUserID(ctx, s.cfg.UserID)
	if err != nil {
		return fmt.Errorf("failed to load bot user wallet: %w", err)
	}
	if botWallet == nil {
		return fmt.Errorf("bot user %s has no wallet, onboard it first: %w", s.cfg.UserID, ports.ErrNotFound)
	}
	s.logger.Info(ctx, "Bot user wallet loaded", map[string]interface{}{
		"userID": botWallet.UserID, "referralCode": botWallet.ReferralCode})

	// Subscriptions must exist before the first batch flows through the
	// filter, or early events would be lost.
	mirrorCh := s.filter.Subscribe()
	pointsCh := s.filter.Subscribe()

	var wg sync.WaitGroup
	wg.Add(2)
	go s.mirrorLoop(mirrorCh, &wg)
	go s.pointsLoop(pointsCh, &wg)

	// Start the live stream first so the poller's initial tick can already
	// race it through the shared filter.
	if s.stream != nil {
		s.stream.Start(ctx)
		s.logger.Info(ctx, "Live trade stream started")
	}

	if err := s.session.Start(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to start polling session")
		return fmt.Errorf("failed to start polling session: %w", err)
	}

	<-ctx.Done()
	s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")

	// Stop producers before closing the filter so no Process call races the
	// subscriber close. Consumers then drain whatever is buffered.
	if s.stream != nil {
		s.stream.Stop()
	}
	s.session.Stop()
	s.filter.Close()
	wg.Wait()

	s.logger.Info(ctx, "Copy Trading Service stopped.")
	return nil
}

// mirrorLoop submits one replicating order per filtered event. Handlers use a
// background context so in-flight work is persisted during shutdown.
func (s *CopyTradingService) mirrorLoop(events <-chan *domain.TradeEvent, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()
	for ev := range events {
		if err := s.mirror.Mirror(ctx, ev); err != nil {
			s.logger.Error(ctx, err, "Mirror pipeline failed for trade event", map[string]interface{}{
				"sourceWallet": ev.SourceWallet, "txHash": ev.TxHash})
			// Keep consuming; one bad event must not stall the stream.
		}
	}
	s.logger.Info(ctx, "Mirror pipeline drained")
}

// pointsLoop grants points for each filtered event in arrival order, which
// preserves per-user causal order of the ledger.
func (s *CopyTradingService) pointsLoop(events <-chan *domain.TradeEvent, wg *sync.WaitGroup) {
	defer wg.Done()
	ctx := context.Background()
	for ev := range events {
		if err := s.points.RecordTrade(ctx, s.cfg.UserID, ev); err != nil {
			s.logger.Error(ctx, err, "Points pipeline failed for trade event", map[string]interface{}{
				"sourceWallet": ev.SourceWallet, "txHash": ev.TxHash})
		}
	}
	s.logger.Info(ctx, "Points pipeline drained")
}

// OnboardUser creates a wallet for a new user with a freshly generated
// referral code and, when referredByCode is non-empty, registers the referral
// and grants the signup bonus. Already-onboarded users are rejected.
func (s *CopyTradingService) OnboardUser(ctx context.Context, userID, handle, address, credentialRef, referredByCode string) (*domain.Wallet, error) {
	op := "OnboardUser"

	existing, err := s.wallets.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: user %s already onboarded: %w", op, userID, ports.ErrDuplicateEntry)
	}

	wallet := &domain.Wallet{
		UserID:        userID,
		Handle:        handle,
		Address:       utils.NormalizeAddress(address),
		CredentialRef: credentialRef,
		CreatedAt:     time.Now().UTC(),
	}

	// A generated code can lose a race with a concurrent signup between the
	// uniqueness probe and the insert; regenerate and retry a few times.
	var lastErr error
	for attempt := 1; attempt <= maxOnboardAttempts; attempt++ {
		code, err := referral.UniqueCode(ctx, s.wallets)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		wallet.ReferralCode = code

		id, err := s.wallets.CreateWallet(ctx, wallet)
		if err == nil {
			wallet.ID = id
			lastErr = nil
			break
		}
		lastErr = err
		if !errors.Is(err, ports.ErrDuplicateEntry) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		s.logger.Warn(ctx, op+": referral code collided, regenerating", map[string]interface{}{
			"userID": userID, "attempt": attempt})
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%s: %w", op, lastErr)
	}
	s.logger.Info(ctx, op+": wallet created", map[string]interface{}{
		"userID": userID, "referralCode": wallet.ReferralCode})

	if referredByCode != "" {
		if err := s.points.RegisterReferral(ctx, userID, referredByCode); err != nil {
			// The wallet exists either way; surface the referral failure.
			return wallet, fmt.Errorf("%s: wallet created but referral failed: %w", op, err)
		}
		// RegisterReferral validated the code already; normalization cannot fail.
		wallet.ReferredBy, _ = referral.NormalizeCode(referredByCode)
	}

	return wallet, nil
}

// SetCustomCode lets an onboarded user replace their generated referral code
// with a chosen one (3-7 alphanumeric characters, case-insensitive). Existing
// referrals follow the new code.
func (s *CopyTradingService) SetCustomCode(ctx context.Context, userID, code string) (string, error) {
	return s.points.SetCustomCode(ctx, userID, code)
}

// ReferralSummary returns the aggregated referral stats for a user.
func (s *CopyTradingService) ReferralSummary(ctx context.Context, userID string) (*domain.ReferralStats, error) {
	stats, err := s.ledger.ReferralStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ReferralSummary: %w", err)
	}
	return stats, nil
}
