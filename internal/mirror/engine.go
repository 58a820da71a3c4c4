// Package mirror replicates observed trade events as fill-or-kill orders on
// the bot user's own account.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"
)

// Engine submits one best-effort replicating order per trade event. Killed
// orders and submission failures are terminal outcomes for that order, never
// reasons to stop the stream; points accrual is entirely independent of the
// mirror result.
type Engine struct {
	userID   string
	market   ports.MarketDataClient
	executor ports.OrderExecutor
	orders   ports.OrderRepository
	wallets  ports.WalletRepository
	notifier ports.Notifier
	limits   Limits
	logger   ports.Logger
}

// Config holds the dependencies for the mirror engine.
type Config struct {
	UserID   string // Bot user whose account receives the mirrored orders
	Market   ports.MarketDataClient
	Executor ports.OrderExecutor
	Orders   ports.OrderRepository
	Wallets  ports.WalletRepository
	Notifier ports.Notifier // may be nil
	Limits   Limits
	Logger   ports.Logger
}

// New creates a mirror engine.
func New(cfg Config) (*Engine, error) {
	if cfg.UserID == "" {
		return nil, fmt.Errorf("user ID is required for mirror engine")
	}
	if cfg.Market == nil || cfg.Executor == nil || cfg.Orders == nil || cfg.Wallets == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for mirror engine")
	}
	if err := cfg.Limits.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mirror limits: %w", err)
	}
	return &Engine{
		userID:   cfg.UserID,
		market:   cfg.Market,
		executor: cfg.Executor,
		orders:   cfg.Orders,
		wallets:  cfg.Wallets,
		notifier: cfg.Notifier,
		limits:   cfg.Limits,
		logger:   cfg.Logger,
	}, nil
}

// Mirror derives and submits the replicating order for one trade event and
// records the outcome. The returned error reports persistence problems only;
// execution failures (killed, rejected) are recorded outcomes, not errors.
func (m *Engine) Mirror(ctx context.Context, ev *domain.TradeEvent) error {
	op := "Mirror"

	// Durable dedup: the feed's in-memory seen set does not survive restarts
	// or eviction, but a recorded outcome means this trade was handled.
	mirrored, err := m.orders.HasOrderForTrade(ctx, ev.Key())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if mirrored {
		m.logger.Debug(ctx, op+": trade already mirrored", map[string]interface{}{
			"sourceWallet": ev.SourceWallet, "txHash": ev.TxHash})
		return nil
	}

	sourceNotional, _ := ev.Volume.Float64()
	order := &domain.MirrorOrder{
		ClientOrderID: uuid.NewString(),
		UserID:        m.userID,
		SourceWallet:  ev.SourceWallet,
		TxHash:        ev.TxHash,
		MarketID:      ev.MarketID,
		Side:          ev.Side,
		SubmittedAt:   time.Now().UTC(),
	}

	notional, ok := m.limits.Apply(sourceNotional)
	order.Notional = notional
	if !ok {
		order.Outcome = domain.OutcomeSkipped
		order.Reason = fmt.Sprintf("notional %.2f below minimum %.2f", notional, m.limits.MinNotional)
		m.logger.Debug(ctx, op+": skipping trade below minimum", map[string]interface{}{
			"txHash": ev.TxHash, "notional": notional})
		return m.finalize(ctx, order, ev)
	}

	if m.limits.MaxOrdersPerDay > 0 {
		count, err := m.orders.CountOrdersToday(ctx, m.userID)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if count >= m.limits.MaxOrdersPerDay {
			order.Outcome = domain.OutcomeSkipped
			order.Reason = fmt.Sprintf("daily order cap %d reached", m.limits.MaxOrdersPerDay)
			m.logger.Warn(ctx, op+": daily order cap reached, skipping", map[string]interface{}{
				"txHash": ev.TxHash, "cap": m.limits.MaxOrdersPerDay})
			return m.finalize(ctx, order, ev)
		}
	}

	price, err := m.market.BestPrice(ctx, ev.MarketID, ev.Side)
	if err != nil {
		if errors.Is(err, ports.ErrNoLiquidity) {
			order.Outcome = domain.OutcomeKilled
			order.Reason = "no quotes available"
		} else {
			order.Outcome = domain.OutcomeError
			order.Reason = err.Error()
			m.logger.Error(ctx, err, op+": best price lookup failed", map[string]interface{}{
				"marketID": ev.MarketID})
		}
		return m.finalize(ctx, order, ev)
	}
	order.Price = price

	wallet, err := m.wallets.FindByUserID(ctx, m.userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if wallet == nil {
		return fmt.Errorf("%s: user %s: %w", op, m.userID, ports.ErrNotFound)
	}

	// At most one submission per trade event; a killed result is final and
	// never retried — a later fill would no longer mirror the original
	// opportunity.
	if err := m.executor.Submit(ctx, wallet.CredentialRef, order); err != nil {
		order.Outcome = domain.OutcomeError
		order.Reason = err.Error()
		m.logger.Error(ctx, err, op+": order submission failed", map[string]interface{}{
			"clientOrderID": order.ClientOrderID, "marketID": ev.MarketID})
	}

	return m.finalize(ctx, order, ev)
}

// finalize persists the order outcome and notifies. Failing to persist is
// the only error the caller sees.
func (m *Engine) finalize(ctx context.Context, order *domain.MirrorOrder, ev *domain.TradeEvent) error {
	if _, err := m.orders.CreateOrder(ctx, order); err != nil {
		return fmt.Errorf("recording mirror order %s: %w", order.ClientOrderID, err)
	}
	m.logger.Info(ctx, "Mirror order finalized", map[string]interface{}{
		"clientOrderID": order.ClientOrderID, "outcome": order.Outcome,
		"notional": order.Notional, "marketID": order.MarketID})
	if m.notifier != nil {
		m.notifier.TradeMirrored(ctx, order, ev)
	}
	return nil
}
