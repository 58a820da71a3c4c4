package ports

import (
	"context"

	"github.com/sreeduggirala/polytrade/internal/domain"
)

// MarketDataClient reads public trade and quote data from the external
// market endpoint. Both calls are side-effect free and safe to retry.
type MarketDataClient interface {
	// RecentTrades fetches the most recent trades for a source wallet,
	// newest first, up to limit.
	RecentTrades(ctx context.Context, wallet string, limit int) ([]*domain.TradeEvent, error)

	// BestPrice returns the current best quoted price for taking the given
	// side on a market (best ask for BUY, best bid for SELL).
	BestPrice(ctx context.Context, marketID string, side domain.OrderSide) (float64, error)
}

// OrderExecutor submits mirror orders for execution. The executor is handed
// an opaque credential reference; plaintext signing credentials never pass
// through the core.
type OrderExecutor interface {
	// Submit places a fill-or-kill order and finalizes order.Outcome.
	// A killed order is a normal result, not an error; only transport or
	// request-level failures return a non-nil error.
	Submit(ctx context.Context, credentialRef string, order *domain.MirrorOrder) error
}

// Notifier receives structured outcome events. Formatting and delivery are
// entirely the collaborator's responsibility.
type Notifier interface {
	TradeMirrored(ctx context.Context, order *domain.MirrorOrder, ev *domain.TradeEvent)
	PointsGranted(ctx context.Context, entry *domain.PointsEntry)
	Failure(ctx context.Context, err error, msg string)
}
