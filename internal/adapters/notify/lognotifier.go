// Package notify delivers outcome notifications. The log notifier is the
// default sink; richer channels (Telegram, webhooks) would implement the same
// port.
package notify

import (
	"context"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"
)

// LogNotifier implements ports.Notifier by writing structured log lines.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier creates a notifier backed by the given logger.
func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) TradeMirrored(ctx context.Context, order *domain.MirrorOrder, ev *domain.TradeEvent) {
	n.logger.Info(ctx, "Trade mirrored", map[string]interface{}{
		"clientOrderID": order.ClientOrderID,
		"outcome":       order.Outcome,
		"sourceWallet":  ev.SourceWallet,
		"marketID":      order.MarketID,
		"side":          order.Side,
		"notional":      order.Notional,
		"price":         order.Price,
	})
}

func (n *LogNotifier) PointsGranted(ctx context.Context, entry *domain.PointsEntry) {
	n.logger.Info(ctx, "Points granted", map[string]interface{}{
		"userID": entry.UserID,
		"points": entry.Points.String(),
		"type":   entry.Type,
		"volume": entry.Volume.String(),
	})
}

func (n *LogNotifier) Failure(ctx context.Context, err error, msg string) {
	n.logger.Error(ctx, err, msg)
}
