package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TradeEvent is a single observed trade from a tracked source wallet.
type TradeEvent struct {
	SourceWallet string          // Wallet that made the trade
	MarketID     string          // Market / outcome token identifier
	MarketTitle  string          // Human-readable market title (may be empty)
	Side         OrderSide       // BUY or SELL
	Size         float64         // Trade size in outcome tokens
	Price        float64         // Execution price
	Volume       decimal.Decimal // Size × price, in quote currency
	TxHash       string          // On-chain transaction hash
	Timestamp    time.Time       // Observed trade timestamp
}

// TradeKey is the dedup identity of a trade event: re-observing the same
// key must never produce a second side effect.
type TradeKey struct {
	SourceWallet string
	TxHash       string
}

// Key returns the dedup key for the event. The wallet address is lowercased
// so differently-cased observations of the same trade collapse to one key.
func (e *TradeEvent) Key() TradeKey {
	return TradeKey{
		SourceWallet: strings.ToLower(e.SourceWallet),
		TxHash:       e.TxHash,
	}
}

// Before reports whether e precedes other in the canonical total order:
// observed timestamp first, transaction hash as the tie-break.
func (e *TradeEvent) Before(other *TradeEvent) bool {
	if !e.Timestamp.Equal(other.Timestamp) {
		return e.Timestamp.Before(other.Timestamp)
	}
	return e.TxHash < other.TxHash
}
