package domain

import "time"

// MirrorOrder is an order submitted on the user's own account to replicate
// an observed TradeEvent. Created at submission time, finalized once the
// execution endpoint responds.
type MirrorOrder struct {
	ID            int64
	ClientOrderID string       // Locally generated, unique per submission
	UserID        string       // Bot user the order was placed for
	SourceWallet  string       // Originating trade event key (wallet part)
	TxHash        string       // Originating trade event key (hash part)
	MarketID      string
	Side          OrderSide
	Notional      float64      // Requested size in quote currency, after scaling
	Price         float64      // Execution price basis (best quote at submission)
	Outcome       OrderOutcome // filled / killed / skipped / error
	Reason        string       // Error detail or skip reason, empty otherwise
	SubmittedAt   time.Time
}
