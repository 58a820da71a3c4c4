package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// GrantType classifies a points grant.
type GrantType string

const (
	GrantTrade          GrantType = "trade"
	GrantReferralTrade  GrantType = "referral_trade"
	GrantReferralSignup GrantType = "referral_signup"
)

// OrderOutcome is the terminal state of a mirror order submission.
type OrderOutcome string

const (
	OutcomeFilled  OrderOutcome = "filled"  // executed immediately and completely
	OutcomeKilled  OrderOutcome = "killed"  // no liquidity at the requested price
	OutcomeSkipped OrderOutcome = "skipped" // below minimum notional, not submitted
	OutcomeError   OrderOutcome = "error"   // submission-level failure
)
