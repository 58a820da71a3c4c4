package referral

import "github.com/shopspring/decimal"

// Grant formulas. Rates are package-level so every grant in the system is
// computed from the same constants.
var (
	tradeRate         = decimal.NewFromInt(1)              // 1 point per $1 of own volume
	referralTradeRate = decimal.RequireFromString("0.1")   // 10% of a referred user's volume
	signupBonus       = decimal.NewFromInt(100)            // one-time bonus per referred signup
)

// TradePoints returns the points earned by a user for their own trade volume.
func TradePoints(volume decimal.Decimal) decimal.Decimal {
	return volume.Mul(tradeRate)
}

// ReferralTradePoints returns the points the referrer earns when a user they
// referred trades the given volume.
func ReferralTradePoints(volume decimal.Decimal) decimal.Decimal {
	return volume.Mul(referralTradeRate)
}

// SignupBonus returns the one-time points grant for referring a new user.
func SignupBonus() decimal.Decimal {
	return signupBonus
}
