package mirror

import "fmt"

// Limits bounds mirrored order sizing. The scale factor shrinks the source
// trade's notional to the user's appetite; the minimum keeps dust orders off
// the book; the maximum caps exposure per mirrored trade; the daily cap
// bounds how many orders reach the relay in one day.
type Limits struct {
	ScaleFactor     float64 // Fraction of the source notional to mirror (0 < f <= 1)
	MinNotional     float64 // Orders below this are skipped, not submitted
	MaxNotional     float64 // Notional is capped at this; 0 disables the cap
	MaxOrdersPerDay int     // Submissions allowed per day; 0 disables the cap
}

// Validate checks the limit parameters.
func (l Limits) Validate() error {
	if l.ScaleFactor <= 0 || l.ScaleFactor > 1 {
		return fmt.Errorf("scale factor must be in (0, 1], got %f", l.ScaleFactor)
	}
	if l.MinNotional < 0 {
		return fmt.Errorf("minimum notional cannot be negative, got %f", l.MinNotional)
	}
	if l.MaxNotional < 0 {
		return fmt.Errorf("maximum notional cannot be negative, got %f", l.MaxNotional)
	}
	if l.MaxNotional > 0 && l.MaxNotional < l.MinNotional {
		return fmt.Errorf("maximum notional %f is below minimum %f", l.MaxNotional, l.MinNotional)
	}
	if l.MaxOrdersPerDay < 0 {
		return fmt.Errorf("daily order cap cannot be negative, got %d", l.MaxOrdersPerDay)
	}
	return nil
}

// Apply scales and caps the source notional. ok is false when the scaled
// order falls below the minimum and should be skipped.
func (l Limits) Apply(sourceNotional float64) (notional float64, ok bool) {
	notional = sourceNotional * l.ScaleFactor
	if l.MaxNotional > 0 && notional > l.MaxNotional {
		notional = l.MaxNotional
	}
	if notional < l.MinNotional || notional <= 0 {
		return notional, false
	}
	return notional, true
}
