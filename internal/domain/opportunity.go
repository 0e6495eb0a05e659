package domain

import "time"

// Opportunity is a detected spatial price dislocation: the same instrument
// is bid higher on SellVenue than it is offered on BuyVenue. Opportunities
// are immutable downstream of the detector and expire hard at ExpiresAt.
type Opportunity struct {
	ID             string    `json:"id"`
	Instrument     string    `json:"instrument"`
	BuyVenue       string    `json:"buy_venue"`
	SellVenue      string    `json:"sell_venue"`
	BuyPrice       float64   `json:"buy_price"`
	SellPrice      float64   `json:"sell_price"`
	ProfitFraction float64   `json:"profit_fraction"`
	ProfitNotional float64   `json:"profit_notional_estimate"`
	Confidence     float64   `json:"confidence"`
	DetectedAt     time.Time `json:"detected_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// Expired reports whether the opportunity is past its validity deadline.
// Every consumer must re-check this before acting.
func (o Opportunity) Expired(now time.Time) bool {
	return !now.Before(o.ExpiresAt)
}
