// README: Fare rate table and the computed fare breakdown.
package fare

// Config is the shared rate table used for both pre-trip estimates and final
// fare computation. Amounts are in the configured currency's base unit.
type Config struct {
	StartingFare         float64 `firestore:"startingFare" json:"startingFare"`
	FarePerKilometer     float64 `firestore:"farePerKilometer" json:"farePerKilometer"`
	FarePerMinuteDriving float64 `firestore:"farePerMinuteDriving" json:"farePerMinuteDriving"`
	FarePerMinuteWaiting float64 `firestore:"farePerMinuteWaiting" json:"farePerMinuteWaiting"`
	MinimumFare          float64 `firestore:"minimumFare" json:"minimumFare"`
	RoundingIncrement    float64 `firestore:"roundingIncrement" json:"roundingIncrement"`
	CommissionRate       float64 `firestore:"commissionRate" json:"commissionRate"`
	Currency             string  `firestore:"currency" json:"currency"`
}

// DefaultConfig is the hardcoded fallback rate table. Fare calculation must
// never block ride progression, so a failed config lookup degrades to this.
func DefaultConfig() Config {
	return Config{
		StartingFare:         300,
		FarePerKilometer:     350,
		FarePerMinuteDriving: 60,
		FarePerMinuteWaiting: 60,
		MinimumFare:          1250,
		RoundingIncrement:    500,
		CommissionRate:       0.20,
		Currency:             "TZS",
	}
}

// Quote is the full fare breakdown for a completed ride.
type Quote struct {
	// Subtotal is the raw formula result before the minimum-fare floor.
	Subtotal float64
	// BeforeCommission is the pre-commission fare after the floor.
	BeforeCommission float64
	// Total is BeforeCommission rounded to the configured increment; this is
	// what the customer pays.
	Total float64
	// Commission and DriverEarnings split BeforeCommission by the commission
	// rate.
	Commission     float64
	DriverEarnings float64
	// Config records the rate table the quote was computed with.
	Config Config
}
