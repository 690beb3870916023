// Package deposit prices the refundable security deposit and insurance fee
// for a rental. Calculation is a pure function of the listing economics, both
// parties' trust scores, and configuration; it is safe to call concurrently
// and returns identical output for identical input.
package deposit

import "math"

// Config carries the pricing knobs. Values are tuned operationally; the
// defaults below match production.
type Config struct {
	BaseMultiplier      float64
	CategoryRiskFactors map[string]float64
	OwnerTrustWeight    float64
	RenterTrustWeight   float64
	MinimumDeposit      int64
	InsurancePercentage float64
	InsuranceMinimum    int64
}

// DefaultConfig returns the production pricing configuration.
func DefaultConfig() Config {
	return Config{
		BaseMultiplier: 0.3,
		CategoryRiskFactors: map[string]float64{
			"Electronics":    1.5,
			"Cameras":        1.5,
			"Power Tools":    1.2,
			"Outdoor Gear":   1.1,
			"Party & Events": 0.9,
			"Other":          1.0,
		},
		OwnerTrustWeight:    0.5,
		RenterTrustWeight:   0.5,
		MinimumDeposit:      500,
		InsurancePercentage: 10,
		InsuranceMinimum:    25,
	}
}

// Input describes one quote request.
type Input struct {
	DailyRate        int64
	Days             int
	Category         string
	OwnerTrustScore  int
	RenterTrustScore int
	DepositOverride  *int64
}

// Quote is a transient value object; it is never persisted as its own entity.
// Only the deposit amount and insurance flag land on the booking row.
type Quote struct {
	Deposit      int64 `json:"deposit"`
	InsuranceFee int64 `json:"insuranceFee"`
	ItemValue    int64 `json:"itemValue"`
}

// Calculate prices the deposit and insurance fee.
//
// Higher owner trust lowers the deposit (the owner is vouched low-risk), and
// lower renter trust raises it. An explicit deposit override on the listing
// wins over the formula, but item value and insurance fee are still computed
// from the formula so insurance pricing stays consistent.
func Calculate(in Input, cfg Config) Quote {
	itemValue := float64(in.DailyRate) * 20

	var dep float64
	if in.DepositOverride != nil {
		dep = float64(*in.DepositOverride)
	} else {
		riskFactor, ok := cfg.CategoryRiskFactors[in.Category]
		if !ok {
			riskFactor = 1.0
		}
		ownerAdj := 1 - (float64(in.OwnerTrustScore)/100)*cfg.OwnerTrustWeight
		renterAdj := 1 + (float64(100-in.RenterTrustScore)/100)*cfg.RenterTrustWeight

		dep = itemValue * cfg.BaseMultiplier * riskFactor * ownerAdj * renterAdj
		dep = math.Max(dep, float64(cfg.MinimumDeposit))
	}

	insurance := math.Max(itemValue*cfg.InsurancePercentage/100, float64(cfg.InsuranceMinimum))

	return Quote{
		Deposit:      int64(math.Round(dep)),
		InsuranceFee: int64(math.Round(insurance)),
		ItemValue:    int64(math.Round(itemValue)),
	}
}
