package deposit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BaseMultiplier = 0.3
	cfg.OwnerTrustWeight = 0.5
	cfg.RenterTrustWeight = 0.5
	return cfg
}

func TestCalculate_DocumentedExample(t *testing.T) {
	// dailyRate=100, 3 days, Other (factor 1.0), ownerTrust=80, renterTrust=50:
	// itemValue=2000, baseDeposit=600, ownerAdj=0.6, renterAdj=1.25,
	// raw=450, clamped to the 500 minimum.
	q := Calculate(Input{
		DailyRate:        100,
		Days:             3,
		Category:         "Other",
		OwnerTrustScore:  80,
		RenterTrustScore: 50,
	}, testConfig())

	assert.Equal(t, int64(2000), q.ItemValue)
	assert.Equal(t, int64(500), q.Deposit)
	assert.Equal(t, int64(200), q.InsuranceFee)
}

func TestCalculate_OverrideStillPricesInsurance(t *testing.T) {
	override := int64(1234)
	q := Calculate(Input{
		DailyRate:        50,
		Days:             2,
		Category:         "Cameras",
		OwnerTrustScore:  10,
		RenterTrustScore: 90,
		DepositOverride:  &override,
	}, testConfig())

	require.Equal(t, int64(1234), q.Deposit)
	assert.Equal(t, int64(1000), q.ItemValue)
	assert.Equal(t, int64(100), q.InsuranceFee)
}

func TestCalculate_UnknownCategoryFallsBackToNeutralRisk(t *testing.T) {
	base := Calculate(Input{DailyRate: 200, Days: 1, Category: "Other", OwnerTrustScore: 50, RenterTrustScore: 50}, testConfig())
	unknown := Calculate(Input{DailyRate: 200, Days: 1, Category: "Submarines", OwnerTrustScore: 50, RenterTrustScore: 50}, testConfig())
	assert.Equal(t, base.Deposit, unknown.Deposit)
}

func TestCalculate_InsuranceMinimumApplies(t *testing.T) {
	q := Calculate(Input{DailyRate: 1, Days: 1, Category: "Other", OwnerTrustScore: 50, RenterTrustScore: 50}, testConfig())
	assert.Equal(t, int64(25), q.InsuranceFee)
}

func TestCalculate_Properties(t *testing.T) {
	cfg := testConfig()

	rapid.Check(t, func(t *rapid.T) {
		in := Input{
			DailyRate:        rapid.Int64Range(1, 100000).Draw(t, "dailyRate"),
			Days:             rapid.IntRange(1, 60).Draw(t, "days"),
			Category:         rapid.SampledFrom([]string{"Other", "Cameras", "Power Tools", "Submarines"}).Draw(t, "category"),
			OwnerTrustScore:  rapid.IntRange(0, 100).Draw(t, "ownerTrust"),
			RenterTrustScore: rapid.IntRange(0, 100).Draw(t, "renterTrust"),
		}

		q := Calculate(in, cfg)

		if q.Deposit < cfg.MinimumDeposit {
			t.Fatalf("deposit %d below minimum %d", q.Deposit, cfg.MinimumDeposit)
		}
		if q.InsuranceFee < cfg.InsuranceMinimum {
			t.Fatalf("insurance %d below minimum %d", q.InsuranceFee, cfg.InsuranceMinimum)
		}

		// Idempotent for identical inputs.
		if again := Calculate(in, cfg); again != q {
			t.Fatalf("calculate not deterministic: %+v vs %+v", q, again)
		}

		// Monotone: higher owner trust never raises the deposit.
		if in.OwnerTrustScore < 100 {
			better := in
			better.OwnerTrustScore++
			if b := Calculate(better, cfg); b.Deposit > q.Deposit {
				t.Fatalf("deposit rose with owner trust: %d -> %d", q.Deposit, b.Deposit)
			}
		}

		// Monotone: lower renter trust never lowers the deposit.
		if in.RenterTrustScore > 0 {
			worse := in
			worse.RenterTrustScore--
			if w := Calculate(worse, cfg); w.Deposit < q.Deposit {
				t.Fatalf("deposit fell as renter trust dropped: %d -> %d", q.Deposit, w.Deposit)
			}
		}
	})
}
