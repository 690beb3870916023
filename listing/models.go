package listing

import "time"

// Summary captures the subset of listing data exposed via the public API
// layer. Listing CRUD lives in a separate service; this is the read surface
// renters browse before reserving.
type Summary struct {
	ID              string
	OwnerID         string
	Title           string
	Category        string
	DailyRate       int64
	MinRentalDays   int
	InstantBook     bool
	DepositOverride *int64
	OwnerTrustScore int
	CreatedAt       time.Time
}
