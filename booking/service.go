package booking

import (
	"context"
	"fmt"
	"time"

	"gearflow/deposit"
)

// ReservationHold is how long an owner has to confirm before the sweep
// cancels the reservation.
const ReservationHold = 24 * time.Hour

// TrustReader exposes the persisted trust score of a user. Implemented by the
// trust package; abstracted here so the service stays unit-testable.
type TrustReader interface {
	GetScore(ctx context.Context, userID string) (int, error)
}

// Service owns booking status transitions. It consumes the deposit calculator
// at quote time; checklist-driven transitions live in the checklist package.
type Service struct {
	repo   Repository
	trust  TrustReader
	config deposit.Config
	now    func() time.Time
}

func NewService(repo Repository, trust TrustReader, config deposit.Config) *Service {
	return &Service{
		repo:   repo,
		trust:  trust,
		config: config,
		now:    time.Now,
	}
}

// ReserveParams captures a renter committing to concrete dates. AddInsurance
// is the renter's opt-in; the insurance fee is quoted either way so the
// renter sees the price before choosing.
type ReserveParams struct {
	ListingID    string
	RenterID     string
	StartDate    time.Time
	EndDate      time.Time
	AddInsurance bool
	Notes        *string
}

// ReserveResult bundles the created booking with the quote that priced it.
// Only DepositRequired/InsuranceAdded persist on the booking row.
type ReserveResult struct {
	Booking Booking
	Quote   deposit.Quote
}

// Reserve validates dates against the listing, prices the deposit, and writes
// the booking as RESERVED with a 24h hold. Instant-book listings skip the
// owner-approval step and land directly in CONFIRMED with no expiry.
func (s *Service) Reserve(ctx context.Context, params ReserveParams) (ReserveResult, error) {
	listing, err := s.repo.GetListing(ctx, params.ListingID)
	if err != nil {
		return ReserveResult{}, err
	}

	start := params.StartDate.Truncate(24 * time.Hour)
	end := params.EndDate.Truncate(24 * time.Hour)
	if end.Before(start) {
		return ReserveResult{}, fmt.Errorf("%w: end before start", ErrInvalidDateRange)
	}
	days := rentalDays(start, end)
	if days < listing.MinRentalDays {
		return ReserveResult{}, fmt.Errorf("%w: %d days below listing minimum %d", ErrInvalidDateRange, days, listing.MinRentalDays)
	}

	ownerTrust, err := s.trust.GetScore(ctx, listing.OwnerID)
	if err != nil {
		return ReserveResult{}, fmt.Errorf("booking: owner trust score: %w", err)
	}
	renterTrust, err := s.trust.GetScore(ctx, params.RenterID)
	if err != nil {
		return ReserveResult{}, fmt.Errorf("booking: renter trust score: %w", err)
	}

	quote := deposit.Calculate(deposit.Input{
		DailyRate:        listing.DailyRate,
		Days:             days,
		Category:         listing.Category,
		OwnerTrustScore:  ownerTrust,
		RenterTrustScore: renterTrust,
		DepositOverride:  listing.DepositOverride,
	}, s.config)

	create := CreateParams{
		ListingID:       listing.ID,
		RenterID:        params.RenterID,
		Status:          StatusReserved,
		StartDate:       start,
		EndDate:         end,
		DepositRequired: quote.Deposit,
		InsuranceAdded:  params.AddInsurance,
		RenterNotes:     params.Notes,
	}
	if listing.InstantBook {
		create.Status = StatusConfirmed
	} else {
		expires := s.now().Add(ReservationHold)
		create.ExpiresAt = &expires
	}

	b, err := s.repo.CreateReserved(ctx, create)
	if err != nil {
		return ReserveResult{}, err
	}
	return ReserveResult{Booking: b, Quote: quote}, nil
}

// Confirm moves a RESERVED booking to CONFIRMED. Only the listing owner or an
// admin may confirm.
func (s *Service) Confirm(ctx context.Context, bookingID, actorID string, isAdmin bool) (Booking, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	listing, err := s.repo.GetListing(ctx, b.ListingID)
	if err != nil {
		return Booking{}, err
	}
	if !isAdmin && listing.OwnerID != actorID {
		return Booking{}, ErrForbidden
	}

	return s.repo.Transition(ctx, TransitionParams{
		BookingID: bookingID,
		From:      StatusReserved,
		To:        StatusConfirmed,
		EventType: EventConfirmed,
		ActorID:   actorID,
	})
}

// Cancel releases a RESERVED booking before confirmation. Either party (or an
// admin) may cancel; the deposit is never charged for a booking that never
// reached CONFIRMED.
func (s *Service) Cancel(ctx context.Context, bookingID, actorID string, isAdmin bool) (Booking, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if !isAdmin && b.RenterID != actorID {
		listing, err := s.repo.GetListing(ctx, b.ListingID)
		if err != nil {
			return Booking{}, err
		}
		if listing.OwnerID != actorID {
			return Booking{}, ErrForbidden
		}
	}

	return s.repo.Transition(ctx, TransitionParams{
		BookingID: bookingID,
		From:      StatusReserved,
		To:        StatusCancelled,
		EventType: EventCancelled,
		ActorID:   actorID,
		Payload:   map[string]any{"reason": "cancelled_by_party"},
	})
}

// MarkDepositPaid records the manual deposit-collection confirmation required
// before pickup.
func (s *Service) MarkDepositPaid(ctx context.Context, bookingID, actorID string, isAdmin bool) (Booking, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if !isAdmin {
		listing, err := s.repo.GetListing(ctx, b.ListingID)
		if err != nil {
			return Booking{}, err
		}
		if listing.OwnerID != actorID {
			return Booking{}, ErrForbidden
		}
	}
	return s.repo.MarkDepositPaid(ctx, bookingID, actorID)
}

// Get returns the booking for the identifier, restricted to its participants.
func (s *Service) Get(ctx context.Context, bookingID, actorID string, isAdmin bool) (Booking, error) {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return Booking{}, err
	}
	if isAdmin || b.RenterID == actorID {
		return b, nil
	}
	listing, err := s.repo.GetListing(ctx, b.ListingID)
	if err != nil {
		return Booking{}, err
	}
	if listing.OwnerID != actorID {
		return Booking{}, ErrForbidden
	}
	return b, nil
}
