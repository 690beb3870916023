package checklist

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// ErrInvalidAssessment signals an unrecognised condition verdict.
var ErrInvalidAssessment = errors.New("checklist: invalid condition assessment")

// TrustRecomputer rebuilds a user's trust score after a booking settles.
type TrustRecomputer interface {
	Recompute(ctx context.Context, userID string) (int, error)
}

// Service enforces the checklist gate: pickup before return, one checklist
// per phase, signed records immutable, and the booking transition applied in
// the same transaction as the checklist write.
type Service struct {
	repo  Repository
	trust TrustRecomputer
}

func NewService(repo Repository, trust TrustRecomputer) *Service {
	return &Service{repo: repo, trust: trust}
}

// CreatePickup signs the pickup checklist. The booking must be CONFIRMED and
// the deposit PAID; DepositCollected marks it paid as part of the handover.
func (s *Service) CreatePickup(ctx context.Context, params PickupParams) (Checklist, error) {
	if params.BookingID == "" {
		return Checklist{}, fmt.Errorf("checklist: missing booking id")
	}
	cl, _, err := s.repo.CreatePickup(ctx, params)
	if err != nil {
		return Checklist{}, err
	}
	return cl, nil
}

// CreateReturn signs the return checklist and settles the booking. A Same or
// Minor assessment completes it; Major disputes it and opens a dispute. Both
// parties' trust scores are recomputed after the transition commits.
func (s *Service) CreateReturn(ctx context.Context, params ReturnParams) (ReturnResult, error) {
	if params.BookingID == "" {
		return ReturnResult{}, fmt.Errorf("checklist: missing booking id")
	}
	if !params.Assessment.Valid() {
		return ReturnResult{}, fmt.Errorf("%w: %q", ErrInvalidAssessment, params.Assessment)
	}

	result, err := s.repo.CreateReturn(ctx, params)
	if err != nil {
		return ReturnResult{}, err
	}

	// Score recomputation is a projection over committed history; a failure
	// here is logged and repaired by the next settling event, it does not
	// roll back the return.
	for _, userID := range []string{result.Booking.RenterID, result.OwnerID} {
		if userID == "" {
			continue
		}
		if _, err := s.trust.Recompute(ctx, userID); err != nil {
			log.Printf("checklist: recompute trust for %s: %v", userID, err)
		}
	}

	return result, nil
}

// Get returns the checklist for a booking phase.
func (s *Service) Get(ctx context.Context, bookingID string, phase Phase) (Checklist, error) {
	return s.repo.GetByBookingAndPhase(ctx, bookingID, phase)
}
