package checklist

import (
	"context"
	"errors"
	"testing"

	"gearflow/booking"
)

func TestCreateReturn_RejectsUnknownAssessment(t *testing.T) {
	repo := &fakeChecklistRepo{}
	svc := NewService(repo, &fakeRecomputer{})

	_, err := svc.CreateReturn(context.Background(), ReturnParams{
		BookingID:  "booking-1",
		ActorID:    "owner-1",
		Assessment: "Catastrophic",
	})
	if !errors.Is(err, ErrInvalidAssessment) {
		t.Fatalf("expected ErrInvalidAssessment, got %v", err)
	}
	if repo.returnCalls != 0 {
		t.Fatalf("expected repository untouched, got %d calls", repo.returnCalls)
	}
}

func TestCreateReturn_PickupRequiredPassesThrough(t *testing.T) {
	repo := &fakeChecklistRepo{returnErr: ErrPickupRequired}
	svc := NewService(repo, &fakeRecomputer{})

	_, err := svc.CreateReturn(context.Background(), ReturnParams{
		BookingID:  "booking-1",
		ActorID:    "owner-1",
		Assessment: AssessmentSame,
	})
	if !errors.Is(err, ErrPickupRequired) {
		t.Fatalf("expected ErrPickupRequired, got %v", err)
	}
}

func TestCreateReturn_RecomputesBothParties(t *testing.T) {
	repo := &fakeChecklistRepo{
		returnResult: ReturnResult{
			Checklist: Checklist{ID: "cl-1", BookingID: "booking-1", Phase: PhaseReturn},
			Booking:   booking.Booking{ID: "booking-1", RenterID: "renter-1", Status: booking.StatusCompleted},
			OwnerID:   "owner-1",
		},
	}
	recomputer := &fakeRecomputer{}
	svc := NewService(repo, recomputer)

	result, err := svc.CreateReturn(context.Background(), ReturnParams{
		BookingID:  "booking-1",
		ActorID:    "owner-1",
		Assessment: AssessmentMinor,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Booking.Status != booking.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %s", result.Booking.Status)
	}
	if len(recomputer.calls) != 2 {
		t.Fatalf("expected 2 recompute calls, got %d", len(recomputer.calls))
	}
	if recomputer.calls[0] != "renter-1" || recomputer.calls[1] != "owner-1" {
		t.Fatalf("unexpected recompute targets: %v", recomputer.calls)
	}
}

func TestCreateReturn_RecomputeFailureDoesNotFailReturn(t *testing.T) {
	repo := &fakeChecklistRepo{
		returnResult: ReturnResult{
			Booking: booking.Booking{ID: "booking-1", RenterID: "renter-1", Status: booking.StatusDisputed},
			OwnerID: "owner-1",
		},
	}
	recomputer := &fakeRecomputer{err: errors.New("db down")}
	svc := NewService(repo, recomputer)

	if _, err := svc.CreateReturn(context.Background(), ReturnParams{
		BookingID:  "booking-1",
		ActorID:    "owner-1",
		Assessment: AssessmentMajor,
	}); err != nil {
		t.Fatalf("expected return to succeed despite recompute failure, got %v", err)
	}
}

func TestCreatePickup_DuplicatePassesThrough(t *testing.T) {
	repo := &fakeChecklistRepo{pickupErr: ErrAlreadyExists}
	svc := NewService(repo, &fakeRecomputer{})

	_, err := svc.CreatePickup(context.Background(), PickupParams{
		BookingID: "booking-1",
		ActorID:   "owner-1",
	})
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestCreatePickup_DepositGatePassesThrough(t *testing.T) {
	repo := &fakeChecklistRepo{pickupErr: booking.ErrDepositNotCollected}
	svc := NewService(repo, &fakeRecomputer{})

	_, err := svc.CreatePickup(context.Background(), PickupParams{
		BookingID: "booking-1",
		ActorID:   "owner-1",
	})
	if !errors.Is(err, booking.ErrDepositNotCollected) {
		t.Fatalf("expected ErrDepositNotCollected, got %v", err)
	}
}

type fakeChecklistRepo struct {
	pickupResult Checklist
	pickupErr    error
	returnResult ReturnResult
	returnErr    error
	returnCalls  int
}

func (f *fakeChecklistRepo) CreatePickup(_ context.Context, _ PickupParams) (Checklist, booking.Booking, error) {
	return f.pickupResult, booking.Booking{}, f.pickupErr
}

func (f *fakeChecklistRepo) CreateReturn(_ context.Context, _ ReturnParams) (ReturnResult, error) {
	f.returnCalls++
	return f.returnResult, f.returnErr
}

func (f *fakeChecklistRepo) GetByBookingAndPhase(_ context.Context, _ string, _ Phase) (Checklist, error) {
	return Checklist{}, booking.ErrNotFound
}

type fakeRecomputer struct {
	calls []string
	err   error
}

func (f *fakeRecomputer) Recompute(_ context.Context, userID string) (int, error) {
	f.calls = append(f.calls, userID)
	if f.err != nil {
		return 0, f.err
	}
	return 50, nil
}
