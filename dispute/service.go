package dispute

import (
	"context"
	"errors"
	"fmt"

	"gearflow/booking"
)

// ErrRefundAmountRequired signals a PARTIAL_REFUND ruling without an amount.
var ErrRefundAmountRequired = errors.New("dispute: partial refund requires a positive refund amount")

// Service enforces who may rule on disputes. Resolution is admin-only and
// terminal; the repository makes concurrent rulings race-safe.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Open raises a dispute manually, outside the Major-damage return path. Any
// booking participant or an admin may open one while the booking is DISPUTED.
func (s *Service) Open(ctx context.Context, bookingID, openedBy string, notes *string) (Record, error) {
	if bookingID == "" {
		return Record{}, fmt.Errorf("dispute: missing booking id")
	}
	return s.repo.Open(ctx, bookingID, openedBy, notes)
}

// Resolve applies an admin ruling. Non-admin callers are rejected before any
// state is touched.
func (s *Service) Resolve(ctx context.Context, params ResolveParams, isAdmin bool) (Record, error) {
	if !isAdmin {
		return Record{}, booking.ErrForbidden
	}
	if !params.Decision.Valid() {
		return Record{}, fmt.Errorf("dispute: unknown decision %q", params.Decision)
	}
	if params.Decision == DecisionPartialRefund {
		if params.RefundAmount == nil || *params.RefundAmount <= 0 {
			return Record{}, ErrRefundAmountRequired
		}
	} else {
		params.RefundAmount = nil
	}
	return s.repo.Resolve(ctx, params)
}

// Get returns a dispute by id.
func (s *Service) Get(ctx context.Context, disputeID string) (Record, error) {
	return s.repo.GetByID(ctx, disputeID)
}

// ListOpen returns the admin work queue of unresolved disputes.
func (s *Service) ListOpen(ctx context.Context) ([]Record, error) {
	return s.repo.ListOpen(ctx)
}
