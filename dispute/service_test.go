package dispute

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gearflow/booking"
)

func TestResolve_AdminOnly(t *testing.T) {
	repo := &fakeDisputeRepo{}
	svc := NewService(repo)

	_, err := svc.Resolve(context.Background(), ResolveParams{
		DisputeID: "d-1",
		AdminID:   "user-1",
		Decision:  DecisionReject,
	}, false)
	assert.ErrorIs(t, err, booking.ErrForbidden)
	assert.Equal(t, 0, repo.resolveCalls)
}

func TestResolve_RejectsUnknownDecision(t *testing.T) {
	svc := NewService(&fakeDisputeRepo{})

	_, err := svc.Resolve(context.Background(), ResolveParams{
		DisputeID: "d-1",
		AdminID:   "admin-1",
		Decision:  "SPLIT_THE_BABY",
	}, true)
	require.Error(t, err)
}

func TestResolve_PartialRefundRequiresAmount(t *testing.T) {
	svc := NewService(&fakeDisputeRepo{})

	_, err := svc.Resolve(context.Background(), ResolveParams{
		DisputeID: "d-1",
		AdminID:   "admin-1",
		Decision:  DecisionPartialRefund,
	}, true)
	assert.ErrorIs(t, err, ErrRefundAmountRequired)

	zero := int64(0)
	_, err = svc.Resolve(context.Background(), ResolveParams{
		DisputeID:    "d-1",
		AdminID:      "admin-1",
		Decision:     DecisionPartialRefund,
		RefundAmount: &zero,
	}, true)
	assert.ErrorIs(t, err, ErrRefundAmountRequired)
}

func TestResolve_DropsRefundAmountForFullDecisions(t *testing.T) {
	repo := &fakeDisputeRepo{}
	svc := NewService(repo)

	stray := int64(9000)
	_, err := svc.Resolve(context.Background(), ResolveParams{
		DisputeID:    "d-1",
		AdminID:      "admin-1",
		Decision:     DecisionRefundOwner,
		RefundAmount: &stray,
	}, true)
	require.NoError(t, err)
	require.Equal(t, 1, repo.resolveCalls)
	assert.Nil(t, repo.lastResolve.RefundAmount)
}

func TestResolve_AlreadyResolvedPassesThrough(t *testing.T) {
	repo := &fakeDisputeRepo{resolveErr: ErrAlreadyResolved}
	svc := NewService(repo)

	_, err := svc.Resolve(context.Background(), ResolveParams{
		DisputeID: "d-1",
		AdminID:   "admin-1",
		Decision:  DecisionReject,
	}, true)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestDepositOutcome(t *testing.T) {
	assert.Equal(t, booking.DepositForfeited, depositOutcome(DecisionRefundOwner))
	assert.Equal(t, booking.DepositForfeited, depositOutcome(DecisionPartialRefund))
	assert.Equal(t, booking.DepositRefunded, depositOutcome(DecisionReject))
}

type fakeDisputeRepo struct {
	resolveErr   error
	resolveCalls int
	lastResolve  ResolveParams
}

func (f *fakeDisputeRepo) Open(_ context.Context, bookingID, openedBy string, notes *string) (Record, error) {
	return Record{BookingID: bookingID, OpenedBy: openedBy, Notes: notes, Status: StatusOpen}, nil
}

func (f *fakeDisputeRepo) Resolve(_ context.Context, params ResolveParams) (Record, error) {
	f.resolveCalls++
	f.lastResolve = params
	if f.resolveErr != nil {
		return Record{}, f.resolveErr
	}
	return Record{ID: params.DisputeID, Status: StatusResolved}, nil
}

func (f *fakeDisputeRepo) GetByID(_ context.Context, _ string) (Record, error) {
	return Record{}, errors.New("not implemented")
}

func (f *fakeDisputeRepo) ListOpen(_ context.Context) ([]Record, error) {
	return nil, nil
}
