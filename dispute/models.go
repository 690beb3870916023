package dispute

import "time"

// Status tracks a dispute through its lifecycle.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
)

// Decision is the admin's ruling on the disputed deposit.
type Decision string

const (
	// DecisionRefundOwner forfeits the full deposit to the owner.
	DecisionRefundOwner Decision = "REFUND_OWNER"
	// DecisionPartialRefund splits the deposit; RefundAmount goes back to
	// the renter, the remainder to the owner.
	DecisionPartialRefund Decision = "PARTIAL_REFUND"
	// DecisionReject dismisses the claim and refunds the renter in full.
	DecisionReject Decision = "REJECT"
)

// Valid reports whether d is a recognised ruling.
func (d Decision) Valid() bool {
	switch d {
	case DecisionRefundOwner, DecisionPartialRefund, DecisionReject:
		return true
	}
	return false
}

// Record is a damage dispute raised against a booking. At most one OPEN
// dispute exists per booking; resolution is terminal.
type Record struct {
	ID           string
	BookingID    string
	OpenedBy     string
	Status       Status
	Decision     *Decision
	RefundAmount *int64
	Notes        *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ResolvedAt   *time.Time
	ResolvedBy   *string
}
