package booking

import "time"

// Status is the canonical booking state machine. Legacy naming from older
// subsystems (PENDING/IN_PROGRESS) is mapped onto this enum at the boundary
// and never stored.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusReserved  Status = "RESERVED"
	StatusConfirmed Status = "CONFIRMED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusDisputed  Status = "DISPUTED"
)

// DepositStatus tracks the security deposit independently of booking status.
type DepositStatus string

const (
	DepositPending   DepositStatus = "PENDING"
	DepositPaid      DepositStatus = "PAID"
	DepositRefunded  DepositStatus = "REFUNDED"
	DepositForfeited DepositStatus = "FORFEITED"
)

// Timeline event types appended to the booking's append-only audit log.
const (
	EventReserved        = "BOOKING_RESERVED"
	EventConfirmed       = "BOOKING_CONFIRMED"
	EventCancelled       = "BOOKING_CANCELLED"
	EventExpired         = "BOOKING_EXPIRED"
	EventDepositPaid     = "DEPOSIT_PAID"
	EventChecklistSigned = "CHECKLIST_SIGNED"
	EventCompleted       = "BOOKING_COMPLETED"
	EventDisputed        = "BOOKING_DISPUTED"
	EventDisputeOpened   = "DISPUTE_OPENED"
	EventDisputeResolved = "DISPUTE_RESOLVED"
)

// Booking mirrors the bookings table. Rows are never physically deleted;
// status carries the full history.
type Booking struct {
	ID              string
	ListingID       string
	RenterID        string
	Status          Status
	StartDate       time.Time
	EndDate         time.Time
	DepositRequired int64
	DepositStatus   DepositStatus
	InsuranceAdded  bool
	ExpiresAt       *time.Time
	RenterNotes     *string
	OwnerNotes      *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Days returns the inclusive rental length in days.
func (b Booking) Days() int {
	return rentalDays(b.StartDate, b.EndDate)
}

// rentalDays counts days inclusively; a same-day rental is one day.
func rentalDays(start, end time.Time) int {
	return int(end.Sub(start).Hours()/24) + 1
}

// Listing holds the subset of listing columns the lifecycle engine reads.
// Listing CRUD itself lives outside this service.
type Listing struct {
	ID              string
	OwnerID         string
	Title           string
	Category        string
	DailyRate       int64
	MinRentalDays   int
	InstantBook     bool
	DepositOverride *int64
}
