package checklist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"gearflow/booking"
)

var (
	// ErrAlreadyExists signals a second checklist for the same (booking, phase).
	ErrAlreadyExists = errors.New("checklist: already exists for booking and phase")
	// ErrPickupRequired signals a return checklist was attempted before any
	// pickup checklist was signed.
	ErrPickupRequired = errors.New("checklist: pickup checklist required first")
)

const checklistColumns = `id, booking_id, phase::text, photos, serial, condition_notes,
       condition_assessment::text, signed_by, signed_at`

// Repository performs checklist writes. Every write shares a transaction with
// the booking status change it triggers: either both persist or neither does.
type Repository interface {
	CreatePickup(ctx context.Context, params PickupParams) (Checklist, booking.Booking, error)
	CreateReturn(ctx context.Context, params ReturnParams) (ReturnResult, error)
	GetByBookingAndPhase(ctx context.Context, bookingID string, phase Phase) (Checklist, error)
}

// PickupParams captures the pickup handover record.
type PickupParams struct {
	BookingID        string
	ActorID          string
	Photos           []string
	Serial           *string
	ConditionNotes   *string
	DepositCollected bool
}

// ReturnParams captures the return handover record.
type ReturnParams struct {
	BookingID      string
	ActorID        string
	Photos         []string
	Assessment     Assessment
	ConditionNotes *string
}

// ReturnResult reports the checklist plus the transition it caused.
type ReturnResult struct {
	Checklist Checklist
	Booking   booking.Booking
	OwnerID   string
	DisputeID string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreatePickup signs the pickup checklist for a CONFIRMED booking. The
// deposit must be PAID (or collected in the same breath via
// DepositCollected); otherwise the whole unit rolls back.
func (r *PGRepository) CreatePickup(ctx context.Context, params PickupParams) (Checklist, booking.Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Checklist{}, booking.Booking{}, fmt.Errorf("checklist: begin pickup tx: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBooking(ctx, tx, params.BookingID)
	if err != nil {
		return Checklist{}, booking.Booking{}, err
	}
	if b.Status != booking.StatusConfirmed {
		return Checklist{}, booking.Booking{}, fmt.Errorf("%w: booking is %s, want CONFIRMED", booking.ErrStaleState, b.Status)
	}

	if b.DepositStatus == booking.DepositPending && params.DepositCollected {
		if _, err := tx.Exec(ctx, `
			UPDATE bookings SET deposit_status = 'PAID', updated_at = get_tx_timestamp()
			WHERE id = $1 AND deposit_status = 'PENDING'
		`, b.ID); err != nil {
			return Checklist{}, booking.Booking{}, fmt.Errorf("checklist: collect deposit: %w", err)
		}
		if err := booking.AppendTimelineEvent(ctx, tx, b.ID, booking.EventDepositPaid, params.ActorID, map[string]any{
			"deposit_required": b.DepositRequired,
			"collected_at":     "pickup",
		}); err != nil {
			return Checklist{}, booking.Booking{}, err
		}
		b.DepositStatus = booking.DepositPaid
	}
	if b.DepositStatus != booking.DepositPaid {
		return Checklist{}, booking.Booking{}, booking.ErrDepositNotCollected
	}

	cl, err := insertChecklist(ctx, tx, b.ID, PhasePickup, params.Photos, params.Serial, params.ConditionNotes, nil, params.ActorID)
	if err != nil {
		return Checklist{}, booking.Booking{}, err
	}

	if err := booking.AppendTimelineEvent(ctx, tx, b.ID, booking.EventChecklistSigned, params.ActorID, map[string]any{
		"checklist_id": cl.ID,
		"phase":        string(PhasePickup),
	}); err != nil {
		return Checklist{}, booking.Booking{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Checklist{}, booking.Booking{}, fmt.Errorf("checklist: commit pickup: %w", err)
	}
	return cl, b, nil
}

// CreateReturn signs the return checklist and resolves the booking: Same or
// Minor completes it, Major moves it to DISPUTED and opens a dispute. The
// checklist insert, the guarded status transition, the dispute row, and the
// audit events commit as one unit.
func (r *PGRepository) CreateReturn(ctx context.Context, params ReturnParams) (ReturnResult, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return ReturnResult{}, fmt.Errorf("checklist: begin return tx: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := lockBooking(ctx, tx, params.BookingID)
	if err != nil {
		return ReturnResult{}, err
	}

	var pickupExists bool
	if err := tx.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM checklists WHERE booking_id = $1 AND phase = 'PICKUP')
	`, b.ID).Scan(&pickupExists); err != nil {
		return ReturnResult{}, fmt.Errorf("checklist: check pickup: %w", err)
	}
	if !pickupExists {
		return ReturnResult{}, ErrPickupRequired
	}

	assessment := params.Assessment
	cl, err := insertChecklist(ctx, tx, b.ID, PhaseReturn, params.Photos, nil, params.ConditionNotes, &assessment, params.ActorID)
	if err != nil {
		return ReturnResult{}, err
	}

	if err := booking.AppendTimelineEvent(ctx, tx, b.ID, booking.EventChecklistSigned, params.ActorID, map[string]any{
		"checklist_id":         cl.ID,
		"phase":                string(PhaseReturn),
		"condition_assessment": string(assessment),
	}); err != nil {
		return ReturnResult{}, err
	}

	next := booking.StatusCompleted
	eventType := booking.EventCompleted
	if assessment == AssessmentMajor {
		next = booking.StatusDisputed
		eventType = booking.EventDisputed
	}

	updated, err := booking.TransitionInTx(ctx, tx, booking.TransitionParams{
		BookingID: b.ID,
		From:      booking.StatusConfirmed,
		To:        next,
		EventType: eventType,
		ActorID:   params.ActorID,
		Payload: map[string]any{
			"checklist_id":         cl.ID,
			"condition_assessment": string(assessment),
		},
	})
	if err != nil {
		return ReturnResult{}, err
	}

	result := ReturnResult{Checklist: cl, Booking: updated}

	if err := tx.QueryRow(ctx, `SELECT owner_id FROM listings WHERE id = $1`, b.ListingID).Scan(&result.OwnerID); err != nil {
		return ReturnResult{}, fmt.Errorf("checklist: listing owner: %w", err)
	}

	if assessment == AssessmentMajor {
		if err := tx.QueryRow(ctx, `
			INSERT INTO disputes (booking_id, opened_by, status, notes)
			VALUES ($1, $2, 'OPEN', $3)
			RETURNING id
		`, b.ID, params.ActorID, params.ConditionNotes).Scan(&result.DisputeID); err != nil {
			return ReturnResult{}, fmt.Errorf("checklist: open dispute: %w", err)
		}
		if err := booking.AppendTimelineEvent(ctx, tx, b.ID, booking.EventDisputeOpened, params.ActorID, map[string]any{
			"dispute_id": result.DisputeID,
			"trigger":    "major_damage_assessment",
		}); err != nil {
			return ReturnResult{}, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return ReturnResult{}, fmt.Errorf("checklist: commit return: %w", err)
	}
	return result, nil
}

func (r *PGRepository) GetByBookingAndPhase(ctx context.Context, bookingID string, phase Phase) (Checklist, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+checklistColumns+`
		FROM checklists
		WHERE booking_id = $1 AND phase = $2::checklist_phase
	`, bookingID, phase)
	cl, err := scanChecklist(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Checklist{}, booking.ErrNotFound
		}
		return Checklist{}, fmt.Errorf("checklist: get: %w", err)
	}
	return cl, nil
}

func lockBooking(ctx context.Context, tx pgx.Tx, bookingID string) (booking.Booking, error) {
	var b booking.Booking
	err := tx.QueryRow(ctx, `
		SELECT id, listing_id, renter_id, status::text, start_date, end_date,
		       deposit_required, deposit_status::text, insurance_added, expires_at,
		       renter_notes, owner_notes, created_at, updated_at
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID).Scan(
		&b.ID, &b.ListingID, &b.RenterID, &b.Status, &b.StartDate, &b.EndDate,
		&b.DepositRequired, &b.DepositStatus, &b.InsuranceAdded, &b.ExpiresAt,
		&b.RenterNotes, &b.OwnerNotes, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return booking.Booking{}, booking.ErrNotFound
		}
		return booking.Booking{}, fmt.Errorf("checklist: lock booking: %w", err)
	}
	return b, nil
}

func insertChecklist(ctx context.Context, tx pgx.Tx, bookingID string, phase Phase, photos []string, serial, notes *string, assessment *Assessment, signedBy string) (Checklist, error) {
	if photos == nil {
		photos = []string{}
	}
	var signer any
	if signedBy != "" {
		signer = signedBy
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO checklists (booking_id, phase, photos, serial, condition_notes, condition_assessment, signed_by)
		VALUES ($1, $2::checklist_phase, $3, $4, $5, $6::condition_assessment, $7)
		RETURNING `+checklistColumns,
		bookingID, phase, photos, serial, notes, assessment, signer)

	cl, err := scanChecklist(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Checklist{}, ErrAlreadyExists
		}
		return Checklist{}, fmt.Errorf("checklist: insert: %w", err)
	}
	return cl, nil
}

func scanChecklist(row pgx.Row) (Checklist, error) {
	var (
		cl         Checklist
		assessment *string
	)
	err := row.Scan(
		&cl.ID,
		&cl.BookingID,
		&cl.Phase,
		&cl.Photos,
		&cl.Serial,
		&cl.ConditionNotes,
		&assessment,
		&cl.SignedBy,
		&cl.SignedAt,
	)
	if err != nil {
		return Checklist{}, err
	}
	if assessment != nil {
		a := Assessment(*assessment)
		cl.ConditionAssessment = &a
	}
	return cl, nil
}
