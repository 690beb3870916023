package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no booking row exists for the identifier.
	ErrNotFound = errors.New("booking: not found")
	// ErrListingNotFound is returned when the referenced listing is missing.
	ErrListingNotFound = errors.New("booking: listing not found")
	// ErrStaleState signals the conditional status update lost a race: the
	// stored status no longer matches the expected precondition.
	ErrStaleState = errors.New("booking: stale state")
	// ErrInvalidDateRange signals the requested dates violate the listing's
	// minimum-days constraint or overlap an active booking.
	ErrInvalidDateRange = errors.New("booking: invalid date range")
	// ErrForbidden signals a role or ownership check failed.
	ErrForbidden = errors.New("booking: forbidden")
	// ErrDepositNotCollected signals pickup was attempted before the deposit
	// was marked paid.
	ErrDepositNotCollected = errors.New("booking: deposit not collected")
)

const bookingColumns = `id, listing_id, renter_id, status::text, start_date, end_date,
       deposit_required, deposit_status::text, insurance_added, expires_at,
       renter_notes, owner_notes, created_at, updated_at`

// Repository defines the booking data access required by the service and sweeper.
type Repository interface {
	GetByID(ctx context.Context, id string) (Booking, error)
	GetListing(ctx context.Context, id string) (Listing, error)
	CreateReserved(ctx context.Context, params CreateParams) (Booking, error)
	Transition(ctx context.Context, params TransitionParams) (Booking, error)
	MarkDepositPaid(ctx context.Context, bookingID, actorID string) (Booking, error)
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
}

// CreateParams enumerates the fields written when a renter commits to dates.
type CreateParams struct {
	ListingID       string
	RenterID        string
	Status          Status
	StartDate       time.Time
	EndDate         time.Time
	DepositRequired int64
	InsuranceAdded  bool
	ExpiresAt       *time.Time
	RenterNotes     *string
}

// TransitionParams describes a guarded status write. The update succeeds only
// if the stored status equals From; otherwise the caller gets ErrStaleState.
type TransitionParams struct {
	BookingID string
	From      Status
	To        Status
	EventType string
	ActorID   string
	Payload   map[string]any
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) GetByID(ctx context.Context, id string) (Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, ErrNotFound
		}
		return Booking{}, fmt.Errorf("booking: get by id: %w", err)
	}
	return b, nil
}

func (r *PGRepository) GetListing(ctx context.Context, id string) (Listing, error) {
	const query = `
		SELECT id, owner_id, title, category, daily_rate, min_rental_days, instant_book, deposit_override
		FROM listings
		WHERE id = $1
	`
	var l Listing
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Category, &l.DailyRate, &l.MinRentalDays, &l.InstantBook, &l.DepositOverride,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Listing{}, ErrListingNotFound
		}
		return Listing{}, fmt.Errorf("booking: get listing: %w", err)
	}
	return l, nil
}

// CreateReserved inserts the booking row together with its first timeline
// event and an outbox notification in one transaction. The exclusion
// constraint on active bookings turns a concurrent double-book into
// ErrInvalidDateRange rather than a silent overlap.
func (r *PGRepository) CreateReserved(ctx context.Context, params CreateParams) (Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Booking{}, fmt.Errorf("booking: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSQL = `
		INSERT INTO bookings (listing_id, renter_id, status, start_date, end_date,
		                      deposit_required, deposit_status, insurance_added, expires_at, renter_notes)
		VALUES ($1, $2, $3::booking_status, $4, $5, $6, 'PENDING', $7, $8, $9)
		RETURNING ` + bookingColumns

	b, err := scanBooking(tx.QueryRow(ctx, insertSQL,
		params.ListingID,
		params.RenterID,
		params.Status,
		params.StartDate,
		params.EndDate,
		params.DepositRequired,
		params.InsuranceAdded,
		params.ExpiresAt,
		params.RenterNotes,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
			return Booking{}, ErrInvalidDateRange
		}
		return Booking{}, fmt.Errorf("booking: insert: %w", err)
	}

	eventType := EventReserved
	if params.Status == StatusConfirmed {
		eventType = EventConfirmed
	}
	payload := map[string]any{
		"listing_id":       b.ListingID,
		"start_date":       b.StartDate.Format("2006-01-02"),
		"end_date":         b.EndDate.Format("2006-01-02"),
		"deposit_required": b.DepositRequired,
		"instant_book":     params.Status == StatusConfirmed,
	}
	if err := AppendTimelineEvent(ctx, tx, b.ID, eventType, params.RenterID, payload); err != nil {
		return Booking{}, err
	}

	if err := EnqueueOutbox(ctx, tx, "booking.reserved", map[string]any{
		"booking_id": b.ID,
		"listing_id": b.ListingID,
		"renter_id":  b.RenterID,
		"status":     string(b.Status),
	}); err != nil {
		return Booking{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Booking{}, fmt.Errorf("booking: commit insert: %w", err)
	}
	return b, nil
}

// Transition performs the guarded status write plus its timeline event and
// outbox message atomically. Losing the precondition race yields ErrStaleState,
// never a silent overwrite.
func (r *PGRepository) Transition(ctx context.Context, params TransitionParams) (Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Booking{}, fmt.Errorf("booking: begin transition: %w", err)
	}
	defer tx.Rollback(ctx)

	b, err := TransitionInTx(ctx, tx, params)
	if err != nil {
		return Booking{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Booking{}, fmt.Errorf("booking: commit transition: %w", err)
	}
	return b, nil
}

// TransitionInTx is shared with the checklist repository so a checklist insert
// and the booking transition it triggers commit as one unit.
func TransitionInTx(ctx context.Context, tx pgx.Tx, params TransitionParams) (Booking, error) {
	const updateSQL = `
		UPDATE bookings
		SET status = $1::booking_status,
		    updated_at = get_tx_timestamp()
		WHERE id = $2 AND status = $3::booking_status
		RETURNING ` + bookingColumns

	b, err := scanBooking(tx.QueryRow(ctx, updateSQL, params.To, params.BookingID, params.From))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, fmt.Errorf("booking: conditional update: %w", err)
		}
		var current string
		if err := tx.QueryRow(ctx, `SELECT status::text FROM bookings WHERE id = $1`, params.BookingID).Scan(&current); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Booking{}, ErrNotFound
			}
			return Booking{}, fmt.Errorf("booking: classify transition failure: %w", err)
		}
		return Booking{}, fmt.Errorf("%w: expected %s, found %s", ErrStaleState, params.From, current)
	}

	payload := map[string]any{
		"previous_status": string(params.From),
		"next_status":     string(params.To),
	}
	for k, v := range params.Payload {
		payload[k] = v
	}
	if err := AppendTimelineEvent(ctx, tx, b.ID, params.EventType, params.ActorID, payload); err != nil {
		return Booking{}, err
	}

	if err := EnqueueOutbox(ctx, tx, "booking.status_changed", map[string]any{
		"booking_id": b.ID,
		"previous":   string(params.From),
		"next":       string(params.To),
	}); err != nil {
		return Booking{}, err
	}

	return b, nil
}

// MarkDepositPaid flips the deposit from PENDING to PAID. Guarded so a booking
// that never reached an active state cannot collect a deposit.
func (r *PGRepository) MarkDepositPaid(ctx context.Context, bookingID, actorID string) (Booking, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Booking{}, fmt.Errorf("booking: begin deposit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	const updateSQL = `
		UPDATE bookings
		SET deposit_status = 'PAID',
		    updated_at = get_tx_timestamp()
		WHERE id = $1
		  AND deposit_status = 'PENDING'
		  AND status IN ('RESERVED', 'CONFIRMED')
		RETURNING ` + bookingColumns

	b, err := scanBooking(tx.QueryRow(ctx, updateSQL, bookingID))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Booking{}, fmt.Errorf("booking: mark deposit paid: %w", err)
		}
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = $1)`, bookingID).Scan(&exists); err != nil {
			return Booking{}, fmt.Errorf("booking: classify deposit failure: %w", err)
		}
		if !exists {
			return Booking{}, ErrNotFound
		}
		return Booking{}, ErrStaleState
	}

	if err := AppendTimelineEvent(ctx, tx, b.ID, EventDepositPaid, actorID, map[string]any{
		"deposit_required": b.DepositRequired,
	}); err != nil {
		return Booking{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Booking{}, fmt.Errorf("booking: commit deposit: %w", err)
	}
	return b, nil
}

// ListExpired returns the ids of RESERVED bookings whose hold has timed out.
func (r *PGRepository) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	const query = `
		SELECT id
		FROM bookings
		WHERE status = 'RESERVED' AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at
	`
	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("booking: list expired: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0, 16)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("booking: scan expired id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("booking: iterate expired: %w", err)
	}
	return ids, nil
}

func AppendTimelineEvent(ctx context.Context, tx pgx.Tx, bookingID, eventType, actorID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("booking: marshal timeline payload: %w", err)
	}
	var actor any
	if actorID != "" {
		actor = actorID
	}
	const q = `
		INSERT INTO timeline_events (booking_id, type, payload, actor_id)
		VALUES ($1, $2::event_type, $3::jsonb, $4::uuid)
	`
	if _, err := tx.Exec(ctx, q, bookingID, eventType, body, actor); err != nil {
		return fmt.Errorf("booking: insert timeline event: %w", err)
	}
	return nil
}

func EnqueueOutbox(ctx context.Context, tx pgx.Tx, topic string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("booking: marshal outbox payload: %w", err)
	}
	const q = `INSERT INTO outbox (topic, payload) VALUES ($1, $2::jsonb)`
	if _, err := tx.Exec(ctx, q, topic, body); err != nil {
		return fmt.Errorf("booking: enqueue outbox: %w", err)
	}
	return nil
}

func scanBooking(row pgx.Row) (Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID,
		&b.ListingID,
		&b.RenterID,
		&b.Status,
		&b.StartDate,
		&b.EndDate,
		&b.DepositRequired,
		&b.DepositStatus,
		&b.InsuranceAdded,
		&b.ExpiresAt,
		&b.RenterNotes,
		&b.OwnerNotes,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return Booking{}, err
	}
	return b, nil
}
