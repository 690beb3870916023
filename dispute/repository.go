package dispute

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
	// ErrAlreadyResolved signals a resolution attempt on a dispute another
	// admin already closed.
	ErrAlreadyResolved = errors.New("dispute: already resolved")
	// ErrAlreadyOpen signals a second OPEN dispute for the same booking.
	ErrAlreadyOpen = errors.New("dispute: booking already has an open dispute")
)

const disputeColumns = `id, booking_id, opened_by, status::text, decision::text,
       refund_amount, notes, created_at, updated_at, resolved_at, resolved_by`

// Repository persists dispute records. Resolution writes the ruling, the
// booking's deposit outcome, and the audit event in one transaction.
type Repository interface {
	Open(ctx context.Context, bookingID, openedBy string, notes *string) (Record, error)
	Resolve(ctx context.Context, params ResolveParams) (Record, error)
	GetByID(ctx context.Context, disputeID string) (Record, error)
	ListOpen(ctx context.Context) ([]Record, error)
}

// ResolveParams carries an admin ruling.
type ResolveParams struct {
	DisputeID    string
	AdminID      string
	Decision     Decision
	RefundAmount *int64
	Notes        *string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Open raises a dispute against a DISPUTED booking outside the automatic
// Major-damage path. The partial unique index on (booking_id) WHERE OPEN
// rejects a second open dispute.
func (r *PGRepository) Open(ctx context.Context, bookingID, openedBy string, notes *string) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin open tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status string
	if err := tx.QueryRow(ctx, `
		SELECT status::text FROM bookings WHERE id = $1 FOR UPDATE
	`, bookingID).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, booking.ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: lock booking: %w", err)
	}
	if booking.Status(status) != booking.StatusDisputed {
		return Record{}, fmt.Errorf("%w: booking is %s, want DISPUTED", booking.ErrStaleState, status)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO disputes (booking_id, opened_by, status, notes)
		VALUES ($1, $2, 'OPEN', $3)
		RETURNING `+disputeColumns,
		bookingID, openedBy, notes)
	rec, err := scanRecord(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Record{}, ErrAlreadyOpen
		}
		return Record{}, fmt.Errorf("dispute: open: %w", err)
	}

	if err := booking.AppendTimelineEvent(ctx, tx, bookingID, booking.EventDisputeOpened, openedBy, map[string]any{
		"dispute_id": rec.ID,
		"trigger":    "manual",
	}); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit open: %w", err)
	}
	return rec, nil
}

// Resolve closes an OPEN dispute with the admin's ruling. The guarded update
// makes concurrent resolutions race-safe: exactly one wins, the rest see
// ErrAlreadyResolved. The booking's deposit outcome and the audit event
// commit with the ruling.
func (r *PGRepository) Resolve(ctx context.Context, params ResolveParams) (Record, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("dispute: begin resolve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		UPDATE disputes
		SET status = 'RESOLVED',
		    decision = $2::dispute_decision,
		    refund_amount = $3,
		    notes = COALESCE($4, notes),
		    resolved_by = $5,
		    resolved_at = get_tx_timestamp(),
		    updated_at = get_tx_timestamp()
		WHERE id = $1 AND status = 'OPEN'
		RETURNING `+disputeColumns,
		params.DisputeID, params.Decision, params.RefundAmount, params.Notes, params.AdminID)
	rec, err := scanRecord(row)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("dispute: resolve: %w", err)
		}
		var status Status
		if err := tx.QueryRow(ctx, `
			SELECT status::text FROM disputes WHERE id = $1
		`, params.DisputeID).Scan(&status); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return Record{}, booking.ErrNotFound
			}
			return Record{}, fmt.Errorf("dispute: resolve fetch: %w", err)
		}
		if status == StatusResolved {
			return Record{}, ErrAlreadyResolved
		}
		return Record{}, booking.ErrNotFound
	}

	depositStatus := depositOutcome(params.Decision)
	if _, err := tx.Exec(ctx, `
		UPDATE bookings SET deposit_status = $2::deposit_status, updated_at = get_tx_timestamp()
		WHERE id = $1
	`, rec.BookingID, depositStatus); err != nil {
		return Record{}, fmt.Errorf("dispute: apply deposit outcome: %w", err)
	}

	payload := map[string]any{
		"dispute_id":     rec.ID,
		"decision":       string(params.Decision),
		"deposit_status": string(depositStatus),
	}
	if params.RefundAmount != nil {
		payload["refund_amount"] = *params.RefundAmount
	}
	if err := booking.AppendTimelineEvent(ctx, tx, rec.BookingID, booking.EventDisputeResolved, params.AdminID, payload); err != nil {
		return Record{}, err
	}
	if err := booking.EnqueueOutbox(ctx, tx, "dispute.resolved", payload); err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, fmt.Errorf("dispute: commit resolve: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) GetByID(ctx context.Context, disputeID string) (Record, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE id = $1
	`, disputeID)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, booking.ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: get: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) ListOpen(ctx context.Context) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+disputeColumns+` FROM disputes WHERE status = 'OPEN' ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("dispute: list open: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("dispute: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate: %w", err)
	}
	return out, nil
}

// depositOutcome maps a ruling onto the booking's deposit. A partial refund
// still forfeits the deposit as held; the refund amount is recorded on the
// dispute for the payout.
func depositOutcome(d Decision) booking.DepositStatus {
	switch d {
	case DecisionRefundOwner, DecisionPartialRefund:
		return booking.DepositForfeited
	default:
		return booking.DepositRefunded
	}
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec      Record
		decision *string
	)
	err := row.Scan(
		&rec.ID,
		&rec.BookingID,
		&rec.OpenedBy,
		&rec.Status,
		&decision,
		&rec.RefundAmount,
		&rec.Notes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&rec.ResolvedAt,
		&rec.ResolvedBy,
	)
	if err != nil {
		return Record{}, err
	}
	if decision != nil {
		d := Decision(*decision)
		rec.Decision = &d
	}
	return rec, nil
}
