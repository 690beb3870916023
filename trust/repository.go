package trust

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned when the user row is missing.
var ErrUserNotFound = errors.New("trust: user not found")

// PGRepository loads booking history and persists scores in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// LoadHistory counts outcomes over every booking the user participated in,
// as renter or as listing owner. Late returns compare the RETURN checklist
// signature time against the booking's end date; major damage comes from the
// structured condition assessment on the RETURN checklist.
func (r *PGRepository) LoadHistory(ctx context.Context, userID string) (History, error) {
	const query = `
		SELECT
			COUNT(*) FILTER (WHERE b.status = 'COMPLETED') AS completed,
			COUNT(*) FILTER (
				WHERE rc.signed_at IS NOT NULL
				  AND rc.signed_at::date > b.end_date
			) AS late_returns,
			COUNT(*) FILTER (
				WHERE b.status = 'DISPUTED'
				  AND rc.condition_assessment = 'Major'
			) AS major_damage
		FROM bookings b
		JOIN listings l ON l.id = b.listing_id
		LEFT JOIN checklists rc ON rc.booking_id = b.id AND rc.phase = 'RETURN'
		WHERE b.renter_id = $1 OR l.owner_id = $1
	`

	var h History
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&h.CompletedBookings, &h.LateReturns, &h.MajorDamageDisputes); err != nil {
		return History{}, fmt.Errorf("trust: load history: %w", err)
	}
	return h, nil
}

func (r *PGRepository) SaveScore(ctx context.Context, userID string, score int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET trust_score = $2,
		    updated_at = get_tx_timestamp()
		WHERE id = $1
	`, userID, score)
	if err != nil {
		return fmt.Errorf("trust: save score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PGRepository) GetScore(ctx context.Context, userID string) (int, error) {
	var score int
	err := r.pool.QueryRow(ctx, `SELECT trust_score FROM users WHERE id = $1`, userID).Scan(&score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("trust: get score: %w", err)
	}
	return score, nil
}
