package listing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested listing does not exist.
var ErrNotFound = errors.New("listing: not found")

// Repository provides read access to listings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const summaryColumns = `l.id, l.owner_id, l.title, l.category, l.daily_rate,
       l.min_rental_days, l.instant_book, l.deposit_override, u.trust_score, l.created_at`

// GetByID fetches a listing by its primary key, with the owner's trust score
// joined in so renters can see who they are dealing with.
func (r *Repository) GetByID(ctx context.Context, id string) (Summary, error) {
	query := `
		SELECT ` + summaryColumns + `
		FROM listings l
		JOIN users u ON u.id = l.owner_id
		WHERE l.id = $1
	`

	s, err := scanSummary(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, fmt.Errorf("listing: query by id: %w", err)
	}

	return s, nil
}

// List fetches up to limit listings, optionally filtered by category,
// ordered by newest first.
func (r *Repository) List(ctx context.Context, category string, limit int) ([]Summary, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := `
		SELECT ` + summaryColumns + `
		FROM listings l
		JOIN users u ON u.id = l.owner_id
	`
	args := []any{limit}
	if category != "" {
		query += ` WHERE l.category = $2`
		args = append(args, category)
	}
	query += ` ORDER BY l.created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing: list: %w", err)
	}
	defer rows.Close()

	listings := make([]Summary, 0, limit)
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("listing: scan: %w", err)
		}
		listings = append(listings, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing: iterate: %w", err)
	}

	return listings, nil
}

// BookedRanges returns the active booking windows for a listing so callers
// can render availability. Cancelled and completed bookings do not block
// dates.
func (r *Repository) BookedRanges(ctx context.Context, listingID string) ([][2]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_date::text, end_date::text
		FROM bookings
		WHERE listing_id = $1 AND status IN ('RESERVED', 'CONFIRMED')
		ORDER BY start_date
	`, listingID)
	if err != nil {
		return nil, fmt.Errorf("listing: booked ranges: %w", err)
	}
	defer rows.Close()

	ranges := make([][2]string, 0, 4)
	for rows.Next() {
		var start, end string
		if err := rows.Scan(&start, &end); err != nil {
			return nil, fmt.Errorf("listing: scan range: %w", err)
		}
		ranges = append(ranges, [2]string{start, end})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing: iterate ranges: %w", err)
	}
	return ranges, nil
}

func scanSummary(row pgx.Row) (Summary, error) {
	var s Summary
	err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.Title,
		&s.Category,
		&s.DailyRate,
		&s.MinRentalDays,
		&s.InstantBook,
		&s.DepositOverride,
		&s.OwnerTrustScore,
		&s.CreatedAt,
	)
	if err != nil {
		return Summary{}, err
	}
	return s, nil
}
