// Package actors holds the concurrent workers the stress harness runs
// against a live database. Each actor hammers one lifecycle operation using
// the same SQL shapes the repositories use, so the database-level guards
// (exclusion constraint, conditional updates, partial unique indexes) see
// realistic contention.
package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Reserver races to insert RESERVED bookings with overlapping date windows
// for one listing. The gist exclusion constraint must reject all but one
// holder of any window.
func Reserver(ctx context.Context, pool *pgxpool.Pool, listingID, renterID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		start := time.Now().AddDate(0, 0, 1+rand.Intn(20))
		end := start.AddDate(0, 0, 1+rand.Intn(5))
		_, err := pool.Exec(ctx, `
			INSERT INTO bookings (listing_id, renter_id, status, start_date, end_date, deposit_required, expires_at)
			VALUES ($1, $2, 'RESERVED', $3, $4, 5000, now() + interval '24 hours')
		`, listingID, renterID, start.Format("2006-01-02"), end.Format("2006-01-02"))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23P01" {
				// Overlap rejected by the exclusion constraint; expected under contention.
			} else {
				return fmt.Errorf("reserver insert: %w", err)
			}
		}
		time.Sleep(time.Duration(10+rand.Intn(20)) * time.Millisecond)
	}
}

// Confirmer flips RESERVED bookings to CONFIRMED through the conditional
// update, appending the audit event in the same transaction.
func Confirmer(ctx context.Context, pool *pgxpool.Pool, listingID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var bookingID string
		err = tx.QueryRow(ctx, `
			UPDATE bookings SET status = 'CONFIRMED', expires_at = NULL, updated_at = now()
			WHERE id = (SELECT id FROM bookings WHERE listing_id = $1 AND status = 'RESERVED' LIMIT 1)
			  AND status = 'RESERVED'
			RETURNING id
		`, listingID).Scan(&bookingID)
		if err == nil {
			_, _ = tx.Exec(ctx, `
				INSERT INTO timeline_events (booking_id, type) VALUES ($1, 'BOOKING_CONFIRMED')
			`, bookingID)
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Expirer plays the sweep: it cancels RESERVED bookings whose hold lapsed,
// racing the Confirmer on the same rows.
func Expirer(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var bookingID string
		err = tx.QueryRow(ctx, `
			UPDATE bookings SET status = 'CANCELLED', updated_at = now()
			WHERE id = (
				SELECT id FROM bookings
				WHERE status = 'RESERVED' AND expires_at IS NOT NULL AND expires_at < now()
				LIMIT 1)
			  AND status = 'RESERVED'
			RETURNING id
		`).Scan(&bookingID)
		if err == nil {
			_, _ = tx.Exec(ctx, `
				INSERT INTO timeline_events (booking_id, type) VALUES ($1, 'BOOKING_EXPIRED')
			`, bookingID)
			_ = tx.Commit(ctx)
		} else {
			_ = tx.Rollback(ctx)
		}
		time.Sleep(time.Duration(50+rand.Intn(100)) * time.Millisecond)
	}
}

// Handover drives CONFIRMED bookings through deposit collection, the pickup
// checklist, then the return checklist, occasionally assessing Major damage
// so disputes open under load.
func Handover(ctx context.Context, pool *pgxpool.Pool, listingID, ownerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		var bookingID string
		err = tx.QueryRow(ctx, `
			SELECT id FROM bookings
			WHERE listing_id = $1 AND status = 'CONFIRMED'
			LIMIT 1 FOR UPDATE SKIP LOCKED
		`, listingID).Scan(&bookingID)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(60 * time.Millisecond)
			continue
		}

		_, _ = tx.Exec(ctx, `UPDATE bookings SET deposit_status = 'PAID' WHERE id = $1 AND deposit_status = 'PENDING'`, bookingID)
		_, err = tx.Exec(ctx, `
			INSERT INTO checklists (booking_id, phase, photos, signed_by)
			VALUES ($1, 'PICKUP', '{}', $2)
		`, bookingID, ownerID)
		if err == nil {
			assessment := "Same"
			next := "COMPLETED"
			event := "BOOKING_COMPLETED"
			if rand.Intn(5) == 0 {
				assessment = "Major"
				next = "DISPUTED"
				event = "BOOKING_DISPUTED"
			}
			_, err = tx.Exec(ctx, `
				INSERT INTO checklists (booking_id, phase, photos, condition_assessment, signed_by)
				VALUES ($1, 'RETURN', '{}', $2::condition_assessment, $3)
			`, bookingID, assessment, ownerID)
			if err == nil {
				_, _ = tx.Exec(ctx, `UPDATE bookings SET status = $2::booking_status, updated_at = now() WHERE id = $1 AND status = 'CONFIRMED'`, bookingID, next)
				_, _ = tx.Exec(ctx, `INSERT INTO timeline_events (booking_id, type) VALUES ($1, $2::event_type)`, bookingID, event)
				if assessment == "Major" {
					_, _ = tx.Exec(ctx, `INSERT INTO disputes (booking_id, opened_by, status) VALUES ($1, $2, 'OPEN') ON CONFLICT DO NOTHING`, bookingID, ownerID)
				}
			}
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		} else {
			_ = tx.Commit(ctx)
		}
		time.Sleep(time.Duration(40+rand.Intn(80)) * time.Millisecond)
	}
}

// Resolver races other resolvers to close OPEN disputes; the conditional
// update must let exactly one ruling through per dispute.
func Resolver(ctx context.Context, pool *pgxpool.Pool, adminID string, stop <-chan struct{}) error {
	decisions := []string{"REFUND_OWNER", "PARTIAL_REFUND", "REJECT"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		decision := decisions[rand.Intn(len(decisions))]
		_, _ = pool.Exec(ctx, `
			UPDATE disputes
			SET status = 'RESOLVED', decision = $1::dispute_decision, resolved_by = $2, resolved_at = now()
			WHERE id = (SELECT id FROM disputes WHERE status = 'OPEN' LIMIT 1)
			  AND status = 'OPEN'
		`, decision, adminID)
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// OutboxWorker consumes pending outbox messages with SKIP LOCKED and marks
// them processed, simulating occasional delivery failures.
func OutboxWorker(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `SELECT id FROM outbox WHERE status='pending' ORDER BY created_at FOR UPDATE SKIP LOCKED LIMIT 10`)
		if err != nil {
			_ = tx.Rollback(ctx)
			time.Sleep(50 * time.Millisecond)
			continue
		}
		ids := make([]string, 0, 10)
		for rows.Next() {
			var id string
			_ = rows.Scan(&id)
			ids = append(ids, id)
		}
		rows.Close()
		for _, id := range ids {
			if rand.Intn(10) == 0 {
				_, _ = tx.Exec(ctx, `UPDATE outbox SET attempts=attempts+1, last_attempt=NOW() WHERE id=$1`, id)
				continue
			}
			_, _ = tx.Exec(ctx, `UPDATE outbox SET status='processed', last_attempt=NOW() WHERE id=$1`, id)
		}
		_ = tx.Commit(ctx)
		time.Sleep(100 * time.Millisecond)
	}
}
