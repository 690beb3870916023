package booking

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// TestBookingLifecycle_Integration connects to a real PostgreSQL via
// DATABASE_URL and verifies the guarded transitions end to end, including the
// confirm/sweep race.
func TestBookingLifecycle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "bookings") || !tableExists(ctx, t, pool, "timeline_events") || !tableExists(ctx, t, pool, "outbox") {
		t.Skip("database schema missing; apply migrations/001_init.sql first")
	}

	var (
		ownerID   string
		renterID  string
		listingID string
	)

	mustQueryRow := func(query string, args ...any) pgx.Row {
		return pool.QueryRow(ctx, query, args...)
	}

	suffix := time.Now().UnixNano()
	if err := mustQueryRow(`INSERT INTO users (email, full_name, role) VALUES ($1, 'Olive Owner', 'owner') RETURNING id`,
		fmt.Sprintf("owner+%d@example.com", suffix)).Scan(&ownerID); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if err := mustQueryRow(`INSERT INTO users (email, full_name, role) VALUES ($1, 'Rene Renter', 'renter') RETURNING id`,
		fmt.Sprintf("renter+%d@example.com", suffix)).Scan(&renterID); err != nil {
		t.Fatalf("seed renter: %v", err)
	}
	if err := mustQueryRow(`
		INSERT INTO listings (owner_id, title, category, daily_rate)
		VALUES ($1, 'Integration Drill', 'Power Tools', 1500) RETURNING id
	`, ownerID).Scan(&listingID); err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM timeline_events WHERE booking_id IN (SELECT id FROM bookings WHERE listing_id = $1)`, listingID)
		pool.Exec(ctx2, `ALTER TABLE bookings DISABLE TRIGGER no_delete_bookings`)
		pool.Exec(ctx2, `DELETE FROM bookings WHERE listing_id = $1`, listingID)
		pool.Exec(ctx2, `ALTER TABLE bookings ENABLE TRIGGER no_delete_bookings`)
		pool.Exec(ctx2, `DELETE FROM listings WHERE id = $1`, listingID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, ownerID, renterID)
	})

	repo := NewRepository(pool)

	start := time.Now().AddDate(0, 1, 0).Truncate(24 * time.Hour)
	end := start.AddDate(0, 0, 2)
	expires := time.Now().Add(-time.Minute) // already lapsed, sweepable
	b, err := repo.CreateReserved(ctx, CreateParams{
		ListingID:       listingID,
		RenterID:        renterID,
		Status:          StatusReserved,
		StartDate:       start,
		EndDate:         end,
		DepositRequired: 45000,
		ExpiresAt:       &expires,
	})
	if err != nil {
		t.Fatalf("create reserved: %v", err)
	}

	// An overlapping second reservation must bounce off the exclusion constraint.
	if _, err := repo.CreateReserved(ctx, CreateParams{
		ListingID:       listingID,
		RenterID:        renterID,
		Status:          StatusReserved,
		StartDate:       start.AddDate(0, 0, 1),
		EndDate:         end.AddDate(0, 0, 1),
		DepositRequired: 45000,
	}); !errors.Is(err, ErrInvalidDateRange) {
		t.Fatalf("expected ErrInvalidDateRange for overlap, got %v", err)
	}

	// Confirm and sweep race the same RESERVED row; exactly one wins.
	var confirms, staleLosses atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 2; i++ {
		transition := TransitionParams{
			BookingID: b.ID,
			From:      StatusReserved,
			To:        StatusConfirmed,
			EventType: EventConfirmed,
			ActorID:   ownerID,
		}
		if i == 1 {
			transition.To = StatusCancelled
			transition.EventType = EventExpired
			transition.ActorID = ""
		}
		g.Go(func() error {
			_, err := repo.Transition(gctx, transition)
			switch {
			case err == nil:
				confirms.Add(1)
				return nil
			case errors.Is(err, ErrStaleState):
				staleLosses.Add(1)
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("race transitions: %v", err)
	}
	if confirms.Load() != 1 || staleLosses.Load() != 1 {
		t.Fatalf("expected exactly one winner, got %d wins / %d stale", confirms.Load(), staleLosses.Load())
	}

	// Whatever state won, a replay of the loser stays stale.
	if _, err := repo.Transition(ctx, TransitionParams{
		BookingID: b.ID,
		From:      StatusReserved,
		To:        StatusCancelled,
		EventType: EventExpired,
	}); !errors.Is(err, ErrStaleState) {
		t.Fatalf("expected ErrStaleState on replay, got %v", err)
	}

	got, err := repo.GetByID(ctx, b.ID)
	if err != nil {
		t.Fatalf("get booking: %v", err)
	}
	if got.Status != StatusConfirmed && got.Status != StatusCancelled {
		t.Fatalf("unexpected terminal status %s", got.Status)
	}
	if got.DepositStatus != DepositPending {
		t.Fatalf("deposit must stay PENDING through reserve/confirm/sweep, got %s", got.DepositStatus)
	}

	// Timeline: BOOKING_RESERVED then the winner's event, seq 1 and 2.
	var evCount, maxSeq int
	if err := mustQueryRow(`SELECT COUNT(*), MAX(seq) FROM timeline_events WHERE booking_id = $1`, b.ID).Scan(&evCount, &maxSeq); err != nil {
		t.Fatalf("verify events: %v", err)
	}
	if evCount != 2 || maxSeq != 2 {
		t.Fatalf("expected 2 timeline events with max seq 2, got count=%d max=%d", evCount, maxSeq)
	}
}

// TestSweep_Integration verifies an expired hold is cancelled exactly once
// across repeated sweeps.
func TestSweep_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "bookings") {
		t.Skip("database schema missing; apply migrations/001_init.sql first")
	}

	var ownerID, renterID, listingID string
	suffix := time.Now().UnixNano()
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Sweep Owner', 'owner') RETURNING id`,
		fmt.Sprintf("sweepowner+%d@example.com", suffix)).Scan(&ownerID); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Sweep Renter', 'renter') RETURNING id`,
		fmt.Sprintf("sweeprenter+%d@example.com", suffix)).Scan(&renterID); err != nil {
		t.Fatalf("seed renter: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO listings (owner_id, title, category, daily_rate)
		VALUES ($1, 'Sweep Tent', 'Outdoor Gear', 900) RETURNING id
	`, ownerID).Scan(&listingID); err != nil {
		t.Fatalf("seed listing: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM timeline_events WHERE booking_id IN (SELECT id FROM bookings WHERE listing_id = $1)`, listingID)
		pool.Exec(ctx2, `ALTER TABLE bookings DISABLE TRIGGER no_delete_bookings`)
		pool.Exec(ctx2, `DELETE FROM bookings WHERE listing_id = $1`, listingID)
		pool.Exec(ctx2, `ALTER TABLE bookings ENABLE TRIGGER no_delete_bookings`)
		pool.Exec(ctx2, `DELETE FROM listings WHERE id = $1`, listingID)
		pool.Exec(ctx2, `DELETE FROM users WHERE id IN ($1, $2)`, ownerID, renterID)
	})

	repo := NewRepository(pool)
	expires := time.Now().Add(-time.Hour)
	start := time.Now().AddDate(0, 2, 0).Truncate(24 * time.Hour)
	if _, err := repo.CreateReserved(ctx, CreateParams{
		ListingID:       listingID,
		RenterID:        renterID,
		Status:          StatusReserved,
		StartDate:       start,
		EndDate:         start.AddDate(0, 0, 3),
		DepositRequired: 10000,
		ExpiresAt:       &expires,
	}); err != nil {
		t.Fatalf("create reserved: %v", err)
	}

	sweeper := NewSweeper(repo)
	first, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("first sweep: %v", err)
	}
	if first < 1 {
		t.Fatalf("expected first sweep to cancel at least one booking, got %d", first)
	}

	again, err := sweeper.Sweep(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if again != 0 {
		// Another test's bookings may expire between sweeps on a shared DB,
		// but our listing's rows must not be double-counted.
		var count int
		if err := pool.QueryRow(ctx, `
			SELECT COUNT(*) FROM timeline_events e
			JOIN bookings b ON b.id = e.booking_id
			WHERE b.listing_id = $1 AND e.type = 'BOOKING_EXPIRED'
		`, listingID).Scan(&count); err != nil {
			t.Fatalf("verify expiry events: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected exactly one expiry event, got %d", count)
		}
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`, name).Scan(&exists)
	if err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
