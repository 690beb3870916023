package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"gearflow/test/actors"
	"gearflow/test/chaos"
	"gearflow/test/infra"
	"gearflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestBookingConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("STRESS_TEST_PG_DSN") != "":
		dsn = os.Getenv("STRESS_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	seedData := mustSeed(t, ctx, pool)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// reservers and confirmers battling over the same listing
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error {
			return actors.Reserver(ctx2, pool, seedData.listingID, seedData.renterID, stop)
		})
		g.Go(func() error { return actors.Confirmer(ctx2, pool, seedData.listingID, stop) })
	}

	// hold expiry sweep racing the confirmers
	g.Go(func() error { return actors.Expirer(ctx2, pool, stop) })
	// handover: deposit, pickup, return, occasional Major damage
	g.Go(func() error { return actors.Handover(ctx2, pool, seedData.listingID, seedData.ownerID, stop) })
	// two admins racing to resolve the same disputes
	g.Go(func() error { return actors.Resolver(ctx2, pool, seedData.adminID, stop) })
	g.Go(func() error { return actors.Resolver(ctx2, pool, seedData.adminID, stop) })
	// outbox drain
	g.Go(func() error { return actors.OutboxWorker(ctx2, pool, stop) })
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, "", stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	ownerID   string
	renterID  string
	adminID   string
	listingID string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	var s seedIDs
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Stress Owner', 'owner') RETURNING id`,
		fmt.Sprintf("owner%d@example.com", rand.Int63())).Scan(&s.ownerID); err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Stress Renter', 'renter') RETURNING id`,
		fmt.Sprintf("renter%d@example.com", rand.Int63())).Scan(&s.renterID); err != nil {
		t.Fatalf("seed renter: %v", err)
	}
	if err := pool.QueryRow(ctx, `INSERT INTO users (email, full_name, role) VALUES ($1, 'Stress Admin', 'admin') RETURNING id`,
		fmt.Sprintf("admin%d@example.com", rand.Int63())).Scan(&s.adminID); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := pool.QueryRow(ctx, `
		INSERT INTO listings (owner_id, title, category, daily_rate)
		VALUES ($1, 'Stress Drill', 'Power Tools', 1500)
		RETURNING id
	`, s.ownerID).Scan(&s.listingID); err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"bookings", `SELECT id, listing_id, status, deposit_status, start_date, end_date, expires_at FROM bookings ORDER BY updated_at DESC LIMIT 50`},
		{"timeline_events", `SELECT id, booking_id, seq, type, created_at FROM timeline_events ORDER BY id DESC LIMIT 50`},
		{"checklists", `SELECT id, booking_id, phase, condition_assessment, signed_at FROM checklists ORDER BY signed_at DESC LIMIT 50`},
		{"disputes", `SELECT id, booking_id, status, decision, resolved_at FROM disputes ORDER BY created_at DESC LIMIT 50`},
		{"outbox", `SELECT id, topic, status, attempts, created_at FROM outbox ORDER BY created_at DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
