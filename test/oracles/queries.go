// Package oracles defines the invariant queries the stress harness evaluates
// while actors run. Every query returns zero rows when the system is healthy;
// any row is a violation with enough columns to debug it.
package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_no_overlapping_active_bookings",
			SQL: `SELECT a.id, b.id FROM bookings a
                  JOIN bookings b ON b.listing_id = a.listing_id AND b.id > a.id
                  WHERE a.status IN ('RESERVED','CONFIRMED')
                    AND b.status IN ('RESERVED','CONFIRMED')
                    AND daterange(a.start_date, a.end_date, '[]') && daterange(b.start_date, b.end_date, '[]')`,
		},
		{
			Name: "O2_no_return_without_pickup",
			SQL: `SELECT r.booking_id FROM checklists r
                  WHERE r.phase = 'RETURN'
                    AND NOT EXISTS (
                        SELECT 1 FROM checklists p
                        WHERE p.booking_id = r.booking_id AND p.phase = 'PICKUP')`,
		},
		{
			Name: "O3_timeline_seq_monotonic",
			SQL: `WITH seqs AS (
                      SELECT booking_id, seq,
                             LAG(seq) OVER (PARTITION BY booking_id ORDER BY seq) AS prev
                      FROM timeline_events)
                  SELECT * FROM seqs WHERE prev IS NOT NULL AND seq <= prev`,
		},
		{
			Name: "O4_single_open_dispute",
			SQL: `SELECT booking_id, COUNT(*) FROM disputes
                  WHERE status = 'OPEN'
                  GROUP BY booking_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O5_disputed_booking_has_dispute",
			SQL: `SELECT b.id FROM bookings b
                  WHERE b.status = 'DISPUTED'
                    AND NOT EXISTS (SELECT 1 FROM disputes d WHERE d.booking_id = b.id)`,
		},
		{
			Name: "O6_completed_booking_has_both_checklists",
			SQL: `SELECT b.id FROM bookings b
                  WHERE b.status IN ('COMPLETED','DISPUTED')
                    AND 2 <> (SELECT COUNT(DISTINCT phase) FROM checklists c WHERE c.booking_id = b.id)`,
		},
		{
			Name: "O7_trust_score_bounded",
			SQL:  `SELECT id, trust_score FROM users WHERE trust_score < 0 OR trust_score > 100`,
		},
		{
			Name: "O8_no_paid_deposit_on_expired",
			SQL: `SELECT b.id FROM bookings b
                  JOIN timeline_events e ON e.booking_id = b.id AND e.type = 'BOOKING_EXPIRED'
                  WHERE b.status = 'CANCELLED' AND b.deposit_status NOT IN ('PENDING','REFUNDED')`,
		},
		{
			Name: "O9_outbox_drains",
			SQL: `SELECT id FROM outbox
                  WHERE status NOT IN ('processed','dead')
                    AND now() - created_at > interval '5 minutes'`,
		},
		{
			Name: "O10_booking_delete_guard",
			SQL: `SELECT 'missing_no_delete_trigger' AS detail
                  WHERE NOT EXISTS (SELECT 1 FROM pg_trigger WHERE tgname='no_delete_bookings')`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
