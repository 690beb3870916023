package booking

import (
	"context"
	"errors"
	"log"
	"time"
)

// Sweeper force-cancels reservations whose 24h hold has lapsed. It is
// stateless and externally scheduled; overlapping invocations are safe because
// each cancellation goes through the conditional-update guard, so a booking
// confirmed or already cancelled by a racing writer is skipped, not
// double-processed.
type Sweeper struct {
	repo Repository
	now  func() time.Time
}

func NewSweeper(repo Repository) *Sweeper {
	return &Sweeper{repo: repo, now: time.Now}
}

// Sweep transitions every timed-out RESERVED booking to CANCELLED and returns
// the count actually transitioned. Per-row failures are logged and left for
// the next scheduled run; they never fail the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ids, err := s.repo.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		_, err := s.repo.Transition(ctx, TransitionParams{
			BookingID: id,
			From:      StatusReserved,
			To:        StatusCancelled,
			EventType: EventExpired,
			Payload:   map[string]any{"reason": "reservation_hold_expired"},
		})
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrStaleState), errors.Is(err, ErrNotFound):
			// Lost the race to a confirm, cancel, or concurrent sweep.
		default:
			log.Printf("sweep: cancel booking %s: %v", id, err)
		}
	}
	return expired, nil
}
