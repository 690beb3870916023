// Command sweep cancels RESERVED bookings whose confirmation hold has
// expired. It runs once and exits, intended for an external scheduler (cron,
// systemd timer). Overlapping runs are safe; the conditional-update guard
// makes every cancellation race-free.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"gearflow/auth"
	"gearflow/booking"
	"gearflow/db"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.NewPool(ctx, os.Getenv("DATABASE_URL"))
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	sweeper := booking.NewSweeper(booking.NewRepository(pool))
	expired, err := sweeper.Sweep(ctx)
	if err != nil {
		log.Fatalf("sweep: %v", err)
	}

	purged, err := auth.NewTokenStore(pool).PurgeExpired(ctx)
	if err != nil {
		log.Printf("purge login tokens: %v", err)
	}

	log.Printf("sweep done: %d reservations expired, %d login tokens purged", expired, purged)
}
