package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"gearflow/auth"
	"gearflow/booking"
	"gearflow/checklist"
	"gearflow/db"
	"gearflow/deposit"
	"gearflow/dispute"
	"gearflow/httpapi"
	"gearflow/listing"
	"gearflow/trust"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connString := os.Getenv("DATABASE_URL")
	pool, err := db.NewPool(ctx, connString)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	depositConfig := deposit.DefaultConfig()

	trustEngine := trust.NewEngine(trust.NewRepository(pool))
	bookingRepo := booking.NewRepository(pool)
	bookingService := booking.NewService(bookingRepo, trustEngine, depositConfig)
	checklistService := checklist.NewService(checklist.NewRepository(pool), trustEngine)
	disputeService := dispute.NewService(dispute.NewRepository(pool))
	authService := auth.NewService(auth.NewRepository(pool), auth.NewTokenStore(pool), jwtSecret)
	listingService := listing.NewService(listing.NewRepository(pool))
	sweeper := booking.NewSweeper(bookingRepo)

	server := httpapi.NewServer(
		authService,
		bookingService,
		checklistService,
		disputeService,
		listingService,
		sweeper,
		depositConfig,
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Printf("listening on :%s", port)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server: %v", err)
	}
}
