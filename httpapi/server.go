// Package httpapi exposes the booking lifecycle over HTTP. Handlers stay
// thin: decode, delegate to a service, map the sentinel error onto a status
// code. All domain rules live below this layer.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gearflow/auth"
	"gearflow/booking"
	"gearflow/checklist"
	"gearflow/deposit"
	"gearflow/dispute"
	"gearflow/listing"
)

// AuthService is the slice of the auth package the handlers need.
type AuthService interface {
	Register(ctx context.Context, req auth.RegisterRequest) (*auth.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (auth.LoginResult, error)
	RequestMagicLink(ctx context.Context, email string) error
	LoginWithToken(ctx context.Context, token string) (auth.LoginResult, error)
	VerifyToken(token string) (string, auth.Role, error)
}

// BookingService drives the reservation lifecycle.
type BookingService interface {
	Reserve(ctx context.Context, params booking.ReserveParams) (booking.ReserveResult, error)
	Confirm(ctx context.Context, bookingID, actorID string, isAdmin bool) (booking.Booking, error)
	Cancel(ctx context.Context, bookingID, actorID string, isAdmin bool) (booking.Booking, error)
	MarkDepositPaid(ctx context.Context, bookingID, actorID string, isAdmin bool) (booking.Booking, error)
	Get(ctx context.Context, bookingID, actorID string, isAdmin bool) (booking.Booking, error)
}

// ChecklistService signs handover checklists.
type ChecklistService interface {
	CreatePickup(ctx context.Context, params checklist.PickupParams) (checklist.Checklist, error)
	CreateReturn(ctx context.Context, params checklist.ReturnParams) (checklist.ReturnResult, error)
}

// DisputeService rules on damage disputes.
type DisputeService interface {
	Open(ctx context.Context, bookingID, openedBy string, notes *string) (dispute.Record, error)
	Resolve(ctx context.Context, params dispute.ResolveParams, isAdmin bool) (dispute.Record, error)
	ListOpen(ctx context.Context) ([]dispute.Record, error)
}

// SweepRunner cancels timed-out reservations.
type SweepRunner interface {
	Sweep(ctx context.Context) (int, error)
}

// ListingService is the browse surface renters hit before reserving.
type ListingService interface {
	GetByID(ctx context.Context, id string) (listing.Summary, error)
	List(ctx context.Context, category string, limit int) ([]listing.Summary, error)
	BookedRanges(ctx context.Context, listingID string) ([][2]string, error)
}

// Server holds the wired services behind the HTTP surface.
type Server struct {
	authService      AuthService
	bookingService   BookingService
	checklistService ChecklistService
	disputeService   DisputeService
	listingService   ListingService
	sweeper          SweepRunner
	depositConfig    deposit.Config
}

func NewServer(
	authService AuthService,
	bookingService BookingService,
	checklistService ChecklistService,
	disputeService DisputeService,
	listingService ListingService,
	sweeper SweepRunner,
	depositConfig deposit.Config,
) *Server {
	return &Server{
		authService:      authService,
		bookingService:   bookingService,
		checklistService: checklistService,
		disputeService:   disputeService,
		listingService:   listingService,
		sweeper:          sweeper,
		depositConfig:    depositConfig,
	}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/magic-link", s.handleMagicLink)
		r.Post("/auth/magic-login", s.handleMagicLogin)

		r.Post("/deposits/quote", s.handleDepositQuote)

		r.Get("/listings", s.handleListListings)
		r.Get("/listings/{listingID}", s.handleGetListing)
		r.Get("/listings/{listingID}/availability", s.handleListingAvailability)

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/bookings", s.handleReserve)
			r.Get("/bookings/{bookingID}", s.handleGetBooking)
			r.Post("/bookings/{bookingID}/confirm", s.handleConfirm)
			r.Post("/bookings/{bookingID}/cancel", s.handleCancel)
			r.Post("/bookings/{bookingID}/deposit", s.handleMarkDepositPaid)
			r.Post("/bookings/{bookingID}/checklists/pickup", s.handlePickupChecklist)
			r.Post("/bookings/{bookingID}/checklists/return", s.handleReturnChecklist)
			r.Post("/bookings/{bookingID}/disputes", s.handleOpenDispute)

			r.Post("/disputes/{disputeID}/resolve", s.handleResolveDispute)

			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				r.Get("/admin/disputes", s.handleListOpenDisputes)
				r.Post("/admin/sweep", s.handleSweep)
			})
		})
	})

	return r
}
