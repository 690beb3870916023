package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"gearflow/auth"
	"gearflow/booking"
	"gearflow/checklist"
	"gearflow/deposit"
	"gearflow/dispute"
	"gearflow/listing"
	"gearflow/trust"
)

const dateLayout = "2006-01-02"

type userResponse struct {
	ID         string `json:"id"`
	Email      string `json:"email"`
	FullName   string `json:"fullName"`
	Role       string `json:"role"`
	TrustScore int    `json:"trustScore"`
}

type bookingResponse struct {
	ID              string         `json:"id"`
	ListingID       string         `json:"listingId"`
	RenterID        string         `json:"renterId"`
	Status          string         `json:"status"`
	StartDate       string         `json:"startDate"`
	EndDate         string         `json:"endDate"`
	Days            int            `json:"days"`
	DepositRequired int64          `json:"depositRequired"`
	DepositStatus   string         `json:"depositStatus"`
	InsuranceAdded  bool           `json:"insuranceAdded"`
	ExpiresAt       *string        `json:"expiresAt,omitempty"`
	Quote           *deposit.Quote `json:"quote,omitempty"`
	CreatedAt       string         `json:"createdAt"`
}

type checklistResponse struct {
	ID                  string   `json:"id"`
	BookingID           string   `json:"bookingId"`
	Phase               string   `json:"phase"`
	Photos              []string `json:"photos"`
	Serial              *string  `json:"serial,omitempty"`
	ConditionNotes      *string  `json:"conditionNotes,omitempty"`
	ConditionAssessment *string  `json:"conditionAssessment,omitempty"`
	SignedAt            string   `json:"signedAt"`
}

type disputeResponse struct {
	ID           string  `json:"id"`
	BookingID    string  `json:"bookingId"`
	Status       string  `json:"status"`
	Decision     *string `json:"decision,omitempty"`
	RefundAmount *int64  `json:"refundAmount,omitempty"`
	CreatedAt    string  `json:"createdAt"`
	ResolvedAt   *string `json:"resolvedAt,omitempty"`
}

func toUserResponse(u auth.User) userResponse {
	return userResponse{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		Role:       string(u.Role),
		TrustScore: u.TrustScore,
	}
}

func toBookingResponse(b booking.Booking) bookingResponse {
	resp := bookingResponse{
		ID:              b.ID,
		ListingID:       b.ListingID,
		RenterID:        b.RenterID,
		Status:          string(b.Status),
		StartDate:       b.StartDate.Format(dateLayout),
		EndDate:         b.EndDate.Format(dateLayout),
		Days:            b.Days(),
		DepositRequired: b.DepositRequired,
		DepositStatus:   string(b.DepositStatus),
		InsuranceAdded:  b.InsuranceAdded,
		CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
	}
	if b.ExpiresAt != nil {
		expires := b.ExpiresAt.UTC().Format(time.RFC3339)
		resp.ExpiresAt = &expires
	}
	return resp
}

func toChecklistResponse(cl checklist.Checklist) checklistResponse {
	resp := checklistResponse{
		ID:             cl.ID,
		BookingID:      cl.BookingID,
		Phase:          string(cl.Phase),
		Photos:         cl.Photos,
		Serial:         cl.Serial,
		ConditionNotes: cl.ConditionNotes,
		SignedAt:       cl.SignedAt.UTC().Format(time.RFC3339),
	}
	if cl.ConditionAssessment != nil {
		a := string(*cl.ConditionAssessment)
		resp.ConditionAssessment = &a
	}
	return resp
}

func toDisputeResponse(rec dispute.Record) disputeResponse {
	resp := disputeResponse{
		ID:           rec.ID,
		BookingID:    rec.BookingID,
		Status:       string(rec.Status),
		RefundAmount: rec.RefundAmount,
		CreatedAt:    rec.CreatedAt.UTC().Format(time.RFC3339),
	}
	if rec.Decision != nil {
		d := string(*rec.Decision)
		resp.Decision = &d
	}
	if rec.ResolvedAt != nil {
		resolved := rec.ResolvedAt.UTC().Format(time.RFC3339)
		resp.ResolvedAt = &resolved
	}
	return resp
}

type listingResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Category        string `json:"category"`
	DailyRate       int64  `json:"dailyRate"`
	MinRentalDays   int    `json:"minRentalDays"`
	InstantBook     bool   `json:"instantBook"`
	OwnerTrustScore int    `json:"ownerTrustScore"`
}

func toListingResponse(l listing.Summary) listingResponse {
	return listingResponse{
		ID:              l.ID,
		Title:           l.Title,
		Category:        l.Category,
		DailyRate:       l.DailyRate,
		MinRentalDays:   l.MinRentalDays,
		InstantBook:     l.InstantBook,
		OwnerTrustScore: l.OwnerTrustScore,
	}
}

func (s *Server) handleListListings(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeErrorCode(w, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be an integer")
			return
		}
		limit = parsed
	}

	listings, err := s.listingService.List(r.Context(), r.URL.Query().Get("category"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]listingResponse, 0, len(listings))
	for _, l := range listings {
		items = append(items, toListingResponse(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"items":   items,
		"total":   len(items),
	})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	l, err := s.listingService.GetByID(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"listing": toListingResponse(l),
	})
}

func (s *Server) handleListingAvailability(w http.ResponseWriter, r *http.Request) {
	listingID := chi.URLParam(r, "listingID")
	if _, err := s.listingService.GetByID(r.Context(), listingID); err != nil {
		writeError(w, err)
		return
	}
	ranges, err := s.listingService.BookedRanges(r.Context(), listingID)
	if err != nil {
		writeError(w, err)
		return
	}
	booked := make([]map[string]string, 0, len(ranges))
	for _, rng := range ranges {
		booked = append(booked, map[string]string{"startDate": rng[0], "endDate": rng[1]})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"booked":  booked,
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	user, err := s.authService.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"user":    toUserResponse(*user),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.authService.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   result.Token,
		"user":    toUserResponse(result.User),
	})
}

func (s *Server) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_FAILED", "email is required")
		return
	}
	if err := s.authService.RequestMagicLink(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	// Accepted regardless of whether the email is registered.
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

func (s *Server) handleMagicLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	result, err := s.authService.LoginWithToken(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"token":   result.Token,
		"user":    toUserResponse(result.User),
	})
}

func (s *Server) handleDepositQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DailyRate        int64  `json:"dailyRate"`
		Days             int    `json:"days"`
		Category         string `json:"category"`
		OwnerTrustScore  *int   `json:"ownerTrustScore"`
		RenterTrustScore *int   `json:"renterTrustScore"`
		DepositOverride  *int64 `json:"depositOverride"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DailyRate <= 0 || req.Days <= 0 {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_FAILED", "dailyRate and days must be positive")
		return
	}

	in := deposit.Input{
		DailyRate:        req.DailyRate,
		Days:             req.Days,
		Category:         req.Category,
		OwnerTrustScore:  trust.Baseline,
		RenterTrustScore: trust.Baseline,
		DepositOverride:  req.DepositOverride,
	}
	if req.OwnerTrustScore != nil {
		in.OwnerTrustScore = *req.OwnerTrustScore
	}
	if req.RenterTrustScore != nil {
		in.RenterTrustScore = *req.RenterTrustScore
	}

	quote := deposit.Calculate(in, s.depositConfig)
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"quote":   quote,
	})
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ListingID    string  `json:"listingId"`
		StartDate    string  `json:"startDate"`
		EndDate      string  `json:"endDate"`
		AddInsurance bool    `json:"addInsurance"`
		Notes        *string `json:"notes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_FAILED", "startDate must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		writeErrorCode(w, http.StatusBadRequest, "VALIDATION_FAILED", "endDate must be YYYY-MM-DD")
		return
	}

	result, err := s.bookingService.Reserve(r.Context(), booking.ReserveParams{
		ListingID:    req.ListingID,
		RenterID:     callerID(r),
		StartDate:    start,
		EndDate:      end,
		AddInsurance: req.AddInsurance,
		Notes:        req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	resp := toBookingResponse(result.Booking)
	resp.Quote = &result.Quote
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"booking": resp,
	})
}

func (s *Server) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookingService.Get(r.Context(), chi.URLParam(r, "bookingID"), callerID(r), callerIsAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"booking": toBookingResponse(b),
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookingService.Confirm(r.Context(), chi.URLParam(r, "bookingID"), callerID(r), callerIsAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"booking": toBookingResponse(b),
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookingService.Cancel(r.Context(), chi.URLParam(r, "bookingID"), callerID(r), callerIsAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"booking": toBookingResponse(b),
	})
}

func (s *Server) handleMarkDepositPaid(w http.ResponseWriter, r *http.Request) {
	b, err := s.bookingService.MarkDepositPaid(r.Context(), chi.URLParam(r, "bookingID"), callerID(r), callerIsAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"booking": toBookingResponse(b),
	})
}

func (s *Server) handlePickupChecklist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Photos           []string `json:"photos"`
		Serial           *string  `json:"serial"`
		ConditionNotes   *string  `json:"conditionNotes"`
		DepositCollected bool     `json:"depositCollected"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	cl, err := s.checklistService.CreatePickup(r.Context(), checklist.PickupParams{
		BookingID:        chi.URLParam(r, "bookingID"),
		ActorID:          callerID(r),
		Photos:           req.Photos,
		Serial:           req.Serial,
		ConditionNotes:   req.ConditionNotes,
		DepositCollected: req.DepositCollected,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"checklist": toChecklistResponse(cl),
	})
}

func (s *Server) handleReturnChecklist(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Photos              []string `json:"photos"`
		ConditionAssessment string   `json:"conditionAssessment"`
		ConditionNotes      *string  `json:"conditionNotes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.checklistService.CreateReturn(r.Context(), checklist.ReturnParams{
		BookingID:      chi.URLParam(r, "bookingID"),
		ActorID:        callerID(r),
		Photos:         req.Photos,
		Assessment:     checklist.Assessment(req.ConditionAssessment),
		ConditionNotes: req.ConditionNotes,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	payload := map[string]any{
		"success":   true,
		"checklist": toChecklistResponse(result.Checklist),
		"booking":   toBookingResponse(result.Booking),
	}
	if result.DisputeID != "" {
		payload["disputeId"] = result.DisputeID
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (s *Server) handleOpenDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes *string `json:"notes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	rec, err := s.disputeService.Open(r.Context(), chi.URLParam(r, "bookingID"), callerID(r), req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"dispute": toDisputeResponse(rec),
	})
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Decision     string  `json:"decision"`
		RefundAmount *int64  `json:"refundAmount"`
		Notes        *string `json:"notes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := s.disputeService.Resolve(r.Context(), dispute.ResolveParams{
		DisputeID:    chi.URLParam(r, "disputeID"),
		AdminID:      callerID(r),
		Decision:     dispute.Decision(req.Decision),
		RefundAmount: req.RefundAmount,
		Notes:        req.Notes,
	}, callerIsAdmin(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"dispute": toDisputeResponse(rec),
	})
}

func (s *Server) handleListOpenDisputes(w http.ResponseWriter, r *http.Request) {
	records, err := s.disputeService.ListOpen(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	items := make([]disputeResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toDisputeResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"items":   items,
		"total":   len(items),
	})
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	expired, err := s.sweeper.Sweep(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"expiredCount": expired,
		"timestamp":    time.Now().UTC().Format(time.RFC3339),
	})
}
